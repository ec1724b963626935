// Package broker sits between the protocol core and the presentation
// layer. A single command loop applies user intents to the core in arrival
// order while a concurrent relay goroutine forwards core-originated
// notifications; both deliver only fully built snapshots or mutation
// closures to the presentation sink.
package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nostrchat/internal/bus"
	"nostrchat/internal/core"
	"nostrchat/internal/domain"
	"nostrchat/internal/state"
	"nostrchat/internal/ui"
)

const commandQueueCapacity = 64

// Core is the protocol engine surface the broker drives. Mutating
// operations report their outcome; snapshot refreshes are gated on it.
type Core interface {
	AddRelay(ctx context.Context, url string) error
	RemoveRelay(ctx context.Context, url string) error
	ConnectRelay(ctx context.Context, url string) error
	DisconnectRelay(ctx context.Context, url string) error
	AddContact(ctx context.Context, c domain.Contact) error
	RemoveContact(ctx context.Context, c domain.Contact) error
	Config() ([]string, []domain.Contact)
	User() domain.User
	Conversation(pk string) (domain.Conversation, bool)
	ImportSecretKey(sk string) error
	GenerateKeyPair() error
	Subscribe(ctx context.Context) error
	SendMessage(ctx context.Context, pk, content string) error
}

type Broker struct {
	logger *slog.Logger
	core   Core
	bus    bus.MessageBus
	sink   ui.Sink

	mu       sync.RWMutex
	closed   bool
	commands chan Command
}

func New(logger *slog.Logger, c Core, b bus.MessageBus, sink ui.Sink) *Broker {
	return &Broker{
		logger:   logger,
		core:     c,
		bus:      b,
		sink:     sink,
		commands: make(chan Command, commandQueueCapacity),
	}
}

// Submit enqueues one command. Commands submitted by the same goroutine
// are processed in submission order. It reports false once the broker has
// been closed.
func (br *Broker) Submit(cmd Command) bool {
	br.mu.RLock()
	defer br.mu.RUnlock()
	if br.closed {
		return false
	}
	br.commands <- cmd

	return true
}

// Close stops accepting commands. The command loop drains what was already
// queued and then shuts the broker down.
func (br *Broker) Close() {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.closed {
		return
	}
	br.closed = true
	close(br.commands)
}

// Run publishes the initial configuration snapshot, then drives the
// command loop and the notification relay until ctx is cancelled or the
// command channel is closed. It returns only after both goroutines exit.
func (br *Broker) Run(ctx context.Context) {
	br.publishConfig()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		br.runNotificationRelay(runCtx)
	}()
	go func() {
		defer wg.Done()
		// Closing the command channel ends the whole broker, relay
		// included.
		defer cancel()
		br.runCommandLoop(runCtx)
	}()
	wg.Wait()
	br.logger.Info("broker stopped")
}

func (br *Broker) runCommandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-br.commands:
			if !ok {
				br.logger.Debug("command channel closed")
				return
			}
			br.handleCommand(ctx, cmd)
		}
	}
}

// handleCommand applies one command to the core. Commands are never
// processed concurrently: several handlers mutate and immediately re-read
// core collections to build a snapshot, and serialization is what keeps
// those reads consistent.
func (br *Broker) handleCommand(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case AddRelay:
		if err := br.core.AddRelay(ctx, c.URL); err != nil {
			br.fail(cmd, err)
			return
		}
		br.publishConfig()
	case RemoveRelay:
		if err := br.core.RemoveRelay(ctx, c.URL); err != nil {
			br.fail(cmd, err)
			return
		}
		br.publishConfig()
	case ConnectRelay:
		if err := br.core.ConnectRelay(ctx, c.URL); err != nil {
			br.fail(cmd, err)
		}
	case DisconnectRelay:
		if err := br.core.DisconnectRelay(ctx, c.URL); err != nil {
			br.fail(cmd, err)
		}
	case AddContact:
		if err := br.core.AddContact(ctx, c.Contact); err != nil {
			br.fail(cmd, err)
			return
		}
		br.publishConfig()
	case RemoveContact:
		if err := br.core.RemoveContact(ctx, c.Contact); err != nil {
			br.fail(cmd, err)
			return
		}
		br.publishConfig()
	case SubscribeInRelays:
		if err := br.core.Subscribe(ctx); err != nil {
			br.fail(cmd, err)
		}
	case RestoreKeyPair:
		if err := br.core.ImportSecretKey(c.SecretKey); err != nil {
			br.fail(cmd, err)
			return
		}
		br.publishUser()
		if err := br.core.Subscribe(ctx); err != nil {
			br.fail(cmd, err)
		}
	case GenerateNewKeyPair:
		if err := br.core.GenerateKeyPair(); err != nil {
			br.fail(cmd, err)
			return
		}
		br.publishUser()
		if err := br.core.Subscribe(ctx); err != nil {
			br.fail(cmd, err)
		}
	case SetConversation:
		conv, ok := br.core.Conversation(c.PublicKey)
		if !ok {
			// Missing conversation leaves the current selection as is.
			br.logger.Debug("no conversation for peer", "pk", domain.ShortKey(c.PublicKey))
			return
		}
		br.publishConversation(conv)
	case SendMessage:
		if err := br.core.SendMessage(ctx, c.PublicKey, c.Content); err != nil {
			br.fail(cmd, err)
		}
	case LoadConfigs:
		br.publishConfig()
	default:
		br.logger.Warn("unhandled command", "command", cmd.Name())
	}
}

func (br *Broker) runNotificationRelay(ctx context.Context) {
	sub := br.bus.Subscribe(core.TopicNewMessage)
	defer br.bus.Unsubscribe(sub, core.TopicNewMessage)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				br.logger.Debug("notification stream closed")
				return
			}
			noti, ok := raw.(core.NewMessage)
			if !ok {
				continue
			}
			br.applyNewMessage(noti.Message)
		}
	}
}

// applyNewMessage appends one projected message to the selected
// conversation. Messages for a peer that is not currently selected are
// dropped, not queued; the core stays the source of truth and a later
// SetConversation fetch repopulates full history.
func (br *Broker) applyNewMessage(msg domain.Message) {
	projected := state.ProjectMessage(msg)
	peer := msg.Peer
	br.sink.Apply(func(s *ui.AppState) {
		if s.Selected == nil || s.Selected.Peer != peer {
			return
		}
		updated := s.Selected.AppendMessage(projected)
		s.Selected = &updated
	})
}

func (br *Broker) publishConfig() {
	relays, contacts := br.core.Config()
	snapshot := state.ProjectConfig(relays, contacts)
	br.sink.Apply(func(s *ui.AppState) {
		s.Config = snapshot
	})
}

func (br *Broker) publishUser() {
	snapshot := state.ProjectUser(br.core.User())
	br.sink.Apply(func(s *ui.AppState) {
		s.User = snapshot
	})
}

func (br *Broker) publishConversation(conv domain.Conversation) {
	snapshot := state.ProjectConversation(conv)
	br.sink.Apply(func(s *ui.AppState) {
		s.Selected = &snapshot
	})
}

// fail surfaces a command failure to the presentation layer instead of
// dropping it silently.
func (br *Broker) fail(cmd Command, err error) {
	br.logger.Warn("command failed", "command", cmd.Name(), "error", err)
	failure := &ui.CommandError{
		Command: cmd.Name(),
		Reason:  err.Error(),
		At:      time.Now(),
	}
	br.sink.Apply(func(s *ui.AppState) {
		s.LastError = failure
	})
}
