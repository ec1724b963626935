package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"nostrchat/internal/bus"
	"nostrchat/internal/core"
	"nostrchat/internal/domain"
	"nostrchat/internal/notifications"
)

// NotificationService listens to bus events and emits user-facing
// notifications for incoming messages and relay connection changes.
type NotificationService struct {
	bus      bus.MessageBus
	contacts func() []domain.Contact
	sender   notifications.Sender
	logger   *slog.Logger

	connStateMu sync.Mutex
	connState   map[string]core.ConnState
}

func NewNotificationService(
	messageBus bus.MessageBus,
	contacts func() []domain.Contact,
	sender notifications.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default().With("component", "app.notifications")
	}

	return &NotificationService{
		bus:       messageBus,
		contacts:  contacts,
		sender:    sender,
		logger:    logger,
		connState: map[string]core.ConnState{},
	}
}

func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	msgSub := s.bus.Subscribe(core.TopicNewMessage)
	connSub := s.bus.Subscribe(core.TopicConnStatus)

	go func() {
		defer s.bus.Unsubscribe(msgSub, core.TopicNewMessage)
		defer s.bus.Unsubscribe(connSub, core.TopicConnStatus)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-msgSub:
				if !ok {
					return
				}
				event, ok := raw.(core.NewMessage)
				if !ok {
					continue
				}
				s.handleIncomingMessage(event.Message)
			case raw, ok := <-connSub:
				if !ok {
					return
				}
				status, ok := raw.(core.ConnStatus)
				if !ok {
					continue
				}
				s.handleConnStatus(status)
			}
		}
	}()
}

func (s *NotificationService) handleIncomingMessage(msg domain.Message) {
	if msg.Mine {
		return
	}

	body := strings.TrimSpace(msg.Content)
	if body == "" {
		body = "(empty)"
	}

	s.sender.Send(notifications.Payload{
		Title:   "@" + s.peerName(msg.Peer),
		Content: body,
	})
}

// handleConnStatus notifies only on state transitions so a flapping relay
// does not spam the desktop on every retry.
func (s *NotificationService) handleConnStatus(status core.ConnStatus) {
	s.connStateMu.Lock()
	previous, known := s.connState[status.URL]
	s.connState[status.URL] = status.State
	s.connStateMu.Unlock()

	if known && previous == status.State {
		return
	}

	switch status.State {
	case core.ConnStateFailed:
		content := status.URL
		if status.Err != "" {
			content = fmt.Sprintf("%s: %s", status.URL, status.Err)
		}
		s.sender.Send(notifications.Payload{
			Title:   "Relay connection failed",
			Content: content,
		})
	case core.ConnStateDisconnected:
		if !known {
			return
		}
		s.sender.Send(notifications.Payload{
			Title:   "Relay disconnected",
			Content: status.URL,
		})
	}
}

func (s *NotificationService) peerName(publicKey string) string {
	if s.contacts != nil {
		for _, c := range s.contacts() {
			if c.PublicKey == publicKey {
				return c.Alias
			}
		}
	}
	return domain.ShortKey(publicKey)
}
