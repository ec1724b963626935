package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"nostrchat/internal/bus"
	"nostrchat/internal/domain"
)

var (
	ErrRelayExists    = errors.New("relay already configured")
	ErrRelayUnknown   = errors.New("relay is not configured")
	ErrNotConnected   = errors.New("no connected relay")
	ErrContactExists  = errors.New("contact already exists")
	ErrContactUnknown = errors.New("contact is unknown")
	ErrNoIdentity     = errors.New("no user keypair configured")
)

// Store is the write-through persistence boundary. Implementations are
// expected to be asynchronous and never block the caller.
type Store interface {
	SaveRelays(urls []string)
	SaveContact(c domain.Contact)
	DeleteContact(publicKey string)
	SaveMessage(m domain.Message)
}

// Handle owns the protocol engine state: relay list, contact list, user
// keypair, and per-peer conversations. Mutating operations are expected to
// be serialized by the broker's command loop; internal locking additionally
// keeps concurrent readers safe.
type Handle struct {
	logger *slog.Logger
	bus    bus.MessageBus
	dial   Dialer
	store  Store
	convs  *domain.ConversationStore

	mu       sync.RWMutex
	runCtx   context.Context
	relays   []string
	conns    map[string]RelayConn
	unsubs   map[string]func()
	contacts []domain.Contact
	user     domain.User
}

func NewHandle(logger *slog.Logger, b bus.MessageBus, dial Dialer, store Store) *Handle {
	return &Handle{
		logger: logger,
		bus:    b,
		dial:   dial,
		store:  store,
		convs:  domain.NewConversationStore(),
		runCtx: context.Background(),
		conns:  make(map[string]RelayConn),
		unsubs: make(map[string]func()),
	}
}

// Start binds the handle to its runtime context. Relay readers started by
// later Connect/Subscribe calls live until this context is cancelled.
func (h *Handle) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runCtx = ctx
}

// LoadState seeds relays, contacts, and message history from persistence.
func (h *Handle) LoadState(relays []string, contacts []domain.Contact, history map[string][]domain.Message) {
	h.mu.Lock()
	h.relays = append([]string(nil), relays...)
	h.contacts = append([]domain.Contact(nil), contacts...)
	h.mu.Unlock()
	h.convs.Load(history)
}

func (h *Handle) AddRelay(ctx context.Context, url string) error {
	normalized, err := normalizeRelayURL(url)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.relays {
		if existing == normalized {
			return fmt.Errorf("%w: %s", ErrRelayExists, normalized)
		}
	}
	h.relays = append(h.relays, normalized)
	h.store.SaveRelays(append([]string(nil), h.relays...))
	h.logger.Info("relay added", "url", normalized)

	return nil
}

func (h *Handle) RemoveRelay(ctx context.Context, url string) error {
	normalized, err := normalizeRelayURL(url)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	idx := -1
	for i, existing := range h.relays {
		if existing == normalized {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrRelayUnknown, normalized)
	}
	h.closeConnLocked(normalized)
	h.relays = append(h.relays[:idx], h.relays[idx+1:]...)
	h.store.SaveRelays(append([]string(nil), h.relays...))
	h.logger.Info("relay removed", "url", normalized)

	return nil
}

func (h *Handle) ConnectRelay(ctx context.Context, url string) error {
	normalized, err := normalizeRelayURL(url)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasRelayLocked(normalized) {
		return fmt.Errorf("%w: %s", ErrRelayUnknown, normalized)
	}
	if _, connected := h.conns[normalized]; connected {
		return nil
	}

	conn, err := h.dial(ctx, normalized)
	if err != nil {
		h.publishConnStatus(normalized, ConnStateFailed, err)
		return err
	}
	h.conns[normalized] = conn
	h.publishConnStatus(normalized, ConnStateConnected, nil)

	if h.user.HasIdentity() {
		if err := h.subscribeConnLocked(conn); err != nil {
			h.logger.Warn("subscribe after connect failed", "url", normalized, "error", err)
		}
	}

	return nil
}

func (h *Handle) DisconnectRelay(ctx context.Context, url string) error {
	normalized, err := normalizeRelayURL(url)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, connected := h.conns[normalized]; !connected {
		return fmt.Errorf("%w: %s", ErrNotConnected, normalized)
	}
	h.closeConnLocked(normalized)

	return nil
}

func (h *Handle) AddContact(ctx context.Context, c domain.Contact) error {
	alias := strings.TrimSpace(c.Alias)
	if alias == "" {
		return errors.New("contact alias is empty")
	}
	pk, err := domain.NormalizePublicKey(c.PublicKey)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.contacts {
		if existing.PublicKey == pk {
			return fmt.Errorf("%w: %s", ErrContactExists, domain.ShortKey(pk))
		}
	}
	contact := domain.Contact{Alias: alias, PublicKey: pk}
	h.contacts = append(h.contacts, contact)
	h.store.SaveContact(contact)
	h.logger.Info("contact added", "alias", alias, "pk", domain.ShortKey(pk))

	return nil
}

func (h *Handle) RemoveContact(ctx context.Context, c domain.Contact) error {
	pk, err := domain.NormalizePublicKey(c.PublicKey)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	idx := -1
	for i, existing := range h.contacts {
		if existing.PublicKey == pk {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrContactUnknown, domain.ShortKey(pk))
	}
	h.contacts = append(h.contacts[:idx], h.contacts[idx+1:]...)
	h.store.DeleteContact(pk)
	h.logger.Info("contact removed", "pk", domain.ShortKey(pk))

	return nil
}

// Config returns the configured relay list and contact list as copies.
func (h *Handle) Config() ([]string, []domain.Contact) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]string(nil), h.relays...), append([]domain.Contact(nil), h.contacts...)
}

func (h *Handle) User() domain.User {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.user
}

func (h *Handle) ImportSecretKey(sk string) error {
	normalized, err := domain.NormalizeSecretKey(sk)
	if err != nil {
		return err
	}
	pk, err := nostr.GetPublicKey(normalized)
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.user = domain.User{SecretKey: normalized, PublicKey: pk}
	h.logger.Info("keypair imported", "pk", domain.ShortKey(pk))

	return nil
}

func (h *Handle) GenerateKeyPair() error {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.user = domain.User{SecretKey: sk, PublicKey: pk}
	h.logger.Info("keypair generated", "pk", domain.ShortKey(pk))

	return nil
}

// Subscribe re-establishes the DM subscription for the current keypair on
// every connected relay, dropping previous subscriptions first.
func (h *Handle) Subscribe(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.user.HasIdentity() {
		return ErrNoIdentity
	}

	var firstErr error
	for _, conn := range h.conns {
		if err := h.subscribeConnLocked(conn); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (h *Handle) SendMessage(ctx context.Context, pk, content string) error {
	peer, err := domain.NormalizePublicKey(pk)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("message content is empty")
	}

	h.mu.RLock()
	user := h.user
	conns := make([]RelayConn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if !user.HasIdentity() {
		return ErrNoIdentity
	}
	if len(conns) == 0 {
		return ErrNotConnected
	}

	shared, err := nip04.ComputeSharedSecret(peer, user.SecretKey)
	if err != nil {
		return fmt.Errorf("compute shared secret: %w", err)
	}
	ciphertext, err := nip04.Encrypt(content, shared)
	if err != nil {
		return fmt.Errorf("encrypt message: %w", err)
	}

	evt := nostr.Event{
		PubKey:    user.PublicKey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindEncryptedDirectMessage,
		Tags:      nostr.Tags{nostr.Tag{"p", peer}},
		Content:   ciphertext,
	}
	if err := evt.Sign(user.SecretKey); err != nil {
		return fmt.Errorf("sign message event: %w", err)
	}

	published := 0
	var lastErr error
	for _, conn := range conns {
		if err := conn.Publish(ctx, evt); err != nil {
			h.logger.Warn("publish failed", "url", conn.URL(), "error", err)
			lastErr = err
			continue
		}
		published++
	}
	if published == 0 {
		return fmt.Errorf("publish to all relays failed: %w", lastErr)
	}

	// Loop the sent message back through the notification path so the UI
	// update rides the same code as peer-originated messages.
	msg := domain.Message{
		EventID:   evt.ID,
		Peer:      peer,
		Author:    user.PublicKey,
		Content:   content,
		CreatedAt: evt.CreatedAt.Time(),
		Mine:      true,
	}
	h.recordMessage(msg)

	return nil
}

func (h *Handle) Conversation(pk string) (domain.Conversation, bool) {
	peer, err := domain.NormalizePublicKey(pk)
	if err != nil {
		return domain.Conversation{}, false
	}

	return h.convs.Conversation(peer)
}

func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for url := range h.conns {
		h.closeConnLocked(url)
	}
}

func (h *Handle) hasRelayLocked(url string) bool {
	for _, existing := range h.relays {
		if existing == url {
			return true
		}
	}
	return false
}

func (h *Handle) closeConnLocked(url string) {
	if unsub, ok := h.unsubs[url]; ok {
		unsub()
		delete(h.unsubs, url)
	}
	conn, ok := h.conns[url]
	if !ok {
		return
	}
	if err := conn.Close(); err != nil {
		h.logger.Warn("close relay connection", "url", url, "error", err)
	}
	delete(h.conns, url)
	h.publishConnStatus(url, ConnStateDisconnected, nil)
}

func (h *Handle) subscribeConnLocked(conn RelayConn) error {
	url := conn.URL()
	if unsub, ok := h.unsubs[url]; ok {
		unsub()
		delete(h.unsubs, url)
	}

	filters := nostr.Filters{{
		Kinds: []int{nostr.KindEncryptedDirectMessage},
		Tags:  nostr.TagMap{"p": []string{h.user.PublicKey}},
	}}
	events, unsub, err := conn.Subscribe(h.runCtx, filters)
	if err != nil {
		return err
	}
	h.unsubs[url] = unsub
	go h.drainEvents(url, events)

	return nil
}

func (h *Handle) drainEvents(url string, events <-chan *nostr.Event) {
	for {
		select {
		case <-h.runCtx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				h.logger.Debug("relay event stream closed", "url", url)
				return
			}
			if evt == nil {
				continue
			}
			h.handleIncoming(evt)
		}
	}
}

func (h *Handle) handleIncoming(evt *nostr.Event) {
	h.mu.RLock()
	user := h.user
	h.mu.RUnlock()
	if !user.HasIdentity() {
		return
	}

	peer := evt.PubKey
	if evt.PubKey == user.PublicKey {
		tag := evt.Tags.GetFirst([]string{"p"})
		if tag == nil {
			return
		}
		peer = tag.Value()
	}

	shared, err := nip04.ComputeSharedSecret(peer, user.SecretKey)
	if err != nil {
		h.logger.Warn("shared secret for incoming event", "pk", domain.ShortKey(peer), "error", err)
		return
	}
	plaintext, err := nip04.Decrypt(evt.Content, shared)
	if err != nil {
		h.logger.Warn("decrypt incoming event", "event_id", evt.ID, "error", err)
		return
	}

	h.recordMessage(domain.Message{
		EventID:   evt.ID,
		Peer:      peer,
		Author:    evt.PubKey,
		Content:   plaintext,
		CreatedAt: evt.CreatedAt.Time(),
		Mine:      evt.PubKey == user.PublicKey,
	})
}

// recordMessage appends to the conversation store and, if the message is
// new, persists it and emits the bus notification.
func (h *Handle) recordMessage(msg domain.Message) {
	if !h.convs.Append(msg) {
		return
	}
	h.store.SaveMessage(msg)
	h.bus.Publish(TopicNewMessage, NewMessage{Message: msg})
}

func (h *Handle) publishConnStatus(url string, state ConnState, err error) {
	status := ConnStatus{
		URL:       url,
		State:     state,
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Err = err.Error()
	}
	h.bus.Publish(TopicConnStatus, status)
}

func normalizeRelayURL(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", errors.New("relay url is empty")
	}
	normalized := nostr.NormalizeURL(v)
	if normalized == "" {
		return "", fmt.Errorf("invalid relay url: %q", raw)
	}

	return normalized, nil
}
