package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"nostrchat/internal/bus"
	"nostrchat/internal/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	relays   [][]string
	contacts []domain.Contact
	deleted  []string
	messages []domain.Message
}

func (s *fakeStore) SaveRelays(urls []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relays = append(s.relays, urls)
}

func (s *fakeStore) SaveContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, c)
}

func (s *fakeStore) DeleteContact(pk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, pk)
}

func (s *fakeStore) SaveMessage(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

type fakeConn struct {
	url    string
	mu     sync.Mutex
	events chan *nostr.Event
	sent   []nostr.Event
	closed bool
	pubErr error
}

func newFakeConn(url string) *fakeConn {
	return &fakeConn{url: url, events: make(chan *nostr.Event, 16)}
}

func (c *fakeConn) URL() string { return c.url }

func (c *fakeConn) Publish(ctx context.Context, evt nostr.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubErr != nil {
		return c.pubErr
	}
	c.sent = append(c.sent, evt)
	return nil
}

func (c *fakeConn) Subscribe(ctx context.Context, filters nostr.Filters) (<-chan *nostr.Event, func(), error) {
	return c.events, func() {}, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newTestHandle(t *testing.T, conns map[string]*fakeConn) (*Handle, *fakeStore, bus.MessageBus) {
	t.Helper()
	logger := slog.Default()
	b := bus.New(logger)
	t.Cleanup(b.Close)

	store := &fakeStore{}
	dial := func(ctx context.Context, url string) (RelayConn, error) {
		conn, ok := conns[url]
		if !ok {
			return nil, errors.New("dial refused")
		}
		return conn, nil
	}

	h := NewHandle(logger, b, dial, store)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.Start(ctx)

	return h, store, b
}

func waitForEvent(t *testing.T, sub bus.Subscription) any {
	t.Helper()
	select {
	case msg := <-sub:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for bus event")
		return nil
	}
}

func TestHandle_AddRelay_NormalizesAndRejectsDuplicates(t *testing.T) {
	h, store, _ := newTestHandle(t, nil)
	ctx := context.Background()

	if err := h.AddRelay(ctx, "wss://relay.example.com"); err != nil {
		t.Fatalf("add relay: %v", err)
	}
	if err := h.AddRelay(ctx, "wss://relay.example.com/"); !errors.Is(err, ErrRelayExists) {
		t.Fatalf("expected ErrRelayExists for normalized duplicate, got %v", err)
	}

	relays, _ := h.Config()
	if len(relays) != 1 {
		t.Fatalf("expected 1 relay, got %v", relays)
	}
	if len(store.relays) != 1 {
		t.Fatalf("expected one persisted relay snapshot, got %d", len(store.relays))
	}
}

func TestHandle_RemoveRelay_UnknownURL(t *testing.T) {
	h, _, _ := newTestHandle(t, nil)

	err := h.RemoveRelay(context.Background(), "wss://nowhere.example.com")
	if !errors.Is(err, ErrRelayUnknown) {
		t.Fatalf("expected ErrRelayUnknown, got %v", err)
	}
}

func TestHandle_ConnectRelay_PublishesStatusAndSubscribes(t *testing.T) {
	conn := newFakeConn("wss://relay.example.com")
	h, _, b := newTestHandle(t, map[string]*fakeConn{"wss://relay.example.com": conn})
	ctx := context.Background()

	statusSub := b.Subscribe(TopicConnStatus)
	defer b.Unsubscribe(statusSub, TopicConnStatus)

	if err := h.GenerateKeyPair(); err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	if err := h.AddRelay(ctx, "wss://relay.example.com"); err != nil {
		t.Fatalf("add relay: %v", err)
	}
	if err := h.ConnectRelay(ctx, "wss://relay.example.com"); err != nil {
		t.Fatalf("connect relay: %v", err)
	}

	raw := waitForEvent(t, statusSub)
	status, ok := raw.(ConnStatus)
	if !ok {
		t.Fatalf("unexpected payload type %T", raw)
	}
	if status.State != ConnStateConnected {
		t.Fatalf("expected connected state, got %v", status.State)
	}
}

func TestHandle_ConnectRelay_RequiresConfiguredRelay(t *testing.T) {
	h, _, _ := newTestHandle(t, nil)

	err := h.ConnectRelay(context.Background(), "wss://relay.example.com")
	if !errors.Is(err, ErrRelayUnknown) {
		t.Fatalf("expected ErrRelayUnknown, got %v", err)
	}
}

func TestHandle_SendMessage_RequiresIdentityAndConnection(t *testing.T) {
	h, _, _ := newTestHandle(t, nil)
	ctx := context.Background()

	peerSK := nostr.GeneratePrivateKey()
	peerPK, _ := nostr.GetPublicKey(peerSK)

	if err := h.SendMessage(ctx, peerPK, "hi"); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}

	if err := h.GenerateKeyPair(); err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	if err := h.SendMessage(ctx, peerPK, "hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestHandle_SendMessage_PublishesAndLoopsBack(t *testing.T) {
	conn := newFakeConn("wss://relay.example.com")
	h, store, b := newTestHandle(t, map[string]*fakeConn{"wss://relay.example.com": conn})
	ctx := context.Background()

	msgSub := b.Subscribe(TopicNewMessage)
	defer b.Unsubscribe(msgSub, TopicNewMessage)

	if err := h.GenerateKeyPair(); err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	if err := h.AddRelay(ctx, "wss://relay.example.com"); err != nil {
		t.Fatalf("add relay: %v", err)
	}
	if err := h.ConnectRelay(ctx, "wss://relay.example.com"); err != nil {
		t.Fatalf("connect relay: %v", err)
	}

	peerSK := nostr.GeneratePrivateKey()
	peerPK, _ := nostr.GetPublicKey(peerSK)
	if err := h.SendMessage(ctx, peerPK, "hello peer"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	if conn.sentCount() != 1 {
		t.Fatalf("expected 1 published event, got %d", conn.sentCount())
	}

	raw := waitForEvent(t, msgSub)
	noti, ok := raw.(NewMessage)
	if !ok {
		t.Fatalf("unexpected payload type %T", raw)
	}
	if !noti.Message.Mine || noti.Message.Content != "hello peer" || noti.Message.Peer != peerPK {
		t.Fatalf("unexpected loopback message: %+v", noti.Message)
	}

	conv, ok := h.Conversation(peerPK)
	if !ok || len(conv.Messages) != 1 {
		t.Fatalf("expected 1 message in conversation, got ok=%v len=%d", ok, len(conv.Messages))
	}

	store.mu.Lock()
	persisted := len(store.messages)
	store.mu.Unlock()
	if persisted != 1 {
		t.Fatalf("expected 1 persisted message, got %d", persisted)
	}
}

func TestHandle_IncomingEvent_DecryptsAppendsAndNotifies(t *testing.T) {
	conn := newFakeConn("wss://relay.example.com")
	h, _, b := newTestHandle(t, map[string]*fakeConn{"wss://relay.example.com": conn})
	ctx := context.Background()

	msgSub := b.Subscribe(TopicNewMessage)
	defer b.Unsubscribe(msgSub, TopicNewMessage)

	if err := h.GenerateKeyPair(); err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	me := h.User()
	if err := h.AddRelay(ctx, "wss://relay.example.com"); err != nil {
		t.Fatalf("add relay: %v", err)
	}
	if err := h.ConnectRelay(ctx, "wss://relay.example.com"); err != nil {
		t.Fatalf("connect relay: %v", err)
	}

	peerSK := nostr.GeneratePrivateKey()
	peerPK, _ := nostr.GetPublicKey(peerSK)
	shared, err := nip04.ComputeSharedSecret(me.PublicKey, peerSK)
	if err != nil {
		t.Fatalf("peer shared secret: %v", err)
	}
	ciphertext, err := nip04.Encrypt("hi from peer", shared)
	if err != nil {
		t.Fatalf("peer encrypt: %v", err)
	}

	conn.events <- &nostr.Event{
		ID:        "ev-incoming",
		PubKey:    peerPK,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindEncryptedDirectMessage,
		Tags:      nostr.Tags{nostr.Tag{"p", me.PublicKey}},
		Content:   ciphertext,
	}

	raw := waitForEvent(t, msgSub)
	noti, ok := raw.(NewMessage)
	if !ok {
		t.Fatalf("unexpected payload type %T", raw)
	}
	if noti.Message.Content != "hi from peer" || noti.Message.Peer != peerPK || noti.Message.Mine {
		t.Fatalf("unexpected incoming message: %+v", noti.Message)
	}

	conv, ok := h.Conversation(peerPK)
	if !ok || len(conv.Messages) != 1 {
		t.Fatalf("expected decrypted message in conversation, got ok=%v len=%d", ok, len(conv.Messages))
	}
}

func TestHandle_AddContact_ValidatesAndPersists(t *testing.T) {
	h, store, _ := newTestHandle(t, nil)
	ctx := context.Background()

	peerSK := nostr.GeneratePrivateKey()
	peerPK, _ := nostr.GetPublicKey(peerSK)

	if err := h.AddContact(ctx, domain.Contact{Alias: "", PublicKey: peerPK}); err == nil {
		t.Fatalf("expected error for empty alias")
	}
	if err := h.AddContact(ctx, domain.Contact{Alias: "bob", PublicKey: peerPK}); err != nil {
		t.Fatalf("add contact: %v", err)
	}
	if err := h.AddContact(ctx, domain.Contact{Alias: "bob again", PublicKey: peerPK}); !errors.Is(err, ErrContactExists) {
		t.Fatalf("expected ErrContactExists, got %v", err)
	}

	_, contacts := h.Config()
	if len(contacts) != 1 || contacts[0].Alias != "bob" {
		t.Fatalf("unexpected contacts: %v", contacts)
	}
	if len(store.contacts) != 1 {
		t.Fatalf("expected 1 persisted contact, got %d", len(store.contacts))
	}
}

func TestHandle_RemoveContact_Unknown(t *testing.T) {
	h, _, _ := newTestHandle(t, nil)

	peerSK := nostr.GeneratePrivateKey()
	peerPK, _ := nostr.GetPublicKey(peerSK)

	err := h.RemoveContact(context.Background(), domain.Contact{PublicKey: peerPK})
	if !errors.Is(err, ErrContactUnknown) {
		t.Fatalf("expected ErrContactUnknown, got %v", err)
	}
}

func TestHandle_ImportSecretKey_DerivesPublicKey(t *testing.T) {
	h, _, _ := newTestHandle(t, nil)

	sk := nostr.GeneratePrivateKey()
	expectedPK, _ := nostr.GetPublicKey(sk)

	if err := h.ImportSecretKey(sk); err != nil {
		t.Fatalf("import: %v", err)
	}
	user := h.User()
	if user.PublicKey != expectedPK || user.SecretKey != sk {
		t.Fatalf("unexpected user after import: %+v", user)
	}
}

func TestHandle_Subscribe_WithoutIdentity(t *testing.T) {
	h, _, _ := newTestHandle(t, nil)

	if err := h.Subscribe(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}
