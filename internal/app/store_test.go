package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"nostrchat/internal/domain"
	"nostrchat/internal/persistence"
)

func newTestStore(t *testing.T) (*PersistentStore, *persistence.RelayRepo, *persistence.ContactRepo, *persistence.MessageRepo) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := persistence.Open(ctx, filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	relays := persistence.NewRelayRepo(db)
	contacts := persistence.NewContactRepo(db)
	messages := persistence.NewMessageRepo(db)

	queue := persistence.NewWriterQueue(slog.Default(), 16)
	queue.Start(ctx)

	return NewPersistentStore(queue, relays, contacts, messages), relays, contacts, messages
}

func waitForWrite(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPersistentStore_SaveRelays_ReplacesTable(t *testing.T) {
	ctx := context.Background()
	store, relays, _, _ := newTestStore(t)

	store.SaveRelays([]string{"wss://a.example.com", "wss://b.example.com"})

	waitForWrite(t, "relays persisted", func() bool {
		got, err := relays.ListOrdered(ctx)
		return err == nil && len(got) == 2 && got[0] == "wss://a.example.com"
	})
}

func TestPersistentStore_ContactLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _, contacts, _ := newTestStore(t)

	store.SaveContact(domain.Contact{Alias: "alice", PublicKey: "pk-alice"})
	waitForWrite(t, "contact persisted", func() bool {
		got, err := contacts.ListSortedByAlias(ctx)
		return err == nil && len(got) == 1 && got[0].Alias == "alice"
	})

	store.DeleteContact("pk-alice")
	waitForWrite(t, "contact deleted", func() bool {
		got, err := contacts.ListSortedByAlias(ctx)
		return err == nil && len(got) == 0
	})
}

func TestPersistentStore_SaveMessage_Persists(t *testing.T) {
	ctx := context.Background()
	store, _, _, messages := newTestStore(t)

	store.SaveMessage(domain.Message{
		EventID:   "e1",
		Peer:      "pk-a",
		Author:    "pk-a",
		Content:   "hello",
		CreatedAt: time.Now(),
	})

	waitForWrite(t, "message persisted", func() bool {
		got, err := messages.ListRecentByPeer(ctx, "pk-a", 10)
		return err == nil && len(got) == 1 && got[0].Content == "hello"
	})
}
