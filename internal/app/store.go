package app

import (
	"context"

	"nostrchat/internal/domain"
	"nostrchat/internal/persistence"
)

// PersistentStore funnels core state changes through the writer queue so
// the protocol engine never blocks on disk.
type PersistentStore struct {
	queue    *persistence.WriterQueue
	relays   *persistence.RelayRepo
	contacts *persistence.ContactRepo
	messages *persistence.MessageRepo
}

func NewPersistentStore(
	queue *persistence.WriterQueue,
	relays *persistence.RelayRepo,
	contacts *persistence.ContactRepo,
	messages *persistence.MessageRepo,
) *PersistentStore {
	return &PersistentStore{
		queue:    queue,
		relays:   relays,
		contacts: contacts,
		messages: messages,
	}
}

func (s *PersistentStore) SaveRelays(urls []string) {
	snapshot := append([]string(nil), urls...)
	s.queue.Enqueue("relays.replace_all", func(ctx context.Context) error {
		return s.relays.ReplaceAll(ctx, snapshot)
	})
}

func (s *PersistentStore) SaveContact(c domain.Contact) {
	s.queue.Enqueue("contacts.upsert", func(ctx context.Context) error {
		return s.contacts.Upsert(ctx, c)
	})
}

func (s *PersistentStore) DeleteContact(publicKey string) {
	s.queue.Enqueue("contacts.delete", func(ctx context.Context) error {
		return s.contacts.Delete(ctx, publicKey)
	})
}

func (s *PersistentStore) SaveMessage(m domain.Message) {
	s.queue.Enqueue("messages.insert", func(ctx context.Context) error {
		return s.messages.Insert(ctx, m)
	})
}
