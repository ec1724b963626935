package domain

import (
	"sort"
	"sync"
	"time"
)

// ConversationStore keeps per-peer message history in memory. It is safe for
// concurrent use; readers always get cloned slices.
type ConversationStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
	seen     map[string]struct{}
	changes  chan struct{}
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		messages: make(map[string][]Message),
		seen:     make(map[string]struct{}),
		changes:  make(chan struct{}, 1),
	}
}

// Load seeds the store from persisted history. Existing state is kept.
func (s *ConversationStore) Load(messages map[string][]Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for peer, msgs := range messages {
		for _, m := range msgs {
			s.appendLocked(peer, m)
		}
	}
	s.notify()
}

// Append adds one message to the peer's conversation. Messages carrying an
// event ID already present in the store are dropped.
func (s *ConversationStore) Append(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.appendLocked(msg.Peer, msg) {
		return false
	}
	s.notify()
	return true
}

func (s *ConversationStore) appendLocked(peer string, msg Message) bool {
	if msg.EventID != "" {
		if _, dup := s.seen[msg.EventID]; dup {
			return false
		}
		s.seen[msg.EventID] = struct{}{}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.Peer = peer
	s.messages[peer] = append(s.messages[peer], msg)
	return true
}

// Conversation returns the history with peer, oldest first. The second
// result reports whether any conversation with the peer exists.
func (s *ConversationStore) Conversation(peer string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.messages[peer]
	if !ok {
		return Conversation{}, false
	}
	cloned := make([]Message, len(msgs))
	copy(cloned, msgs)
	sort.SliceStable(cloned, func(i, j int) bool {
		return cloned[i].CreatedAt.Before(cloned[j].CreatedAt)
	})
	return Conversation{Peer: peer, Messages: cloned}, true
}

// Peers lists every peer with at least one stored message.
func (s *ConversationStore) Peers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.messages))
	for peer := range s.messages {
		out = append(out, peer)
	}
	sort.Strings(out)
	return out
}

// Changes is a coalesced signal fired after every mutation.
func (s *ConversationStore) Changes() <-chan struct{} {
	return s.changes
}

func (s *ConversationStore) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
