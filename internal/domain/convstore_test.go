package domain

import (
	"testing"
	"time"
)

func TestConversationStore_Append_DedupesByEventID(t *testing.T) {
	store := NewConversationStore()

	msg := Message{
		EventID: "ev1",
		Peer:    "pk-peer",
		Author:  "pk-peer",
		Content: "hello",
	}
	if !store.Append(msg) {
		t.Fatalf("expected first append to be accepted")
	}
	if store.Append(msg) {
		t.Fatalf("expected duplicate append to be dropped")
	}

	conv, ok := store.Conversation("pk-peer")
	if !ok {
		t.Fatalf("expected conversation to exist")
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("expected 1 message after dedupe, got %d", len(conv.Messages))
	}
}

func TestConversationStore_Conversation_ReturnsOldestFirst(t *testing.T) {
	store := NewConversationStore()
	base := time.Now()

	store.Append(Message{EventID: "b", Peer: "pk", Content: "second", CreatedAt: base.Add(time.Second)})
	store.Append(Message{EventID: "a", Peer: "pk", Content: "first", CreatedAt: base})

	conv, ok := store.Conversation("pk")
	if !ok {
		t.Fatalf("expected conversation to exist")
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Content != "first" || conv.Messages[1].Content != "second" {
		t.Fatalf("messages out of order: %q then %q", conv.Messages[0].Content, conv.Messages[1].Content)
	}
}

func TestConversationStore_Conversation_CloneIsolatesCaller(t *testing.T) {
	store := NewConversationStore()
	store.Append(Message{EventID: "a", Peer: "pk", Content: "original"})

	conv, _ := store.Conversation("pk")
	conv.Messages[0].Content = "mutated"

	again, _ := store.Conversation("pk")
	if again.Messages[0].Content != "original" {
		t.Fatalf("store content changed through returned slice: %q", again.Messages[0].Content)
	}
}

func TestConversationStore_Conversation_UnknownPeer(t *testing.T) {
	store := NewConversationStore()
	if _, ok := store.Conversation("nobody"); ok {
		t.Fatalf("expected no conversation for unknown peer")
	}
}

func TestConversationStore_Load_SeedsHistory(t *testing.T) {
	store := NewConversationStore()
	store.Load(map[string][]Message{
		"pk": {
			{EventID: "a", Content: "hi"},
			{EventID: "b", Content: "there"},
		},
	})

	conv, ok := store.Conversation("pk")
	if !ok || len(conv.Messages) != 2 {
		t.Fatalf("expected seeded conversation with 2 messages, got ok=%v len=%d", ok, len(conv.Messages))
	}
}
