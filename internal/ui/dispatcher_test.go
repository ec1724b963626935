package ui

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"nostrchat/internal/state"
)

func startTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)
	return d
}

func TestDispatcher_Apply_PreservesSubmissionOrderPerProducer(t *testing.T) {
	d := startTestDispatcher(t)

	const perProducer = 200
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				seq := i
				d.Apply(func(s *AppState) {
					s.Config.Relays = append(s.Config.Relays, producerRelay(producer, seq))
				})
			}
		}(p)
	}
	wg.Wait()

	got := d.Snapshot()
	if len(got.Config.Relays) != 4*perProducer {
		t.Fatalf("expected %d applied mutations, got %d", 4*perProducer, len(got.Config.Relays))
	}

	// Each producer's entries must appear in its own submission order.
	lastSeq := map[byte]int{}
	for _, entry := range got.Config.Relays {
		producer, seq := parseProducerRelay(t, entry)
		if prev, seen := lastSeq[producer]; seen && seq <= prev {
			t.Fatalf("producer %c reordered: %d after %d", producer, seq, prev)
		}
		lastSeq[producer] = seq
	}
}

func TestDispatcher_Snapshot_IsDetachedFromLiveState(t *testing.T) {
	d := startTestDispatcher(t)

	d.Apply(func(s *AppState) {
		s.Selected = &state.ConversationState{Peer: "pk", Messages: []state.MessageState{{Content: "one"}}}
	})

	snap := d.Snapshot()
	if snap.Selected == nil {
		t.Fatalf("expected selected conversation in snapshot")
	}

	d.Apply(func(s *AppState) {
		updated := s.Selected.AppendMessage(state.MessageState{Content: "two"})
		s.Selected = &updated
	})
	after := d.Snapshot()

	if len(snap.Selected.Messages) != 1 {
		t.Fatalf("earlier snapshot mutated: %d messages", len(snap.Selected.Messages))
	}
	if len(after.Selected.Messages) != 2 {
		t.Fatalf("later snapshot missing append: %d messages", len(after.Selected.Messages))
	}
}

func TestDispatcher_Changes_SignalsAfterMutation(t *testing.T) {
	d := startTestDispatcher(t)

	d.Apply(func(s *AppState) {
		s.User = state.UserState{PublicKey: "pk"}
	})

	select {
	case <-d.Changes():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected change signal after mutation")
	}
}

func producerRelay(producer, seq int) string {
	return string(rune('a'+producer)) + ":" + itoa(seq)
}

func parseProducerRelay(t *testing.T, entry string) (byte, int) {
	t.Helper()
	if len(entry) < 3 || entry[1] != ':' {
		t.Fatalf("malformed entry %q", entry)
	}
	n := 0
	for i := 2; i < len(entry); i++ {
		n = n*10 + int(entry[i]-'0')
	}
	return entry[0], n
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
