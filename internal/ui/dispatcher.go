package ui

import (
	"context"
	"log/slog"
)

const mutationQueueCapacity = 256

// Mutation is applied to the presentation state on the dispatcher
// goroutine.
type Mutation func(*AppState)

// Sink is the boundary the broker delivers through. Mutations submitted by
// one goroutine are applied in submission order, exactly once, and a reader
// never observes a partially applied mutation.
type Sink interface {
	Apply(m Mutation)
}

// Dispatcher owns AppState and serializes every mutation onto a single
// goroutine, the channel-based equivalent of a GUI toolkit's
// run-on-UI-thread callback.
type Dispatcher struct {
	logger    *slog.Logger
	mutations chan Mutation
	changes   chan struct{}
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:    logger,
		mutations: make(chan Mutation, mutationQueueCapacity),
		changes:   make(chan struct{}, 1),
	}
}

// Start runs the dispatch loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		var appState AppState
		for {
			select {
			case <-ctx.Done():
				d.logger.Debug("dispatcher stopped")
				return
			case m := <-d.mutations:
				m(&appState)
				d.notify()
			}
		}
	}()
}

// Apply enqueues one mutation. It blocks rather than drops when the queue
// is full so submission order is never violated.
func (d *Dispatcher) Apply(m Mutation) {
	d.mutations <- m
}

// Snapshot returns a consistent copy of the current state, taken on the
// dispatch goroutine after all previously applied mutations.
func (d *Dispatcher) Snapshot() AppState {
	resp := make(chan AppState, 1)
	d.Apply(func(s *AppState) {
		resp <- s.clone()
	})

	return <-resp
}

// Changes is a coalesced signal fired after every applied mutation.
func (d *Dispatcher) Changes() <-chan struct{} {
	return d.changes
}

func (d *Dispatcher) notify() {
	select {
	case d.changes <- struct{}{}:
	default:
	}
}
