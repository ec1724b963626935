package ui

import (
	"time"

	"nostrchat/internal/state"
)

// CommandError records a failed broker command for display.
type CommandError struct {
	Command string
	Reason  string
	At      time.Time
}

// AppState is the presentation layer's entire state. It is owned by the
// dispatcher goroutine; all other code mutates it only through mutation
// closures and observes it only through full-value snapshots.
type AppState struct {
	Config    state.ConfigState
	User      state.UserState
	Selected  *state.ConversationState
	LastError *CommandError
}

// clone returns a deep-enough copy: snapshot values inside AppState are
// immutable by convention, so sharing their backing arrays is safe; only
// the pointers need to be detached.
func (s AppState) clone() AppState {
	out := s
	if s.Selected != nil {
		conv := *s.Selected
		out.Selected = &conv
	}
	if s.LastError != nil {
		errCopy := *s.LastError
		out.LastError = &errCopy
	}

	return out
}
