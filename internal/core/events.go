package core

import (
	"time"

	"nostrchat/internal/domain"
)

// Bus topics carrying core-originated events.
const (
	TopicNewMessage = "core.message.new"
	TopicConnStatus = "core.relay.status"
)

// NewMessage is published for every message appended to a conversation,
// both peer-originated and locally sent ones looped back after publish.
type NewMessage struct {
	Message domain.Message
}

// ConnState describes a relay connection lifecycle state.
type ConnState string

const (
	ConnStateConnected    ConnState = "connected"
	ConnStateDisconnected ConnState = "disconnected"
	ConnStateFailed       ConnState = "failed"
)

// ConnStatus is a bus event snapshot of one relay's connection status.
type ConnStatus struct {
	URL       string
	State     ConnState
	Err       string
	Timestamp time.Time
}
