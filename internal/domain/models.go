package domain

import "time"

// Contact is a known chat peer stored in the user's contact list.
type Contact struct {
	Alias     string
	PublicKey string
}

// User is the active identity. Keys are hex-encoded.
type User struct {
	SecretKey string
	PublicKey string
}

func (u User) HasIdentity() bool {
	return u.SecretKey != "" && u.PublicKey != ""
}

// Message is one decrypted direct message exchanged with a peer.
type Message struct {
	EventID   string
	Peer      string
	Author    string
	Content   string
	CreatedAt time.Time
	Mine      bool
}

// Conversation holds the ordered message history with a single peer.
type Conversation struct {
	Peer     string
	Messages []Message
}
