// Package state holds immutable display projections of core-owned data.
// Projection functions never mutate their inputs and carry no state of
// their own; a projection is always fully built before it is handed to the
// presentation layer.
package state

import (
	"time"

	"github.com/nbd-wtf/go-nostr/nip19"

	"nostrchat/internal/domain"
)

// ContactState is a display row for one contact.
type ContactState struct {
	Alias     string
	PublicKey string
}

// ConfigState is the full configuration snapshot: relay URLs in configured
// order plus the known contacts. It is rebuilt wholesale after every
// successful configuration mutation.
type ConfigState struct {
	Relays   []string
	Contacts []ContactState
}

// UserState is the active keypair snapshot in hex and bech32 forms.
type UserState struct {
	SecretKey string
	PublicKey string
	Nsec      string
	Npub      string
}

// MessageState is the display projection of one message.
type MessageState struct {
	Author    string
	Content   string
	Timestamp time.Time
	Mine      bool
}

// ConversationState is the selected conversation's snapshot. The message
// slice is append-friendly: the notification relay replaces the whole
// snapshot with a copy carrying one more element.
type ConversationState struct {
	Peer     string
	Messages []MessageState
}

func ProjectConfig(relays []string, contacts []domain.Contact) ConfigState {
	cfg := ConfigState{
		Relays:   append([]string(nil), relays...),
		Contacts: make([]ContactState, 0, len(contacts)),
	}
	for _, c := range contacts {
		cfg.Contacts = append(cfg.Contacts, ContactState{Alias: c.Alias, PublicKey: c.PublicKey})
	}

	return cfg
}

func ProjectUser(u domain.User) UserState {
	us := UserState{
		SecretKey: u.SecretKey,
		PublicKey: u.PublicKey,
	}
	if nsec, err := nip19.EncodePrivateKey(u.SecretKey); err == nil {
		us.Nsec = nsec
	}
	if npub, err := nip19.EncodePublicKey(u.PublicKey); err == nil {
		us.Npub = npub
	}

	return us
}

func ProjectMessage(m domain.Message) MessageState {
	return MessageState{
		Author:    m.Author,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
		Mine:      m.Mine,
	}
}

func ProjectConversation(conv domain.Conversation) ConversationState {
	cs := ConversationState{
		Peer:     conv.Peer,
		Messages: make([]MessageState, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		cs.Messages = append(cs.Messages, ProjectMessage(m))
	}

	return cs
}

// AppendMessage returns a copy of the conversation snapshot with one more
// message. The input snapshot is left untouched.
func (c ConversationState) AppendMessage(m MessageState) ConversationState {
	messages := make([]MessageState, 0, len(c.Messages)+1)
	messages = append(messages, c.Messages...)
	messages = append(messages, m)

	return ConversationState{Peer: c.Peer, Messages: messages}
}
