package broker

import "nostrchat/internal/domain"

// Command is a single user intent submitted to the broker. The set is
// closed; each variant carries only the data its handler needs, and every
// command is consumed exactly once by the command loop.
type Command interface {
	isCommand()
	Name() string
}

type AddRelay struct{ URL string }

type RemoveRelay struct{ URL string }

type ConnectRelay struct{ URL string }

type DisconnectRelay struct{ URL string }

type AddContact struct{ Contact domain.Contact }

type RemoveContact struct{ Contact domain.Contact }

type SubscribeInRelays struct{ PublicKey string }

type RestoreKeyPair struct{ SecretKey string }

type GenerateNewKeyPair struct{}

type SetConversation struct{ PublicKey string }

type SendMessage struct {
	PublicKey string
	Content   string
}

type LoadConfigs struct{}

func (AddRelay) isCommand()           {}
func (RemoveRelay) isCommand()        {}
func (ConnectRelay) isCommand()       {}
func (DisconnectRelay) isCommand()    {}
func (AddContact) isCommand()         {}
func (RemoveContact) isCommand()      {}
func (SubscribeInRelays) isCommand()  {}
func (RestoreKeyPair) isCommand()     {}
func (GenerateNewKeyPair) isCommand() {}
func (SetConversation) isCommand()    {}
func (SendMessage) isCommand()        {}
func (LoadConfigs) isCommand()        {}

func (AddRelay) Name() string           { return "add_relay" }
func (RemoveRelay) Name() string        { return "remove_relay" }
func (ConnectRelay) Name() string       { return "connect_relay" }
func (DisconnectRelay) Name() string    { return "disconnect_relay" }
func (AddContact) Name() string         { return "add_contact" }
func (RemoveContact) Name() string      { return "remove_contact" }
func (SubscribeInRelays) Name() string  { return "subscribe_in_relays" }
func (RestoreKeyPair) Name() string     { return "restore_keypair" }
func (GenerateNewKeyPair) Name() string { return "generate_keypair" }
func (SetConversation) Name() string    { return "set_conversation" }
func (SendMessage) Name() string        { return "send_message" }
func (LoadConfigs) Name() string        { return "load_configs" }
