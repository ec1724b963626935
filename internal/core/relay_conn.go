package core

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// RelayConn is one live relay connection. The production implementation
// wraps go-nostr's relay client; tests substitute fakes.
type RelayConn interface {
	URL() string
	Publish(ctx context.Context, evt nostr.Event) error
	Subscribe(ctx context.Context, filters nostr.Filters) (<-chan *nostr.Event, func(), error)
	Close() error
}

// Dialer opens a connection to a relay by websocket URL.
type Dialer func(ctx context.Context, url string) (RelayConn, error)

// DialRelay is the production Dialer.
func DialRelay(ctx context.Context, url string) (RelayConn, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect relay %s: %w", url, err)
	}

	return &nostrRelayConn{relay: relay}, nil
}

type nostrRelayConn struct {
	relay *nostr.Relay
}

func (c *nostrRelayConn) URL() string {
	return c.relay.URL
}

func (c *nostrRelayConn) Publish(ctx context.Context, evt nostr.Event) error {
	if err := c.relay.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publish to %s: %w", c.relay.URL, err)
	}

	return nil
}

func (c *nostrRelayConn) Subscribe(ctx context.Context, filters nostr.Filters) (<-chan *nostr.Event, func(), error) {
	sub, err := c.relay.Subscribe(ctx, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe on %s: %w", c.relay.URL, err)
	}

	return sub.Events, sub.Unsub, nil
}

func (c *nostrRelayConn) Close() error {
	return c.relay.Close()
}
