// Package bus publishes job lifecycle events on NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with JSON helpers.
type Client struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials url and keeps reconnecting in the background.
func Connect(url, name, subjectPrefix string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &Client{nc: nc, prefix: strings.TrimSuffix(subjectPrefix, ".")}, nil
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if c != nil && c.nc != nil {
		_ = c.nc.Drain()
	}
}

// Conn exposes the underlying connection.
func (c *Client) Conn() *nats.Conn { return c.nc }

// Prefix returns the subject prefix events are published under.
func (c *Client) Prefix() string { return c.prefix }

// Connected reports whether the connection is currently up.
func (c *Client) Connected() bool {
	return c != nil && c.nc != nil && c.nc.IsConnected()
}

// PublishJSON marshals v and publishes it on subject.
func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode bus message: %w", err)
	}
	return c.nc.Publish(subject, b)
}

// SubscribeJSON delivers raw message bodies on subject (wildcards allowed).
func (c *Client) SubscribeJSON(subject string, handler func(ctx context.Context, subject string, data []byte)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		handler(ctx, msg.Subject, msg.Data)
	})
}
