// Package messaging publishes operational events over NATS. Matching and
// relay happen entirely in-process; the event stream exists so dashboards,
// abuse tooling, and future services can watch the system without touching
// the hot path.
package messaging

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns for the ops event stream.
const (
	SubjectSessionConnected    = "chatchat.session.connected"
	SubjectSessionDisconnected = "chatchat.session.disconnected"
	SubjectMatchWaiting        = "chatchat.match.waiting"
	SubjectMatchMade           = "chatchat.match.made"
	SubjectRoomClosed          = "chatchat.room.closed"
)

// NATSClient wraps the NATS connection with publish helpers. A nil
// *NATSClient is valid and drops everything, so the server runs unchanged
// when NATS is not configured.
type NATSClient struct {
	conn *nats.Conn
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "chatchat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{conn: nc}, nil
}

// Publish sends data to the given NATS subject. Nil receivers no-op.
func (c *NATSClient) Publish(subject string, data []byte) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Publish(subject, data)
}

// Close drains and closes the NATS connection. Draining flushes buffered
// events before shutdown. Nil receivers no-op.
func (c *NATSClient) Close() {
	if c == nil || c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] drain error: %v", err)
	}
}
