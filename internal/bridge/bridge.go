// Package bridge forwards directory events to NATS.
//
// Each event is published on "<prefix>.<kind>" with a JSON body carrying
// its sequence number, kind, thing id and, for query matches, the
// subscription id. The bridge is an events.Sink: a failed publish is
// reported to the broadcaster and never undoes the mutation.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/thingdir/internal/events"
)

// Publisher is the subset of *nats.Conn used by the bridge.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON body of a forwarded event.
type Message struct {
	Seq            int64       `json:"seq"`
	Kind           events.Kind `json:"kind"`
	ThingID        string      `json:"id"`
	SubscriptionID int64       `json:"subscription_id,omitempty"`
}

// Sink publishes events to NATS.
type Sink struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// New returns a Sink publishing through pub under prefix.
func New(pub Publisher, prefix string, opts ...Option) *Sink {
	s := &Sink{pub: pub, prefix: prefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subject returns the subject an event of kind k is published on.
func (s *Sink) Subject(k events.Kind) string {
	return s.prefix + "." + string(k)
}

// Forward implements events.Sink.
func (s *Sink) Forward(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("forward event %d: %w", ev.Seq, err)
	}
	data, err := json.Marshal(Message{
		Seq:            ev.Seq,
		Kind:           ev.Kind,
		ThingID:        ev.ThingID,
		SubscriptionID: ev.SubscriptionID,
	})
	if err != nil {
		return fmt.Errorf("forward event %d: %w", ev.Seq, err)
	}
	subject := s.Subject(ev.Kind)
	if err := s.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish event %d to %s: %w", ev.Seq, subject, err)
	}
	s.logger.Debug("event forwarded", "seq", ev.Seq, "subject", subject)
	return nil
}

// Conn is a NATS connection owned by the bridge.
type Conn struct {
	*nats.Conn
}

// Connect dials url with reconnect settings suitable for a long-running
// server.
func Connect(url string, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("thingdir"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Conn{Conn: nc}, nil
}

// Close drains pending publishes and closes the connection.
func (c *Conn) Close() error {
	if err := c.Drain(); err != nil {
		c.Conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
