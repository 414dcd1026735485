package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrStreamClosed is returned by Stream.Next after the stream's channel was
// removed or the Mux was closed.
var ErrStreamClosed = errors.New("stream closed")

// Sink receives every emitted event after it is logged and published.
type Sink interface {
	Forward(ctx context.Context, ev Event) error
}

// Broadcaster appends events to a Log and publishes them on a Mux.
type Broadcaster struct {
	log    *Log
	mux    *Mux
	sinks  []Sink
	logger *slog.Logger
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithSink adds a Sink.
func WithSink(s Sink) BroadcasterOption {
	return func(b *Broadcaster) {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
}

// WithBroadcasterLogger sets the logger.
func WithBroadcasterLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBroadcaster creates a Broadcaster over log and mux.
func NewBroadcaster(log *Log, mux *Mux, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{log: log, mux: mux, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Log returns the event log.
func (b *Broadcaster) Log() *Log { return b.log }

// Mux returns the channel multiplexer.
func (b *Broadcaster) Mux() *Mux { return b.mux }

// Emit logs an event and publishes it on the aggregate channel and on the
// kind's channel, or the subscription's channel for query matches.
//
// The event is always logged and published; a non-nil error reports sink
// failures only.
func (b *Broadcaster) Emit(ctx context.Context, kind Kind, thingID string, subscriptionID int64) (Event, error) {
	ev := b.log.Append(kind, thingID, subscriptionID)

	if kind == KindQueryMatch {
		b.mux.Publish(SubscriptionChannel(subscriptionID), ev)
	} else {
		b.mux.Publish(KindChannel(kind), ev)
	}
	b.mux.Publish(AllChannel, ev)

	var errs []error
	for _, s := range b.sinks {
		if err := s.Forward(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return ev, fmt.Errorf("forward event %d: %w", ev.Seq, errors.Join(errs...))
	}
	return ev, nil
}

// Attach opens a Stream on the channel key. A non-nil lastSeen yields a
// preamble of the logged events with Seq > *lastSeen for that channel.
//
// The reader is attached before the log is read, so no event published
// in between is lost; Stream filters the duplicates.
func (b *Broadcaster) Attach(key string, lastSeen *int64) (*Stream, error) {
	r, err := b.mux.Subscribe(key)
	if err != nil {
		return nil, err
	}
	s := &Stream{reader: r}
	if lastSeen != nil {
		s.cursor = *lastSeen
		s.preamble = b.log.ReplayChannel(key, *lastSeen)
		if n := len(s.preamble); n > 0 {
			s.cursor = s.preamble[n-1].Seq
		}
	}
	b.logger.Debug("stream attached", "channel", key, "replayed", len(s.preamble))
	return s, nil
}

// Stream is a replay preamble followed by the live events of a channel,
// in strictly increasing sequence order.
type Stream struct {
	reader   *Reader
	preamble []Event
	cursor   int64
}

// Preamble returns the replayed events and clears them, so that a later
// Next does not return them again.
func (s *Stream) Preamble() []Event {
	p := s.preamble
	s.preamble = nil
	return p
}

// C returns the live events. Pass each through Fresh before delivering it.
func (s *Stream) C() <-chan Event { return s.reader.C() }

// Done is closed when the stream's channel is removed.
func (s *Stream) Done() <-chan struct{} { return s.reader.Done() }

// Fresh reports whether ev is newer than every event already delivered and,
// if so, records it as delivered.
func (s *Stream) Fresh(ev Event) bool {
	if ev.Seq <= s.cursor {
		return false
	}
	s.cursor = ev.Seq
	return true
}

// Next returns the next event: first the preamble, then live events.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	if len(s.preamble) > 0 {
		ev := s.preamble[0]
		s.preamble = s.preamble[1:]
		return ev, nil
	}
	for {
		select {
		case ev := <-s.reader.C():
			if s.Fresh(ev) {
				return ev, nil
			}
		case <-s.reader.Done():
			return Event{}, ErrStreamClosed
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close releases the stream's reader.
func (s *Stream) Close() {
	s.reader.Close()
}
