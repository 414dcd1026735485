package events

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/thingdir/internal/metrics"
)

// ErrUnknownChannel is returned when subscribing to a channel that does not
// exist or was removed.
var ErrUnknownChannel = errors.New("unknown channel")

// ErrFixedChannel is returned when removing a fixed channel.
var ErrFixedChannel = errors.New("fixed channels cannot be removed")

// DefaultReaderBuffer is the per-reader hand-off capacity.
const DefaultReaderBuffer = 64

// Mux is a set of named multi-reader broadcast channels.
//
// The reader set of each channel is an immutable slice replaced on attach
// and detach, so Publish reads it without locking.
type Mux struct {
	mu       sync.Mutex
	channels map[string]*channel
	fixed    map[string]bool
	buffer   int
	closed   bool
	logger   *slog.Logger
}

type channel struct {
	key     string
	readers atomic.Pointer[[]*Reader]
}

func newChannel(key string) *channel {
	c := &channel{key: key}
	c.readers.Store(&[]*Reader{})
	return c
}

func (c *channel) load() []*Reader {
	return *c.readers.Load()
}

// MuxOption configures a Mux.
type MuxOption func(*Mux)

// WithReaderBuffer sets the number of live events a reader can hold before
// further events are dropped for it.
func WithReaderBuffer(n int) MuxOption {
	return func(m *Mux) {
		if n > 0 {
			m.buffer = n
		}
	}
}

// WithMuxLogger sets the logger.
func WithMuxLogger(logger *slog.Logger) MuxOption {
	return func(m *Mux) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMux creates a Mux with the fixed channels.
func NewMux(opts ...MuxOption) *Mux {
	m := &Mux{
		channels: make(map[string]*channel),
		fixed:    make(map[string]bool),
		buffer:   DefaultReaderBuffer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, key := range FixedChannels() {
		m.channels[key] = newChannel(key)
		m.fixed[key] = true
	}
	return m
}

// Open creates the channel key if it does not exist.
func (m *Mux) Open(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("open channel %s: mux closed", key)
	}
	if _, ok := m.channels[key]; !ok {
		m.channels[key] = newChannel(key)
	}
	return nil
}

// Has reports whether the channel key exists.
func (m *Mux) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[key]
	return ok
}

// Remove deletes a dynamic channel and closes its readers.
func (m *Mux) Remove(key string) error {
	m.mu.Lock()
	if m.fixed[key] {
		m.mu.Unlock()
		return fmt.Errorf("remove %s: %w", key, ErrFixedChannel)
	}
	c, ok := m.channels[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("remove %s: %w", key, ErrUnknownChannel)
	}
	delete(m.channels, key)
	readers := c.load()
	c.readers.Store(&[]*Reader{})
	m.mu.Unlock()

	for _, r := range readers {
		r.finish()
	}
	return nil
}

// Subscribe attaches a new reader to the channel key.
func (m *Mux) Subscribe(key string) (*Reader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[key]
	if !ok || m.closed {
		return nil, fmt.Errorf("subscribe %s: %w", key, ErrUnknownChannel)
	}

	r := &Reader{
		key:  key,
		mux:  m,
		ch:   make(chan Event, m.buffer),
		done: make(chan struct{}),
	}
	next := append(slices.Clone(c.load()), r)
	c.readers.Store(&next)
	metrics.ReaderAttached()
	return r, nil
}

// Publish hands ev to every current reader of key without blocking and
// returns the number of readers that received it. Publishing on a missing
// channel is a no-op.
func (m *Mux) Publish(key string, ev Event) int {
	m.mu.Lock()
	c, ok := m.channels[key]
	m.mu.Unlock()
	if !ok {
		return 0
	}

	delivered := 0
	for _, r := range c.load() {
		select {
		case r.ch <- ev:
			delivered++
		default:
			metrics.RecordDropped(key)
			m.logger.Debug("reader missed event", "channel", key, "seq", ev.Seq)
		}
	}
	return delivered
}

// Readers returns the number of readers attached to key.
func (m *Mux) Readers(key string) int {
	m.mu.Lock()
	c, ok := m.channels[key]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return len(c.load())
}

// Close detaches every reader. Later subscriptions fail.
func (m *Mux) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var readers []*Reader
	for _, c := range m.channels {
		readers = append(readers, c.load()...)
		c.readers.Store(&[]*Reader{})
	}
	m.mu.Unlock()

	for _, r := range readers {
		r.finish()
	}
}

func (m *Mux) detach(r *Reader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[r.key]
	if !ok {
		return
	}
	current := c.load()
	i := slices.Index(current, r)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(current), i, i+1)
	c.readers.Store(&next)
}

// Reader receives the live events of one channel.
type Reader struct {
	key  string
	mux  *Mux
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Key returns the channel key.
func (r *Reader) Key() string { return r.key }

// C returns the live events. It is never closed; use Done.
func (r *Reader) C() <-chan Event { return r.ch }

// Done is closed when the reader is closed, its channel is removed or the
// Mux is closed.
func (r *Reader) Done() <-chan struct{} { return r.done }

// Close detaches the reader. Safe to call more than once.
func (r *Reader) Close() {
	r.mux.detach(r)
	r.finish()
}

func (r *Reader) finish() {
	r.once.Do(func() {
		close(r.done)
		metrics.ReaderDetached()
	})
}
