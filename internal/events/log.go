package events

import (
	"sort"
	"sync"

	"github.com/roach88/thingdir/internal/metrics"
)

// Log is an append-only, in-memory record of emitted events in sequence
// order.
//
// Appends take the mutex. Readers copy the slice header under the mutex and
// iterate without it; appended events are never modified, and trimming
// replaces the backing array.
type Log struct {
	mu        sync.Mutex
	clock     *Clock
	events    []Event
	retention int
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithRetention keeps at most n events. Zero keeps everything.
//
// Older events are trimmed in batches, so up to 2n-1 events may be held in
// memory; only the newest n are ever visible.
func WithRetention(n int) LogOption {
	return func(l *Log) {
		if n > 0 {
			l.retention = n
		}
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(c *Clock) LogOption {
	return func(l *Log) {
		l.clock = c
	}
}

// NewLog creates an empty log.
func NewLog(opts ...LogOption) *Log {
	l := &Log{clock: NewClock()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an event and returns it with its sequence number.
func (l *Log) Append(kind Kind, thingID string, subscriptionID int64) Event {
	l.mu.Lock()
	ev := Event{Seq: l.clock.Next(), Kind: kind, ThingID: thingID, SubscriptionID: subscriptionID}
	l.events = append(l.events, ev)
	if l.retention > 0 && len(l.events) >= 2*l.retention {
		kept := make([]Event, l.retention, 2*l.retention)
		copy(kept, l.events[len(l.events)-l.retention:])
		l.events = kept
	}
	l.mu.Unlock()

	metrics.RecordEvent(string(kind))
	return ev
}

func (l *Log) snapshot() []Event {
	l.mu.Lock()
	evs := l.events
	l.mu.Unlock()
	if l.retention > 0 && len(evs) > l.retention {
		evs = evs[len(evs)-l.retention:]
	}
	return evs
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	return len(l.snapshot())
}

// LastSeq returns the sequence number of the newest event, or 0.
func (l *Log) LastSeq() int64 {
	evs := l.snapshot()
	if len(evs) == 0 {
		return 0
	}
	return evs[len(evs)-1].Seq
}

// Replay returns every retained event with Seq > since whose kind is in
// kinds, ascending. No kinds means every kind. If since predates the
// retained range, replay starts at the oldest retained event.
func (l *Log) Replay(since int64, kinds ...Kind) []Event {
	return l.filter(since, func(ev Event) bool {
		if len(kinds) == 0 {
			return true
		}
		for _, k := range kinds {
			if ev.Kind == k {
				return true
			}
		}
		return false
	})
}

// ReplayChannel returns the retained events with Seq > since that were
// published on the channel key.
func (l *Log) ReplayChannel(key string, since int64) []Event {
	return l.filter(since, func(ev Event) bool {
		return channelMatches(key, ev)
	})
}

func (l *Log) filter(since int64, keep func(Event) bool) []Event {
	evs := l.snapshot()
	start := sort.Search(len(evs), func(i int) bool { return evs[i].Seq > since })
	out := []Event{}
	for _, ev := range evs[start:] {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}
