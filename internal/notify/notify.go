// Package notify turns directory mutations into events.
//
// A Notifier is built from a minimal base and zero or more decorators:
//
//	n := notify.Chain(notify.NewPlain(b),
//		notify.WithQueryMatching(registry, store, b, logger),
//		notify.WithLogging(logger),
//	)
//
// The base appends the mutation event and publishes it on the fixed
// channels. QueryAware re-evaluates every registered continuous query
// after the base ran and publishes a match on each subscription channel
// whose results now contain the mutated thing.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/thingdir/internal/events"
)

// Notifier is told about each successful mutation.
type Notifier interface {
	Notify(ctx context.Context, kind events.Kind, thingID string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, kind events.Kind, thingID string) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, kind events.Kind, thingID string) error {
	return f(ctx, kind, thingID)
}

// Decorator wraps a Notifier with additional behavior.
type Decorator func(Notifier) Notifier

// Chain applies decorators to base in order; the last one is outermost.
func Chain(base Notifier, decorators ...Decorator) Notifier {
	n := base
	for _, d := range decorators {
		n = d(n)
	}
	return n
}

// Plain logs the event and publishes it on the kind's channel and the
// aggregate channel.
type Plain struct {
	b *events.Broadcaster
}

// NewPlain creates the base notifier.
func NewPlain(b *events.Broadcaster) *Plain {
	return &Plain{b: b}
}

// Notify emits one event of kind for thingID.
func (p *Plain) Notify(ctx context.Context, kind events.Kind, thingID string) error {
	_, err := p.b.Emit(ctx, kind, thingID, 0)
	return err
}

// WithLogging logs every notification at debug level and failures at warn.
func WithLogging(logger *slog.Logger) Decorator {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Notifier) Notifier {
		return NotifierFunc(func(ctx context.Context, kind events.Kind, thingID string) error {
			start := time.Now()
			err := next.Notify(ctx, kind, thingID)
			if err != nil {
				logger.Warn("notification failed", "kind", kind, "thing_id", thingID, "error", err)
				return err
			}
			logger.Debug("notified", "kind", kind, "thing_id", thingID, "elapsed", time.Since(start))
			return nil
		})
	}
}
