package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/thingdir/internal/events"
	"github.com/roach88/thingdir/internal/metrics"
	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/rdf"
	"github.com/roach88/thingdir/internal/sparql"
)

// QueryAware re-evaluates continuous queries after each non-delete
// mutation and emits a query match for every subscription whose results
// contain the mutated thing.
type QueryAware struct {
	next     Notifier
	registry *Registry
	exec     sparql.Executor
	b        *events.Broadcaster
	logger   *slog.Logger
}

// NewQueryAware wraps next.
func NewQueryAware(next Notifier, registry *Registry, exec sparql.Executor, b *events.Broadcaster, logger *slog.Logger) *QueryAware {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryAware{next: next, registry: registry, exec: exec, b: b, logger: logger}
}

// WithQueryMatching returns a Decorator that wraps with QueryAware.
func WithQueryMatching(registry *Registry, exec sparql.Executor, b *events.Broadcaster, logger *slog.Logger) Decorator {
	return func(next Notifier) Notifier {
		return NewQueryAware(next, registry, exec, b, logger)
	}
}

// Notify delegates to next, then evaluates subscriptions. A subscription
// whose evaluation fails is logged and skipped. Deletes never match.
func (q *QueryAware) Notify(ctx context.Context, kind events.Kind, thingID string) error {
	errs := []error{q.next.Notify(ctx, kind, thingID)}
	if kind == events.KindDeleted {
		return errors.Join(errs...)
	}

	for _, sub := range q.registry.List() {
		matched, err := q.matches(ctx, sub, thingID)
		if err != nil {
			metrics.RecordEvaluation("error")
			q.logger.Warn("continuous query evaluation failed",
				"subscription_id", sub.ID, "thing_id", thingID, "error", err)
			continue
		}
		if !matched {
			metrics.RecordEvaluation("miss")
			continue
		}
		metrics.RecordEvaluation("match")
		if _, err := q.b.Emit(ctx, events.KindQueryMatch, thingID, sub.ID); err != nil {
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
		}
	}
	return errors.Join(errs...)
}

// matches evaluates the subscription's query and checks whether the
// identifier column contains thingID. The identifier is pre-bound unless a
// LIMIT or OFFSET makes the result depend on other things.
func (q *QueryAware) matches(ctx context.Context, sub Subscription, thingID string) (bool, error) {
	var bound map[queryir.Var]rdf.Term
	if !sub.Query.HasSlice() {
		bound = map[queryir.Var]rdf.Term{sparql.SubjectVar: rdf.IRI(thingID)}
	}
	res, err := sub.Query.Evaluate(ctx, q.exec, bound)
	if err != nil {
		return false, err
	}
	return res.Contains(sparql.SubjectVar, thingID), nil
}
