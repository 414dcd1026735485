package directory

import (
	"context"
	"fmt"

	"github.com/roach88/thingdir/internal/events"
	"github.com/roach88/thingdir/internal/notify"
	"github.com/roach88/thingdir/internal/sparql"
)

// RegisterContinuousQuery registers a standing SELECT query. After every
// later Put, Patch or Create whose thing appears in the query's ?s column,
// a query_notification is published on the subscription's channel.
//
// The ?s variable is added to the projection when missing. accept selects
// the result format recorded with the subscription.
func (s *Service) RegisterContinuousQuery(ctx context.Context, text, accept string) (notify.Subscription, error) {
	q, err := compileQuery(text)
	if err != nil {
		return notify.Subscription{}, err
	}
	if !q.Analysis.ReportsIdentifiers() {
		return notify.Subscription{}, fmt.Errorf("%w: continuous queries must be SELECT queries", ErrUnsupportedQuery)
	}
	format, err := q.Negotiate(accept)
	if err != nil {
		return notify.Subscription{}, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	q = q.WithProjected(sparql.SubjectVar)

	// No mutation may run between registering and opening the channel.
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.registry.Register(q, format)
	if err := s.broadcaster.Mux().Open(events.SubscriptionChannel(sub.ID)); err != nil {
		s.registry.Revoke(sub.ID)
		return notify.Subscription{}, err
	}
	s.logger.Info("continuous query registered", "subscription_id", sub.ID, "format", format)
	return sub, nil
}

// RevokeContinuousQuery removes a subscription and its channel, closing its
// readers. Logged matches stay visible on the aggregate channel.
func (s *Service) RevokeContinuousQuery(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.Revoke(id) {
		return fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	if err := s.broadcaster.Mux().Remove(events.SubscriptionChannel(id)); err != nil {
		s.logger.Warn("subscription channel already gone", "subscription_id", id, "error", err)
	}
	s.logger.Info("continuous query revoked", "subscription_id", id)
	return nil
}

// Subscription returns a registered continuous query.
func (s *Service) Subscription(id int64) (notify.Subscription, bool) {
	return s.registry.Get(id)
}

// Subscriptions lists registered continuous queries ordered by id.
func (s *Service) Subscriptions() []notify.Subscription {
	return s.registry.List()
}

// Subscribe attaches a stream to a channel: "events", a thing_* kind or
// the channel of a registered subscription. A non-nil lastSeen replays the
// channel's logged events after *lastSeen before the live events.
func (s *Service) Subscribe(_ context.Context, key string, lastSeen *int64) (*events.Stream, error) {
	if !s.broadcaster.Mux().Has(key) {
		return nil, fmt.Errorf("channel %q: %w", key, ErrNotFound)
	}
	stream, err := s.broadcaster.Attach(key, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", key, ErrNotFound)
	}
	return stream, nil
}
