package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/events"
	"github.com/roach88/thingdir/internal/metrics"
	"github.com/roach88/thingdir/internal/notify"
	"github.com/roach88/thingdir/internal/store"
	"github.com/roach88/thingdir/internal/tdconv"
)

// Validator checks a document before it is written.
// Implemented by *schema.Validator.
type Validator interface {
	Validate(doc document.Object) error
}

// Service orchestrates the dual-store write path and notifications.
//
// Mutations run to completion once called: cancellation of the caller's
// context is ignored, its values are kept.
type Service struct {
	// mu serializes mutations. It is held across the store write and the
	// notifier chain.
	mu sync.Mutex

	store       *store.Store
	broadcaster *events.Broadcaster
	registry    *notify.Registry
	validator   Validator
	ids         IDGenerator
	logger      *slog.Logger
	decorators  []notify.Decorator

	// plain emits the thing_* event only; queryAware also evaluates
	// continuous queries.
	plain      notify.Notifier
	queryAware notify.Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithValidator validates every document before it is written.
func WithValidator(v Validator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithIDGenerator sets the generator used by Create.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithBroadcaster sets the event log and multiplexer.
func WithBroadcaster(b *events.Broadcaster) Option {
	return func(s *Service) {
		if b != nil {
			s.broadcaster = b
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDecorators adds decorators outside both notifier chains.
func WithDecorators(d ...notify.Decorator) Option {
	return func(s *Service) {
		s.decorators = append(s.decorators, d...)
	}
}

// New creates a Service over st.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		registry: notify.NewRegistry(),
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.broadcaster == nil {
		s.broadcaster = events.NewBroadcaster(events.NewLog(), events.NewMux(), events.WithBroadcasterLogger(s.logger))
	}

	base := notify.NewPlain(s.broadcaster)
	outer := append([]notify.Decorator{notify.WithLogging(s.logger)}, s.decorators...)
	s.plain = notify.Chain(base, outer...)
	s.queryAware = notify.Chain(base,
		append([]notify.Decorator{notify.WithQueryMatching(s.registry, st, s.broadcaster, s.logger)}, outer...)...)
	return s
}

// Broadcaster returns the event log and multiplexer.
func (s *Service) Broadcaster() *events.Broadcaster {
	return s.broadcaster
}

// Close detaches every stream reader.
func (s *Service) Close() {
	s.broadcaster.Mux().Close()
}

// Put creates or replaces the thing id. A document without an embedded
// identifier gets "id" set to id.
func (s *Service) Put(ctx context.Context, id string, doc document.Object) (string, bool, error) {
	ctx = context.WithoutCancel(ctx)
	if err := ValidateIdentifier(id); err != nil {
		metrics.RecordMutation("put", metrics.OutcomeRejected)
		return "", false, err
	}
	doc, err := s.prepare(id, doc)
	if err != nil {
		metrics.RecordMutation("put", metrics.OutcomeRejected)
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existed, err := s.upsert(ctx, id, doc)
	if err != nil {
		metrics.RecordMutation("put", outcome(err))
		return "", false, err
	}
	kind := events.KindCreated
	if existed {
		kind = events.KindUpdated
	}
	s.notify(ctx, s.queryAware, kind, id)
	metrics.RecordMutation("put", metrics.OutcomeOK)
	return id, existed, nil
}

// Create registers a document without an identifier under a generated one.
func (s *Service) Create(ctx context.Context, doc document.Object) (string, error) {
	ctx = context.WithoutCancel(ctx)
	if doc == nil {
		metrics.RecordMutation("create", metrics.OutcomeRejected)
		return "", fmt.Errorf("%w: document must be a JSON object", ErrInvalidDocument)
	}
	if doc.HasIdentifier() {
		metrics.RecordMutation("create", metrics.OutcomeRejected)
		return "", fmt.Errorf("%w: anonymous registration must not carry an identifier", ErrInvalidDocument)
	}
	id := s.ids.Generate()
	doc, err := s.prepare(id, doc)
	if err != nil {
		metrics.RecordMutation("create", metrics.OutcomeRejected)
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.upsert(ctx, id, doc); err != nil {
		metrics.RecordMutation("create", outcome(err))
		return "", err
	}
	s.notify(ctx, s.queryAware, events.KindCreated, id)
	metrics.RecordMutation("create", metrics.OutcomeOK)
	return id, nil
}

// Patch merges partial into the stored thing id: top-level members
// replace, a top-level null removes the member.
func (s *Service) Patch(ctx context.Context, id string, partial document.Object) (string, error) {
	ctx = context.WithoutCancel(ctx)
	if err := ValidateIdentifier(id); err != nil {
		metrics.RecordMutation("patch", metrics.OutcomeRejected)
		return "", err
	}
	if partial == nil {
		metrics.RecordMutation("patch", metrics.OutcomeRejected)
		return "", fmt.Errorf("%w: patch must be a JSON object", ErrInvalidDocument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.BeginWrite(ctx)
	if err != nil {
		metrics.RecordMutation("patch", metrics.OutcomeFailed)
		return "", fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	defer tx.Rollback()

	current, ok := tx.Get(id)
	if !ok {
		metrics.RecordMutation("patch", metrics.OutcomeRejected)
		return "", fmt.Errorf("patch %s: %w", id, ErrNotFound)
	}
	merged := current.Document.Merge(partial)
	if _, present := merged["id"]; !present {
		if _, atPresent := merged["@id"]; !atPresent {
			merged["id"] = document.String(id)
		}
	}
	merged, err = s.prepare(id, merged)
	if err != nil {
		metrics.RecordMutation("patch", metrics.OutcomeRejected)
		return "", err
	}
	triples, err := tdconv.Convert(id, merged)
	if err != nil {
		metrics.RecordMutation("patch", metrics.OutcomeRejected)
		return "", fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if _, err := tx.Upsert(ctx, id, merged, triples); err != nil {
		metrics.RecordMutation("patch", metrics.OutcomeFailed)
		return "", fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if err := tx.Commit(); err != nil {
		metrics.RecordMutation("patch", metrics.OutcomeFailed)
		return "", fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	s.notify(ctx, s.queryAware, events.KindUpdated, id)
	metrics.RecordMutation("patch", metrics.OutcomeOK)
	return id, nil
}

// Delete removes the thing id from both stores. Continuous queries are not
// evaluated.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx = context.WithoutCancel(ctx)
	if err := ValidateIdentifier(id); err != nil {
		metrics.RecordMutation("delete", metrics.OutcomeRejected)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.BeginWrite(ctx)
	if err != nil {
		metrics.RecordMutation("delete", metrics.OutcomeFailed)
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	defer tx.Rollback()

	existed, err := tx.Delete(ctx, id)
	if err != nil {
		metrics.RecordMutation("delete", metrics.OutcomeFailed)
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if !existed {
		metrics.RecordMutation("delete", metrics.OutcomeRejected)
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		metrics.RecordMutation("delete", metrics.OutcomeFailed)
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	s.notify(ctx, s.plain, events.KindDeleted, id)
	metrics.RecordMutation("delete", metrics.OutcomeOK)
	return nil
}

// prepare checks every embedded identifier against id, fills "id" in when
// neither is present and validates the result. The returned document is a copy.
func (s *Service) prepare(id string, doc document.Object) (document.Object, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", ErrInvalidDocument)
	}
	for _, key := range []string{"@id", "id"} {
		v, present := doc[key]
		if !present {
			continue
		}
		embedded, ok := v.(document.String)
		if !ok {
			return nil, fmt.Errorf("%w: %q must be a string", ErrInvalidDocument, key)
		}
		if string(embedded) != id {
			return nil, fmt.Errorf("%w: document %q is %q, target is %q", ErrIdentifierMismatch, key, string(embedded), id)
		}
	}

	out := doc.Clone()
	if !out.HasIdentifier() {
		out["id"] = document.String(id)
	}
	if s.validator != nil {
		if err := s.validator.Validate(out); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}
	return out, nil
}

// upsert writes doc in one transaction. Caller holds s.mu.
func (s *Service) upsert(ctx context.Context, id string, doc document.Object) (bool, error) {
	triples, err := tdconv.Convert(id, doc)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	tx, err := s.store.BeginWrite(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	defer tx.Rollback()

	existed, err := tx.Upsert(ctx, id, doc, triples)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return existed, nil
}

// notify runs a notifier chain. Failures are logged, never returned: the
// write has already committed.
func (s *Service) notify(ctx context.Context, n notify.Notifier, kind events.Kind, id string) {
	if err := n.Notify(ctx, kind, id); err != nil {
		err = fmt.Errorf("%w: %w", ErrNotificationFailure, err)
		s.logger.Error("notification failed after commit", "kind", kind, "thing_id", id, "error", err)
	}
}

func outcome(err error) string {
	if errors.Is(err, ErrStoreFailure) {
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeRejected
}
