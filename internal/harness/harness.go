package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/thingdir/internal/directory"
	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/schema"
	"github.com/roach88/thingdir/internal/store"
	"github.com/roach88/thingdir/internal/testutil"
)

// Step outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
)

// CreatedIDPrefix prefixes identifiers assigned by create steps.
const CreatedIDPrefix = "urn:scenario:thing"

// Harness executes scenarios.
type Harness struct {
	logger    *slog.Logger
	validator directory.Validator
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the directory service. Defaults to
// a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithValidator overrides the document validator. Defaults to the
// embedded Thing Description schema.
func WithValidator(v directory.Validator) Option {
	return func(h *Harness) {
		h.validator = v
	}
}

// New creates a Harness.
func New(opts ...Option) (*Harness, error) {
	h := &Harness{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(h)
	}
	if h.validator == nil {
		v, err := schema.New()
		if err != nil {
			return nil, err
		}
		h.validator = v
	}
	return h, nil
}

// Run executes the scenario against a fresh in-memory store and checks its
// assertions. The returned error covers setup failures only; failed steps
// and assertions are reported in the Result.
func (h *Harness) Run(ctx context.Context, s *Scenario) (*Result, error) {
	st, err := store.Open(ctx, ":memory:", store.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	defer st.Close()

	svc := directory.New(st,
		directory.WithValidator(h.validator),
		directory.WithIDGenerator(testutil.NewSequentialIDGenerator(CreatedIDPrefix)),
		directory.WithLogger(h.logger),
	)
	defer svc.Close()

	res := &Result{Scenario: s.Name, Pass: true}
	log := svc.Broadcaster().Log()
	for i, step := range s.Steps {
		sr, err := h.runStep(ctx, svc, step)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: step %d: %w", s.Name, i+1, err)
		}
		sr.LastSeq = log.LastSeq()
		res.Steps = append(res.Steps, sr)

		if want := step.Expect; want != "" && want != sr.Outcome {
			res.fail("step %d (%s): expected %s, got %s", i+1, step.Op, want, sr.Outcome)
		} else if want == "" && !isSuccess(sr.Outcome) {
			res.fail("step %d (%s): failed with %s", i+1, step.Op, sr.Outcome)
		}
	}

	res.Trace = buildTrace(log.Replay(0), res.Steps)
	for i, a := range s.Assertions {
		if err := checkAssertion(a, res, st); err != nil {
			res.fail("assertion %d (%s): %v", i+1, a.Type, err)
		}
	}
	return res, nil
}

func (r *Result) fail(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// runStep performs one operation. Directory errors become outcomes; only a
// step that cannot be built returns an error.
func (h *Harness) runStep(ctx context.Context, svc *directory.Service, step Step) (StepResult, error) {
	sr := StepResult{Op: step.Op, ID: step.ID}

	var doc document.Object
	if step.Document != nil {
		v, err := document.FromAny(step.Document)
		if err != nil {
			return sr, fmt.Errorf("document: %w", err)
		}
		doc = v.(document.Object)
	}

	var err error
	switch step.Op {
	case OpPut:
		var existed bool
		_, existed, err = svc.Put(ctx, step.ID, doc)
		if err == nil {
			sr.Outcome = OutcomeCreated
			if existed {
				sr.Outcome = OutcomeUpdated
			}
		}
	case OpCreate:
		sr.ID, err = svc.Create(ctx, doc)
		if err == nil {
			sr.Outcome = OutcomeCreated
		}
	case OpPatch:
		_, err = svc.Patch(ctx, step.ID, doc)
	case OpDelete:
		err = svc.Delete(ctx, step.ID)
	case OpRegister:
		sub, rerr := svc.RegisterContinuousQuery(ctx, step.Query, step.Accept)
		sr.Subscription, err = sub.ID, rerr
	case OpRevoke:
		sr.Subscription = step.Subscription
		err = svc.RevokeContinuousQuery(ctx, step.Subscription)
	default:
		return sr, fmt.Errorf("unknown op %q", step.Op)
	}

	switch {
	case err != nil:
		sr.Outcome = ErrorCode(err)
	case sr.Outcome == "":
		sr.Outcome = OutcomeOK
	}
	return sr, nil
}

func isSuccess(outcome string) bool {
	switch outcome {
	case OutcomeOK, OutcomeCreated, OutcomeUpdated:
		return true
	}
	return false
}

var errorCodes = []struct {
	err  error
	code string
}{
	{directory.ErrNotFound, "not_found"},
	{directory.ErrInvalidIdentifier, "invalid_identifier"},
	{directory.ErrIdentifierMismatch, "identifier_mismatch"},
	{directory.ErrInvalidDocument, "invalid_document"},
	{directory.ErrUnsupportedQuery, "unsupported_query"},
	{directory.ErrUnsupportedFormat, "unsupported_format"},
	{directory.ErrStoreFailure, "store_failure"},
	{directory.ErrNotificationFailure, "notification_failure"},
}

// ErrorCode names the directory error class of err, or "error" when it has
// none.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "error"
}
