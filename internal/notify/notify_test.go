package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thingdir/internal/events"
	"github.com/roach88/thingdir/internal/rdf"
	"github.com/roach88/thingdir/internal/store"
)

// fakeExecutor answers every query with the same solutions, or fails when
// the arguments contain failOn.
type fakeExecutor struct {
	solutions []store.Solution
	failOn    string
	calls     int
}

func (f *fakeExecutor) Execute(_ context.Context, _ string, args []any, _ []string) ([]store.Solution, error) {
	f.calls++
	for _, a := range args {
		if s, ok := a.(string); ok && f.failOn != "" && s == f.failOn {
			return nil, errors.New("evaluation exploded")
		}
	}
	return f.solutions, nil
}

func kindsOf(evs []events.Event) []events.Kind {
	out := []events.Kind{}
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

func TestChainOrder(t *testing.T) {
	var calls []string
	tag := func(name string) Decorator {
		return func(next Notifier) Notifier {
			return NotifierFunc(func(ctx context.Context, kind events.Kind, id string) error {
				calls = append(calls, name)
				return next.Notify(ctx, kind, id)
			})
		}
	}
	base := NotifierFunc(func(context.Context, events.Kind, string) error {
		calls = append(calls, "base")
		return nil
	})

	n := Chain(base, tag("inner"), tag("outer"))
	require.NoError(t, n.Notify(context.Background(), events.KindCreated, "urn:a"))
	assert.Equal(t, []string{"outer", "inner", "base"}, calls)
}

func TestPlain(t *testing.T) {
	b := events.NewBroadcaster(events.NewLog(), events.NewMux())
	require.NoError(t, NewPlain(b).Notify(context.Background(), events.KindUpdated, "urn:a"))

	evs := b.Log().Replay(0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.Event{Seq: 1, Kind: events.KindUpdated, ThingID: "urn:a"}, evs[0])
}

func TestQueryAware_FailingSubscriptionIsSkipped(t *testing.T) {
	b := events.NewBroadcaster(events.NewLog(), events.NewMux())
	reg := NewRegistry()
	broken := reg.Register(mustCompile(t, `SELECT ?s { ?s td:title "boom" }`), "")
	healthy := reg.Register(mustCompile(t, `SELECT ?s { ?s td:title ?t }`), "")

	exec := &fakeExecutor{
		solutions: []store.Solution{{"s": rdf.IRI("urn:a")}},
		failOn:    "boom",
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	n := Chain(NewPlain(b), WithQueryMatching(reg, exec, b, logger))

	require.NoError(t, n.Notify(context.Background(), events.KindCreated, "urn:a"))

	evs := b.Log().Replay(0)
	assert.Equal(t, []events.Kind{events.KindCreated, events.KindQueryMatch}, kindsOf(evs))
	assert.Equal(t, healthy.ID, evs[1].SubscriptionID)
	assert.Contains(t, logs.String(), "continuous query evaluation failed")
	assert.Contains(t, logs.String(), "subscription_id="+strconv.FormatInt(broken.ID, 10))
}

func TestQueryAware_DeleteNeverEvaluates(t *testing.T) {
	b := events.NewBroadcaster(events.NewLog(), events.NewMux())
	reg := NewRegistry()
	reg.Register(mustCompile(t, `SELECT ?s { ?s td:title ?t }`), "")
	exec := &fakeExecutor{solutions: []store.Solution{{"s": rdf.IRI("urn:a")}}}

	n := Chain(NewPlain(b), WithQueryMatching(reg, exec, b, nil))
	require.NoError(t, n.Notify(context.Background(), events.KindDeleted, "urn:a"))

	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, []events.Kind{events.KindDeleted}, kindsOf(b.Log().Replay(0)))
}

func TestQueryAware_MembershipUsesStringEquality(t *testing.T) {
	b := events.NewBroadcaster(events.NewLog(), events.NewMux())
	reg := NewRegistry()
	reg.Register(mustCompile(t, `SELECT ?s { ?s td:title ?t } LIMIT 5`), "")
	exec := &fakeExecutor{solutions: []store.Solution{{"s": rdf.IRI("urn:other")}}}

	n := Chain(NewPlain(b), WithQueryMatching(reg, exec, b, nil))
	require.NoError(t, n.Notify(context.Background(), events.KindUpdated, "urn:a"))

	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, []events.Kind{events.KindUpdated}, kindsOf(b.Log().Replay(0)))
}

type failingSink struct{}

func (failingSink) Forward(context.Context, events.Event) error { return errors.New("sink down") }

func TestWithLogging_ReportsFailures(t *testing.T) {
	b := events.NewBroadcaster(events.NewLog(), events.NewMux(), events.WithSink(failingSink{}))
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	n := Chain(NewPlain(b), WithLogging(logger))
	err := n.Notify(context.Background(), events.KindCreated, "urn:a")
	require.Error(t, err)
	assert.Contains(t, logs.String(), "notification failed")
	assert.Equal(t, 1, b.Log().Len(), "the event is logged even when forwarding fails")
}
