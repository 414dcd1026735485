package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/events"
)

// buildTrace attributes each logged event to the step whose LastSeq first
// covers it.
func buildTrace(logged []events.Event, steps []StepResult) []TraceEvent {
	trace := make([]TraceEvent, 0, len(logged))
	step := 0
	for _, ev := range logged {
		for step < len(steps) && steps[step].LastSeq < ev.Seq {
			step++
		}
		trace = append(trace, TraceEvent{
			Seq:          ev.Seq,
			Kind:         string(ev.Kind),
			ID:           ev.ThingID,
			Subscription: ev.SubscriptionID,
			Step:         step + 1,
		})
	}
	return trace
}

// TraceDocument renders the steps and events of a result as a document.
// Zero subscriptions are omitted.
func TraceDocument(res *Result) document.Object {
	steps := make(document.Array, len(res.Steps))
	for i, sr := range res.Steps {
		obj := document.Object{
			"op":      document.String(sr.Op),
			"outcome": document.String(sr.Outcome),
		}
		if sr.ID != "" {
			obj["id"] = document.String(sr.ID)
		}
		if sr.Subscription != 0 {
			obj["subscription"] = document.Int(sr.Subscription)
		}
		steps[i] = obj
	}

	evs := make(document.Array, len(res.Trace))
	for i, ev := range res.Trace {
		obj := document.Object{
			"seq":  document.Int(ev.Seq),
			"kind": document.String(ev.Kind),
			"id":   document.String(ev.ID),
			"step": document.Int(int64(ev.Step)),
		}
		if ev.Subscription != 0 {
			obj["subscription"] = document.Int(ev.Subscription)
		}
		evs[i] = obj
	}

	return document.Object{
		"scenario": document.String(res.Scenario),
		"steps":    steps,
		"events":   evs,
	}
}

// MarshalTrace encodes the trace as canonical JSON.
func MarshalTrace(res *Result) ([]byte, error) {
	return document.MarshalCanonical(TraceDocument(res))
}

// RunWithGolden runs the scenario, fails the test on any step or assertion
// failure, and compares the trace with testdata/golden/<name>.golden.
// Run tests with -update to regenerate golden files.
func RunWithGolden(t *testing.T, h *Harness, s *Scenario) *Result {
	t.Helper()
	res, err := h.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	for _, msg := range res.Errors {
		t.Errorf("%s: %s", s.Name, msg)
	}

	data, err := MarshalTrace(res)
	if err != nil {
		t.Fatalf("marshal trace: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, data)
	return res
}
