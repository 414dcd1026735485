package harness

import (
	"fmt"

	"github.com/roach88/thingdir/internal/store"
)

func checkAssertion(a Assertion, res *Result, st *store.Store) error {
	switch a.Type {
	case AssertEventOrder:
		return assertEventOrder(res.Trace, a.Events)
	case AssertEventCount:
		return assertEventCount(res.Trace, a.matcher(), a.Count)
	case AssertNoEvent:
		return assertNoEvent(res.Trace, a.matcher(), a.AfterStep)
	case AssertThingExists:
		if got := st.Exists(a.ID); got != a.Exists {
			return fmt.Errorf("thing %q exists = %t, expected %t", a.ID, got, a.Exists)
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (a Assertion) matcher() EventMatcher {
	return EventMatcher{Kind: a.Kind, ID: a.ID, Subscription: a.Subscription}
}

// assertEventOrder checks that want occurs in the trace as a subsequence.
// Other events may be interleaved.
func assertEventOrder(trace []TraceEvent, want []EventMatcher) error {
	next := 0
	for _, ev := range trace {
		if next == len(want) {
			break
		}
		if ev.matches(want[next]) {
			next++
		}
	}
	if next < len(want) {
		return fmt.Errorf("event %d (%s) not found in order; trace has %d events",
			next+1, describe(want[next]), len(trace))
	}
	return nil
}

func assertEventCount(trace []TraceEvent, m EventMatcher, want int) error {
	got := 0
	for _, ev := range trace {
		if ev.matches(m) {
			got++
		}
	}
	if got != want {
		return fmt.Errorf("%s: expected %d events, got %d", describe(m), want, got)
	}
	return nil
}

func assertNoEvent(trace []TraceEvent, m EventMatcher, afterStep int) error {
	for _, ev := range trace {
		if ev.Step > afterStep && ev.matches(m) {
			return fmt.Errorf("unexpected event seq %d (%s) in step %d", ev.Seq, describe(m), ev.Step)
		}
	}
	return nil
}

func describe(m EventMatcher) string {
	s := m.Kind
	if s == "" {
		s = "any"
	}
	if m.ID != "" {
		s += " id=" + m.ID
	}
	if m.Subscription != 0 {
		s += fmt.Sprintf(" subscription=%d", m.Subscription)
	}
	return s
}
