package harness

// Result is the outcome of running a scenario.
type Result struct {
	Scenario string
	Steps    []StepResult
	Trace    []TraceEvent

	// Pass is false when a step outcome or an assertion did not hold.
	Pass   bool
	Errors []string
}

// StepResult records what one step did.
type StepResult struct {
	Op      string
	Outcome string

	// ID is the affected thing, including identifiers assigned by create.
	ID string

	// Subscription is the id assigned by register or revoked by revoke.
	Subscription int64

	// LastSeq is the highest sequence number logged when the step finished.
	LastSeq int64
}

// TraceEvent is a logged event attributed to the step that emitted it.
type TraceEvent struct {
	Seq          int64
	Kind         string
	ID           string
	Subscription int64

	// Step is the 1-based index of the emitting step.
	Step int
}

func (e TraceEvent) matches(m EventMatcher) bool {
	if m.Kind != "" && m.Kind != e.Kind {
		return false
	}
	if m.ID != "" && m.ID != e.ID {
		return false
	}
	if m.Subscription != 0 && m.Subscription != e.Subscription {
		return false
	}
	return true
}
