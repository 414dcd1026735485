package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of directory operations with assertions
// on the resulting events.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions"`
}

// Step is one directory operation.
type Step struct {
	Op string `yaml:"op"`

	// ID names the thing for put, patch and delete.
	ID string `yaml:"id,omitempty"`

	// Document is the body of put, create and patch. A null member in a
	// patch removes it.
	Document map[string]any `yaml:"document,omitempty"`

	// Query and Accept are used by register.
	Query  string `yaml:"query,omitempty"`
	Accept string `yaml:"accept,omitempty"`

	// Subscription is the id revoked by revoke.
	Subscription int64 `yaml:"subscription,omitempty"`

	// Expect is the expected outcome. Empty means any success.
	Expect string `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpPut      = "put"
	OpCreate   = "create"
	OpPatch    = "patch"
	OpDelete   = "delete"
	OpRegister = "register"
	OpRevoke   = "revoke"
)

// Assertion checks the event trace or the final store state.
type Assertion struct {
	Type string `yaml:"type"`

	// Events is the expected relative order (event_order).
	Events []EventMatcher `yaml:"events,omitempty"`

	// Kind, ID and Subscription select events (event_count, no_event).
	// ID also names the thing for thing_exists.
	Kind         string `yaml:"kind,omitempty"`
	ID           string `yaml:"id,omitempty"`
	Subscription int64  `yaml:"subscription,omitempty"`

	// Count is the expected number of matches (event_count).
	Count int `yaml:"count,omitempty"`

	// AfterStep is the 1-based step after which no event may match
	// (no_event). Zero covers the whole trace.
	AfterStep int `yaml:"after_step,omitempty"`

	// Exists is the expected presence of ID (thing_exists).
	Exists bool `yaml:"exists,omitempty"`
}

// EventMatcher selects events. Empty fields match anything.
type EventMatcher struct {
	Kind         string `yaml:"kind"`
	ID           string `yaml:"id,omitempty"`
	Subscription int64  `yaml:"subscription,omitempty"`
}

// Assertion types.
const (
	AssertEventOrder  = "event_order"
	AssertEventCount  = "event_count"
	AssertNoEvent     = "no_event"
	AssertThingExists = "thing_exists"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks required fields of every step and assertion.
func (s *Scenario) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Steps) == 0 {
		errs = append(errs, errors.New("at least one step is required"))
	}
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			errs = append(errs, fmt.Errorf("steps[%d]: %w", i, err))
		}
	}
	for i, a := range s.Assertions {
		if err := a.validate(len(s.Steps)); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d]: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	return nil
}

func (st Step) validate() error {
	switch st.Op {
	case OpPut, OpPatch:
		if st.ID == "" {
			return fmt.Errorf("%s requires id", st.Op)
		}
		if st.Document == nil {
			return fmt.Errorf("%s requires document", st.Op)
		}
	case OpCreate:
		if st.Document == nil {
			return errors.New("create requires document")
		}
	case OpDelete:
		if st.ID == "" {
			return errors.New("delete requires id")
		}
	case OpRegister:
		if st.Query == "" {
			return errors.New("register requires query")
		}
	case OpRevoke:
		if st.Subscription <= 0 {
			return errors.New("revoke requires subscription")
		}
	case "":
		return errors.New("op is required")
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	return nil
}

func (a Assertion) validate(steps int) error {
	switch a.Type {
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return errors.New("event_order requires events")
		}
	case AssertEventCount:
		if a.Kind == "" && a.ID == "" && a.Subscription == 0 {
			return errors.New("event_count requires kind, id or subscription")
		}
	case AssertNoEvent:
		if a.AfterStep < 0 || a.AfterStep > steps {
			return fmt.Errorf("after_step %d out of range", a.AfterStep)
		}
	case AssertThingExists:
		if a.ID == "" {
			return errors.New("thing_exists requires id")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
