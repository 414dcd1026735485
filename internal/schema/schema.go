// Package schema validates Thing Description documents against an embedded
// CUE schema.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/thingdir/internal/document"
)

//go:embed td.cue
var tdSchema string

// FieldError is a single constraint violation.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "document is invalid"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		if f.Path == "" {
			parts[i] = f.Message
			continue
		}
		parts[i] = f.Path + ": " + f.Message
	}
	return "document is invalid: " + strings.Join(parts, "; ")
}

// Validator checks documents against the #Thing definition.
// A cue.Context is not safe for concurrent use, so evaluation is serialized.
type Validator struct {
	mu    sync.Mutex
	ctx   *cue.Context
	thing cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(tdSchema, cue.Filename("td.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	thing := root.LookupPath(cue.ParsePath("#Thing"))
	if !thing.Exists() {
		return nil, fmt.Errorf("compile schema: #Thing not defined")
	}
	return &Validator{ctx: ctx, thing: thing}, nil
}

// MustNew is like New but panics on error. The schema is embedded, so an
// error here is a build defect.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns a *ValidationError when doc violates the schema.
func (v *Validator) Validate(doc document.Object) error {
	data, err := document.Marshal(doc)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return v.ValidateJSON(data)
}

// ValidateJSON validates raw JSON bytes.
func (v *Validator) ValidateJSON(data []byte) error {
	expr, err := cuejson.Extract("document.json", data)
	if err != nil {
		return &ValidationError{Fields: []FieldError{{Message: fmt.Sprintf("malformed JSON: %v", err)}}}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	doc := v.ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return toValidationError(err)
	}
	unified := v.thing.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) *ValidationError {
	var fields []FieldError
	seen := make(map[FieldError]bool)
	for _, e := range errors.Errors(err) {
		format, args := e.Msg()
		fe := FieldError{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		if seen[fe] {
			continue
		}
		seen[fe] = true
		fields = append(fields, fe)
	}
	if len(fields) == 0 {
		fields = []FieldError{{Message: err.Error()}}
	}
	return &ValidationError{Fields: fields}
}
