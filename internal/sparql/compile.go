// Package sparql parses the SPARQL subset understood by the directory,
// negotiates result formats and evaluates queries against the store.
//
// Supported: PREFIX/BASE, SELECT [DISTINCT] with variables or '*', ASK,
// basic graph patterns with the ';' ',' and 'a' abbreviations, FILTER with
// comparisons, '&&' '||' '!', BOUND, CONTAINS, STRSTARTS and STRENDS, and
// LIMIT/OFFSET. CONSTRUCT and DESCRIBE parse but cannot be evaluated.
// Update requests are recognised so they can be refused.
package sparql

import (
	"context"
	"fmt"

	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/querysql"
	"github.com/roach88/thingdir/internal/rdf"
	"github.com/roach88/thingdir/internal/store"
)

// SubjectVar is the variable that carries resource identifiers in
// continuous queries.
const SubjectVar queryir.Var = "s"

// Query is a parsed and analyzed query.
type Query struct {
	Text     string
	IR       queryir.Query
	Analysis queryir.Analysis
}

// Compile parses and analyzes text.
func Compile(text string) (*Query, error) {
	ir, err := Parse(text)
	if err != nil {
		return nil, err
	}
	analysis, err := queryir.Analyze(ir)
	if err != nil {
		return nil, fmt.Errorf("analyze query: %w", err)
	}
	return &Query{Text: text, IR: ir, Analysis: analysis}, nil
}

// Form returns the query form.
func (q *Query) Form() queryir.Form {
	return q.Analysis.Form
}

// Negotiate resolves an Accept header for this query.
func (q *Query) Negotiate(accept string) (Format, error) {
	return Negotiate(q.Analysis.Form, accept)
}

// WithProjected returns a copy of a SELECT query that also projects v.
// Other forms are returned unchanged.
func (q *Query) WithProjected(v queryir.Var) *Query {
	sel, ok := q.IR.(queryir.Select)
	if !ok {
		return q
	}
	sel = queryir.EnsureProjected(sel, v)
	analysis, err := queryir.Analyze(sel)
	if err != nil {
		return q
	}
	return &Query{Text: q.Text, IR: sel, Analysis: analysis}
}

// HasSlice reports whether the query carries LIMIT or OFFSET, which makes
// the solution set depend on every stored thing.
func (q *Query) HasSlice() bool {
	sel, ok := q.IR.(queryir.Select)
	return ok && (sel.Limit != queryir.NoLimit || sel.Offset > 0)
}

// Executor runs compiled statements. *store.Store implements it.
type Executor interface {
	Execute(ctx context.Context, query string, args []any, vars []string) ([]store.Solution, error)
}

// Results holds the outcome of an evaluation.
type Results struct {
	Form      queryir.Form
	Vars      []string
	Solutions []store.Solution
	Boolean   bool
}

// Evaluate runs the query. bound pre-binds variables; pass nil for a full
// evaluation.
func (q *Query) Evaluate(ctx context.Context, exec Executor, bound map[queryir.Var]rdf.Term) (Results, error) {
	c := querysql.NewSQLCompiler()
	for k, v := range bound {
		c.BoundValues[k] = v
	}
	compiled, err := c.Compile(q.IR)
	if err != nil {
		return Results{}, fmt.Errorf("compile query: %w", err)
	}
	sols, err := exec.Execute(ctx, compiled.SQL, compiled.Args, compiled.Vars)
	if err != nil {
		return Results{}, err
	}

	res := Results{Form: q.Analysis.Form, Vars: compiled.Vars, Solutions: sols}
	if compiled.Ask {
		res.Boolean = len(sols) > 0
		res.Solutions = nil
	}
	return res, nil
}

// Contains reports whether any solution binds v to a term whose value is id.
func (r Results) Contains(v queryir.Var, id string) bool {
	for _, sol := range r.Solutions {
		if term, ok := sol[string(v)]; ok && term.Value == id {
			return true
		}
	}
	return false
}
