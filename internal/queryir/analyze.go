package queryir

import (
	"errors"
	"fmt"
	"slices"
)

// Form names a query form.
type Form string

const (
	FormSelect    Form = "SELECT"
	FormAsk       Form = "ASK"
	FormConstruct Form = "CONSTRUCT"
	FormDescribe  Form = "DESCRIBE"
	FormUpdate    Form = "UPDATE"
)

// ErrEmptyPattern is returned for queries without any triple pattern.
var ErrEmptyPattern = errors.New("query has an empty graph pattern")

// Analysis describes the shape of a query.
type Analysis struct {
	Form Form

	// ReadOnly is false for SPARQL Update requests.
	ReadOnly bool

	// Columns are the result columns of a Select, with "*" resolved.
	Columns []Var

	// Warnings lists projected variables that never occur in the pattern;
	// they are always unbound.
	Warnings []string
}

// ReportsIdentifiers reports whether the query yields solution rows that
// can carry resource identifiers.
func (a Analysis) ReportsIdentifiers() bool {
	return a.Form == FormSelect && a.ReadOnly && len(a.Columns) > 0
}

// Analyze inspects q. It is a pure function.
//
// Errors are returned for queries no backend can evaluate: empty patterns,
// filters over variables the pattern never binds and negative slices.
func Analyze(q Query) (Analysis, error) {
	switch query := q.(type) {
	case Select:
		return analyzeSelect(query)
	case *Select:
		return analyzeSelect(*query)
	case Ask:
		return Analysis{Form: FormAsk, ReadOnly: true}, checkPattern(query.Where)
	case *Ask:
		return Analysis{Form: FormAsk, ReadOnly: true}, checkPattern(query.Where)
	case Construct:
		return Analysis{Form: FormConstruct, ReadOnly: true}, nil
	case *Construct:
		return Analysis{Form: FormConstruct, ReadOnly: true}, nil
	case Describe:
		return Analysis{Form: FormDescribe, ReadOnly: true}, nil
	case *Describe:
		return Analysis{Form: FormDescribe, ReadOnly: true}, nil
	case Update:
		return Analysis{Form: FormUpdate, ReadOnly: false}, nil
	case *Update:
		return Analysis{Form: FormUpdate, ReadOnly: false}, nil
	case nil:
		return Analysis{}, fmt.Errorf("nil query")
	default:
		return Analysis{}, fmt.Errorf("unsupported query type: %T", q)
	}
}

func analyzeSelect(q Select) (Analysis, error) {
	if err := checkPattern(q.Where); err != nil {
		return Analysis{}, err
	}
	if q.Offset < 0 {
		return Analysis{}, fmt.Errorf("negative OFFSET %d", q.Offset)
	}
	if q.Limit < NoLimit {
		return Analysis{}, fmt.Errorf("negative LIMIT %d", q.Limit)
	}

	a := Analysis{Form: FormSelect, ReadOnly: true, Columns: ResultColumns(q)}
	bound := PatternVars(q.Where)
	for _, v := range a.Columns {
		if !slices.Contains(bound, v) {
			a.Warnings = append(a.Warnings, fmt.Sprintf("variable ?%s is projected but never bound", v))
		}
	}
	return a, nil
}

func checkPattern(p Pattern) error {
	if len(p.Triples) == 0 {
		return ErrEmptyPattern
	}
	bound := PatternVars(p)
	for _, f := range p.Filters {
		for _, v := range exprVars(f) {
			if !slices.Contains(bound, v) {
				return fmt.Errorf("filter references ?%s which the pattern never binds", v)
			}
		}
	}
	return nil
}

// ResultColumns returns the projection of a Select, resolving "*".
func ResultColumns(q Select) []Var {
	if q.Vars == nil {
		return PatternVars(q.Where)
	}
	out := make([]Var, 0, len(q.Vars))
	for _, v := range q.Vars {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// PatternVars returns the variables of the triple patterns in order of first
// appearance.
func PatternVars(p Pattern) []Var {
	var out []Var
	for _, tp := range p.Triples {
		for _, v := range tp.Vars() {
			if !slices.Contains(out, v) {
				out = append(out, v)
			}
		}
	}
	return out
}

// EnsureProjected returns q with v added to the end of an explicit
// projection. "SELECT *" already projects every pattern variable and is
// returned unchanged when v occurs in the pattern; otherwise it is made
// explicit.
func EnsureProjected(q Select, v Var) Select {
	if q.Vars == nil {
		if slices.Contains(PatternVars(q.Where), v) {
			return q
		}
		q.Vars = PatternVars(q.Where)
	}
	if slices.Contains(q.Vars, v) {
		return q
	}
	vars := make([]Var, len(q.Vars), len(q.Vars)+1)
	copy(vars, q.Vars)
	q.Vars = append(vars, v)
	return q
}

func exprVars(e Expr) []Var {
	var out []Var
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case Compare:
			for _, t := range []Term{x.Left, x.Right} {
				if v, ok := t.(Var); ok {
					out = append(out, v)
				}
			}
		case And:
			for _, sub := range x.Exprs {
				walk(sub)
			}
		case Or:
			for _, sub := range x.Exprs {
				walk(sub)
			}
		case Not:
			walk(x.Expr)
		case StringFunc:
			out = append(out, x.Arg)
		case Bound:
			// BOUND is meaningful on any variable.
		}
	}
	walk(e)
	return out
}
