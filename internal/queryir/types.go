package queryir

import "github.com/roach88/thingdir/internal/rdf"

// Query is a parsed query. Sealed.
type Query interface {
	queryNode()
}

// Term is a position in a triple pattern. Sealed.
type Term interface {
	termNode()
}

// Expr is a filter expression. Sealed.
type Expr interface {
	exprNode()
}

// Var is a query variable, without the leading '?'.
type Var string

func (Var) termNode() {}

// Const is a fixed graph term.
type Const struct {
	Term rdf.Term
}

func (Const) termNode() {}

// TriplePattern matches stored triples.
type TriplePattern struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// Vars returns the variables of the pattern in subject, predicate, object
// order, with duplicates.
func (p TriplePattern) Vars() []Var {
	var out []Var
	for _, t := range []Term{p.Subject, p.Predicate, p.Object} {
		if v, ok := t.(Var); ok {
			out = append(out, v)
		}
	}
	return out
}

// Pattern is a basic graph pattern with filters.
type Pattern struct {
	Triples []TriplePattern
	Filters []Expr
}

// NoLimit marks an absent LIMIT.
const NoLimit = -1

// Select projects variables from the solutions of Where.
// A nil Vars list means "SELECT *": every variable in Where, in order of
// first appearance.
type Select struct {
	Vars     []Var
	Distinct bool
	Where    Pattern
	Limit    int
	Offset   int
}

func (Select) queryNode() {}

// Ask reports whether Where has at least one solution.
type Ask struct {
	Where Pattern
}

func (Ask) queryNode() {}

// Construct builds a graph from Template for every solution.
type Construct struct {
	Template []TriplePattern
	Where    Pattern
}

func (Construct) queryNode() {}

// Describe returns a description of the given resources.
type Describe struct {
	Resources []Term
	Where     Pattern
}

func (Describe) queryNode() {}

// Update is any SPARQL Update request. It is never executed; the keyword is
// kept for error messages.
type Update struct {
	Keyword string
}

func (Update) queryNode() {}

// CompareOp is a filter comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Compare compares two operands.
type Compare struct {
	Op    CompareOp
	Left  Term
	Right Term
}

func (Compare) exprNode() {}

// And is a conjunction.
type And struct {
	Exprs []Expr
}

func (And) exprNode() {}

// Or is a disjunction.
type Or struct {
	Exprs []Expr
}

func (Or) exprNode() {}

// Not negates an expression.
type Not struct {
	Expr Expr
}

func (Not) exprNode() {}

// StringFunc is one of the string tests CONTAINS, STRSTARTS or STRENDS
// applied to the lexical form of a variable.
type StringFunc struct {
	Name string
	Arg  Var
	Text string
}

func (StringFunc) exprNode() {}

// Bound is the BOUND(?v) test.
type Bound struct {
	Var Var
}

func (Bound) exprNode() {}
