// Package querysql compiles graph queries to parameterized SQL over the
// triples table.
//
// Each triple pattern becomes one alias of the triples table; shared
// variables become equality joins between aliases. Result variables are
// returned as four columns each, in order: value, kind, datatype, lang. This
// is the layout store.Execute decodes.
//
// CRITICAL: every SELECT has an ORDER BY so solutions are deterministic.
// CRITICAL: values are always parameterized, never interpolated.
package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/rdf"
)

// ErrUnsupportedForm is returned for query forms the backend cannot run.
var ErrUnsupportedForm = errors.New("query form cannot be evaluated")

// Compiled is an executable statement.
type Compiled struct {
	SQL  string
	Args []any

	// Vars are the result variables, in column order.
	Vars []string

	// Ask is true when the statement answers an ASK query: one row means
	// true, no rows means false.
	Ask bool
}

// SQLCompiler compiles queries for SQLite.
type SQLCompiler struct {
	// BoundValues pre-binds variables to constants. A bound variable that
	// does not occur in the pattern has no effect.
	BoundValues map[queryir.Var]rdf.Term
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{BoundValues: make(map[queryir.Var]rdf.Term)}
}

// Compile converts a query to SQL.
func (c *SQLCompiler) Compile(q queryir.Query) (Compiled, error) {
	if q == nil {
		return Compiled{}, fmt.Errorf("cannot compile nil query")
	}
	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Ask:
		return c.compileAsk(query)
	case *queryir.Ask:
		return c.compileAsk(*query)
	default:
		a, _ := queryir.Analyze(q)
		return Compiled{}, fmt.Errorf("%w: %s", ErrUnsupportedForm, a.Form)
	}
}

// column is one position of one pattern alias.
type column struct {
	value    string
	kind     string
	datatype string
	lang     string
	position position
}

type position int

const (
	posSubject position = iota
	posPredicate
	posObject
)

func aliasColumn(alias string, pos position) column {
	switch pos {
	case posSubject:
		return column{value: alias + ".subject", kind: alias + ".subject_kind", datatype: "''", lang: "''", position: pos}
	case posPredicate:
		return column{value: alias + ".predicate", kind: "0", datatype: "''", lang: "''", position: pos}
	default:
		return column{value: alias + ".object", kind: alias + ".object_kind", datatype: alias + ".datatype", lang: alias + ".lang", position: pos}
	}
}

// orderKeys lists the non-constant columns of a position. Constant
// expressions are skipped because SQLite reads integer ORDER BY terms as
// result column indexes.
func (col column) orderKeys() []string {
	keys := []string{col.value + " COLLATE BINARY ASC"}
	if col.position == posPredicate {
		return keys
	}
	keys = append(keys, col.kind+" ASC")
	if col.position == posObject {
		keys = append(keys, col.datatype+" COLLATE BINARY ASC", col.lang+" COLLATE BINARY ASC")
	}
	return keys
}

// builder accumulates the FROM and WHERE parts of a basic graph pattern.
type builder struct {
	c        *SQLCompiler
	from     []string
	where    []string
	params   []any
	bindings map[queryir.Var]column
}

func (c *SQLCompiler) buildPattern(p queryir.Pattern) (*builder, error) {
	if len(p.Triples) == 0 {
		return nil, queryir.ErrEmptyPattern
	}
	b := &builder{c: c, bindings: make(map[queryir.Var]column)}

	for i, tp := range p.Triples {
		alias := fmt.Sprintf("t%d", i)
		b.from = append(b.from, "triples "+alias)

		terms := []queryir.Term{tp.Subject, tp.Predicate, tp.Object}
		for pos, term := range terms {
			if err := b.position(aliasColumn(alias, position(pos)), term); err != nil {
				return nil, fmt.Errorf("pattern %d: %w", i, err)
			}
		}
	}

	for i, f := range p.Filters {
		sql, err := b.expr(f)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		b.where = append(b.where, sql)
	}
	return b, nil
}

func (b *builder) position(col column, term queryir.Term) error {
	switch t := term.(type) {
	case queryir.Const:
		return b.constant(col, t.Term)
	case *queryir.Const:
		return b.constant(col, t.Term)
	case queryir.Var:
		if first, ok := b.bindings[t]; ok {
			b.join(first, col)
			return nil
		}
		b.bindings[t] = col
		if bound, ok := b.c.BoundValues[t]; ok {
			return b.constant(col, bound)
		}
		return nil
	default:
		return fmt.Errorf("unsupported term type: %T", term)
	}
}

func (b *builder) constant(col column, term rdf.Term) error {
	switch col.position {
	case posPredicate:
		if term.Kind != rdf.KindIRI {
			return fmt.Errorf("predicate must be an IRI, got %s", term.Kind)
		}
		b.where = append(b.where, col.value+" = ?")
		b.params = append(b.params, term.Value)
	case posSubject:
		if term.Kind == rdf.KindLiteral {
			// Literals never occur in subject position.
			b.where = append(b.where, "1 = 0")
			return nil
		}
		b.where = append(b.where, col.value+" = ?", col.kind+" = ?")
		b.params = append(b.params, term.Value, int(term.Kind))
	default:
		b.where = append(b.where,
			col.value+" = ?", col.kind+" = ?", col.datatype+" = ?", col.lang+" = ?")
		b.params = append(b.params, term.Value, int(term.Kind), term.Datatype, term.Lang)
	}
	return nil
}

// join equates a repeated variable with its first occurrence.
func (b *builder) join(first, col column) {
	b.where = append(b.where, first.value+" = "+col.value)
	switch {
	case first.position == posPredicate && col.position == posPredicate:
	case first.position == posPredicate:
		b.where = append(b.where, col.kind+" = 0")
	case col.position == posPredicate:
		b.where = append(b.where, first.kind+" = 0")
	default:
		b.where = append(b.where, first.kind+" = "+col.kind)
	}
	if first.position == posObject && col.position == posObject {
		b.where = append(b.where, first.datatype+" = "+col.datatype, first.lang+" = "+col.lang)
	}
}

func (b *builder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// compileSelect compiles a Select.
// MANDATORY: includes ORDER BY.
func (c *SQLCompiler) compileSelect(q queryir.Select) (Compiled, error) {
	if q.Offset < 0 || q.Limit < queryir.NoLimit {
		return Compiled{}, fmt.Errorf("invalid LIMIT/OFFSET %d/%d", q.Limit, q.Offset)
	}
	b, err := c.buildPattern(q.Where)
	if err != nil {
		return Compiled{}, err
	}

	vars := queryir.ResultColumns(q)
	var selectCols, orderCols []string
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		name := string(v)
		names = append(names, name)
		col, ok := b.bindings[v]
		if !ok {
			selectCols = append(selectCols,
				"NULL AS "+quoteIdent(name),
				"NULL AS "+quoteIdent(name+"__kind"),
				"NULL AS "+quoteIdent(name+"__dt"),
				"NULL AS "+quoteIdent(name+"__lang"))
			continue
		}
		selectCols = append(selectCols,
			col.value+" AS "+quoteIdent(name),
			col.kind+" AS "+quoteIdent(name+"__kind"),
			col.datatype+" AS "+quoteIdent(name+"__dt"),
			col.lang+" AS "+quoteIdent(name+"__lang"))
		orderCols = append(orderCols, col.orderKeys()...)
	}
	if len(selectCols) == 0 {
		selectCols = []string{"1"}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(selectCols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(strings.Join(b.from, ", "))
	sb.WriteString(b.whereClause())
	sb.WriteString(" ORDER BY ")
	sb.WriteString(stableOrderKey(orderCols))

	params := b.params
	switch {
	case q.Limit != queryir.NoLimit:
		sb.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, q.Limit, q.Offset)
	case q.Offset > 0:
		sb.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, q.Offset)
	}

	return Compiled{SQL: sb.String(), Args: params, Vars: names}, nil
}

// stableOrderKey returns the ORDER BY list. Queries without projected
// bindings still get a constant key so every statement carries ORDER BY.
func stableOrderKey(cols []string) string {
	if len(cols) == 0 {
		return "1"
	}
	return strings.Join(cols, ", ")
}

func (c *SQLCompiler) compileAsk(q queryir.Ask) (Compiled, error) {
	b, err := c.buildPattern(q.Where)
	if err != nil {
		return Compiled{}, err
	}
	sql := "SELECT 1 FROM " + strings.Join(b.from, ", ") + b.whereClause() + " LIMIT 1"
	return Compiled{SQL: sql, Args: b.params, Ask: true}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
