package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/rdf"
)

var flipped = map[queryir.CompareOp]queryir.CompareOp{
	queryir.OpEq: queryir.OpEq,
	queryir.OpNe: queryir.OpNe,
	queryir.OpLt: queryir.OpGt,
	queryir.OpLe: queryir.OpGe,
	queryir.OpGt: queryir.OpLt,
	queryir.OpGe: queryir.OpLe,
}

// expr compiles a filter expression to a SQL boolean.
func (b *builder) expr(e queryir.Expr) (string, error) {
	switch x := e.(type) {
	case queryir.Compare:
		return b.compare(x)
	case queryir.And:
		return b.junction(x.Exprs, " AND ", "1 = 1")
	case queryir.Or:
		return b.junction(x.Exprs, " OR ", "1 = 0")
	case queryir.Not:
		inner, err := b.expr(x.Expr)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case queryir.StringFunc:
		return b.stringFunc(x)
	case queryir.Bound:
		if _, ok := b.bindings[x.Var]; ok {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	default:
		return "", fmt.Errorf("unsupported filter expression: %T", e)
	}
}

func (b *builder) junction(exprs []queryir.Expr, sep, empty string) (string, error) {
	if len(exprs) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(exprs))
	for _, sub := range exprs {
		sql, err := b.expr(sub)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+sql+")")
	}
	return strings.Join(parts, sep), nil
}

func (b *builder) lookup(v queryir.Var) (column, error) {
	col, ok := b.bindings[v]
	if !ok {
		return column{}, fmt.Errorf("variable ?%s is not bound by the pattern", v)
	}
	return col, nil
}

func (b *builder) compare(x queryir.Compare) (string, error) {
	op, ok := flipped[x.Op]
	if !ok {
		return "", fmt.Errorf("unknown comparison operator %q", x.Op)
	}

	lv, lIsVar := x.Left.(queryir.Var)
	rv, rIsVar := x.Right.(queryir.Var)
	switch {
	case lIsVar && rIsVar:
		left, err := b.lookup(lv)
		if err != nil {
			return "", err
		}
		right, err := b.lookup(rv)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left.value, x.Op, right.value), nil
	case lIsVar:
		return b.compareConst(lv, x.Op, x.Right)
	case rIsVar:
		return b.compareConst(rv, op, x.Left)
	default:
		return "", fmt.Errorf("filter compares two constants")
	}
}

func (b *builder) compareConst(v queryir.Var, op queryir.CompareOp, other queryir.Term) (string, error) {
	col, err := b.lookup(v)
	if err != nil {
		return "", err
	}
	c, ok := other.(queryir.Const)
	if !ok {
		return "", fmt.Errorf("unsupported filter operand %T", other)
	}
	term := c.Term

	if term.Kind == rdf.KindLiteral && isNumeric(term.Datatype) {
		f, err := strconv.ParseFloat(term.Value, 64)
		if err != nil {
			return "", fmt.Errorf("numeric literal %q: %w", term.Value, err)
		}
		b.params = append(b.params, rdf.XSDInteger, rdf.XSDDouble, rdf.XSDDecimal, f)
		return fmt.Sprintf("(%s = 1 AND %s IN (?, ?, ?) AND CAST(%s AS REAL) %s ?)",
			col.kind, col.datatype, col.value, op), nil
	}

	b.params = append(b.params, term.Value)
	return fmt.Sprintf("(%s = %d AND %s %s ?)", col.kind, int(term.Kind), col.value, op), nil
}

func isNumeric(datatype string) bool {
	switch datatype {
	case rdf.XSDInteger, rdf.XSDDouble, rdf.XSDDecimal:
		return true
	}
	return false
}

func (b *builder) stringFunc(x queryir.StringFunc) (string, error) {
	col, err := b.lookup(x.Arg)
	if err != nil {
		return "", err
	}
	if x.Text == "" {
		return "1 = 1", nil
	}
	switch strings.ToUpper(x.Name) {
	case "CONTAINS":
		b.params = append(b.params, x.Text)
		return fmt.Sprintf("instr(%s, ?) > 0", col.value), nil
	case "STRSTARTS":
		b.params = append(b.params, x.Text, x.Text)
		return fmt.Sprintf("substr(%s, 1, length(?)) = ?", col.value), nil
	case "STRENDS":
		b.params = append(b.params, x.Text, x.Text)
		return fmt.Sprintf("substr(%s, -length(?)) = ?", col.value), nil
	default:
		return "", fmt.Errorf("unsupported function %s", x.Name)
	}
}
