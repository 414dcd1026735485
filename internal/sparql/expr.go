package sparql

import (
	"strings"

	"github.com/roach88/thingdir/internal/queryir"
)

var compareOps = map[string]queryir.CompareOp{
	"=":  queryir.OpEq,
	"!=": queryir.OpNe,
	"<":  queryir.OpLt,
	"<=": queryir.OpLe,
	">":  queryir.OpGt,
	">=": queryir.OpGe,
}

// constraint parses the argument of FILTER: a bracketted expression or a
// built-in call.
func (p *parser) constraint() (queryir.Expr, error) {
	if p.isPunct("(") {
		p.advance()
		e, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	}
	return p.builtin()
}

func (p *parser) orExpr() (queryir.Expr, error) {
	first, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	exprs := []queryir.Expr{first}
	for p.acceptPunct("||") {
		next, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, next)
	}
	if len(exprs) == 1 {
		return first, nil
	}
	return queryir.Or{Exprs: exprs}, nil
}

func (p *parser) andExpr() (queryir.Expr, error) {
	first, err := p.unaryExpr()
	if err != nil {
		return nil, err
	}
	exprs := []queryir.Expr{first}
	for p.acceptPunct("&&") {
		next, err := p.unaryExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, next)
	}
	if len(exprs) == 1 {
		return first, nil
	}
	return queryir.And{Exprs: exprs}, nil
}

func (p *parser) unaryExpr() (queryir.Expr, error) {
	if p.acceptPunct("!") {
		inner, err := p.unaryExpr()
		if err != nil {
			return nil, err
		}
		return queryir.Not{Expr: inner}, nil
	}
	if p.isPunct("(") {
		p.advance()
		e, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	}
	if t := p.peek(); t.kind == tokKeyword && !isBooleanKeyword(t.text) {
		if strings.EqualFold(t.text, "STR") {
			return p.comparison()
		}
		return p.builtin()
	}
	return p.comparison()
}

func isBooleanKeyword(s string) bool {
	return strings.EqualFold(s, "true") || strings.EqualFold(s, "false")
}

func (p *parser) comparison() (queryir.Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	op, ok := compareOps[t.text]
	if t.kind != tokPunct || !ok {
		return nil, p.errorf(t, "expected comparison operator, found %s", describe(t))
	}
	p.advance()
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return queryir.Compare{Op: op, Left: left, Right: right}, nil
}

// operand parses a comparison side. STR(?v) compares the lexical form,
// which is what a bare variable compares too.
func (p *parser) operand() (queryir.Term, error) {
	if p.acceptKeyword("STR") {
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		v, err := p.variable()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return v, nil
	}
	return p.term()
}

func (p *parser) variable() (queryir.Var, error) {
	t := p.advance()
	if t.kind != tokVar {
		return "", p.errorf(t, "expected variable, found %s", describe(t))
	}
	return queryir.Var(t.text), nil
}

func (p *parser) builtin() (queryir.Expr, error) {
	t := p.advance()
	if t.kind != tokKeyword {
		return nil, p.errorf(t, "expected function call, found %s", describe(t))
	}
	name := strings.ToUpper(t.text)
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}

	switch name {
	case "BOUND":
		v, err := p.variable()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return queryir.Bound{Var: v}, nil
	case "CONTAINS", "STRSTARTS", "STRENDS":
		var arg queryir.Var
		var err error
		if p.acceptKeyword("STR") {
			if err := p.expectPunct("("); err != nil {
				return nil, err
			}
			if arg, err = p.variable(); err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
		} else if arg, err = p.variable(); err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		s := p.advance()
		if s.kind != tokString {
			return nil, p.errorf(s, "%s requires a string argument", name)
		}
		// A language tag or datatype on the argument does not change the test.
		if p.peek().kind == tokLangTag {
			p.advance()
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return queryir.StringFunc{Name: name, Arg: arg, Text: s.text}, nil
	default:
		return nil, p.errorf(t, "function %s is not supported", name)
	}
}
