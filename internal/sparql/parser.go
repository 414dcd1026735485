package sparql

import (
	"strconv"
	"strings"

	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/rdf"
)

var updateKeywords = map[string]bool{
	"INSERT": true, "DELETE": true, "LOAD": true, "CLEAR": true, "DROP": true,
	"CREATE": true, "ADD": true, "MOVE": true, "COPY": true, "WITH": true,
}

var unsupportedKeywords = map[string]bool{
	"OPTIONAL": true, "UNION": true, "MINUS": true, "GRAPH": true, "SERVICE": true,
	"BIND": true, "VALUES": true, "GROUP": true, "HAVING": true, "ORDER": true,
	"FROM": true, "SELECT": true,
}

// Parse parses SPARQL query text into the query IR. Update requests parse
// to queryir.Update without further inspection.
func Parse(text string) (queryir.Query, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Line: 1, Column: 1, Msg: "empty query"}
	}
	toks, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &parser{src: text, toks: toks, prefixes: make(map[string]string)}
	return p.query()
}

type parser struct {
	src      string
	toks     []token
	i        int
	prefixes map[string]string
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) advance() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) *ParseError {
	return errorAt(p.src, t.pos, format, args...)
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokKeyword && strings.EqualFold(t.text, word)
}

func (p *parser) acceptKeyword(word string) bool {
	if p.isKeyword(word) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) acceptPunct(s string) bool {
	if p.isPunct(s) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectPunct(s string) error {
	if !p.acceptPunct(s) {
		t := p.peek()
		return p.errorf(t, "expected %q, found %s", s, describe(t))
	}
	return nil
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of query"
	case tokVar:
		return "?" + t.text
	case tokIRI:
		return "<" + t.text + ">"
	case tokString:
		return strconv.Quote(t.text)
	default:
		return strconv.Quote(t.text)
	}
}

func (p *parser) query() (queryir.Query, error) {
	if err := p.prologue(); err != nil {
		return nil, err
	}

	t := p.peek()
	if t.kind != tokKeyword {
		return nil, p.errorf(t, "expected query form, found %s", describe(t))
	}
	word := strings.ToUpper(t.text)
	if updateKeywords[word] {
		return queryir.Update{Keyword: word}, nil
	}

	var q queryir.Query
	var err error
	switch word {
	case "SELECT":
		q, err = p.selectQuery()
	case "ASK":
		q, err = p.askQuery()
	case "CONSTRUCT":
		q, err = p.constructQuery()
	case "DESCRIBE":
		q, err = p.describeQuery()
	default:
		return nil, p.errorf(t, "unknown query form %s", t.text)
	}
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s after query", describe(t))
	}
	return q, nil
}

func (p *parser) prologue() error {
	for {
		switch {
		case p.acceptKeyword("BASE"):
			if t := p.advance(); t.kind != tokIRI {
				return p.errorf(t, "BASE requires an IRI")
			}
		case p.acceptKeyword("PREFIX"):
			t := p.advance()
			if t.kind != tokPName || !strings.HasSuffix(t.text, ":") {
				return p.errorf(t, "PREFIX requires a name ending in ':'")
			}
			iri := p.advance()
			if iri.kind != tokIRI {
				return p.errorf(iri, "PREFIX %s requires an IRI", t.text)
			}
			p.prefixes[strings.TrimSuffix(t.text, ":")] = iri.text
		default:
			return nil
		}
	}
}

func (p *parser) selectQuery() (queryir.Query, error) {
	p.advance() // SELECT
	q := queryir.Select{Limit: queryir.NoLimit}
	if p.acceptKeyword("DISTINCT") || p.acceptKeyword("REDUCED") {
		q.Distinct = true
	}

	if p.acceptPunct("*") {
		q.Vars = nil
	} else {
		for p.peek().kind == tokVar {
			q.Vars = append(q.Vars, queryir.Var(p.advance().text))
		}
		if len(q.Vars) == 0 {
			t := p.peek()
			if t.kind == tokPunct && t.text == "(" {
				return nil, p.errorf(t, "projection expressions are not supported")
			}
			return nil, p.errorf(t, "SELECT requires '*' or at least one variable")
		}
	}

	where, err := p.whereClause()
	if err != nil {
		return nil, err
	}
	q.Where = where

	if err := p.solutionModifiers(&q); err != nil {
		return nil, err
	}
	return q, nil
}

func (p *parser) askQuery() (queryir.Query, error) {
	p.advance() // ASK
	where, err := p.whereClause()
	if err != nil {
		return nil, err
	}
	return queryir.Ask{Where: where}, nil
}

func (p *parser) constructQuery() (queryir.Query, error) {
	p.advance() // CONSTRUCT
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	template, err := p.triplesUntil("}")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	where, err := p.whereClause()
	if err != nil {
		return nil, err
	}
	q := queryir.Select{Limit: queryir.NoLimit}
	if err := p.solutionModifiers(&q); err != nil {
		return nil, err
	}
	return queryir.Construct{Template: template, Where: where}, nil
}

func (p *parser) describeQuery() (queryir.Query, error) {
	p.advance() // DESCRIBE
	var resources []queryir.Term
	if !p.acceptPunct("*") {
		for {
			t := p.peek()
			if t.kind != tokVar && t.kind != tokIRI && t.kind != tokPName {
				break
			}
			term, err := p.term()
			if err != nil {
				return nil, err
			}
			resources = append(resources, term)
		}
		if len(resources) == 0 {
			return nil, p.errorf(p.peek(), "DESCRIBE requires '*' or at least one resource")
		}
	}
	var where queryir.Pattern
	if p.isKeyword("WHERE") || p.isPunct("{") {
		w, err := p.whereClause()
		if err != nil {
			return nil, err
		}
		where = w
	}
	q := queryir.Select{Limit: queryir.NoLimit}
	if err := p.solutionModifiers(&q); err != nil {
		return nil, err
	}
	return queryir.Describe{Resources: resources, Where: where}, nil
}

// whereClause parses [WHERE] { ... }. The WHERE keyword is optional in
// every form.
func (p *parser) whereClause() (queryir.Pattern, error) {
	if t := p.peek(); t.kind == tokKeyword && strings.EqualFold(t.text, "FROM") {
		return queryir.Pattern{}, p.errorf(t, "dataset clauses (FROM) are not supported")
	}
	p.acceptKeyword("WHERE")
	if err := p.expectPunct("{"); err != nil {
		return queryir.Pattern{}, err
	}

	var pat queryir.Pattern
	for {
		if p.acceptPunct("}") {
			return pat, nil
		}
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return pat, p.errorf(t, "unterminated group pattern")
		case t.kind == tokKeyword && strings.EqualFold(t.text, "FILTER"):
			p.advance()
			e, err := p.constraint()
			if err != nil {
				return pat, err
			}
			pat.Filters = append(pat.Filters, e)
			p.acceptPunct(".")
		case t.kind == tokKeyword && unsupportedKeywords[strings.ToUpper(t.text)]:
			return pat, p.errorf(t, "%s is not supported", strings.ToUpper(t.text))
		case t.kind == tokPunct && t.text == "{":
			return pat, p.errorf(t, "nested group patterns are not supported")
		default:
			triples, err := p.triplesBlock()
			if err != nil {
				return pat, err
			}
			pat.Triples = append(pat.Triples, triples...)
		}
	}
}

func (p *parser) solutionModifiers(q *queryir.Select) error {
	for {
		t := p.peek()
		switch {
		case p.acceptKeyword("LIMIT"):
			n, err := p.nonNegativeInt("LIMIT")
			if err != nil {
				return err
			}
			q.Limit = n
		case p.acceptKeyword("OFFSET"):
			n, err := p.nonNegativeInt("OFFSET")
			if err != nil {
				return err
			}
			q.Offset = n
		case t.kind == tokKeyword && unsupportedKeywords[strings.ToUpper(t.text)]:
			return p.errorf(t, "%s is not supported", strings.ToUpper(t.text))
		default:
			return nil
		}
	}
}

func (p *parser) nonNegativeInt(clause string) (int, error) {
	t := p.advance()
	if t.kind != tokInteger {
		return 0, p.errorf(t, "%s requires an integer", clause)
	}
	n, err := strconv.Atoi(t.text)
	if err != nil || n < 0 {
		return 0, p.errorf(t, "%s requires a non-negative integer", clause)
	}
	return n, nil
}

// triplesBlock parses triples up to the next FILTER or closing brace.
func (p *parser) triplesBlock() ([]queryir.TriplePattern, error) {
	return p.triplesUntil("}")
}

func (p *parser) triplesUntil(closing string) ([]queryir.TriplePattern, error) {
	var out []queryir.TriplePattern
	for {
		t := p.peek()
		if (t.kind == tokPunct && t.text == closing) || t.kind == tokEOF ||
			(t.kind == tokKeyword && (strings.EqualFold(t.text, "FILTER") || unsupportedKeywords[strings.ToUpper(t.text)])) {
			return out, nil
		}

		subject, err := p.term()
		if err != nil {
			return nil, err
		}
		if c, ok := subject.(queryir.Const); ok && c.Term.Kind == rdf.KindLiteral {
			return nil, p.errorf(t, "literal %s cannot be a subject", describe(t))
		}
		triples, err := p.predicateObjectList(subject)
		if err != nil {
			return nil, err
		}
		out = append(out, triples...)

		if !p.acceptPunct(".") {
			return out, nil
		}
	}
}

func (p *parser) predicateObjectList(subject queryir.Term) ([]queryir.TriplePattern, error) {
	var out []queryir.TriplePattern
	for {
		verb, err := p.verb()
		if err != nil {
			return nil, err
		}
		for {
			object, err := p.term()
			if err != nil {
				return nil, err
			}
			out = append(out, queryir.TriplePattern{Subject: subject, Predicate: verb, Object: object})
			if !p.acceptPunct(",") {
				break
			}
		}
		if !p.acceptPunct(";") {
			return out, nil
		}
		// A trailing ';' before '.' or '}' is allowed.
		if p.isPunct(".") || p.isPunct("}") {
			return out, nil
		}
	}
}

func (p *parser) verb() (queryir.Term, error) {
	t := p.peek()
	if t.kind == tokKeyword && t.text == "a" {
		p.advance()
		return queryir.Const{Term: rdf.IRI(rdf.RDFType)}, nil
	}
	if t.kind != tokVar && t.kind != tokIRI && t.kind != tokPName {
		return nil, p.errorf(t, "expected predicate, found %s", describe(t))
	}
	return p.term()
}

// term parses a variable, IRI, prefixed name or literal.
func (p *parser) term() (queryir.Term, error) {
	t := p.advance()
	switch t.kind {
	case tokVar:
		return queryir.Var(t.text), nil
	case tokIRI:
		return queryir.Const{Term: rdf.IRI(t.text)}, nil
	case tokPName:
		iri, err := p.expand(t)
		if err != nil {
			return nil, err
		}
		return queryir.Const{Term: rdf.IRI(iri)}, nil
	case tokString:
		return p.literalSuffix(t.text)
	case tokInteger:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errorf(t, "integer %s out of range", t.text)
		}
		return queryir.Const{Term: rdf.TypedLiteral(strconv.FormatInt(n, 10), rdf.XSDInteger)}, nil
	case tokDecimal, tokDouble:
		return queryir.Const{Term: rdf.TypedLiteral(strings.TrimPrefix(t.text, "+"), rdf.XSDDouble)}, nil
	case tokKeyword:
		switch strings.ToLower(t.text) {
		case "true", "false":
			return queryir.Const{Term: rdf.TypedLiteral(strings.ToLower(t.text), rdf.XSDBoolean)}, nil
		}
	case tokBlank:
		return nil, p.errorf(t, "blank nodes in patterns are not supported")
	case tokPunct:
		if t.text == "[" {
			return nil, p.errorf(t, "blank nodes in patterns are not supported")
		}
	}
	return nil, p.errorf(t, "expected term, found %s", describe(t))
}

func (p *parser) literalSuffix(lexical string) (queryir.Term, error) {
	switch t := p.peek(); t.kind {
	case tokLangTag:
		p.advance()
		return queryir.Const{Term: rdf.LangLiteral(lexical, t.text)}, nil
	case tokDatatypeMark:
		p.advance()
		dt := p.advance()
		switch dt.kind {
		case tokIRI:
			return queryir.Const{Term: rdf.TypedLiteral(lexical, dt.text)}, nil
		case tokPName:
			iri, err := p.expand(dt)
			if err != nil {
				return nil, err
			}
			return queryir.Const{Term: rdf.TypedLiteral(lexical, iri)}, nil
		default:
			return nil, p.errorf(dt, "expected datatype IRI after ^^")
		}
	}
	return queryir.Const{Term: rdf.Literal(lexical)}, nil
}

func (p *parser) expand(t token) (string, error) {
	if iri, ok := rdf.Expand(t.text, p.prefixes); ok {
		return iri, nil
	}
	if iri, ok := rdf.Expand(t.text, rdf.WellKnownPrefixes); ok {
		return iri, nil
	}
	prefix, _, _ := strings.Cut(t.text, ":")
	return "", p.errorf(t, "undeclared prefix %q", prefix)
}
