// Package tdconv converts Thing Description documents into graph triples.
//
// The mapping is a compact subset of JSON-LD expansion that is sufficient
// for continuous queries over TD members:
//
//   - the subject of every top-level member is the thing identifier
//   - "@type" and "type" become rdf:type statements
//   - member names resolve against the document's "@context" prefixes, the
//     well-known WoT prefixes, then the "@vocab" (TD namespace by default)
//   - nested objects become blank nodes (or named nodes when they carry "@id")
//   - arrays produce one statement per element; null members are dropped
package tdconv

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/rdf"
)

// Convert maps a document stored under id into triples. Output order is
// deterministic for a given input.
func Convert(id string, doc document.Object) ([]rdf.Triple, error) {
	if id == "" {
		return nil, fmt.Errorf("convert: empty thing identifier")
	}
	c := &converter{
		prefixes: contextPrefixes(doc["@context"]),
		vocab:    rdf.NSTD,
		bnodeTag: blankTag(id),
	}
	if v, ok := c.prefixes["@vocab"]; ok {
		c.vocab = v
		delete(c.prefixes, "@vocab")
	}

	subject := rdf.IRI(id)
	for _, key := range doc.SortedKeys() {
		switch key {
		case "@context", "id", "@id":
			continue
		}
		if err := c.member(subject, key, doc[key]); err != nil {
			return nil, err
		}
	}
	return c.out, nil
}

type converter struct {
	prefixes map[string]string
	vocab    string
	bnodeTag string
	nextNode int
	out      []rdf.Triple
}

// blankTag derives a per-thing prefix so blank node labels never collide
// between documents sharing the triple table.
func blankTag(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}

func (c *converter) member(subject rdf.Term, key string, value document.Value) error {
	if key == "@type" || key == "type" {
		return c.types(subject, value)
	}
	return c.values(subject, rdf.IRI(c.resolve(key)), value)
}

func (c *converter) types(subject rdf.Term, value document.Value) error {
	switch v := value.(type) {
	case document.String:
		c.emit(subject, rdf.IRI(rdf.RDFType), rdf.IRI(c.resolve(string(v))))
	case document.Array:
		for i, elem := range v {
			s, ok := elem.(document.String)
			if !ok {
				return fmt.Errorf("convert: @type[%d] is not a string", i)
			}
			c.emit(subject, rdf.IRI(rdf.RDFType), rdf.IRI(c.resolve(string(s))))
		}
	case document.Null:
	default:
		return fmt.Errorf("convert: @type must be a string or array of strings, got %T", value)
	}
	return nil
}

func (c *converter) values(subject, predicate rdf.Term, value document.Value) error {
	switch v := value.(type) {
	case document.Null:
		return nil
	case document.Array:
		for _, elem := range v {
			if err := c.values(subject, predicate, elem); err != nil {
				return err
			}
		}
		return nil
	case document.Object:
		if lit, ok := valueObject(v); ok {
			c.emit(subject, predicate, lit)
			return nil
		}
		node := c.node(v)
		c.emit(subject, predicate, node)
		for _, key := range v.SortedKeys() {
			if key == "@id" {
				continue
			}
			if err := c.member(node, key, v[key]); err != nil {
				return err
			}
		}
		return nil
	default:
		term, err := literal(value)
		if err != nil {
			return err
		}
		c.emit(subject, predicate, term)
		return nil
	}
}

func (c *converter) node(obj document.Object) rdf.Term {
	if id, ok := obj["@id"].(document.String); ok && id != "" {
		if iri, ok := rdf.Expand(string(id), c.prefixes); ok {
			return rdf.IRI(iri)
		}
		return rdf.IRI(string(id))
	}
	label := fmt.Sprintf("%sb%d", c.bnodeTag, c.nextNode)
	c.nextNode++
	return rdf.Blank(label)
}

func (c *converter) emit(s, p, o rdf.Term) {
	c.out = append(c.out, rdf.Triple{Subject: s, Predicate: p, Object: o})
}

// resolve expands a member name or type token to an absolute IRI.
func (c *converter) resolve(term string) string {
	if iri, ok := rdf.Expand(term, c.prefixes); ok {
		return iri
	}
	if iri, ok := rdf.Expand(term, rdf.WellKnownPrefixes); ok {
		return iri
	}
	if rdf.IsAbsoluteIRI(term) {
		return term
	}
	return c.vocab + term
}

func literal(value document.Value) (rdf.Term, error) {
	switch v := value.(type) {
	case document.String:
		return rdf.Literal(string(v)), nil
	case document.Bool:
		if v {
			return rdf.TypedLiteral("true", rdf.XSDBoolean), nil
		}
		return rdf.TypedLiteral("false", rdf.XSDBoolean), nil
	case document.Number:
		if v.IsInteger() {
			n, _ := v.Int64()
			return rdf.TypedLiteral(fmt.Sprintf("%d", n), rdf.XSDInteger), nil
		}
		return rdf.TypedLiteral(string(v), rdf.XSDDouble), nil
	default:
		return rdf.Term{}, fmt.Errorf("convert: unsupported literal %T", value)
	}
}

// valueObject recognizes JSON-LD value objects such as
// {"@value": "Lampe", "@language": "de"}.
func valueObject(obj document.Object) (rdf.Term, bool) {
	raw, ok := obj["@value"]
	if !ok {
		return rdf.Term{}, false
	}
	if lang, ok := obj["@language"].(document.String); ok {
		if s, ok := raw.(document.String); ok {
			return rdf.LangLiteral(string(s), string(lang)), true
		}
	}
	if dt, ok := obj["@type"].(document.String); ok {
		var lex string
		switch v := raw.(type) {
		case document.String:
			lex = string(v)
		case document.Number:
			lex = string(v)
		case document.Bool:
			lex = fmt.Sprintf("%t", bool(v))
		default:
			return rdf.Term{}, false
		}
		return rdf.TypedLiteral(lex, expandDatatype(string(dt))), true
	}
	term, err := literal(raw)
	if err != nil {
		return rdf.Term{}, false
	}
	return term, true
}

func expandDatatype(dt string) string {
	if iri, ok := rdf.Expand(dt, rdf.WellKnownPrefixes); ok {
		return iri
	}
	return dt
}

// contextPrefixes collects prefix definitions from an "@context" value.
// String entries reference remote contexts and contribute nothing.
func contextPrefixes(ctx document.Value) map[string]string {
	prefixes := make(map[string]string)
	var walk func(v document.Value)
	walk = func(v document.Value) {
		switch val := v.(type) {
		case document.Array:
			for _, elem := range val {
				walk(elem)
			}
		case document.Object:
			for k, def := range val {
				ns, ok := def.(document.String)
				if !ok {
					continue
				}
				if k == "@vocab" || (len(k) > 0 && k[0] != '@') {
					prefixes[k] = string(ns)
				}
			}
		}
	}
	walk(ctx)
	return prefixes
}
