// Package rdf defines the graph terms and statements stored by the directory.
package rdf

import (
	"fmt"
	"strings"
)

// Namespaces used by Thing Descriptions.
const (
	NSTD         = "https://www.w3.org/2019/wot/td#"
	NSRDF        = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS       = "http://www.w3.org/2000/01/rdf-schema#"
	NSXSD        = "http://www.w3.org/2001/XMLSchema#"
	NSDCT        = "http://purl.org/dc/terms/"
	NSHCTL       = "https://www.w3.org/2019/wot/hypermedia#"
	NSWoTSec     = "https://www.w3.org/2019/wot/security#"
	NSJSONSchema = "https://www.w3.org/2019/wot/json-schema#"
)

// Frequently used IRIs.
const (
	RDFType    = NSRDF + "type"
	XSDString  = NSXSD + "string"
	XSDInteger = NSXSD + "integer"
	XSDDouble  = NSXSD + "double"
	XSDDecimal = NSXSD + "decimal"
	XSDBoolean = NSXSD + "boolean"
)

// WellKnownPrefixes maps the prefixes every query and document may use
// without declaring them.
var WellKnownPrefixes = map[string]string{
	"td":         NSTD,
	"rdf":        NSRDF,
	"rdfs":       NSRDFS,
	"xsd":        NSXSD,
	"dct":        NSDCT,
	"hctl":       NSHCTL,
	"wotsec":     NSWoTSec,
	"jsonschema": NSJSONSchema,
}

// Kind discriminates graph terms. The numeric values are persisted.
type Kind int

const (
	KindIRI     Kind = 0
	KindLiteral Kind = 1
	KindBlank   Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindIRI:
		return "uri"
	case KindLiteral:
		return "literal"
	case KindBlank:
		return "bnode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Term is an IRI, a blank node or a literal. Plain string literals have an
// empty Datatype; language-tagged literals carry Lang.
type Term struct {
	Kind     Kind
	Value    string
	Datatype string
	Lang     string
}

// IRI builds an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Blank builds a blank node term. The label excludes the "_:" prefix.
func Blank(label string) Term { return Term{Kind: KindBlank, Value: label} }

// Literal builds a plain string literal.
func Literal(v string) Term { return Term{Kind: KindLiteral, Value: v} }

// TypedLiteral builds a literal with a datatype. xsd:string is normalized to
// a plain literal.
func TypedLiteral(v, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

// LangLiteral builds a language-tagged literal. Tags compare case-insensitively
// so they are stored lower-case.
func LangLiteral(v, lang string) Term {
	return Term{Kind: KindLiteral, Value: v, Lang: strings.ToLower(lang)}
}

// String renders the term in N-Triples syntax.
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	default:
		s := `"` + escapeLiteral(t.Value) + `"`
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	}
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

// Triple is a single graph statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// String renders the triple as an N-Triples line without the newline.
func (t Triple) String() string {
	return t.Subject.String() + " " + t.Predicate.String() + " " + t.Object.String() + " ."
}

// Expand resolves a compact IRI "prefix:local" against prefixes. The second
// return value is false when the prefix is unknown.
func Expand(compact string, prefixes map[string]string) (string, bool) {
	prefix, local, ok := strings.Cut(compact, ":")
	if !ok {
		return "", false
	}
	ns, known := prefixes[prefix]
	if !known {
		return "", false
	}
	return ns + local, true
}

// IsAbsoluteIRI reports whether s looks like an absolute IRI: a scheme
// followed by ":" and no whitespace.
func IsAbsoluteIRI(s string) bool {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || scheme == "" || rest == "" {
		return false
	}
	for i, r := range scheme {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !(r >= '0' && r <= '9') && r != '+' && r != '-' && r != '.' {
			return false
		}
	}
	return !strings.ContainsAny(s, " \t\n\r<>\"{}|^`\\")
}
