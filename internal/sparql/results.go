package sparql

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/rdf"
	"github.com/roach88/thingdir/internal/store"
)

// WriteResults serializes r in format f.
func WriteResults(w io.Writer, f Format, r Results) error {
	if !Supports(r.Form, f) {
		return fmt.Errorf("%w: %s cannot produce %s", ErrUnsupportedFormat, r.Form, f)
	}
	switch f {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatXML:
		return writeXML(w, r)
	case FormatCSV:
		return writeCSV(w, r)
	case FormatTSV:
		return writeTSV(w, r)
	default:
		return fmt.Errorf("%w: no writer for %s", ErrUnsupportedFormat, f)
	}
}

type jsonTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

type jsonResults struct {
	Head    jsonHead     `json:"head"`
	Results *jsonBinding `json:"results,omitempty"`
	Boolean *bool        `json:"boolean,omitempty"`
}

type jsonHead struct {
	Vars []string `json:"vars,omitempty"`
}

type jsonBinding struct {
	Bindings []map[string]jsonTerm `json:"bindings"`
}

func toJSONTerm(t rdf.Term) jsonTerm {
	return jsonTerm{Type: t.Kind.String(), Value: t.Value, Lang: t.Lang, Datatype: t.Datatype}
}

func writeJSON(w io.Writer, r Results) error {
	out := jsonResults{}
	if r.Form == queryir.FormAsk {
		b := r.Boolean
		out.Boolean = &b
	} else {
		out.Head.Vars = r.Vars
		bindings := make([]map[string]jsonTerm, 0, len(r.Solutions))
		for _, sol := range r.Solutions {
			row := make(map[string]jsonTerm, len(sol))
			for v, t := range sol {
				row[v] = toJSONTerm(t)
			}
			bindings = append(bindings, row)
		}
		out.Results = &jsonBinding{Bindings: bindings}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

type xmlSparql struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/sparql-results# sparql"`
	Head    xmlHead     `xml:"head"`
	Results *xmlResults `xml:"results,omitempty"`
	Boolean *bool       `xml:"boolean,omitempty"`
}

type xmlHead struct {
	Variables []xmlVariable `xml:"variable"`
}

type xmlVariable struct {
	Name string `xml:"name,attr"`
}

type xmlResults struct {
	Results []xmlResult `xml:"result"`
}

type xmlResult struct {
	Bindings []xmlBinding `xml:"binding"`
}

type xmlBinding struct {
	Name    string      `xml:"name,attr"`
	URI     *string     `xml:"uri,omitempty"`
	BNode   *string     `xml:"bnode,omitempty"`
	Literal *xmlLiteral `xml:"literal,omitempty"`
}

type xmlLiteral struct {
	Lang     string `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Datatype string `xml:"datatype,attr,omitempty"`
	Value    string `xml:",chardata"`
}

func writeXML(w io.Writer, r Results) error {
	doc := xmlSparql{}
	if r.Form == queryir.FormAsk {
		b := r.Boolean
		doc.Boolean = &b
	} else {
		for _, v := range r.Vars {
			doc.Head.Variables = append(doc.Head.Variables, xmlVariable{Name: v})
		}
		doc.Results = &xmlResults{}
		for _, sol := range r.Solutions {
			var res xmlResult
			for _, v := range r.Vars {
				t, ok := sol[v]
				if !ok {
					continue
				}
				b := xmlBinding{Name: v}
				value := t.Value
				switch t.Kind {
				case rdf.KindIRI:
					b.URI = &value
				case rdf.KindBlank:
					b.BNode = &value
				default:
					b.Literal = &xmlLiteral{Lang: t.Lang, Datatype: t.Datatype, Value: t.Value}
				}
				res.Bindings = append(res.Bindings, b)
			}
			doc.Results.Results = append(doc.Results.Results, res)
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func writeCSV(w io.Writer, r Results) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(r.Vars); err != nil {
		return err
	}
	for _, sol := range r.Solutions {
		if err := cw.Write(row(r.Vars, sol, csvValue)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(t rdf.Term) string {
	if t.Kind == rdf.KindBlank {
		return "_:" + t.Value
	}
	return t.Value
}

func writeTSV(w io.Writer, r Results) error {
	header := make([]string, len(r.Vars))
	for i, v := range r.Vars {
		header[i] = "?" + v
	}
	var sb strings.Builder
	sb.WriteString(strings.Join(header, "\t"))
	sb.WriteByte('\n')
	for _, sol := range r.Solutions {
		sb.WriteString(strings.Join(row(r.Vars, sol, tsvValue), "\t"))
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// tsvValue encodes terms in N-Triples syntax; plain integer, double and
// boolean literals may be abbreviated.
func tsvValue(t rdf.Term) string {
	if t.Kind == rdf.KindLiteral {
		switch t.Datatype {
		case rdf.XSDInteger, rdf.XSDDouble, rdf.XSDBoolean:
			return t.Value
		}
	}
	return t.String()
}

func row(vars []string, sol store.Solution, encode func(rdf.Term) string) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		if t, ok := sol[v]; ok {
			out[i] = encode(t)
		}
	}
	return out
}
