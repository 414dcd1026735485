package sparql

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/thingdir/internal/queryir"
)

// Format is a result media type.
type Format string

const (
	FormatJSON     Format = "application/sparql-results+json"
	FormatXML      Format = "application/sparql-results+xml"
	FormatCSV      Format = "text/csv"
	FormatTSV      Format = "text/tab-separated-values"
	FormatTurtle   Format = "text/turtle"
	FormatNTriples Format = "application/n-triples"
	FormatJSONLD   Format = "application/ld+json"
)

// ErrUnsupportedFormat is returned when no acceptable format can be produced
// for a query form.
var ErrUnsupportedFormat = errors.New("result format not supported for query form")

// formatTable lists, per query form, the producible formats. The first entry
// is the default.
var formatTable = map[queryir.Form][]Format{
	queryir.FormSelect:    {FormatJSON, FormatXML, FormatCSV, FormatTSV},
	queryir.FormAsk:       {FormatJSON, FormatXML},
	queryir.FormConstruct: {FormatTurtle, FormatNTriples, FormatJSONLD},
	queryir.FormDescribe:  {FormatTurtle, FormatNTriples, FormatJSONLD},
}

// mediaAliases maps generic media types onto result formats.
var mediaAliases = map[string]Format{
	"application/json":                FormatJSON,
	"application/xml":                 FormatXML,
	"text/xml":                        FormatXML,
	"application/sparql-results+json": FormatJSON,
	"application/sparql-results+xml":  FormatXML,
	"text/csv":                        FormatCSV,
	"text/tab-separated-values":       FormatTSV,
	"text/turtle":                     FormatTurtle,
	"application/x-turtle":            FormatTurtle,
	"application/n-triples":           FormatNTriples,
	"application/ld+json":             FormatJSONLD,
}

// Formats returns the formats producible for form, default first.
func Formats(form queryir.Form) []Format {
	return append([]Format(nil), formatTable[form]...)
}

// DefaultFormat returns the format used when the client expresses no
// preference. Empty for forms without results.
func DefaultFormat(form queryir.Form) Format {
	if fs := formatTable[form]; len(fs) > 0 {
		return fs[0]
	}
	return ""
}

// Supports reports whether form can be serialized as f.
func Supports(form queryir.Form, f Format) bool {
	for _, candidate := range formatTable[form] {
		if candidate == f {
			return true
		}
	}
	return false
}

type mediaRange struct {
	mediaType string
	q         float64
	order     int
}

func parseAccept(accept string) []mediaRange {
	var out []mediaRange
	for i, part := range strings.Split(accept, ",") {
		fields := strings.Split(part, ";")
		mt := strings.ToLower(strings.TrimSpace(fields[0]))
		if mt == "" {
			continue
		}
		q := 1.0
		for _, param := range fields[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
			if ok && strings.EqualFold(k, "q") {
				if parsed, err := strconv.ParseFloat(v, 64); err == nil {
					q = parsed
				}
			}
		}
		if q <= 0 {
			continue
		}
		out = append(out, mediaRange{mediaType: mt, q: q, order: i})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].q > out[j].q })
	return out
}

// Negotiate resolves an Accept header against the formats of form. An empty
// header or a wildcard selects the default format.
func Negotiate(form queryir.Form, accept string) (Format, error) {
	supported := formatTable[form]
	if len(supported) == 0 {
		return "", fmt.Errorf("%w: %s queries produce no results", ErrUnsupportedFormat, form)
	}
	if strings.TrimSpace(accept) == "" {
		return supported[0], nil
	}

	for _, mr := range parseAccept(accept) {
		if mr.mediaType == "*/*" {
			return supported[0], nil
		}
		if major, ok := strings.CutSuffix(mr.mediaType, "/*"); ok {
			for _, f := range supported {
				if strings.HasPrefix(string(f), major+"/") {
					return f, nil
				}
			}
			continue
		}
		if f, ok := mediaAliases[mr.mediaType]; ok && Supports(form, f) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %s cannot produce %q", ErrUnsupportedFormat, form, accept)
}
