package sparql

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/rdf"
	"github.com/roach88/thingdir/internal/store"
)

func sampleResults() Results {
	return Results{
		Form: queryir.FormSelect,
		Vars: []string{"s", "title", "count"},
		Solutions: []store.Solution{
			{
				"s":     rdf.IRI("urn:dev:ops:32473-HumiditySensor-001"),
				"title": rdf.LangLiteral("Garden Humidity Sensor", "en"),
				"count": rdf.TypedLiteral("3", rdf.XSDInteger),
			},
			{
				"s":     rdf.IRI("urn:dev:lamp"),
				"title": rdf.Literal("Lamp, \"desk\""),
			},
		},
	}
}

func render(t *testing.T, f Format, r Results) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, f, r))
	return buf.Bytes()
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWriteResultsJSON(t *testing.T) {
	got := render(t, FormatJSON, sampleResults())
	assert.JSONEq(t, `{
  "head": {"vars": ["s", "title", "count"]},
  "results": {"bindings": [
    {
      "s": {"type": "uri", "value": "urn:dev:ops:32473-HumiditySensor-001"},
      "title": {"type": "literal", "value": "Garden Humidity Sensor", "xml:lang": "en"},
      "count": {"type": "literal", "value": "3", "datatype": "http://www.w3.org/2001/XMLSchema#integer"}
    },
    {
      "s": {"type": "uri", "value": "urn:dev:lamp"},
      "title": {"type": "literal", "value": "Lamp, \"desk\""}
    }
  ]}
}`, string(got))
}

func TestWriteResultsJSONEmpty(t *testing.T) {
	got := render(t, FormatJSON, Results{Form: queryir.FormSelect, Vars: []string{"s"}, Solutions: []store.Solution{}})
	assert.JSONEq(t, `{"head": {"vars": ["s"]}, "results": {"bindings": []}}`, string(got))
}

func TestWriteResultsAsk(t *testing.T) {
	got := render(t, FormatJSON, Results{Form: queryir.FormAsk, Boolean: true})
	assert.JSONEq(t, `{"head": {}, "boolean": true}`, string(got))

	got = render(t, FormatXML, Results{Form: queryir.FormAsk, Boolean: false})
	assert.Contains(t, string(got), "<boolean>false</boolean>")
}

func TestWriteResultsXML(t *testing.T) {
	got := string(render(t, FormatXML, sampleResults()))
	assert.Contains(t, got, `<sparql xmlns="http://www.w3.org/2005/sparql-results#">`)
	assert.Contains(t, got, `<variable name="title"></variable>`)
	assert.Contains(t, got, `<binding name="s"><uri>urn:dev:lamp</uri></binding>`)
	assert.Contains(t, got, `datatype="http://www.w3.org/2001/XMLSchema#integer">3</literal>`)
	assert.Contains(t, got, `lang="en"`)
}

func TestWriteResultsCSV(t *testing.T) {
	newGoldie(t).Assert(t, "select_csv", render(t, FormatCSV, sampleResults()))
}

func TestWriteResultsTSV(t *testing.T) {
	newGoldie(t).Assert(t, "select_tsv", render(t, FormatTSV, sampleResults()))
}

func TestWriteResultsRejectsFormForFormat(t *testing.T) {
	var buf bytes.Buffer
	err := WriteResults(&buf, FormatCSV, Results{Form: queryir.FormAsk})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	err = WriteResults(&buf, FormatTurtle, Results{Form: queryir.FormConstruct})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Zero(t, buf.Len())
}
