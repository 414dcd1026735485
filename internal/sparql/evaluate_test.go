package sparql_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/rdf"
	"github.com/roach88/thingdir/internal/sparql"
	"github.com/roach88/thingdir/internal/store"
	"github.com/roach88/thingdir/internal/tdconv"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "sparql.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	docs := map[string]string{
		"urn:dev:humidity": `{"title": "Garden Humidity Sensor", "@type": "Thing", "properties": {"humidity": {"type": "number"}}}`,
		"urn:dev:lamp":     `{"title": "Lamp", "@type": "Thing"}`,
		"urn:dev:fridge":   `{"title": "Fridge"}`,
	}
	tx, err := s.BeginWrite(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	for id, raw := range docs {
		doc, err := document.ParseObject([]byte(raw))
		require.NoError(t, err)
		triples, err := tdconv.Convert(id, doc)
		require.NoError(t, err)
		_, err = tx.Upsert(ctx, id, doc, triples)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	return s
}

func TestEvaluateSelect(t *testing.T) {
	s := seededStore(t)
	q, err := sparql.Compile(`SELECT ?s ?title WHERE { ?s a td:Thing ; td:title ?title }`)
	require.NoError(t, err)
	assert.Equal(t, queryir.FormSelect, q.Form())

	res, err := q.Evaluate(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "title"}, res.Vars)
	require.Len(t, res.Solutions, 2)
	assert.Equal(t, rdf.IRI("urn:dev:humidity"), res.Solutions[0]["s"])
	assert.Equal(t, rdf.Literal("Lamp"), res.Solutions[1]["title"])
	assert.True(t, res.Contains(sparql.SubjectVar, "urn:dev:lamp"))
	assert.False(t, res.Contains(sparql.SubjectVar, "urn:dev:fridge"))
}

func TestEvaluateWithBoundSubject(t *testing.T) {
	s := seededStore(t)
	q, err := sparql.Compile(`SELECT ?title WHERE { ?s td:title ?title FILTER CONTAINS(?title, "Humidity") }`)
	require.NoError(t, err)
	q = q.WithProjected(sparql.SubjectVar)

	bound := map[queryir.Var]rdf.Term{sparql.SubjectVar: rdf.IRI("urn:dev:humidity")}
	res, err := q.Evaluate(context.Background(), s, bound)
	require.NoError(t, err)
	assert.True(t, res.Contains(sparql.SubjectVar, "urn:dev:humidity"))

	bound[sparql.SubjectVar] = rdf.IRI("urn:dev:lamp")
	res, err = q.Evaluate(context.Background(), s, bound)
	require.NoError(t, err)
	assert.Empty(t, res.Solutions)
}

func TestEvaluateAsk(t *testing.T) {
	s := seededStore(t)
	q, err := sparql.Compile(`ASK { ?s td:title "Fridge" }`)
	require.NoError(t, err)

	res, err := q.Evaluate(context.Background(), s, nil)
	require.NoError(t, err)
	assert.True(t, res.Boolean)
	assert.Nil(t, res.Solutions)
}

func TestWithProjected(t *testing.T) {
	q, err := sparql.Compile(`SELECT ?title WHERE { ?s td:title ?title }`)
	require.NoError(t, err)

	projected := q.WithProjected(sparql.SubjectVar)
	assert.Equal(t, []queryir.Var{"title", "s"}, projected.Analysis.Columns)
	assert.Equal(t, []queryir.Var{"title"}, q.Analysis.Columns, "original query must not change")

	ask, err := sparql.Compile(`ASK { ?s td:title ?title }`)
	require.NoError(t, err)
	assert.Same(t, ask, ask.WithProjected(sparql.SubjectVar))
}

func TestHasSlice(t *testing.T) {
	q, err := sparql.Compile(`SELECT ?s { ?s td:title ?t }`)
	require.NoError(t, err)
	assert.False(t, q.HasSlice())

	q, err = sparql.Compile(`SELECT ?s { ?s td:title ?t } LIMIT 1`)
	require.NoError(t, err)
	assert.True(t, q.HasSlice())
}

func TestCompileRejectsFilterOnUnboundVariable(t *testing.T) {
	_, err := sparql.Compile(`SELECT ?s { ?s td:title ?t FILTER(?x = 1) }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "?x")
}
