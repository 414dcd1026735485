package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thingdir/internal/rdf"
)

func TestExecute_DecodesSolutions(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	mustUpsert(t, s, "urn:b", "Lamp")
	mustUpsert(t, s, "urn:a", "Lamp")
	mustUpsert(t, s, "urn:c", "Fan")

	sols, err := s.Execute(ctx, `
		SELECT t0.subject AS "s", t0.subject_kind AS "s__kind", '' AS "s__dt", '' AS "s__lang"
		FROM triples t0
		WHERE t0.predicate = ? AND t0.object = ?
		ORDER BY "s" COLLATE BINARY
	`, []any{rdf.NSTD + "title", "Lamp"}, []string{"s"})
	require.NoError(t, err)

	require.Len(t, sols, 2)
	assert.Equal(t, rdf.IRI("urn:a"), sols[0]["s"])
	assert.Equal(t, rdf.IRI("urn:b"), sols[1]["s"])
}

func TestExecute_NullLeavesVariableUnbound(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	mustUpsert(t, s, "urn:a", "Lamp")

	sols, err := s.Execute(ctx, `
		SELECT t0.subject, t0.subject_kind, '', '', NULL, NULL, NULL, NULL
		FROM triples t0
	`, nil, []string{"s", "x"})
	require.NoError(t, err)
	require.Len(t, sols, 1)
	assert.Contains(t, sols[0], "s")
	assert.NotContains(t, sols[0], "x")
}

func TestExecute_NoVarsCountsRows(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	sols, err := s.Execute(ctx, `SELECT 1 FROM triples LIMIT 1`, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, sols)
	assert.Empty(t, sols)

	mustUpsert(t, s, "urn:a", "Lamp")
	sols, err = s.Execute(ctx, `SELECT 1 FROM triples LIMIT 1`, nil, nil)
	require.NoError(t, err)
	assert.Len(t, sols, 1)
}

func TestExecute_BadSQL(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Execute(context.Background(), `SELECT FROM`, nil, nil)
	assert.Error(t, err)
}

func TestExecute_MalformedKind(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Execute(context.Background(), `SELECT 'urn:a', 'iri', '', ''`, nil, []string{"s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind of ?s")

	_, err = s.Execute(context.Background(), `SELECT 'urn:a', NULL, '', ''`, nil, []string{"s"})
	assert.ErrorContains(t, err, "unexpected column type")
}

func TestTriples_LiteralDetails(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	tx, err := s.BeginWrite(ctx)
	require.NoError(t, err)
	_, err = tx.Upsert(ctx, "urn:a", titledDoc("urn:a", "x"), []rdf.Triple{
		{Subject: rdf.IRI("urn:a"), Predicate: rdf.IRI(rdf.NSTD + "count"), Object: rdf.TypedLiteral("3", rdf.XSDInteger)},
		{Subject: rdf.IRI("urn:a"), Predicate: rdf.IRI(rdf.NSTD + "description"), Object: rdf.LangLiteral("Lampe", "de")},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	triples, err := s.Triples(ctx, "urn:a")
	require.NoError(t, err)
	require.Len(t, triples, 2)
	assert.Equal(t, rdf.TypedLiteral("3", rdf.XSDInteger), triples[0].Object)
	assert.Equal(t, rdf.LangLiteral("Lampe", "de"), triples[1].Object)
}
