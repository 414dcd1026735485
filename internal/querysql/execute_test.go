package querysql_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/querysql"
	"github.com/roach88/thingdir/internal/rdf"
	"github.com/roach88/thingdir/internal/store"
	"github.com/roach88/thingdir/internal/tdconv"
)

func openStore(t *testing.T, docs map[string]string) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

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

func run(t *testing.T, s *store.Store, c *querysql.SQLCompiler, q queryir.Query) []store.Solution {
	t.Helper()
	compiled, err := c.Compile(q)
	require.NoError(t, err)
	sols, err := s.Execute(context.Background(), compiled.SQL, compiled.Args, compiled.Vars)
	require.NoError(t, err)
	return sols
}

func subjects(sols []store.Solution) []string {
	out := []string{}
	for _, sol := range sols {
		out = append(out, sol["s"].Value)
	}
	return out
}

func TestExecuteAgainstStore(t *testing.T) {
	s := openStore(t, map[string]string{
		"urn:a": `{"title": "Garden Humidity Sensor", "count": 3, "links": [{"href": "http://x"}]}`,
		"urn:b": `{"title": "Garden Humidity Sensor", "count": 1}`,
		"urn:c": `{"title": "Lamp", "count": 7}`,
	})

	titleIs := func(title string) queryir.Pattern {
		return queryir.Pattern{Triples: []queryir.TriplePattern{{
			Subject:   queryir.Var("s"),
			Predicate: queryir.Const{Term: rdf.IRI(rdf.NSTD + "title")},
			Object:    queryir.Const{Term: rdf.Literal(title)},
		}}}
	}

	t.Run("constant object", func(t *testing.T) {
		sols := run(t, s, querysql.NewSQLCompiler(), queryir.Select{
			Vars: []queryir.Var{"s"}, Where: titleIs("Garden Humidity Sensor"), Limit: queryir.NoLimit,
		})
		assert.Equal(t, []string{"urn:a", "urn:b"}, subjects(sols))
		assert.Equal(t, rdf.KindIRI, sols[0]["s"].Kind)
	})

	t.Run("bound subject", func(t *testing.T) {
		c := querysql.NewSQLCompiler()
		c.BoundValues["s"] = rdf.IRI("urn:b")
		sols := run(t, s, c, queryir.Select{
			Vars: []queryir.Var{"s"}, Where: titleIs("Garden Humidity Sensor"), Limit: queryir.NoLimit,
		})
		assert.Equal(t, []string{"urn:b"}, subjects(sols))
	})

	t.Run("numeric filter", func(t *testing.T) {
		where := queryir.Pattern{
			Triples: []queryir.TriplePattern{{
				Subject: queryir.Var("s"), Predicate: queryir.Const{Term: rdf.IRI(rdf.NSTD + "count")}, Object: queryir.Var("n"),
			}},
			Filters: []queryir.Expr{queryir.Compare{
				Op: queryir.OpGe, Left: queryir.Var("n"), Right: queryir.Const{Term: rdf.TypedLiteral("3", rdf.XSDInteger)},
			}},
		}
		sols := run(t, s, querysql.NewSQLCompiler(), queryir.Select{Vars: []queryir.Var{"s", "n"}, Where: where, Limit: queryir.NoLimit})
		assert.Equal(t, []string{"urn:a", "urn:c"}, subjects(sols))
		assert.Equal(t, rdf.TypedLiteral("3", rdf.XSDInteger), sols[0]["n"])
	})

	t.Run("blank node join", func(t *testing.T) {
		where := queryir.Pattern{Triples: []queryir.TriplePattern{
			{Subject: queryir.Var("s"), Predicate: queryir.Const{Term: rdf.IRI(rdf.NSTD + "links")}, Object: queryir.Var("l")},
			{Subject: queryir.Var("l"), Predicate: queryir.Const{Term: rdf.IRI(rdf.NSTD + "href")}, Object: queryir.Var("href")},
		}}
		sols := run(t, s, querysql.NewSQLCompiler(), queryir.Select{Vars: []queryir.Var{"s", "href"}, Where: where, Limit: queryir.NoLimit})
		require.Len(t, sols, 1)
		assert.Equal(t, "urn:a", sols[0]["s"].Value)
		assert.Equal(t, "http://x", sols[0]["href"].Value)
	})

	t.Run("limit offset", func(t *testing.T) {
		where := queryir.Pattern{Triples: []queryir.TriplePattern{{
			Subject: queryir.Var("s"), Predicate: queryir.Const{Term: rdf.IRI(rdf.NSTD + "title")}, Object: queryir.Var("t"),
		}}}
		sols := run(t, s, querysql.NewSQLCompiler(), queryir.Select{Vars: []queryir.Var{"s"}, Where: where, Limit: 1, Offset: 1})
		assert.Equal(t, []string{"urn:b"}, subjects(sols))
	})

	t.Run("ask", func(t *testing.T) {
		sols := run(t, s, querysql.NewSQLCompiler(), queryir.Ask{Where: titleIs("Lamp")})
		assert.Len(t, sols, 1)
		sols = run(t, s, querysql.NewSQLCompiler(), queryir.Ask{Where: titleIs("Fridge")})
		assert.Empty(t, sols)
	})
}
