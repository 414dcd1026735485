package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/rdf"
)

var titlePred = queryir.Const{Term: rdf.IRI(rdf.NSTD + "title")}

func selectTitle(title string) queryir.Select {
	return queryir.Select{
		Vars: []queryir.Var{"s"},
		Where: queryir.Pattern{Triples: []queryir.TriplePattern{
			{Subject: queryir.Var("s"), Predicate: titlePred, Object: queryir.Const{Term: rdf.Literal(title)}},
		}},
		Limit: queryir.NoLimit,
	}
}

func TestCompileSelectSinglePattern(t *testing.T) {
	c := NewSQLCompiler()
	got, err := c.Compile(selectTitle("Lamp"))
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT t0.subject AS "s", t0.subject_kind AS "s__kind", '' AS "s__dt", '' AS "s__lang"`+
			` FROM triples t0`+
			` WHERE t0.predicate = ? AND t0.object = ? AND t0.object_kind = ? AND t0.datatype = ? AND t0.lang = ?`+
			` ORDER BY t0.subject COLLATE BINARY ASC, t0.subject_kind ASC`,
		got.SQL)
	assert.Equal(t, []any{rdf.NSTD + "title", "Lamp", 1, "", ""}, got.Args)
	assert.Equal(t, []string{"s"}, got.Vars)
	assert.False(t, got.Ask)
}

func TestCompileJoinOnSharedVariable(t *testing.T) {
	q := queryir.Select{
		Vars: []queryir.Var{"s", "href"},
		Where: queryir.Pattern{Triples: []queryir.TriplePattern{
			{Subject: queryir.Var("s"), Predicate: queryir.Const{Term: rdf.IRI(rdf.NSTD + "links")}, Object: queryir.Var("l")},
			{Subject: queryir.Var("l"), Predicate: queryir.Const{Term: rdf.IRI(rdf.NSTD + "href")}, Object: queryir.Var("href")},
		}},
		Limit: queryir.NoLimit,
	}

	got, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	assert.Contains(t, got.SQL, "FROM triples t0, triples t1")
	assert.Contains(t, got.SQL, "t0.object = t1.subject AND t0.object_kind = t1.subject_kind")
	assert.Equal(t, []any{rdf.NSTD + "links", rdf.NSTD + "href"}, got.Args)
}

func TestCompileBoundValues(t *testing.T) {
	c := NewSQLCompiler()
	c.BoundValues["s"] = rdf.IRI("T1")

	got, err := c.Compile(selectTitle("Lamp"))
	require.NoError(t, err)

	assert.Contains(t, got.SQL, "t0.subject = ? AND t0.subject_kind = ?")
	assert.Equal(t, []any{"T1", 0, rdf.NSTD + "title", "Lamp", 1, "", ""}, got.Args)
}

func TestCompileUnboundProjection(t *testing.T) {
	q := selectTitle("Lamp")
	q.Vars = []queryir.Var{"s", "missing"}

	got, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, `NULL AS "missing", NULL AS "missing__kind"`)
	assert.Equal(t, []string{"s", "missing"}, got.Vars)
}

func TestCompileDistinctLimitOffset(t *testing.T) {
	q := selectTitle("Lamp")
	q.Distinct = true
	q.Limit = 10
	q.Offset = 5

	got, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, "SELECT DISTINCT ")
	assert.Contains(t, got.SQL, " LIMIT ? OFFSET ?")
	assert.Equal(t, []any{10, 5}, got.Args[len(got.Args)-2:])

	q.Limit = queryir.NoLimit
	got, err = NewSQLCompiler().Compile(q)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, " LIMIT -1 OFFSET ?")
}

func TestCompileAsk(t *testing.T) {
	got, err := NewSQLCompiler().Compile(queryir.Ask{Where: selectTitle("Lamp").Where})
	require.NoError(t, err)
	assert.True(t, got.Ask)
	assert.Empty(t, got.Vars)
	assert.Contains(t, got.SQL, "SELECT 1 FROM triples t0 WHERE")
	assert.Contains(t, got.SQL, " LIMIT 1")
}

func TestCompileAlwaysOrdersSelects(t *testing.T) {
	q := selectTitle("Lamp")
	q.Vars = []queryir.Var{"nothing"}
	got, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)
	assert.Contains(t, got.SQL, " ORDER BY 1")
}

func TestCompileRejects(t *testing.T) {
	tests := []struct {
		name  string
		query queryir.Query
	}{
		{"nil", nil},
		{"construct", queryir.Construct{}},
		{"describe", queryir.Describe{}},
		{"update", queryir.Update{Keyword: "INSERT"}},
		{"empty pattern", queryir.Select{Limit: queryir.NoLimit}},
		{"literal predicate", queryir.Select{
			Where: queryir.Pattern{Triples: []queryir.TriplePattern{
				{Subject: queryir.Var("s"), Predicate: queryir.Const{Term: rdf.Literal("x")}, Object: queryir.Var("o")},
			}},
			Limit: queryir.NoLimit,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSQLCompiler().Compile(tt.query)
			assert.Error(t, err)
		})
	}

	_, err := NewSQLCompiler().Compile(queryir.Construct{})
	assert.ErrorIs(t, err, ErrUnsupportedForm)
}

func TestCompileFilters(t *testing.T) {
	base := queryir.Pattern{Triples: []queryir.TriplePattern{
		{Subject: queryir.Var("s"), Predicate: queryir.Const{Term: rdf.IRI(rdf.NSTD + "count")}, Object: queryir.Var("n")},
	}}

	t.Run("numeric comparison", func(t *testing.T) {
		where := base
		where.Filters = []queryir.Expr{queryir.Compare{
			Op: queryir.OpGt, Left: queryir.Var("n"), Right: queryir.Const{Term: rdf.TypedLiteral("2", rdf.XSDInteger)},
		}}
		got, err := NewSQLCompiler().Compile(queryir.Select{Vars: []queryir.Var{"s"}, Where: where, Limit: queryir.NoLimit})
		require.NoError(t, err)
		assert.Contains(t, got.SQL, "CAST(t0.object AS REAL) > ?")
		assert.Equal(t, float64(2), got.Args[len(got.Args)-1])
	})

	t.Run("constant on the left flips operator", func(t *testing.T) {
		where := base
		where.Filters = []queryir.Expr{queryir.Compare{
			Op: queryir.OpLt, Left: queryir.Const{Term: rdf.TypedLiteral("2", rdf.XSDInteger)}, Right: queryir.Var("n"),
		}}
		got, err := NewSQLCompiler().Compile(queryir.Select{Vars: []queryir.Var{"s"}, Where: where, Limit: queryir.NoLimit})
		require.NoError(t, err)
		assert.Contains(t, got.SQL, "CAST(t0.object AS REAL) > ?")
	})

	t.Run("boolean structure", func(t *testing.T) {
		where := base
		where.Filters = []queryir.Expr{queryir.Or{Exprs: []queryir.Expr{
			queryir.Not{Expr: queryir.StringFunc{Name: "CONTAINS", Arg: "n", Text: "x"}},
			queryir.Bound{Var: "n"},
		}}}
		got, err := NewSQLCompiler().Compile(queryir.Select{Vars: []queryir.Var{"s"}, Where: where, Limit: queryir.NoLimit})
		require.NoError(t, err)
		assert.Contains(t, got.SQL, "(NOT (instr(t0.object, ?) > 0)) OR (1 = 1)")
	})

	t.Run("unbound variable", func(t *testing.T) {
		where := base
		where.Filters = []queryir.Expr{queryir.StringFunc{Name: "CONTAINS", Arg: "zz", Text: "x"}}
		_, err := NewSQLCompiler().Compile(queryir.Select{Vars: []queryir.Var{"s"}, Where: where, Limit: queryir.NoLimit})
		assert.Error(t, err)
	})
}
