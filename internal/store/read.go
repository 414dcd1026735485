package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/thingdir/internal/rdf"
)

// Solution maps query variables to bound terms. Unbound variables are
// absent.
type Solution map[string]rdf.Term

// Execute runs a compiled graph query. The statement must return four
// columns per variable, in vars order: value, kind, datatype, lang. A NULL
// value leaves the variable unbound. With no vars, one empty Solution is
// returned per row.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Execute(ctx context.Context, query string, args []any, vars []string) ([]Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	out := []Solution{}
	for rows.Next() {
		cols, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan solution: %w", err)
		}
		if len(cols) < 4*len(vars) {
			return nil, fmt.Errorf("scan solution: got %d columns for %d variables", len(cols), len(vars))
		}
		sol := make(Solution, len(vars))
		for i, v := range vars {
			base := 4 * i
			if cols[base] == nil {
				continue
			}
			kind, err := asInt(cols[base+1])
			if err != nil {
				return nil, fmt.Errorf("scan solution: kind of ?%s: %w", v, err)
			}
			sol[v] = rdf.Term{
				Value:    asString(cols[base]),
				Kind:     rdf.Kind(kind),
				Datatype: asString(cols[base+2]),
				Lang:     asString(cols[base+3]),
			}
		}
		out = append(out, sol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solutions: %w", err)
	}
	return out, nil
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func asInt(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case []byte:
		return strconv.ParseInt(string(val), 10, 64)
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected column type %T", v)
	}
}

type tripleRow struct {
	Subject     string `db:"subject"`
	SubjectKind int    `db:"subject_kind"`
	Predicate   string `db:"predicate"`
	Object      string `db:"object"`
	ObjectKind  int    `db:"object_kind"`
	Datatype    string `db:"datatype"`
	Lang        string `db:"lang"`
}

// Triples returns the graph projection of one thing, in a stable order.
// Returns an empty slice (not nil) for unknown things.
func (s *Store) Triples(ctx context.Context, id string) ([]rdf.Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []tripleRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT subject, subject_kind, predicate, object, object_kind, datatype, lang
		FROM triples
		WHERE thing_id = ?
		ORDER BY subject COLLATE BINARY, predicate COLLATE BINARY, object COLLATE BINARY, datatype, lang
	`, id); err != nil {
		return nil, fmt.Errorf("read triples %q: %w", id, err)
	}

	out := make([]rdf.Triple, 0, len(rows))
	for _, r := range rows {
		out = append(out, rdf.Triple{
			Subject:   rdf.Term{Kind: rdf.Kind(r.SubjectKind), Value: r.Subject},
			Predicate: rdf.IRI(r.Predicate),
			Object:    rdf.Term{Kind: rdf.Kind(r.ObjectKind), Value: r.Object, Datatype: r.Datatype, Lang: r.Lang},
		})
	}
	return out, nil
}

// CountTriples returns the total number of stored triples.
func (s *Store) CountTriples(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM triples`); err != nil {
		return 0, fmt.Errorf("count triples: %w", err)
	}
	return n, nil
}
