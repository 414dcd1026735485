package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/rdf"
)

// createTestStore opens a fresh store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func titledDoc(id, title string) document.Object {
	return document.Object{"id": document.String(id), "title": document.String(title)}
}

func titleTriples(id, title string) []rdf.Triple {
	return []rdf.Triple{{
		Subject:   rdf.IRI(id),
		Predicate: rdf.IRI(rdf.NSTD + "title"),
		Object:    rdf.Literal(title),
	}}
}

// mustUpsert writes one document in its own transaction.
func mustUpsert(t *testing.T, s *Store, id, title string) bool {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginWrite(ctx)
	if err != nil {
		t.Fatalf("BeginWrite() failed: %v", err)
	}
	defer tx.Rollback()

	existed, err := tx.Upsert(ctx, id, titledDoc(id, title), titleTriples(id, title))
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	return existed
}
