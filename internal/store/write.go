package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/rdf"
)

// ErrTxDone is returned when a finished WriteTx is used again.
var ErrTxDone = errors.New("write transaction already finished")

// WriteTx is an exclusive write transaction across both representations.
// Callers must finish it with Commit or Rollback; Rollback after Commit is a
// no-op, so `defer tx.Rollback()` is safe.
type WriteTx struct {
	s      *Store
	tx     *sqlx.Tx
	staged []stagedOp
	done   bool
}

type stagedOp struct {
	id     string
	entry  Entry
	delete bool
}

// BeginWrite starts a write transaction. It blocks until no other write
// transaction or reader holds the store.
func (s *Store) BeginWrite(ctx context.Context) (*WriteTx, error) {
	s.mu.Lock()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("begin write: %w", err)
	}
	return &WriteTx{s: s, tx: tx}, nil
}

// lookup resolves id against staged operations first, then the cache.
func (w *WriteTx) lookup(id string) (Entry, bool) {
	for i := len(w.staged) - 1; i >= 0; i-- {
		if w.staged[i].id == id {
			if w.staged[i].delete {
				return Entry{}, false
			}
			return w.staged[i].entry, true
		}
	}
	e, ok := w.s.cache[id]
	return e, ok
}

// Exists reports whether id exists as seen from inside the transaction.
func (w *WriteTx) Exists(id string) bool {
	_, ok := w.lookup(id)
	return ok
}

// Get returns the entry for id as seen from inside the transaction.
func (w *WriteTx) Get(id string) (Entry, bool) {
	e, ok := w.lookup(id)
	if ok {
		e.Document = e.Document.Clone()
	}
	return e, ok
}

// Upsert stores doc under id, replacing its triples. It reports whether the
// thing existed before the call.
func (w *WriteTx) Upsert(ctx context.Context, id string, doc document.Object, triples []rdf.Triple) (bool, error) {
	if w.done {
		return false, ErrTxDone
	}

	body, err := document.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("upsert %q: %w", id, err)
	}
	hash, err := document.Hash(doc)
	if err != nil {
		return false, fmt.Errorf("upsert %q: %w", id, err)
	}

	prev, existed := w.lookup(id)
	revision := int64(1)
	if existed {
		revision = prev.Revision + 1
	}

	if _, err := w.tx.ExecContext(ctx, `
		INSERT INTO things (id, document, hash, revision)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			hash = excluded.hash,
			revision = excluded.revision
	`, id, string(body), hash, revision); err != nil {
		return false, fmt.Errorf("upsert %q: %w", id, err)
	}

	if _, err := w.tx.ExecContext(ctx, `DELETE FROM triples WHERE thing_id = ?`, id); err != nil {
		return false, fmt.Errorf("upsert %q: clear triples: %w", id, err)
	}
	if err := insertTriples(ctx, w.tx, id, triples); err != nil {
		return false, fmt.Errorf("upsert %q: %w", id, err)
	}

	w.staged = append(w.staged, stagedOp{
		id:    id,
		entry: Entry{ID: id, Document: doc.Clone(), Hash: hash, Revision: revision},
	})
	return existed, nil
}

func insertTriples(ctx context.Context, tx *sqlx.Tx, id string, triples []rdf.Triple) error {
	if len(triples) == 0 {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO triples (thing_id, subject, subject_kind, predicate, object, object_kind, datatype, lang)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare triple insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range triples {
		if _, err := stmt.ExecContext(ctx,
			id,
			t.Subject.Value, int(t.Subject.Kind),
			t.Predicate.Value,
			t.Object.Value, int(t.Object.Kind),
			t.Object.Datatype, t.Object.Lang,
		); err != nil {
			return fmt.Errorf("insert triple %d: %w", i, err)
		}
	}
	return nil
}

// Delete removes id and its triples. It reports whether the thing existed.
func (w *WriteTx) Delete(ctx context.Context, id string) (bool, error) {
	if w.done {
		return false, ErrTxDone
	}
	if _, ok := w.lookup(id); !ok {
		return false, nil
	}

	if _, err := w.tx.ExecContext(ctx, `DELETE FROM triples WHERE thing_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete %q: %w", id, err)
	}
	res, err := w.tx.ExecContext(ctx, `DELETE FROM things WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return false, fmt.Errorf("delete %q: cached but not stored", id)
	}

	w.staged = append(w.staged, stagedOp{id: id, delete: true})
	return true, nil
}

// Commit makes the transaction durable and then applies the staged cache
// changes. On error nothing becomes visible.
func (w *WriteTx) Commit() error {
	if w.done {
		return ErrTxDone
	}
	w.done = true
	defer w.s.mu.Unlock()

	if hook := w.s.beforeCommit; hook != nil {
		if err := hook(); err != nil {
			_ = w.tx.Rollback()
			return fmt.Errorf("commit: %w", err)
		}
	}
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, op := range w.staged {
		if op.delete {
			delete(w.s.cache, op.id)
			continue
		}
		w.s.cache[op.id] = op.entry
	}
	return nil
}

// Rollback discards the transaction. Safe to call after Commit.
func (w *WriteTx) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.s.mu.Unlock()

	if err := w.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
