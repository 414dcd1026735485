package store

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/thingdir/internal/document"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - things and triples tables
const currentSchemaVersion = 1

// Entry is a cached document.
type Entry struct {
	ID       string
	Document document.Object
	Hash     string
	Revision int64
}

// Store is the dual graph/cache store.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]Entry

	// beforeCommit runs after every statement of a transaction succeeded
	// and before the SQLite commit. A non-nil error aborts the commit.
	beforeCommit func() error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBeforeCommit installs a hook that can veto commits. Used for fault
// injection.
func WithBeforeCommit(fn func() error) Option {
	return func(s *Store) {
		s.beforeCommit = fn
	}
}

// Open creates or opens a SQLite database at path, applies pragmas and
// migrations, and loads every stored document into the cache.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has a single writer. One connection also keeps pragmas applied
	// to every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.Default(),
		cache:  make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.loadCache(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug("store opened", "path", path, "things", len(s.cache))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

type thingRow struct {
	ID       string `db:"id"`
	Document string `db:"document"`
	Hash     string `db:"hash"`
	Revision int64  `db:"revision"`
}

func (s *Store) loadCache(ctx context.Context) error {
	var rows []thingRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, document, hash, revision
		FROM things
		ORDER BY id COLLATE BINARY ASC
	`); err != nil {
		return fmt.Errorf("load documents: %w", err)
	}

	cache := make(map[string]Entry, len(rows))
	for _, r := range rows {
		doc, err := document.ParseObject([]byte(r.Document))
		if err != nil {
			return fmt.Errorf("load document %q: %w", r.ID, err)
		}
		cache[r.ID] = Entry{ID: r.ID, Document: doc, Hash: r.Hash, Revision: r.Revision}
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	return nil
}

// Get returns the cached entry for id. The document is a copy.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.cache[id]
	if !ok {
		return Entry{}, false
	}
	e.Document = e.Document.Clone()
	return e, true
}

// Exists reports whether id is present in the cache.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[id]
	return ok
}

// Count returns the number of stored things.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// All returns every cached entry ordered by identifier.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) All() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.cache))
	for _, e := range s.cache {
		e.Document = e.Document.Clone()
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
