package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/roach88/thingdir/internal/document"
	"github.com/roach88/thingdir/internal/queryir"
	"github.com/roach88/thingdir/internal/querysql"
	"github.com/roach88/thingdir/internal/sparql"
	"github.com/roach88/thingdir/internal/store"
)

// Get returns a copy of the stored document.
func (s *Service) Get(ctx context.Context, id string) (document.Object, error) {
	e, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Document, nil
}

// Lookup returns the stored entry, including its content hash and
// revision.
func (s *Service) Lookup(_ context.Context, id string) (store.Entry, error) {
	if err := ValidateIdentifier(id); err != nil {
		return store.Entry{}, err
	}
	e, ok := s.store.Get(id)
	if !ok {
		return store.Entry{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return e, nil
}

// Exists reports whether id is stored.
func (s *Service) Exists(_ context.Context, id string) bool {
	return s.store.Exists(id)
}

// List returns up to limit documents ordered by identifier, starting at
// offset, and the total number of things. A limit <= 0 means no limit.
func (s *Service) List(_ context.Context, offset, limit int) ([]document.Object, int) {
	entries := s.store.All()
	total := len(entries)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]document.Object, 0, end-offset)
	for _, e := range entries[offset:end] {
		out = append(out, e.Document)
	}
	return out, total
}

// SearchResult is a serialized one-shot query answer.
type SearchResult struct {
	Format sparql.Format
	Body   []byte
}

// Search evaluates a read-only SELECT or ASK query. An Accept header the
// query form cannot satisfy falls back to the form's default format.
func (s *Service) Search(ctx context.Context, text, accept string) (SearchResult, error) {
	q, err := compileQuery(text)
	if err != nil {
		return SearchResult{}, err
	}

	format, err := q.Negotiate(accept)
	if err != nil {
		format = sparql.DefaultFormat(q.Form())
	}

	res, err := q.Evaluate(ctx, s.store, nil)
	if err != nil {
		if errors.Is(err, querysql.ErrUnsupportedForm) {
			return SearchResult{}, fmt.Errorf("%w: %w", ErrUnsupportedQuery, err)
		}
		return SearchResult{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	var buf bytes.Buffer
	if err := sparql.WriteResults(&buf, format, res); err != nil {
		return SearchResult{}, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	return SearchResult{Format: format, Body: buf.Bytes()}, nil
}

// compileQuery parses text and rejects update requests.
func compileQuery(text string) (*sparql.Query, error) {
	q, err := sparql.Compile(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedQuery, err)
	}
	if !q.Analysis.ReadOnly {
		return nil, fmt.Errorf("%w: update requests are not accepted", ErrUnsupportedQuery)
	}
	if q.Form() == queryir.FormConstruct || q.Form() == queryir.FormDescribe {
		return nil, fmt.Errorf("%w: %s queries cannot be evaluated", ErrUnsupportedQuery, q.Form())
	}
	return q, nil
}
