package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/roach88/thingdir/internal/directory"
	"github.com/roach88/thingdir/internal/document"
)

const (
	tdMediaType = "application/td+json"
	tdContext   = "https://www.w3.org/2022/wot/td/v1.1"

	defaultPageLimit = 20
)

var documentTypes = []string{"application/json", "application/td+json", "application/ld+json"}

var patchTypes = []string{"application/merge-patch+json", "application/json"}

// readDocument checks the request's media type and decodes its body as a
// JSON object.
func readDocument(w http.ResponseWriter, r *http.Request, accepted []string) (document.Object, int, error) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !contains(accepted, mt) {
		return nil, http.StatusUnsupportedMediaType, fmt.Errorf("content type %q not supported, use one of %v", r.Header.Get("Content-Type"), accepted)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, err
		}
		return nil, http.StatusBadRequest, err
	}
	doc, err := document.ParseObject(body)
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("%w: %w", directory.ErrInvalidDocument, err)
	}
	return doc, 0, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("order") != "" {
		writeStatus(w, http.StatusNotImplemented, "ordering is not supported")
		return
	}
	offset, err := intParam(q, "offset", 0)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(q, "limit", defaultPageLimit)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	format := q.Get("format")
	if format == "" {
		format = "array"
	}
	if format != "array" && format != "collection" {
		writeStatus(w, http.StatusBadRequest, fmt.Sprintf("format must be array or collection, got %q", format))
		return
	}

	things, total := s.svc.List(r.Context(), offset, limit)
	members := make(document.Array, len(things))
	for i, t := range things {
		members[i] = t
	}
	next := offset + limit
	if limit > 0 && next < total {
		w.Header().Set("Link", fmt.Sprintf("</things?offset=%d&limit=%d>; rel=\"next\"", next, limit))
	}
	w.Header().Set("Content-Type", "application/ld+json")

	var body document.Value = members
	if format == "collection" {
		coll := document.Object{
			"@context": document.String(tdContext),
			"@type":    document.String("ThingCollection"),
			"@id":      document.String(fmt.Sprintf("/things?offset=%d&limit=%d&format=collection", offset, limit)),
			"total":    document.Int(int64(total)),
			"members":  members,
		}
		if limit > 0 && next < total {
			coll["next"] = document.String(fmt.Sprintf("/things?offset=%d&limit=%d&format=collection", next, limit))
		}
		body = coll
	}
	data, err := document.Marshal(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := s.svc.Lookup(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	etag := strconv.Quote(entry.Hash)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	data, err := document.Marshal(entry.Document)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", tdMediaType)
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	doc, status, err := readDocument(w, r, documentTypes)
	if err != nil {
		s.writeBodyError(w, r, status, err)
		return
	}
	id, existed, err := s.svc.Put(r.Context(), r.PathValue("id"), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", thingPath(id))
	if existed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	doc, status, err := readDocument(w, r, documentTypes)
	if err != nil {
		s.writeBodyError(w, r, status, err)
		return
	}
	id, err := s.svc.Create(r.Context(), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", thingPath(id))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	doc, status, err := readDocument(w, r, patchTypes)
	if err != nil {
		s.writeBodyError(w, r, status, err)
		return
	}
	if _, err := s.svc.Patch(r.Context(), r.PathValue("id"), doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeBodyError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status == http.StatusBadRequest && errors.Is(err, directory.ErrInvalidDocument) {
		s.writeError(w, r, err)
		return
	}
	writeStatus(w, status, err.Error())
}

func thingPath(id string) string {
	return "/things/" + url.PathEscape(id)
}
