// Package httpapi exposes the directory over HTTP: the things API, the
// server-sent event streams and the SPARQL search endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/thingdir/internal/directory"
	"github.com/roach88/thingdir/internal/metrics"
	"github.com/roach88/thingdir/internal/schema"
)

// maxBodySize limits request bodies.
const maxBodySize = 4 << 20

// DefaultHeartbeat is the interval between SSE keep-alive comments.
const DefaultHeartbeat = 30 * time.Second

// Server routes HTTP requests to a directory.Service.
type Server struct {
	svc       *directory.Service
	logger    *slog.Logger
	heartbeat time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHeartbeat sets the SSE heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// New returns a Server for svc.
func New(svc *directory.Service, opts ...Option) *Server {
	s := &Server{svc: svc, logger: slog.Default(), heartbeat: DefaultHeartbeat}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler. GET routes also answer HEAD.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /things", s.handleList)
	mux.HandleFunc("POST /things", s.handleCreate)
	mux.HandleFunc("GET /things/{id...}", s.handleGet)
	mux.HandleFunc("PUT /things/{id...}", s.handlePut)
	mux.HandleFunc("PATCH /things/{id...}", s.handlePatch)
	mux.HandleFunc("DELETE /things/{id...}", s.handleDelete)

	mux.HandleFunc("GET /events", s.handleAllEvents)
	mux.HandleFunc("GET /events/{kind}", s.handleKindEvents)
	mux.HandleFunc("POST /events/query_notification", s.handleRegisterQuery)
	mux.HandleFunc("GET /events/query_notification/{sid}", s.handleQueryEvents)
	mux.HandleFunc("DELETE /events/query_notification/{sid}", s.handleRevokeQuery)

	mux.HandleFunc("GET /search/sparql", s.handleSearch)
	mux.HandleFunc("POST /search/sparql", s.handleSearch)

	metrics.Register()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, total := s.svc.List(r.Context(), 0, 1)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "things": total})
}

// problem is an RFC 9457 problem details body.
type problem struct {
	Title            string              `json:"title"`
	Status           int                 `json:"status"`
	Detail           string              `json:"detail,omitempty"`
	ValidationErrors []schema.FieldError `json:"validationErrors,omitempty"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, directory.ErrUnsupportedFormat):
		return http.StatusNotAcceptable
	case errors.Is(err, directory.ErrInvalidIdentifier),
		errors.Is(err, directory.ErrIdentifierMismatch),
		errors.Is(err, directory.ErrInvalidDocument),
		errors.Is(err, directory.ErrUnsupportedQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	p := problem{Title: http.StatusText(status), Status: status, Detail: err.Error()}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		p.ValidationErrors = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		p.Detail = "internal error"
	}
	writeProblem(w, p)
}

func writeProblem(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeStatus(w http.ResponseWriter, status int, detail string) {
	writeProblem(w, problem{Title: http.StatusText(status), Status: status, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
