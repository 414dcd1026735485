package httpapi

import (
	"io"
	"mime"
	"net/http"
	"strings"
)

// handleSearch answers a one-shot SPARQL query, given as the "query"
// parameter, a form field or an application/sparql-query body.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	text, status, detail := searchQuery(w, r)
	if status != 0 {
		writeStatus(w, status, detail)
		return
	}
	res, err := s.svc.Search(r.Context(), text, r.Header.Get("Accept"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", string(res.Format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

func searchQuery(w http.ResponseWriter, r *http.Request) (string, int, string) {
	if r.Method == http.MethodGet {
		if q := r.URL.Query().Get("query"); strings.TrimSpace(q) != "" {
			return q, 0, ""
		}
		return "", http.StatusBadRequest, "missing query parameter"
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/sparql-query":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", http.StatusBadRequest, err.Error()
		}
		if strings.TrimSpace(string(body)) == "" {
			return "", http.StatusBadRequest, "empty query"
		}
		return string(body), 0, ""
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return "", http.StatusBadRequest, err.Error()
		}
		if q := r.PostForm.Get("query"); strings.TrimSpace(q) != "" {
			return q, 0, ""
		}
		return "", http.StatusBadRequest, "missing query form field"
	default:
		return "", http.StatusUnsupportedMediaType, "use application/sparql-query or application/x-www-form-urlencoded"
	}
}
