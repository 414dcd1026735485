package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/thingdir/internal/events"
)

// lastEventID parses the Last-Event-ID header. A missing header yields nil.
func lastEventID(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if raw == "" {
		return nil, nil
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return nil, fmt.Errorf("Last-Event-ID must be a non-negative integer, got %q", raw)
	}
	return &seq, nil
}

func (s *Server) handleAllEvents(w http.ResponseWriter, r *http.Request) {
	s.resume(w, r, events.AllChannel)
}

func (s *Server) handleKindEvents(w http.ResponseWriter, r *http.Request) {
	kind := events.Kind(r.PathValue("kind"))
	if !kind.Valid() || kind == events.KindQueryMatch {
		writeStatus(w, http.StatusNotFound, fmt.Sprintf("no event stream %q", kind))
		return
	}
	s.resume(w, r, events.KindChannel(kind))
}

func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(r)
	if !ok {
		writeStatus(w, http.StatusNotFound, fmt.Sprintf("no subscription %q", r.PathValue("sid")))
		return
	}
	s.resume(w, r, events.SubscriptionChannel(id))
}

// handleRegisterQuery registers the continuous query in the body and
// streams its notifications. The Location header names the channel to
// reconnect to.
func (s *Server) handleRegisterQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		writeStatus(w, http.StatusBadRequest, "request body must contain a query")
		return
	}
	sub, err := s.svc.RegisterContinuousQuery(r.Context(), text, r.Header.Get("Accept"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/events/"+events.SubscriptionChannel(sub.ID))
	// Replay from the start of the channel so matches logged before the
	// stream attached are not lost.
	var origin int64
	s.stream(w, r, events.SubscriptionChannel(sub.ID), &origin)
}

func (s *Server) handleRevokeQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(r)
	if !ok {
		writeStatus(w, http.StatusNotFound, fmt.Sprintf("no subscription %q", r.PathValue("sid")))
		return
	}
	if err := s.svc.RevokeContinuousQuery(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func subscriptionID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("sid"), 10, 64)
	return id, err == nil && id > 0
}

// resume streams key, replaying from the request's Last-Event-ID.
func (s *Server) resume(w http.ResponseWriter, r *http.Request, key string) {
	lastSeen, err := lastEventID(r)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	s.stream(w, r, key, lastSeen)
}

// stream serves the channel key as server-sent events until the client
// goes away or the channel is removed.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, key string, lastSeen *int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeStatus(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	st, err := s.svc.Subscribe(r.Context(), key, lastSeen)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer st.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := s.logger.With("channel", key)
	for _, ev := range st.Preamble() {
		if err := events.WriteSSE(w, ev); err != nil {
			log.Debug("client disconnected during replay", "error", err)
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-st.Done():
			log.Debug("channel closed")
			return
		case <-heartbeat.C:
			if err := events.WriteComment(w, "heartbeat"); err != nil {
				log.Debug("client disconnected during heartbeat", "error", err)
				return
			}
			flusher.Flush()
		case ev := <-st.C():
			if !st.Fresh(ev) {
				continue
			}
			if err := events.WriteSSE(w, ev); err != nil {
				log.Debug("client disconnected during event", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}
