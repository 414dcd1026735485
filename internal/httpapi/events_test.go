package httpapi

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thingdir/internal/testutil"
)

// frame is one server-sent event or comment.
type frame struct {
	ID      string
	Event   string
	Data    string
	Comment string
}

// sseClient reads frames from a streaming response in the background.
type sseClient struct {
	resp   *http.Response
	frames chan frame
}

func openStream(t *testing.T, ts *httptest.Server, method, path, accept, body string, header map[string]string) *sseClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, ts.URL+path, rd)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	c := &sseClient{resp: resp, frames: make(chan frame, 64)}
	if resp.StatusCode != http.StatusOK {
		close(c.frames)
		return c
	}
	go c.read()
	return c
}

func (c *sseClient) read() {
	defer close(c.frames)
	sc := bufio.NewScanner(c.resp.Body)
	var f frame
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			c.frames <- f
			f = frame{}
		case strings.HasPrefix(line, ": "):
			f.Comment = strings.TrimPrefix(line, ": ")
		case strings.HasPrefix(line, "id: "):
			f.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			f.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func (c *sseClient) next(t *testing.T) frame {
	t.Helper()
	for {
		select {
		case f, ok := <-c.frames:
			require.True(t, ok, "stream ended")
			if f.Comment != "" {
				continue
			}
			return f
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for an event")
			return frame{}
		}
	}
}

func (c *sseClient) ended(t *testing.T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream still open")
		}
	}
}

func startServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	srv, _ := newTestServer(t, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func put(t *testing.T, ts *httptest.Server, id, body string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/things/"+id, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/td+json")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Less(t, resp.StatusCode, 300)
}

func TestEvents_AggregateStream(t *testing.T) {
	ts := startServer(t)
	all := openStream(t, ts, http.MethodGet, "/events", "", "", nil)
	require.Equal(t, http.StatusOK, all.resp.StatusCode)
	assert.Equal(t, "text/event-stream", all.resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", all.resp.Header.Get("Cache-Control"))

	put(t, ts, "urn:lamp", `{"title": "Lamp"}`)
	put(t, ts, "urn:lamp", `{"title": "Lamp 2"}`)

	assert.Equal(t, frame{ID: "1", Event: "thing_created", Data: `{"id":"urn:lamp"}`}, all.next(t))
	assert.Equal(t, frame{ID: "2", Event: "thing_updated", Data: `{"id":"urn:lamp"}`}, all.next(t))
}

func TestEvents_LastEventIDReplay(t *testing.T) {
	ts := startServer(t)
	put(t, ts, "urn:a", `{"title": "A"}`)
	put(t, ts, "urn:a", `{"title": "A2"}`)
	put(t, ts, "urn:b", `{"title": "B"}`)
	put(t, ts, "urn:c", `{"title": "C"}`)

	created := openStream(t, ts, http.MethodGet, "/events/thing_created", "", "", map[string]string{"Last-Event-ID": "1"})
	require.Equal(t, http.StatusOK, created.resp.StatusCode)
	assert.Equal(t, "3", created.next(t).ID)
	assert.Equal(t, "4", created.next(t).ID)

	put(t, ts, "urn:d", `{"title": "D"}`)
	f := created.next(t)
	assert.Equal(t, "5", f.ID)
	assert.Equal(t, `{"id":"urn:d"}`, f.Data)
}

func TestEvents_Heartbeat(t *testing.T) {
	ts := startServer(t, WithHeartbeat(10*time.Millisecond))
	s := openStream(t, ts, http.MethodGet, "/events", "", "", nil)

	select {
	case f := <-s.frames:
		assert.Equal(t, "heartbeat", f.Comment)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat")
	}
}

func TestEvents_StreamErrors(t *testing.T) {
	ts := startServer(t)
	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"unknown kind", "/events/thing_renamed", nil, http.StatusNotFound},
		{"query kind without id", "/events/query_notification", nil, http.StatusNotFound},
		{"unknown subscription", "/events/query_notification/9", nil, http.StatusNotFound},
		{"bad subscription id", "/events/query_notification/abc", nil, http.StatusNotFound},
		{"bad last event id", "/events", map[string]string{"Last-Event-ID": "soon"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openStream(t, ts, http.MethodGet, tt.path, "", "", tt.header)
			assert.Equal(t, tt.want, s.resp.StatusCode)
			assert.Equal(t, "application/problem+json", s.resp.Header.Get("Content-Type"))
		})
	}
}

func TestEvents_ContinuousQuery(t *testing.T) {
	ts := startServer(t)

	query := `SELECT ?s WHERE { ?s td:title "Garden Humidity Sensor" }`
	matches := openStream(t, ts, http.MethodPost, "/events/query_notification", "application/sparql-results+json", query, nil)
	require.Equal(t, http.StatusOK, matches.resp.StatusCode)
	assert.Equal(t, "/events/query_notification/1", matches.resp.Header.Get("Location"))

	all := openStream(t, ts, http.MethodGet, "/events", "", "", nil)

	put(t, ts, testutil.HumiditySensorID, testutil.HumiditySensorJSON)
	put(t, ts, "urn:lamp", `{"title": "Lamp"}`)

	f := matches.next(t)
	assert.Equal(t, "query_notification", f.Event)
	assert.Equal(t, "2", f.ID)
	assert.Equal(t, `{"id":"`+testutil.HumiditySensorID+`"}`, f.Data)

	assert.Equal(t, "thing_created", all.next(t).Event)
	assert.Equal(t, "query_notification", all.next(t).Event)
	assert.Equal(t, frame{ID: "3", Event: "thing_created", Data: `{"id":"urn:lamp"}`}, all.next(t))

	again := openStream(t, ts, http.MethodGet, "/events/query_notification/1", "", "", map[string]string{"Last-Event-ID": "0"})
	require.Equal(t, http.StatusOK, again.resp.StatusCode)
	assert.Equal(t, "2", again.next(t).ID)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/events/query_notification/1", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	matches.ended(t)
	again.ended(t)

	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEvents_RegisterRejections(t *testing.T) {
	ts := startServer(t)
	tests := []struct {
		name   string
		accept string
		body   string
		want   int
	}{
		{"empty body", "", "", http.StatusBadRequest},
		{"syntax error", "", "SELECT ?s WHERE {", http.StatusBadRequest},
		{"ask", "", `ASK { ?s td:title "x" }`, http.StatusBadRequest},
		{"update", "", `INSERT DATA { <urn:a> td:title "x" }`, http.StatusBadRequest},
		{"format", "text/turtle", `SELECT ?s { ?s td:title ?t }`, http.StatusNotAcceptable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openStream(t, ts, http.MethodPost, "/events/query_notification", tt.accept, tt.body, nil)
			assert.Equal(t, tt.want, s.resp.StatusCode)
		})
	}
}
