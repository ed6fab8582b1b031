package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/glossa/internal/extractor"
	"github.com/MikeSquared-Agency/glossa/internal/processor"
	"github.com/MikeSquared-Agency/glossa/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, text string) (*extractor.Record, error) {
	switch text {
	case "garbage":
		return nil, &extractor.IngestError{Kind: extractor.KindMalformedOutput, Detail: "invalid character", RawExcerpt: "garbage"}
	case "offline":
		return nil, errors.New("dial tcp: connection refused")
	}
	lang := "英语"
	if strings.ContainsAny(text, "ぁあいうえおかきくけこ決") {
		lang = "日语"
	}
	return &extractor.Record{Language: lang, Translation: "译:" + text, Correction: text, Structure: []extractor.TokenGloss{}}, nil
}

type stubSpeech struct{}

func (stubSpeech) Synthesize(_ context.Context, text, lang string) ([]byte, error) {
	return []byte(lang + ":" + text), nil
}

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()
	s := store.New(store.NewMemoryLog(), nil, discardLogger())
	proc := processor.New(s, stubAnalyzer{}, stubSpeech{}, nil, time.UTC, discardLogger())
	return NewServer(8760, token, proc, discardLogger())
}

type client struct {
	t       *testing.T
	srv     *Server
	session string
	token   string
}

func (c *client) do(method, target string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rdr)
	if c.session != "" {
		req.Header.Set(SessionHeader, c.session)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.srv.router.ServeHTTP(w, req)
	if id := w.Header().Get(SessionHeader); id != "" {
		c.session = id
	}
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeBody[map[string]string](t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/v1/glossa/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeBody[map[string]any](t, w)
	if body["agent"] != "glossa" {
		t.Errorf("expected agent glossa, got %v", body["agent"])
	}
	if body["nats"] != "disabled" {
		t.Errorf("expected nats disabled, got %v", body["nats"])
	}
}

type stubBus struct{ up bool }

func (b stubBus) Connected() bool { return b.up }

func TestStatusEndpoint_Events(t *testing.T) {
	for _, tt := range []struct {
		up   bool
		want string
	}{
		{true, "connected"},
		{false, "disconnected"},
	} {
		srv := newTestServer(t, "")
		srv.SetEvents(stubBus{up: tt.up})

		req := httptest.NewRequest("GET", "/api/v1/glossa/status", nil)
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)

		body := decodeBody[map[string]any](t, w)
		if body["nats"] != tt.want {
			t.Errorf("up=%v: expected nats %q, got %v", tt.up, tt.want, body["nats"])
		}
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(t, "secret")

	anon := &client{t: t, srv: srv}
	if w := anon.do("GET", "/api/v1/history", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	wrong := &client{t: t, srv: srv, token: "nope"}
	if w := wrong.do("GET", "/api/v1/history", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}

	ok := &client{t: t, srv: srv, token: "secret"}
	if w := ok.do("GET", "/api/v1/history", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}

	if w := anon.do("GET", "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health must stay public, got %d", w.Code)
	}
}

func TestCreateAnalysis(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, "")}

	w := c.do("POST", "/api/v1/analyses", map[string]string{"text": "決めちゃいますからね", "user": "demo"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if c.session == "" {
		t.Error("expected a session id to be issued")
	}
	resp := decodeBody[analysisResponse](t, w)
	if !resp.Saved || resp.Entry == nil || resp.Entry.Language != "日语" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCreateAnalysis_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		kind   extractor.Kind
	}{
		{"missing text", map[string]string{"user": "u"}, http.StatusBadRequest, ""},
		{"blank text", map[string]string{"text": "   "}, http.StatusBadRequest, ""},
		{"malformed model reply", map[string]string{"text": "garbage"}, http.StatusUnprocessableEntity, extractor.KindMalformedOutput},
		{"model unreachable", map[string]string{"text": "offline"}, http.StatusBadGateway, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &client{t: t, srv: newTestServer(t, "")}
			w := c.do("POST", "/api/v1/analyses", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.kind != "" {
				resp := decodeBody[analysisResponse](t, w)
				if resp.Error == nil || resp.Error.Kind != tt.kind {
					t.Errorf("expected %s error, got %+v", tt.kind, resp.Error)
				}
			}
		})
	}

	c := &client{t: t, srv: newTestServer(t, "")}
	req := httptest.NewRequest("POST", "/api/v1/analyses", strings.NewReader("{"))
	w := httptest.NewRecorder()
	c.srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", w.Code)
	}
}

func TestHistoryFlow(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, "")}
	for _, text := range []string{"Good morning", "ありがとう", "I has a apple", "こんにちは", "Bonjour"} {
		if w := c.do("POST", "/api/v1/analyses", map[string]string{"text": text}); w.Code != http.StatusCreated {
			t.Fatalf("submit %q: %d", text, w.Code)
		}
	}

	w := c.do("GET", "/api/v1/history", nil)
	all := decodeBody[historyResponse](t, w)
	if all.Total != 5 || len(all.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d/%d", len(all.Entries), all.Total)
	}
	if all.Entries[0].Sentence != "Bonjour" {
		t.Errorf("expected most recent first, got %q", all.Entries[0].Sentence)
	}

	w = c.do("GET", "/api/v1/history?q=APPLE", nil)
	if got := decodeBody[historyResponse](t, w); len(got.Entries) != 1 {
		t.Errorf("expected 1 search hit, got %d", len(got.Entries))
	}

	w = c.do("GET", "/api/v1/history?lang="+url.QueryEscape("日语"), nil)
	ja := decodeBody[historyResponse](t, w)
	if len(ja.Entries) != 2 {
		t.Fatalf("expected 2 日语 entries, got %d", len(ja.Entries))
	}

	w = c.do("POST", "/api/v1/history/selection", map[string]string{"action": "select_all"})
	sel := decodeBody[historyResponse](t, w)
	if len(sel.Selected) != 2 || !sel.AllSelected {
		t.Fatalf("expected the 2 filtered entries selected, got %+v", sel.Selected)
	}

	w = c.do("POST", "/api/v1/history/delete-selected", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	del := decodeBody[deleteResponse](t, w)
	if del.Deleted != 2 || del.Message != "2 of 2 deleted" {
		t.Errorf("unexpected delete response %+v", del)
	}

	w = c.do("GET", "/api/v1/history", nil)
	rest := decodeBody[historyResponse](t, w)
	if rest.Total != 3 {
		t.Fatalf("expected 3 entries left, got %d", rest.Total)
	}
	for _, e := range rest.Entries {
		if e.Language == "日语" {
			t.Errorf("日语 entry %s should be gone", e.Timestamp)
		}
	}

	key := rest.Entries[0].Timestamp
	w = c.do("DELETE", "/api/v1/history/"+url.PathEscape(key), nil)
	if got := decodeBody[deleteResponse](t, w); got.Deleted != 1 {
		t.Errorf("expected single delete, got %+v", got)
	}
}

func TestSelection_Validation(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, "")}

	if w := c.do("POST", "/api/v1/history/selection", map[string]string{"action": "explode"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown action, got %d", w.Code)
	}
	if w := c.do("POST", "/api/v1/history/selection", map[string]string{"action": "select"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for select without key, got %d", w.Code)
	}
	if w := c.do("POST", "/api/v1/history/selection", map[string]string{"action": "select", "key": "k"}); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestExport(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, "")}
	c.do("POST", "/api/v1/analyses", map[string]string{"text": "hello"})

	w := c.do("GET", "/api/v1/history/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "glossa_history_") {
		t.Errorf("unexpected content disposition %q", cd)
	}
	if !strings.HasPrefix(w.Body.String(), "\ufeff") {
		t.Error("expected BOM")
	}
	if !strings.Contains(w.Body.String(), "hello") {
		t.Error("expected entry in export")
	}
}

func TestSpeech(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, "")}

	w := c.do("GET", "/api/v1/speech?text="+url.QueryEscape("ありがとう")+"&lang="+url.QueryEscape("日语"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "audio/mpeg" {
		t.Errorf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	if w.Body.String() != "ja:ありがとう" {
		t.Errorf("unexpected audio %q", w.Body.String())
	}

	if w := c.do("GET", "/api/v1/speech", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without text, got %d", w.Code)
	}
}
