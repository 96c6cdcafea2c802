package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPMiddleware_LogsAndPropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	var sawLogger bool

	handler := HTTPMiddleware(New(Config{}, &buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := Ctx(r.Context())
		l.Info().Msg("inside")
		sawLogger = true
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set(headerRequestID, "req-1")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !sawLogger {
		t.Fatal("Handler was not called")
	}
	if rec.Header().Get(headerRequestID) != "req-1" {
		t.Errorf("Expected request id echoed, got %q", rec.Header().Get(headerRequestID))
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var done map[string]interface{}
	if err := json.Unmarshal(lines[1], &done); err != nil {
		t.Fatalf("Expected JSON line: %v", err)
	}
	if done[FieldRequestID] != "req-1" || done[FieldClientIP] != "10.0.0.1" {
		t.Errorf("Unexpected fields %v", done)
	}
	if done[FieldStatus] != float64(http.StatusTeapot) {
		t.Errorf("Expected status 418, got %v", done[FieldStatus])
	}
}

func TestHTTPMiddleware_GeneratesRequestID(t *testing.T) {
	handler := HTTPMiddleware(New(Config{Level: "error"}, &bytes.Buffer{}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get(headerRequestID) == "" {
		t.Error("Expected a generated request id")
	}
}
