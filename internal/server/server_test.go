package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ziadkadry99/compound-rag/internal/api"
	"github.com/ziadkadry99/compound-rag/internal/db"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(cfg, database), database
}

func TestHealthCheck(t *testing.T) {
	srv, database := newTestServer(t, Config{})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body api.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "success" {
		t.Errorf("expected status 'success', got %q", body.Status)
	}

	database.Close()
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with a closed database, got %d", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv, _ := newTestServer(t, Config{AllowedOrigins: []string{"http://example.com"}})

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", api.CompoundHeader)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "http://example.com" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestRequestTimeoutSkipsWebsocketUpgrade(t *testing.T) {
	srv, _ := newTestServer(t, Config{RequestTimeout: 10 * time.Millisecond})

	var sawDeadline []bool
	srv.Router().Get("/probe", func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Deadline()
		sawDeadline = append(sawDeadline, ok)
	})

	srv.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/probe", nil))

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	srv.Router().ServeHTTP(httptest.NewRecorder(), req)

	if len(sawDeadline) != 2 || !sawDeadline[0] || sawDeadline[1] {
		t.Errorf("deadlines = %v, want [true false]", sawDeadline)
	}
}
