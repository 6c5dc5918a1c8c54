package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/crmwriter/internal/core"
)

func newTestServer() (*Server, *core.Progress) {
	p := core.NewProgress("run-1", core.ModeUpsert)
	p.Begin("accounts")
	p.Observe("accounts", true)
	p.Observe("accounts", false)
	return NewServer(p), p
}

func TestServer_Routes(t *testing.T) {
	s, _ := newTestServer()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"status page", "/", http.StatusOK},
		{"health", "/healthz", http.StatusOK},
		{"status", "/status", http.StatusOK},
		{"collection", "/status/accounts", http.StatusOK},
		{"unknown collection", "/status/widgets", http.StatusNotFound},
		{"unknown route", "/upload", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestServer_StatusBody(t *testing.T) {
	s, p := newTestServer()

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var got core.RunStatus
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || got.Current != "accounts" || got.Finished {
		t.Errorf("status = %+v", got)
	}
	if len(got.Collections) != 1 || got.Collections[0].Failed != 1 {
		t.Errorf("collections = %+v", got.Collections)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("status responses should not be cacheable")
	}

	p.Finish(nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Finished {
		t.Error("status should report finished")
	}
}

func TestServer_ErrorBody(t *testing.T) {
	s, _ := newTestServer()

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/widgets", nil))

	var got ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Code == "" || got.Error == "" {
		t.Errorf("error response = %+v", got)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s, _ := newTestServer()
	ctx := context.Background()

	if err := s.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServer_StartBadAddr(t *testing.T) {
	s, _ := newTestServer()
	if err := s.Start(context.Background(), "256.0.0.1:bad"); err == nil {
		t.Error("Start() should fail on an invalid address")
	}
}

func TestServer_StatusPage(t *testing.T) {
	s, _ := newTestServer()

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"Run run-1", "<td>accounts</td><td>2</td><td>1</td><td>1</td>", "running"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q:\n%s", want, body)
		}
	}
}

func TestServer_StatusPageEscapes(t *testing.T) {
	p := core.NewProgress("run-<1>", core.ModeDelete)
	p.Begin("<script>")
	s := NewServer(p)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if strings.Contains(body, "<script>") || strings.Contains(body, "run-<1>") {
		t.Errorf("page should escape names:\n%s", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Errorf("page missing escaped collection name:\n%s", body)
	}
}

func TestServer_StatusPageEmpty(t *testing.T) {
	s := NewServer(core.NewProgress("run-2", core.ModeUpsert))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(rec.Body.String(), "No collections processed yet.") {
		t.Errorf("empty run page = %s", rec.Body.String())
	}
}
