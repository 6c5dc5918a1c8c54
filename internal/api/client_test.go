package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func testClient(baseURL string, maxRetries int) *Client {
	return NewClient(&ClientConfig{
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		MaxRetries:    maxRetries,
		BackoffFactor: time.Millisecond,
		RateLimit:     1000,
		RateBurst:     100,
		Headers:       DefaultHeaders(),
	})
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	tests := []struct {
		name       string
		failures   int32
		failStatus int
		maxRetries int
		wantStatus int
		wantCalls  int32
	}{
		{"recovers after 503", 2, http.StatusServiceUnavailable, 7, http.StatusNoContent, 3},
		{"recovers after 429", 1, http.StatusTooManyRequests, 7, http.StatusNoContent, 2},
		{"exhausted returns last response", 10, http.StatusBadGateway, 2, http.StatusBadGateway, 3},
		{"404 is not retried", 10, http.StatusNotFound, 7, http.StatusNotFound, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			r := chi.NewRouter()
			r.Get("/accounts", func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= tt.failures {
					w.WriteHeader(tt.failStatus)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
			srv := httptest.NewServer(r)
			defer srv.Close()

			resp, err := testClient(srv.URL, tt.maxRetries).Do(context.Background(), &Request{Method: http.MethodGet, Path: "accounts"})
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestClient_ConnectionFailureExhausted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := testClient(url, 2).Do(context.Background(), &Request{Method: http.MethodGet, Path: "accounts"})

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("Do() error = %v, want *TransientError", err)
	}
	if transient.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", transient.Attempts)
	}
}

func TestClient_ResendsBodyOnRetry(t *testing.T) {
	var calls atomic.Int32
	var lastBody atomic.Value
	r := chi.NewRouter()
	r.Post("/accounts", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		lastBody.Store(string(b))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, err := testClient(srv.URL, 3).Do(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "accounts",
		Body:   []byte(`{"name":"Acme"}`),
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := lastBody.Load(); got != `{"name":"Acme"}` {
		t.Errorf("retried body = %q", got)
	}
}

func TestClient_SendsDefaultHeaders(t *testing.T) {
	var got http.Header
	r := chi.NewRouter()
	r.Get("/accounts", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	req := &Request{Method: http.MethodGet, Path: "/accounts", Headers: map[string]string{"If-Match": "*"}}
	if _, err := testClient(srv.URL+"/", 0).Do(context.Background(), req); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	for k, v := range map[string]string{
		"Accept":           "application/json",
		"OData-MaxVersion": "4.0",
		"OData-Version":    "4.0",
		"If-Match":         "*",
	} {
		if got.Get(k) != v {
			t.Errorf("header %s = %q, want %q", k, got.Get(k), v)
		}
	}
}

func TestClient_CancelledContext(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/accounts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL, 3).Do(ctx, &Request{Method: http.MethodGet, Path: "accounts"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		org, version, want string
	}{
		{"https://org.example.com", "v9.1", "https://org.example.com/api/data/v9.1/"},
		{"https://org.example.com/", "v9.0", "https://org.example.com/api/data/v9.0/"},
	}
	for _, tt := range tests {
		if got := BaseURL(tt.org, tt.version); got != tt.want {
			t.Errorf("BaseURL(%q, %q) = %q, want %q", tt.org, tt.version, got, tt.want)
		}
	}
}

func TestClient_BackoffIsCapped(t *testing.T) {
	c := NewClient(&ClientConfig{
		BackoffFactor: 100 * time.Millisecond,
		MaxBackoff:    time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{63, time.Second},
		{1000, time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			if got := c.backoff(tt.attempt); got != tt.want {
				t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}
