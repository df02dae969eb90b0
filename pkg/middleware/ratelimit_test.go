package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientLimiterAllowsBurst(t *testing.T) {
	cl := NewClientLimiter(1, 5, 100)

	for i := 0; i < 5; i++ {
		if !cl.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst was limited", i)
		}
	}
	if cl.Allow("10.0.0.1") {
		t.Error("request beyond burst was allowed")
	}
}

func TestClientLimiterIsolatesClients(t *testing.T) {
	cl := NewClientLimiter(1, 1, 100)

	if !cl.Allow("10.0.0.1") {
		t.Fatal("first client's first request limited")
	}
	if cl.Allow("10.0.0.1") {
		t.Error("first client exceeded burst but was allowed")
	}
	if !cl.Allow("10.0.0.2") {
		t.Error("second client was limited by first client's usage")
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	cl := NewClientLimiter(1, 1, 100)
	handler := cl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/export", nil)
	req.RemoteAddr = "10.0.0.1:4321"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
}

func TestRequestLoggerPropagatesRequestID(t *testing.T) {
	var seen string
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/export", nil)
	req.Header.Set("X-Request-ID", "req-abc")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "req-abc" {
		t.Errorf("context request ID = %q, want req-abc", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Errorf("response header = %q, want req-abc", got)
	}
}

func TestRequestLoggerGeneratesRequestID(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromCtx(r.Context()) == "" {
			t.Error("no request ID generated")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("generated request ID not set on response")
	}
}
