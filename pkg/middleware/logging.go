// Package middleware provides HTTP middleware for the clinic's raw export
// endpoints.
//
// This file implements structured request logging:
//   - Correlation ID propagation via the X-Request-ID header
//   - Context-based request ID storage for downstream use
//   - JSON log lines with method, path, status, duration, size
//
// Design Notes:
//   - Structured JSON over human-readable text: export requests are machine
//     scraped and the logs are parsed, not read
//   - Log level follows status: Info for success, Warn for 4xx, Error for 5xx
package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// contextKey type for context keys to avoid collisions.
type contextKey string

const requestIDKey contextKey = "request-id"

// RequestLogger logs each request as a structured JSON line and propagates a
// correlation ID through the X-Request-ID header and the request context.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		logRequest(requestID, r, wrapped.statusCode, wrapped.bytesWritten, time.Since(start))
	})
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromCtx retrieves the request ID from the context, or "" if absent.
func RequestIDFromCtx(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func logRequest(requestID string, r *http.Request, statusCode, bytesWritten int, duration time.Duration) {
	entry := map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"request_id":  requestID,
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      statusCode,
		"duration_ms": duration.Milliseconds(),
		"bytes":       bytesWritten,
		"remote_addr": r.RemoteAddr,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[%s] %s %s - %d (%dms)", requestID, r.Method, r.URL.Path, statusCode, duration.Milliseconds())
		return
	}

	switch {
	case statusCode >= 500:
		log.Printf("[ERROR] %s", data)
	case statusCode >= 400:
		log.Printf("[WARN] %s", data)
	default:
		log.Printf("[INFO] %s", data)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
