// Rate limiting for the raw export endpoints, built on x/time/rate.
//
// Per-client limiters are keyed by remote host and created on demand; a
// shared global limiter caps total throughput. Limiter state for idle clients
// is never evicted. The clinic has a handful of clients, so the map stays
// small.
package middleware

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ClientLimiter applies per-client and global token-bucket rate limits.
type ClientLimiter struct {
	perClient rate.Limit
	burst     int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
	global  *rate.Limiter
}

// NewClientLimiter creates a limiter allowing perClient requests/sec with the
// given burst per client, and globalRPS requests/sec overall.
func NewClientLimiter(perClient float64, burst int, globalRPS float64) *ClientLimiter {
	return &ClientLimiter{
		perClient: rate.Limit(perClient),
		burst:     burst,
		clients:   make(map[string]*rate.Limiter),
		global:    rate.NewLimiter(rate.Limit(globalRPS), int(globalRPS)),
	}
}

// Allow reports whether a request from the given client may proceed.
func (cl *ClientLimiter) Allow(client string) bool {
	if !cl.global.Allow() {
		return false
	}

	cl.mu.Lock()
	limiter, ok := cl.clients[client]
	if !ok {
		limiter = rate.NewLimiter(cl.perClient, cl.burst)
		cl.clients[client] = limiter
	}
	cl.mu.Unlock()

	return limiter.Allow()
}

// Middleware wraps next, answering 429 when the client exceeds its limit.
func (cl *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !cl.Allow(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
