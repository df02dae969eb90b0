package monitoring

import (
	"sync"
	"time"

	events "encore.app/pkg/pubsub"
)

// defaultWindow bounds how far back windowed sweep statistics look.
const defaultWindow = 1 * time.Hour

// maxRecorded caps the in-memory sweep history. Sweeps arrive every five
// minutes per service, so this covers days of history.
const maxRecorded = 1024

// ServiceSweepStats aggregates sweep activity for one cache-owning service.
type ServiceSweepStats struct {
	Service       string    `json:"service"`
	Sweeps        int64     `json:"sweeps"`
	TotalRemoved  int64     `json:"total_removed"`
	LastRemoved   int       `json:"last_removed"`
	LastRemaining int       `json:"last_remaining"`
	LastSweptAt   time.Time `json:"last_swept_at"`
	WindowSweeps  int64     `json:"window_sweeps"`  // sweeps inside the stats window
	WindowRemoved int64     `json:"window_removed"` // entries removed inside the window
	AvgPerSweep   float64   `json:"avg_per_sweep"`  // removed per sweep over the window
}

// SweepCollector records cache-swept reports and serves windowed statistics.
//
// The collector keeps a bounded history: aggregation walks recent events
// only, so a long-running process never grows past maxRecorded events.
type SweepCollector struct {
	mu      sync.RWMutex
	history []events.CacheSweptEvent
	window  time.Duration
	now     func() time.Time
}

// NewSweepCollector creates a collector with the default window.
func NewSweepCollector(now func() time.Time) *SweepCollector {
	if now == nil {
		now = time.Now
	}
	return &SweepCollector{
		history: make([]events.CacheSweptEvent, 0, 64),
		window:  defaultWindow,
		now:     now,
	}
}

// Record stores one sweep report, evicting the oldest when full.
func (c *SweepCollector) Record(event events.CacheSweptEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) >= maxRecorded {
		c.history = c.history[1:]
	}
	c.history = append(c.history, event)
}

// Stats aggregates the full history per service.
func (c *SweepCollector) Stats() map[string]ServiceSweepStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cutoff := c.now().Add(-c.window)
	stats := make(map[string]ServiceSweepStats)
	for _, event := range c.history {
		s := stats[event.Service]
		s.Service = event.Service
		s.Sweeps++
		s.TotalRemoved += int64(event.Removed)
		if event.SweptAt.After(s.LastSweptAt) {
			s.LastRemoved = event.Removed
			s.LastRemaining = event.Remaining
			s.LastSweptAt = event.SweptAt
		}
		if event.SweptAt.After(cutoff) {
			s.WindowSweeps++
			s.WindowRemoved += int64(event.Removed)
		}
		stats[event.Service] = s
	}

	for service, s := range stats {
		if s.WindowSweeps > 0 {
			s.AvgPerSweep = float64(s.WindowRemoved) / float64(s.WindowSweeps)
		}
		stats[service] = s
	}
	return stats
}

// ServiceStats aggregates one service's sweep history.
func (c *SweepCollector) ServiceStats(service string) (ServiceSweepStats, bool) {
	stats, ok := c.Stats()[service]
	return stats, ok
}

// Recent returns up to limit sweep reports, newest first.
func (c *SweepCollector) Recent(limit int) []events.CacheSweptEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 || limit > len(c.history) {
		limit = len(c.history)
	}
	out := make([]events.CacheSweptEvent, 0, limit)
	for i := len(c.history) - 1; i >= len(c.history)-limit; i-- {
		out = append(out, c.history[i])
	}
	return out
}

// Len returns the number of recorded sweep reports.
func (c *SweepCollector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}
