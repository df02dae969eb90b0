// Package readcache implements the in-memory TTL memoization store shared by
// the optimizer services.
//
// Design Choices:
// - RWMutex-protected map rather than sync.Map: invalidation and sweep need
//   coherent iteration over the whole key set, which sync.Map makes awkward.
// - Per-entry TTL with lazy expiry on Get; a periodic sweep bounds memory for
//   entries that are never read again.
// - Bucket tags group entries that go stale together (e.g. every entry for
//   month "2024-05") so a single signal can drop them all.
// - The clock is injectable so tests can drive expiry deterministically.
//
// The store is generic over value type: callers must treat returned values as
// read-only, since the same derived object is shared across hits.
package readcache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
	bucket   string
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Metrics tracks store activity with atomic counters.
type Metrics struct {
	Hits          atomic.Int64
	Misses        atomic.Int64
	Sets          atomic.Int64
	Invalidations atomic.Int64
	SweepRemovals atomic.Int64
}

// Store is a mutex-protected TTL cache keyed by string.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
	metrics *Metrics
}

// New creates an empty store using the wall clock.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty store that reads time through now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     now,
		metrics: &Metrics{},
	}
}

// Set stores value under key with the given TTL, overwriting any existing
// entry. bucket may be empty when the entry has no group.
func (s *Store) Set(key string, value any, ttl time.Duration, bucket string) {
	s.mu.Lock()
	s.entries[key] = &entry{
		value:    value,
		storedAt: s.now(),
		ttl:      ttl,
		bucket:   bucket,
	}
	s.mu.Unlock()
	s.metrics.Sets.Add(1)
}

// Get returns the value stored under key, or (nil, false) when the key is
// absent or expired. Expired entries are deleted as a side effect.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		s.metrics.Misses.Add(1)
		return nil, false
	}

	if e.expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock: a Set may have replaced the entry.
		if cur, ok := s.entries[key]; ok && cur == e {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		s.metrics.Misses.Add(1)
		return nil, false
	}

	s.metrics.Hits.Add(1)
	return e.value, true
}

// Delete removes key. Returns true if an entry existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// InvalidateBucket deletes every entry tagged with bucket and returns the
// number removed. No-op for an unknown bucket.
func (s *Store) InvalidateBucket(bucket string) int {
	if bucket == "" {
		return 0
	}
	s.mu.Lock()
	removed := 0
	for key, e := range s.entries {
		if e.bucket == bucket {
			delete(s.entries, key)
			removed++
		}
	}
	s.mu.Unlock()
	s.metrics.Invalidations.Add(int64(removed))
	return removed
}

// InvalidatePrefix deletes every entry whose key starts with prefix and
// returns the number removed. Needed for key families that embed a mutable
// suffix (e.g. the count-busted today_appointments keys).
func (s *Store) InvalidatePrefix(prefix string) int {
	if prefix == "" {
		return 0
	}
	s.mu.Lock()
	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	s.mu.Unlock()
	s.metrics.Invalidations.Add(int64(removed))
	return removed
}

// Clear removes all entries unconditionally.
func (s *Store) Clear() {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
	s.metrics.Invalidations.Add(int64(n))
}

// Sweep removes every currently expired entry and returns the number removed.
// Get already expires lazily; Sweep only bounds memory for cold keys.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	s.mu.Unlock()
	s.metrics.SweepRemovals.Add(int64(removed))
	return removed
}

// Keys returns a snapshot of all keys, including not-yet-swept expired ones.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the current number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Metrics exposes the store's counters.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}
