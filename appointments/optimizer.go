// Package appointments derives normalized, sortable, searchable appointment
// projections windowed by month, plus calendar bucketing and aggregate
// statistics.
//
// The service holds no authoritative appointment data. Callers pass the
// current snapshot on every request; the service caches the derived
// projections in its own TTL store, tagged by month key so a single
// invalidation signal drops every view for that month. Repeated requests
// inside the TTL window return the cached projection without recomputing.
package appointments

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"encore.dev/rlog"
	"golang.org/x/sync/singleflight"

	"encore.app/pkg/models"
	"encore.app/pkg/readcache"
	"encore.app/pkg/utils"
)

// Config controls cache TTLs and sweep cadence.
type Config struct {
	MonthlyTTL    time.Duration // monthly projection entries
	SortedTTL     time.Duration // per-day sorted lists
	CalendarTTL   time.Duration // date->count calendar index
	SweepInterval time.Duration // background expired-entry sweep
}

// DefaultConfig returns production TTLs.
func DefaultConfig() Config {
	return Config{
		MonthlyTTL:    10 * time.Minute,
		SortedTTL:     5 * time.Minute,
		CalendarTTL:   2 * time.Minute,
		SweepInterval: readcache.DefaultSweepInterval,
	}
}

//encore:service
type Service struct {
	cache   *readcache.Store
	sweeper *readcache.Sweeper
	config  Config
	now     func() time.Time

	// Display-time conversion sub-cache. Unbounded and process-lifetime:
	// clinics reuse a small set of slot times, so the key space stays tiny.
	timeConvMu sync.RWMutex
	timeConv   map[string]string

	// Collapses concurrent derivations of the same month into one computation.
	deduper singleflight.Group

	// Counts full derivation runs. Exposed via metrics so staleness bugs
	// (recomputing despite a warm cache) show up as a counter anomaly.
	derivations atomic.Int64

	warnf func(msg string, keysAndValues ...any)
}

// NewService builds a service around an explicit cache instance.
// Tests pass a cache with a fake clock and a capturing warnf.
func NewService(cache *readcache.Store, config Config, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if cache == nil {
		cache = readcache.New()
	}
	return &Service{
		cache:    cache,
		sweeper:  readcache.NewSweeper(cache, config.SweepInterval),
		config:   config,
		now:      now,
		timeConv: make(map[string]string),
		warnf:    rlog.Warn,
	}
}

// displayTime converts a raw time string to its 12-hour rendering, memoized
// per distinct raw value.
func (s *Service) displayTime(raw string) string {
	s.timeConvMu.RLock()
	cached, ok := s.timeConv[raw]
	s.timeConvMu.RUnlock()
	if ok {
		return cached
	}

	converted := utils.To12Hour(raw)

	s.timeConvMu.Lock()
	s.timeConv[raw] = converted
	s.timeConvMu.Unlock()
	return converted
}

// resetTimeConv drops the display-time sub-cache. Only a full invalidation
// does this; month-scoped invalidation keeps it since conversions are
// independent of appointment data.
func (s *Service) resetTimeConv() {
	s.timeConvMu.Lock()
	s.timeConv = make(map[string]string)
	s.timeConvMu.Unlock()
}

// optimize derives the normalized projection for one raw appointment.
// Unparseable time strings degrade to slot 0 with a warning, never an error.
func (s *Service) optimize(appt models.Appointment) models.OptimizedAppointment {
	slot, err := utils.ParseTimeSlot(appt.Time)
	if err != nil {
		s.warnf("unparseable appointment time, defaulting to slot 0",
			"appointment_id", appt.ID, "time", appt.Time)
		slot = 0
	}

	return models.OptimizedAppointment{
		Appointment: appt,
		TimeSlot:    slot,
		DisplayTime: s.displayTime(appt.Time),
		SortKey:     appt.Date + appt.Time,
		SearchText: strings.ToLower(fmt.Sprintf("%s %s %s %s",
			appt.PatientName, appt.DoctorName, appt.Date, appt.Time)),
	}
}

// deriveMonth filters a snapshot to one month and optimizes every match.
// ISO day strings make the month test a prefix check.
func (s *Service) deriveMonth(snapshot []models.Appointment, monthKey string) []models.OptimizedAppointment {
	s.derivations.Add(1)

	prefix := monthKey + "-"
	out := make([]models.OptimizedAppointment, 0)
	for _, appt := range snapshot {
		if strings.HasPrefix(appt.Date, prefix) {
			out = append(out, s.optimize(appt))
		}
	}
	return out
}

// sortByTimeSlot orders a projection ascending by time slot. The sort is
// stable so appointments sharing a slot keep their snapshot order.
func sortByTimeSlot(appts []models.OptimizedAppointment) []models.OptimizedAppointment {
	sorted := make([]models.OptimizedAppointment, len(appts))
	copy(sorted, appts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimeSlot < sorted[j].TimeSlot
	})
	return sorted
}

// search filters a projection by case-insensitive substring match against the
// precomputed search text. A blank term returns the input unchanged.
func search(appts []models.OptimizedAppointment, term string) []models.OptimizedAppointment {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return appts
	}

	out := make([]models.OptimizedAppointment, 0)
	for _, appt := range appts {
		if strings.Contains(appt.SearchText, needle) {
			out = append(out, appt)
		}
	}
	return out
}

// snapshotStats summarizes a raw snapshot without touching the cache.
func (s *Service) snapshotStats(snapshot []models.Appointment) models.AppointmentStats {
	today := models.DayKey(s.now())
	monthPrefix := models.MonthKey(s.now()) + "-"

	stats := models.AppointmentStats{
		Total:    len(snapshot),
		ByStatus: make(map[string]int),
	}
	for _, appt := range snapshot {
		if appt.Date == today {
			stats.Today++
		}
		if strings.HasPrefix(appt.Date, monthPrefix) {
			stats.ThisMonth++
		}
		stats.ByStatus[string(appt.Status)]++
	}
	return stats
}
