// Package dashboard derives the clinic dashboard's aggregate read models from
// raw entity snapshots: today and monthly statistics, the enriched today
// appointment list, and system-wide quick counts.
//
// Snapshots arrive with every request; derived aggregates are cached in a TTL
// store keyed by time window. The today-appointments key additionally embeds
// the snapshot length, so a booking or cancellation lands on a fresh key even
// before any invalidation signal arrives.
package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"encore.dev/rlog"
	"golang.org/x/sync/errgroup"

	"encore.app/pkg/models"
	"encore.app/pkg/readcache"
	"encore.app/pkg/utils"
)

// Cache key prefixes. Each maps to a fixed TTL chosen by how fast the
// underlying view goes stale.
const (
	keyTodayStats = "today_stats_"        // + day, TTL 2m
	keyMonthly    = "monthly_stats_"      // + "2006-01", TTL 15m
	keyWeekly     = "weekly_stats_"       // + week-start day, TTL 5m
	keyTodayAppts = "today_appointments_" // + day + "_" + count, TTL 1m
	keyQuickStats = "quick_stats"         // constant key, TTL 5m
)

// Config controls cache TTLs and sweep cadence.
type Config struct {
	TodayTTL      time.Duration
	MonthlyTTL    time.Duration
	WeeklyTTL     time.Duration
	TodayApptsTTL time.Duration
	QuickTTL      time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns production TTLs.
func DefaultConfig() Config {
	return Config{
		TodayTTL:      2 * time.Minute,
		MonthlyTTL:    15 * time.Minute,
		WeeklyTTL:     5 * time.Minute,
		TodayApptsTTL: 1 * time.Minute,
		QuickTTL:      5 * time.Minute,
		SweepInterval: readcache.DefaultSweepInterval,
	}
}

//encore:service
type Service struct {
	cache   *readcache.Store
	sweeper *readcache.Sweeper
	config  Config
	now     func() time.Time

	derivations atomic.Int64

	warnf func(msg string, keysAndValues ...any)
}

// NewService builds a service around an explicit cache instance.
func NewService(cache *readcache.Store, config Config, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if cache == nil {
		cache = readcache.New()
	}
	return &Service{
		cache:   cache,
		sweeper: readcache.NewSweeper(cache, config.SweepInterval),
		config:  config,
		now:     now,
		warnf:   rlog.Warn,
	}
}

// todayStats aggregates today's appointments, revenue and expenses.
func (s *Service) todayStats(appointments []models.Appointment, payments []models.Payment, expenses []models.Expense) models.TodayStats {
	today := models.DayKey(s.now())
	cacheKey := keyTodayStats + today

	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(models.TodayStats)
	}
	s.derivations.Add(1)

	stats := models.TodayStats{Date: today}
	patients := make(map[int64]struct{})
	for _, appt := range appointments {
		if appt.Date == today {
			stats.AppointmentCount++
			patients[appt.PatientID] = struct{}{}
		}
	}
	stats.PatientCount = len(patients)

	start, end := models.DayBounds(s.now())
	for _, p := range payments {
		if models.InRange(p.PaymentDate, start, end) {
			stats.Revenue += p.Amount
		}
	}
	for _, e := range expenses {
		if models.InRange(e.Date, start, end) {
			stats.Expenses += e.Amount
		}
	}
	stats.Net = stats.Revenue - stats.Expenses

	s.cache.Set(cacheKey, stats, s.config.TodayTTL, today)
	return stats
}

// monthlyStats aggregates the current calendar month.
func (s *Service) monthlyStats(appointments []models.Appointment, patients []models.Patient, payments []models.Payment, expenses []models.Expense) models.MonthlyStats {
	monthKey := models.MonthKey(s.now())
	cacheKey := keyMonthly + monthKey

	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(models.MonthlyStats)
	}
	s.derivations.Add(1)

	stats := models.MonthlyStats{Month: monthKey}
	prefix := monthKey + "-"
	for _, appt := range appointments {
		if strings.HasPrefix(appt.Date, prefix) {
			stats.AppointmentCount++
		}
	}

	start, end := models.MonthBounds(s.now())
	for _, p := range patients {
		if models.InRange(p.CreatedAt, start, end) {
			stats.NewPatients++
		}
	}
	for _, p := range payments {
		if models.InRange(p.PaymentDate, start, end) {
			stats.TotalRevenue += p.Amount
		}
	}
	for _, e := range expenses {
		if models.InRange(e.Date, start, end) {
			stats.TotalExpenses += e.Amount
		}
	}
	stats.NetProfit = stats.TotalRevenue - stats.TotalExpenses

	s.cache.Set(cacheKey, stats, s.config.MonthlyTTL, monthKey)
	return stats
}

// weeklyStats aggregates the clinic week (Saturday through Friday) containing
// today.
func (s *Service) weeklyStats(appointments []models.Appointment, payments []models.Payment, expenses []models.Expense) models.WeeklyStats {
	start, end := models.WeekBounds(s.now())
	startKey := models.DayKey(start)
	endKey := models.DayKey(end.Add(-time.Second))
	cacheKey := keyWeekly + startKey

	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(models.WeeklyStats)
	}
	s.derivations.Add(1)

	stats := models.WeeklyStats{WeekStart: startKey, WeekEnd: endKey}
	for _, appt := range appointments {
		// ISO day strings order lexicographically.
		if appt.Date >= startKey && appt.Date <= endKey {
			stats.AppointmentCount++
		}
	}
	for _, p := range payments {
		if models.InRange(p.PaymentDate, start, end) {
			stats.Revenue += p.Amount
		}
	}
	for _, e := range expenses {
		if models.InRange(e.Date, start, end) {
			stats.Expenses += e.Amount
		}
	}
	stats.Net = stats.Revenue - stats.Expenses

	s.cache.Set(cacheKey, stats, s.config.WeeklyTTL, startKey)
	return stats
}

// todayAppointments produces the enriched, time-sorted list for today.
//
// The cache key embeds the snapshot length: any booking or cancellation
// changes the count and therefore the key, busting the entry without waiting
// for an invalidation signal. Prefix invalidation handles same-count edits.
func (s *Service) todayAppointments(appointments []models.Appointment, patients []models.Patient, doctors []models.Doctor) []models.EnrichedAppointment {
	today := models.DayKey(s.now())
	cacheKey := fmt.Sprintf("%s%s_%d", keyTodayAppts, today, len(appointments))

	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]models.EnrichedAppointment)
	}
	s.derivations.Add(1)

	patientByID := make(map[int64]models.Patient, len(patients))
	for _, p := range patients {
		patientByID[p.ID] = p
	}
	doctorByID := make(map[int64]models.Doctor, len(doctors))
	for _, d := range doctors {
		doctorByID[d.ID] = d
	}

	enriched := make([]models.EnrichedAppointment, 0)
	for _, appt := range appointments {
		if appt.Date != today {
			continue
		}

		item := models.EnrichedAppointment{Appointment: appt}
		if patient, ok := patientByID[appt.PatientID]; ok {
			item.PatientName = patient.Name
		} else {
			// No matching record: the booking-time name is the only
			// trustworthy one, and the patient counts as new.
			item.IsNewPatient = true
		}
		if doctor, ok := doctorByID[appt.DoctorID]; ok {
			item.DoctorName = doctor.Name
		}
		item.DisplayTime = utils.To12Hour(appt.Time)
		enriched = append(enriched, item)
	}

	sort.SliceStable(enriched, func(i, j int) bool {
		return s.timeSlot(enriched[i].Appointment) < s.timeSlot(enriched[j].Appointment)
	})

	s.cache.Set(cacheKey, enriched, s.config.TodayApptsTTL, today)
	return enriched
}

func (s *Service) timeSlot(appt models.Appointment) int {
	slot, err := utils.ParseTimeSlot(appt.Time)
	if err != nil {
		s.warnf("unparseable appointment time, defaulting to slot 0",
			"appointment_id", appt.ID, "time", appt.Time)
		return 0
	}
	return slot
}

// quickStats computes system-wide counts for the dashboard header.
func (s *Service) quickStats(patients []models.Patient, doctors []models.Doctor, appointments []models.Appointment, payments []models.Payment) models.QuickStats {
	if cached, ok := s.cache.Get(keyQuickStats); ok {
		return cached.(models.QuickStats)
	}
	s.derivations.Add(1)

	stats := models.QuickStats{
		TotalPatients: len(patients),
		TotalDoctors:  len(doctors),
	}
	for _, appt := range appointments {
		if appt.Status == models.AppointmentPending || appt.Status == models.AppointmentScheduled {
			stats.PendingAppointments++
		}
	}
	now := s.now()
	for _, p := range payments {
		if p.Status == models.PaymentPending && p.DueDate.Before(now) {
			stats.OverduePayments++
		}
	}

	s.cache.Set(keyQuickStats, stats, s.config.QuickTTL, "")
	return stats
}

// allStats derives the four dashboard aggregates concurrently. The
// derivations are independent, so they fan out on an errgroup and join into
// the final aggregate.
func (s *Service) allStats(appointments []models.Appointment, patients []models.Patient, doctors []models.Doctor, payments []models.Payment, expenses []models.Expense) models.DashboardStats {
	var stats models.DashboardStats

	var g errgroup.Group
	g.Go(func() error {
		stats.Today = s.todayStats(appointments, payments, expenses)
		return nil
	})
	g.Go(func() error {
		stats.Monthly = s.monthlyStats(appointments, patients, payments, expenses)
		return nil
	})
	g.Go(func() error {
		stats.TodayAppointments = s.todayAppointments(appointments, patients, doctors)
		return nil
	})
	g.Go(func() error {
		stats.Quick = s.quickStats(patients, doctors, appointments, payments)
		return nil
	})
	g.Wait()

	return stats
}
