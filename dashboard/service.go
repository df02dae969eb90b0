package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"encore.dev/cron"
	"encore.dev/pubsub"
	"encore.dev/rlog"

	"encore.app/invalidation"
	"encore.app/monitoring"
	"encore.app/pkg/middleware"
	"encore.app/pkg/models"
	events "encore.app/pkg/pubsub"
	"encore.app/pkg/utils"
)

// entityPrefixes maps an entity type to the cache-key prefixes its views
// depend on. Prefix deletion is required for the today-appointments family:
// its count-suffixed key changes on every mutation, so a single-key delete
// would miss stale siblings.
var entityPrefixes = map[events.EntityType][]string{
	events.EntityAppointments: {keyTodayStats, keyMonthly, keyWeekly, keyQuickStats, keyTodayAppts},
	events.EntityPayments:     {keyTodayStats, keyMonthly, keyWeekly, keyQuickStats},
	events.EntityExpenses:     {keyTodayStats, keyMonthly, keyWeekly},
	events.EntityPatients:     {keyMonthly, keyQuickStats, keyTodayAppts},
}

func initService() (*Service, error) {
	s := NewService(nil, DefaultConfig(), nil)
	s.sweeper.Start()
	return s, nil
}

// Global service instance
var svc *Service

// Rate limiter for the raw export endpoint.
var exportLimiter = middleware.NewClientLimiter(2, 5, 20)

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize dashboard service: %v", err))
	}
}

// Request and response types

type Snapshots struct {
	Appointments []models.Appointment `json:"appointments"`
	Patients     []models.Patient     `json:"patients"`
	Doctors      []models.Doctor      `json:"doctors"`
	Payments     []models.Payment     `json:"payments"`
	Expenses     []models.Expense     `json:"expenses"`
}

type TodayStatsResponse struct {
	Stats models.TodayStats `json:"stats"`
}

type MonthlyStatsResponse struct {
	Stats models.MonthlyStats `json:"stats"`
}

type WeeklyStatsResponse struct {
	Stats models.WeeklyStats `json:"stats"`
}

type TodayAppointmentsResponse struct {
	Appointments []models.EnrichedAppointment `json:"appointments"`
}

type QuickStatsResponse struct {
	Stats models.QuickStats `json:"stats"`
}

type AllStatsResponse struct {
	Stats models.DashboardStats `json:"stats"`
}

type InvalidateRequest struct {
	EntityType events.EntityType `json:"entity_type"` // appointments, payments, expenses, patients, all
}

type InvalidateResponse struct {
	Removed int `json:"removed"`
}

type CacheMetricsResponse struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Sets          int64 `json:"sets"`
	Invalidations int64 `json:"invalidations"`
	SweepRemovals int64 `json:"sweep_removals"`
	Derivations   int64 `json:"derivations"`
}

// TodayStats returns today's aggregate statistics.
//
//encore:api public method=POST path=/dashboard/today
func TodayStats(ctx context.Context, req *Snapshots) (*TodayStatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return &TodayStatsResponse{Stats: svc.todayStats(req.Appointments, req.Payments, req.Expenses)}, nil
}

// MonthlyStats returns the current month's aggregate statistics.
//
//encore:api public method=POST path=/dashboard/monthly
func MonthlyStats(ctx context.Context, req *Snapshots) (*MonthlyStatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return &MonthlyStatsResponse{Stats: svc.monthlyStats(req.Appointments, req.Patients, req.Payments, req.Expenses)}, nil
}

// WeeklyStats returns statistics for the clinic week containing today.
//
//encore:api public method=POST path=/dashboard/weekly
func WeeklyStats(ctx context.Context, req *Snapshots) (*WeeklyStatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return &WeeklyStatsResponse{Stats: svc.weeklyStats(req.Appointments, req.Payments, req.Expenses)}, nil
}

// TodayAppointments returns the enriched, time-sorted list for today.
//
//encore:api public method=POST path=/dashboard/today-appointments
func TodayAppointments(ctx context.Context, req *Snapshots) (*TodayAppointmentsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return &TodayAppointmentsResponse{Appointments: svc.todayAppointments(req.Appointments, req.Patients, req.Doctors)}, nil
}

// QuickStats returns system-wide counts for the dashboard header.
//
//encore:api public method=POST path=/dashboard/quick
func QuickStats(ctx context.Context, req *Snapshots) (*QuickStatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return &QuickStatsResponse{Stats: svc.quickStats(req.Patients, req.Doctors, req.Appointments, req.Payments)}, nil
}

// AllStats derives the full dashboard aggregate. This is the entry point the
// view layer calls for a complete refresh.
//
//encore:api public method=POST path=/dashboard/all
func AllStats(ctx context.Context, req *Snapshots) (*AllStatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return &AllStatsResponse{Stats: svc.allStats(req.Appointments, req.Patients, req.Doctors, req.Payments, req.Expenses)}, nil
}

// Invalidate drops cached views affected by an entity change.
//
//encore:api public method=POST path=/dashboard/invalidate
func Invalidate(ctx context.Context, req *InvalidateRequest) (*InvalidateResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Invalidate(ctx, req)
}

func (s *Service) Invalidate(ctx context.Context, req *InvalidateRequest) (*InvalidateResponse, error) {
	if !events.ValidEntityType(req.EntityType) {
		return nil, fmt.Errorf("unknown entity type: %q", req.EntityType)
	}
	return &InvalidateResponse{Removed: s.invalidateEntity(req.EntityType)}, nil
}

func (s *Service) invalidateEntity(entity events.EntityType) int {
	if entity == events.EntityAll {
		removed := s.cache.Len()
		s.cache.Clear()
		return removed
	}
	removed := 0
	for _, prefix := range entityPrefixes[entity] {
		removed += s.cache.InvalidatePrefix(prefix)
	}
	return removed
}

// CacheMetrics exposes cache and derivation counters.
//
//encore:api public method=GET path=/dashboard/metrics
func CacheMetrics(ctx context.Context) (*CacheMetricsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	m := svc.cache.Metrics()
	return &CacheMetricsResponse{
		Entries:       svc.cache.Len(),
		Hits:          m.Hits.Load(),
		Misses:        m.Misses.Load(),
		Sets:          m.Sets.Load(),
		Invalidations: m.Invalidations.Load(),
		SweepRemovals: m.SweepRemovals.Load(),
		Derivations:   svc.derivations.Load(),
	}, nil
}

// Export serves the current cache state as JSON for operational inspection.
// Raw endpoint so the standard HTTP middleware stack applies.
//
//encore:api public raw method=GET path=/dashboard/export
func Export(w http.ResponseWriter, req *http.Request) {
	handler := middleware.RequestLogger(exportLimiter.Middleware(http.HandlerFunc(exportHandler)))
	handler.ServeHTTP(w, req)
}

func exportHandler(w http.ResponseWriter, req *http.Request) {
	if svc == nil {
		http.Error(w, "service not initialized", http.StatusServiceUnavailable)
		return
	}

	keys := svc.cache.Keys()
	if pattern := req.URL.Query().Get("pattern"); pattern != "" {
		filtered, err := utils.FilterKeys(pattern, keys)
		if err != nil {
			http.Error(w, "invalid pattern", http.StatusBadRequest)
			return
		}
		keys = filtered
	}

	m := svc.cache.Metrics()
	payload := map[string]any{
		"request_id": middleware.RequestIDFromCtx(req.Context()),
		"keys":       keys,
		"entries":    svc.cache.Len(),
		"hits":       m.Hits.Load(),
		"misses":     m.Misses.Load(),
	}
	data, err := utils.MarshalJSON(payload)
	if err != nil {
		http.Error(w, "failed to encode export", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// Subscribe to snapshot-changed broadcasts from the invalidation service.
var _ = pubsub.NewSubscription(
	invalidation.SnapshotChangedTopic,
	"dashboard-snapshot-changed",
	pubsub.SubscriptionConfig[*events.SnapshotChangedEvent]{
		Handler: HandleSnapshotChanged,
	},
)

// HandleSnapshotChanged drops every cached view affected by the changed
// entity type.
func HandleSnapshotChanged(ctx context.Context, event *events.SnapshotChangedEvent) error {
	if svc == nil {
		return nil // Service not initialized yet
	}
	removed := svc.invalidateEntity(event.EntityType)
	rlog.Info("invalidated dashboard caches",
		"entity_type", event.EntityType,
		"removed", removed,
		"request_id", event.RequestID)
	return nil
}

// SweepNow removes every expired entry and reports the result to monitoring.
var _ = cron.NewJob("dashboard-cache-sweep", cron.JobConfig{
	Title:    "Dashboard Cache Sweep",
	Schedule: "*/5 * * * *",
	Endpoint: SweepNow,
})

//encore:api private
func SweepNow(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	removed := svc.cache.Sweep()
	event := &events.CacheSweptEvent{
		Version:   events.EventVersion1,
		Service:   "dashboard",
		Removed:   removed,
		Remaining: svc.cache.Len(),
		SweptAt:   svc.now(),
	}
	if _, err := monitoring.CacheSweptTopic.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish sweep report: %w", err)
	}
	return nil
}
