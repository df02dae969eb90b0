package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"encore.dev/cron"
	"encore.dev/pubsub"
	"encore.dev/rlog"

	"encore.app/invalidation"
	"encore.app/monitoring"
	"encore.app/pkg/models"
	events "encore.app/pkg/pubsub"
)

func initService() (*Service, error) {
	s := NewService(nil, DefaultConfig(), nil)
	s.sweeper.Start()
	return s, nil
}

// Global service instance
var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize appointments service: %v", err))
	}
}

// Request and response types

type MonthlyRequest struct {
	Appointments []models.Appointment `json:"appointments"` // current snapshot
	Year         int                  `json:"year"`
	Month        int                  `json:"month"` // 1-12
}

type MonthlyResponse struct {
	MonthKey     string                        `json:"month_key"`
	Appointments []models.OptimizedAppointment `json:"appointments"`
}

type SortedRequest struct {
	Appointments []models.Appointment `json:"appointments"`
	Date         string               `json:"date"` // "2006-01-02"
}

type SortedResponse struct {
	Date         string                        `json:"date"`
	Appointments []models.OptimizedAppointment `json:"appointments"`
}

type CalendarRequest struct {
	Appointments []models.Appointment `json:"appointments"`
	Year         int                  `json:"year"`
	Month        int                  `json:"month"`
}

type CalendarResponse struct {
	MonthKey string                        `json:"month_key"`
	Days     map[string]models.CalendarDay `json:"days"`
}

type VisibleDaysRequest struct {
	Appointments []models.Appointment `json:"appointments"`
	Year         int                  `json:"year"`
	Month        int                  `json:"month"`
}

type VisibleDaysResponse struct {
	MonthKey string              `json:"month_key"`
	Days     []models.VisibleDay `json:"days"`
}

type DateRangeRequest struct {
	Appointments []models.Appointment `json:"appointments"`
	CurrentDate  string               `json:"current_date"` // "2006-01-02"
}

type DateRangeResponse struct {
	Range models.DateRangeAppointments `json:"range"`
}

type SearchRequest struct {
	Appointments []models.OptimizedAppointment `json:"appointments"` // pre-derived projection
	Term         string                        `json:"term"`
}

type SearchResponse struct {
	Matches []models.OptimizedAppointment `json:"matches"`
}

type StatsRequest struct {
	Appointments []models.Appointment `json:"appointments"`
}

type StatsResponse struct {
	Stats models.AppointmentStats `json:"stats"`
}

type InvalidateRequest struct {
	Scope    string `json:"scope"`               // "month" or "all"
	MonthKey string `json:"month_key,omitempty"` // required when scope is "month"
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

// Monthly returns the optimized projection for one month.
//
//encore:api public method=POST path=/appointments/monthly
func Monthly(ctx context.Context, req *MonthlyRequest) (*MonthlyResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Monthly(ctx, req)
}

func (s *Service) Monthly(ctx context.Context, req *MonthlyRequest) (*MonthlyResponse, error) {
	if req.Month < 1 || req.Month > 12 {
		return nil, fmt.Errorf("invalid month: %d", req.Month)
	}
	month := time.Month(req.Month)
	return &MonthlyResponse{
		MonthKey:     models.MonthKeyFor(req.Year, month),
		Appointments: s.monthlyAppointments(req.Appointments, req.Year, month),
	}, nil
}

// Sorted returns one day's appointments ordered by time slot.
//
//encore:api public method=POST path=/appointments/sorted
func Sorted(ctx context.Context, req *SortedRequest) (*SortedResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Sorted(ctx, req)
}

func (s *Service) Sorted(ctx context.Context, req *SortedRequest) (*SortedResponse, error) {
	sorted, err := s.sortedAppointments(req.Appointments, req.Date)
	if err != nil {
		return nil, err
	}
	return &SortedResponse{Date: req.Date, Appointments: sorted}, nil
}

// Calendar returns the date->count index for one month.
//
//encore:api public method=POST path=/appointments/calendar
func Calendar(ctx context.Context, req *CalendarRequest) (*CalendarResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Calendar(ctx, req)
}

func (s *Service) Calendar(ctx context.Context, req *CalendarRequest) (*CalendarResponse, error) {
	if req.Month < 1 || req.Month > 12 {
		return nil, fmt.Errorf("invalid month: %d", req.Month)
	}
	month := time.Month(req.Month)
	return &CalendarResponse{
		MonthKey: models.MonthKeyFor(req.Year, month),
		Days:     s.calendarData(req.Appointments, req.Year, month),
	}, nil
}

// VisibleDays returns one entry per calendar day of the month for grid
// rendering.
//
//encore:api public method=POST path=/appointments/visible-days
func VisibleDays(ctx context.Context, req *VisibleDaysRequest) (*VisibleDaysResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.VisibleDays(ctx, req)
}

func (s *Service) VisibleDays(ctx context.Context, req *VisibleDaysRequest) (*VisibleDaysResponse, error) {
	if req.Month < 1 || req.Month > 12 {
		return nil, fmt.Errorf("invalid month: %d", req.Month)
	}
	month := time.Month(req.Month)
	return &VisibleDaysResponse{
		MonthKey: models.MonthKeyFor(req.Year, month),
		Days:     s.visibleCalendarDays(req.Appointments, req.Year, month),
	}, nil
}

// DateRange loads the month containing the given date plus both neighbors.
//
//encore:api public method=POST path=/appointments/date-range
func DateRange(ctx context.Context, req *DateRangeRequest) (*DateRangeResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.DateRange(ctx, req)
}

func (s *Service) DateRange(ctx context.Context, req *DateRangeRequest) (*DateRangeResponse, error) {
	r, err := s.dateRangeAppointments(req.Appointments, req.CurrentDate)
	if err != nil {
		return nil, err
	}
	return &DateRangeResponse{Range: r}, nil
}

// Search filters a derived projection by substring match.
//
//encore:api public method=POST path=/appointments/search
func Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Search(ctx, req)
}

func (s *Service) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	return &SearchResponse{Matches: search(req.Appointments, req.Term)}, nil
}

// Stats summarizes an appointment snapshot.
//
//encore:api public method=POST path=/appointments/stats
func Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Stats(ctx, req)
}

func (s *Service) Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	return &StatsResponse{Stats: s.snapshotStats(req.Appointments)}, nil
}

// Invalidate drops cached projections by scope.
//
//encore:api public method=POST path=/appointments/invalidate
func Invalidate(ctx context.Context, req *InvalidateRequest) (*InvalidateResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Invalidate(ctx, req)
}

func (s *Service) Invalidate(ctx context.Context, req *InvalidateRequest) (*InvalidateResponse, error) {
	switch req.Scope {
	case "month":
		if req.MonthKey == "" {
			return nil, errors.New("month_key required for month scope")
		}
		return &InvalidateResponse{Removed: s.cache.InvalidateBucket(req.MonthKey)}, nil
	case "all":
		removed := s.cache.Len()
		s.cache.Clear()
		s.resetTimeConv()
		return &InvalidateResponse{Removed: removed}, nil
	default:
		return nil, fmt.Errorf("unknown scope: %q", req.Scope)
	}
}

// CacheMetrics exposes cache and derivation counters.
//
//encore:api public method=GET path=/appointments/metrics
func CacheMetrics(ctx context.Context) (*CacheMetricsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.CacheMetrics(ctx)
}

func (s *Service) CacheMetrics(ctx context.Context) (*CacheMetricsResponse, error) {
	m := s.cache.Metrics()
	return &CacheMetricsResponse{
		Entries:       s.cache.Len(),
		Hits:          m.Hits.Load(),
		Misses:        m.Misses.Load(),
		Sets:          m.Sets.Load(),
		Invalidations: m.Invalidations.Load(),
		SweepRemovals: m.SweepRemovals.Load(),
		Derivations:   s.derivations.Load(),
	}, nil
}

// Subscribe to snapshot-changed broadcasts from the invalidation service.
var _ = pubsub.NewSubscription(
	invalidation.SnapshotChangedTopic,
	"appointments-snapshot-changed",
	pubsub.SubscriptionConfig[*events.SnapshotChangedEvent]{
		Handler: HandleSnapshotChanged,
	},
)

// HandleSnapshotChanged drops cached projections affected by an entity
// change. Only appointment snapshots feed this service's projections, so
// other entity types are ignored.
func HandleSnapshotChanged(ctx context.Context, event *events.SnapshotChangedEvent) error {
	if svc == nil {
		return nil // Service not initialized yet
	}
	return svc.handleSnapshotChanged(ctx, event)
}

func (s *Service) handleSnapshotChanged(ctx context.Context, event *events.SnapshotChangedEvent) error {
	switch event.EntityType {
	case events.EntityAll:
		s.cache.Clear()
		s.resetTimeConv()
	case events.EntityAppointments:
		if event.MonthKey != "" {
			s.cache.InvalidateBucket(event.MonthKey)
		} else {
			s.cache.Clear()
		}
	default:
		return nil
	}
	rlog.Info("invalidated appointment caches",
		"entity_type", event.EntityType,
		"month_key", event.MonthKey,
		"request_id", event.RequestID)
	return nil
}

// SweepNow removes every expired entry and reports the result to monitoring.
var _ = cron.NewJob("appointments-cache-sweep", cron.JobConfig{
	Title:    "Appointment Cache Sweep",
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
		Service:   "appointments",
		Removed:   removed,
		Remaining: svc.cache.Len(),
		SweptAt:   svc.now(),
	}
	if _, err := monitoring.CacheSweptTopic.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish sweep report: %w", err)
	}
	return nil
}
