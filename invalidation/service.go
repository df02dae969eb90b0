// Package invalidation coordinates staleness signals for the clinic's cached
// read models.
//
// The front-end never mutates cached views directly. When an appointment,
// payment, expense or patient record changes, it sends one signal here; the
// service validates it, broadcasts a snapshot-changed event over Pub/Sub, and
// records the signal in an append-only audit log. The dashboard and
// appointments services subscribe to the broadcast and drop the affected
// cache entries, so the next read recomputes from fresh snapshots.
//
// Consistency model:
// - At-least-once delivery via Pub/Sub guarantees every cache sees the signal
// - Dropping an already-absent entry is a no-op, so duplicates are harmless
// - The audit log is the single source of truth for invalidation history
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"encore.dev/pubsub"
	"encore.dev/storage/sqldb"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	events "encore.app/pkg/pubsub"
)

//encore:service
type Service struct {
	auditLogger AuditLoggerInterface
	publish     publishFunc
	limiter     *rate.Limiter
	metrics     *Metrics
	now         func() time.Time
}

// publishFunc broadcasts a snapshot-changed event and returns the message ID.
type publishFunc func(ctx context.Context, event *events.SnapshotChangedEvent) (string, error)

// AuditLoggerInterface defines the interface for audit logging operations.
type AuditLoggerInterface interface {
	Insert(ctx context.Context, log AuditLog) error
	GetRecent(ctx context.Context, limit, offset int, entityFilter string) ([]AuditLog, error)
	GetCount(ctx context.Context, entityFilter string) (int, error)
	GetByRequestID(ctx context.Context, requestID string) ([]AuditLog, error)
}

// Metrics tracks invalidation signal counters.
type Metrics struct {
	TotalSignals       atomic.Int64
	MonthScopedSignals atomic.Int64
	FullFlushes        atomic.Int64
	AuditWrites        atomic.Int64
	PubSubPublishes    atomic.Int64
	RateLimited        atomic.Int64
	Errors             atomic.Int64
}

// Signal rate above this indicates a misbehaving caller rather than normal
// clinic activity. Excess signals are rejected instead of queued so a storm
// cannot wipe the caches faster than they can be rebuilt.
const (
	signalRatePerSecond = 20
	signalBurst         = 40
)

// Database for audit logging
var db = sqldb.Named("invalidation_db")

// Pub/Sub topic broadcasting snapshot changes to the read-model caches.
var SnapshotChangedTopic = pubsub.NewTopic[*events.SnapshotChangedEvent](
	"snapshot-changed",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

// NewService builds a service with explicit dependencies. Tests use it to
// substitute the audit logger and publisher.
func NewService(auditLogger AuditLoggerInterface, publish publishFunc, limiter *rate.Limiter) *Service {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(signalRatePerSecond), signalBurst)
	}
	return &Service{
		auditLogger: auditLogger,
		publish:     publish,
		limiter:     limiter,
		metrics:     &Metrics{},
		now:         time.Now,
	}
}

func initService() (*Service, error) {
	auditLogger, err := NewAuditLogger(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	return NewService(auditLogger, SnapshotChangedTopic.Publish, nil), nil
}

// Global service instance
var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize invalidation service: %v", err))
	}
}

// Request and response types

type SignalRequest struct {
	EntityType  events.EntityType `json:"entity_type"` // appointments, payments, expenses, patients, all
	MonthKey    string `json:"month_key,omitempty"` // optional "2006-01" scope
	TriggeredBy string `json:"triggered_by"`        // source identifier: ui, admin, cron
	RequestID   string `json:"request_id"`          // optional correlation ID
	Reason      string `json:"reason,omitempty"`    // free-form note, recorded in event metadata
}

type SignalResponse struct {
	Success     bool              `json:"success"`
	EntityType  events.EntityType `json:"entity_type"`
	MonthKey    string    `json:"month_key,omitempty"`
	RequestID   string    `json:"request_id"`
	PublishedAt time.Time `json:"published_at"`
}

type GetAuditLogsRequest struct {
	Limit      int    `json:"limit"`                 // Number of logs to retrieve
	Offset     int    `json:"offset"`                // Pagination offset
	EntityType string `json:"entity_type,omitempty"` // Optional: filter by entity type
}

type GetAuditLogsResponse struct {
	Logs       []AuditLog `json:"logs"`
	TotalCount int        `json:"total_count"`
	HasMore    bool       `json:"has_more"`
}

type TraceRequest struct {
	RequestID string `json:"request_id"`
}

type TraceResponse struct {
	Logs []AuditLog `json:"logs"`
}

type MetricsResponse struct {
	TotalSignals       int64   `json:"total_signals"`
	MonthScopedSignals int64   `json:"month_scoped_signals"`
	FullFlushes        int64   `json:"full_flushes"`
	AuditWrites        int64   `json:"audit_writes"`
	PubSubPublishes    int64   `json:"pubsub_publishes"`
	RateLimited        int64   `json:"rate_limited"`
	Errors             int64   `json:"errors"`
	MonthScopedRatio   float64 `json:"month_scoped_ratio"`
}

// Signal declares cached views derived from an entity type stale and
// broadcasts the change to every subscribed cache.
//
//encore:api public method=POST path=/invalidate/signal
func Signal(ctx context.Context, req *SignalRequest) (*SignalResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Signal(ctx, req)
}

func (s *Service) Signal(ctx context.Context, req *SignalRequest) (*SignalResponse, error) {
	startTime := s.now()

	if !events.ValidEntityType(req.EntityType) {
		return nil, fmt.Errorf("unknown entity type: %q", req.EntityType)
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "unknown"
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if !s.limiter.Allow() {
		s.metrics.RateLimited.Add(1)
		return nil, errors.New("invalidation rate limit exceeded")
	}

	event := &events.SnapshotChangedEvent{
		Version:     events.EventVersion1,
		Service:     "invalidation",
		EntityType:  req.EntityType,
		MonthKey:    req.MonthKey,
		TriggeredAt: startTime,
		RequestID:   req.RequestID,
	}
	if req.Reason != "" {
		event.Meta = map[string]string{"reason": req.Reason}
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signal: %w", err)
	}

	if _, err := s.publish(ctx, event); err != nil {
		s.metrics.Errors.Add(1)
		return nil, fmt.Errorf("failed to publish snapshot-changed event: %w", err)
	}
	s.metrics.PubSubPublishes.Add(1)

	// Audit write is async so a slow database never blocks the response.
	go func() {
		auditLog := AuditLog{
			EntityType:  string(req.EntityType),
			MonthKey:    req.MonthKey,
			TriggeredBy: req.TriggeredBy,
			Timestamp:   event.TriggeredAt,
			RequestID:   req.RequestID,
			LatencyMS:   time.Since(startTime).Milliseconds(),
		}
		if err := s.auditLogger.Insert(context.Background(), auditLog); err != nil {
			s.metrics.Errors.Add(1)
		} else {
			s.metrics.AuditWrites.Add(1)
		}
	}()

	s.metrics.TotalSignals.Add(1)
	if req.MonthKey != "" {
		s.metrics.MonthScopedSignals.Add(1)
	}
	if req.EntityType == events.EntityAll {
		s.metrics.FullFlushes.Add(1)
	}

	return &SignalResponse{
		Success:     true,
		EntityType:  req.EntityType,
		MonthKey:    req.MonthKey,
		RequestID:   req.RequestID,
		PublishedAt: event.TriggeredAt,
	}, nil
}

// GetAuditLogs retrieves invalidation audit history with pagination.
//
//encore:api public method=GET path=/invalidate/audit
func GetAuditLogs(ctx context.Context, req *GetAuditLogsRequest) (*GetAuditLogsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetAuditLogs(ctx, req)
}

func (s *Service) GetAuditLogs(ctx context.Context, req *GetAuditLogsRequest) (*GetAuditLogsResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	if req.Limit > 1000 {
		req.Limit = 1000 // Max page size
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	logs, err := s.auditLogger.GetRecent(ctx, req.Limit+1, req.Offset, req.EntityType)
	if err != nil {
		s.metrics.Errors.Add(1)
		return nil, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	hasMore := len(logs) > req.Limit
	if hasMore {
		logs = logs[:req.Limit]
	}

	totalCount, err := s.auditLogger.GetCount(ctx, req.EntityType)
	if err != nil {
		totalCount = len(logs) // Fallback
	}

	return &GetAuditLogsResponse{
		Logs:       logs,
		TotalCount: totalCount,
		HasMore:    hasMore,
	}, nil
}

// Trace returns all audit entries correlated with one request ID.
//
//encore:api public method=GET path=/invalidate/trace
func Trace(ctx context.Context, req *TraceRequest) (*TraceResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Trace(ctx, req)
}

func (s *Service) Trace(ctx context.Context, req *TraceRequest) (*TraceResponse, error) {
	if req.RequestID == "" {
		return nil, errors.New("request_id cannot be empty")
	}
	logs, err := s.auditLogger.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		s.metrics.Errors.Add(1)
		return nil, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return &TraceResponse{Logs: logs}, nil
}

// GetMetrics returns invalidation service metrics.
//
//encore:api public method=GET path=/invalidate/metrics
func GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetMetrics(ctx)
}

func (s *Service) GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	total := s.metrics.TotalSignals.Load()
	monthScoped := s.metrics.MonthScopedSignals.Load()

	monthRatio := 0.0
	if total > 0 {
		monthRatio = float64(monthScoped) / float64(total)
	}

	return &MetricsResponse{
		TotalSignals:       total,
		MonthScopedSignals: monthScoped,
		FullFlushes:        s.metrics.FullFlushes.Load(),
		AuditWrites:        s.metrics.AuditWrites.Load(),
		PubSubPublishes:    s.metrics.PubSubPublishes.Load(),
		RateLimited:        s.metrics.RateLimited.Load(),
		Errors:             s.metrics.Errors.Load(),
		MonthScopedRatio:   monthRatio,
	}, nil
}
