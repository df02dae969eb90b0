package invalidation

import (
	"context"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"
)

// AuditLog records one invalidation signal for traceability. Every signal the
// clinic front-end sends ends up here, whether or not any cache entry was
// actually dropped.
type AuditLog struct {
	ID          int64     `json:"id"`
	EntityType  string    `json:"entity_type"`         // appointments, payments, expenses, patients, all
	MonthKey    string    `json:"month_key,omitempty"` // optional month scope ("2006-01")
	TriggeredBy string    `json:"triggered_by"`        // source: ui, admin, cron
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
	LatencyMS   int64     `json:"latency_ms"` // signal handling latency
}

// AuditLogger provides persistent storage of invalidation signals.
//
// Append-only: rows are never updated or deleted, so the log doubles as an
// immutable history of when each cached view was declared stale.
type AuditLogger struct {
	db *sqldb.Database
}

// NewAuditLogger creates an audit logger and ensures its schema exists.
func NewAuditLogger(db *sqldb.Database) (*AuditLogger, error) {
	logger := &AuditLogger{db: db}
	if err := logger.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return logger, nil
}

func (al *AuditLogger) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS invalidation_audit (
			id BIGSERIAL PRIMARY KEY,
			entity_type TEXT NOT NULL,
			month_key TEXT NOT NULL DEFAULT '',
			triggered_by TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			request_id TEXT NOT NULL,
			latency_ms BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_invalidation_audit_timestamp
		ON invalidation_audit(timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_invalidation_audit_entity_type
		ON invalidation_audit(entity_type);

		CREATE INDEX IF NOT EXISTS idx_invalidation_audit_request_id
		ON invalidation_audit(request_id);
	`

	_, err := al.db.Exec(ctx, query)
	return err
}

// Insert appends a new audit log entry.
func (al *AuditLogger) Insert(ctx context.Context, log AuditLog) error {
	query := `
		INSERT INTO invalidation_audit
		(entity_type, month_key, triggered_by, timestamp, request_id, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := al.db.Exec(ctx, query,
		log.EntityType,
		log.MonthKey,
		log.TriggeredBy,
		log.Timestamp,
		log.RequestID,
		log.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetRecent retrieves recent audit logs, newest first, optionally filtered by
// entity type.
func (al *AuditLogger) GetRecent(ctx context.Context, limit, offset int, entityFilter string) ([]AuditLog, error) {
	query := `
		SELECT id, entity_type, month_key, triggered_by, timestamp, request_id, latency_ms
		FROM invalidation_audit
		WHERE ($1 = '' OR entity_type = $1)
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := al.db.Query(ctx, query, entityFilter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]AuditLog, 0, limit)
	for rows.Next() {
		var l AuditLog
		if err := rows.Scan(&l.ID, &l.EntityType, &l.MonthKey, &l.TriggeredBy, &l.Timestamp, &l.RequestID, &l.LatencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

// GetCount returns the number of audit logs, optionally filtered by entity
// type.
func (al *AuditLogger) GetCount(ctx context.Context, entityFilter string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM invalidation_audit
		WHERE ($1 = '' OR entity_type = $1)
	`

	var count int
	if err := al.db.QueryRow(ctx, query, entityFilter).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return count, nil
}

// GetByRequestID retrieves all audit entries correlated with a request ID.
func (al *AuditLogger) GetByRequestID(ctx context.Context, requestID string) ([]AuditLog, error) {
	query := `
		SELECT id, entity_type, month_key, triggered_by, timestamp, request_id, latency_ms
		FROM invalidation_audit
		WHERE request_id = $1
		ORDER BY timestamp DESC
	`

	rows, err := al.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs by request id: %w", err)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var l AuditLog
		if err := rows.Scan(&l.ID, &l.EntityType, &l.MonthKey, &l.TriggeredBy, &l.Timestamp, &l.RequestID, &l.LatencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}
