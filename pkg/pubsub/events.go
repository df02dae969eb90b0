package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event versioning strategy:
// - Version 1: Initial schema
// - Future versions: Add fields, never remove (backward compatible)
// - Consumers should check Version and handle appropriately

const (
	// EventVersion1 is the current event schema version
	EventVersion1 = 1
)

// EntityType identifies which entity snapshot changed. This is the only
// payload an invalidation signal carries.
type EntityType string

const (
	EntityAppointments EntityType = "appointments"
	EntityPayments     EntityType = "payments"
	EntityExpenses     EntityType = "expenses"
	EntityPatients     EntityType = "patients"
	EntityAll          EntityType = "all"
)

// ValidEntityType reports whether t is a recognized entity type.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityAppointments, EntityPayments, EntityExpenses, EntityPatients, EntityAll:
		return true
	}
	return false
}

// SnapshotChangedEvent announces that an entity snapshot was mutated and the
// derived caches built from it are now stale. Published to
// TopicSnapshotChanged by the invalidation service; the optimizer services
// subscribe and drop their affected buckets.
//
// Design notes:
//   - EntityType drives the dashboard optimizer's prefix mapping
//   - MonthKey (optional) narrows appointment-optimizer invalidation to one
//     month bucket; empty means every month bucket is affected
//   - RequestID enables correlation with the audit trail
type SnapshotChangedEvent struct {
	// Version of the event schema (for backward compatibility)
	Version int `json:"version"`

	// Service that triggered the invalidation (e.g. "invalidation", "admin")
	Service string `json:"service"`

	// EntityType that changed
	EntityType EntityType `json:"entity_type"`

	// MonthKey ("2006-01") scopes appointment invalidation to one month.
	// Optional; only meaningful when EntityType is appointments.
	MonthKey string `json:"month_key,omitempty"`

	// TriggeredAt is the time the invalidation was requested
	TriggeredAt time.Time `json:"triggered_at"`

	// Meta contains optional metadata (e.g., reason, user_id)
	Meta map[string]string `json:"meta,omitempty"`

	// RequestID for tracing and audit correlation
	RequestID string `json:"request_id"`
}

// Validate checks if the SnapshotChangedEvent is well-formed.
func (e *SnapshotChangedEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}

	if e.Service == "" {
		return errors.New("service field is required")
	}

	if !ValidEntityType(e.EntityType) {
		return fmt.Errorf("unknown entity type: %q", e.EntityType)
	}

	if e.MonthKey != "" {
		if _, err := time.Parse("2006-01", e.MonthKey); err != nil {
			return fmt.Errorf("malformed month key %q: %w", e.MonthKey, err)
		}
	}

	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}

	if e.RequestID == "" {
		return errors.New("request_id is required for tracing")
	}

	return nil
}

// ToJSON serializes the event to JSON.
func (e *SnapshotChangedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SnapshotChangedEventFromJSON deserializes a SnapshotChangedEvent from JSON.
func SnapshotChangedEventFromJSON(data []byte) (*SnapshotChangedEvent, error) {
	var e SnapshotChangedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal SnapshotChangedEvent: %w", err)
	}
	return &e, nil
}

// CacheSweptEvent reports the outcome of a periodic sweep so monitoring can
// track how much stale data the caches are shedding. Published to
// TopicCacheSwept by the optimizer services.
type CacheSweptEvent struct {
	// Version of the event schema
	Version int `json:"version"`

	// Service whose cache was swept ("dashboard", "appointments")
	Service string `json:"service"`

	// Removed is the number of expired entries deleted
	Removed int `json:"removed"`

	// Remaining is the number of live entries after the sweep
	Remaining int `json:"remaining"`

	// SweptAt is the time the sweep completed
	SweptAt time.Time `json:"swept_at"`
}

// Validate checks if the CacheSweptEvent is well-formed.
func (e *CacheSweptEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}

	if e.Service == "" {
		return errors.New("service field is required")
	}

	if e.Removed < 0 || e.Remaining < 0 {
		return errors.New("counts cannot be negative")
	}

	if e.SweptAt.IsZero() {
		return errors.New("swept_at cannot be zero")
	}

	return nil
}

// ToJSON serializes the event to JSON.
func (e *CacheSweptEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
