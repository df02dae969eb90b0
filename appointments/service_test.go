package appointments

import (
	"context"
	"testing"
	"time"

	"encore.app/pkg/models"
	events "encore.app/pkg/pubsub"
)

func warmTwoMonths(t *testing.T, s *Service) []models.Appointment {
	t.Helper()
	snapshot := []models.Appointment{
		appt(1, "2024-05-10", "09:00", "A"),
		appt(2, "2024-06-01", "10:00", "B"),
	}
	s.monthlyAppointments(snapshot, 2024, time.May)
	s.monthlyAppointments(snapshot, 2024, time.June)
	s.calendarData(snapshot, 2024, time.May)
	return snapshot
}

func TestInvalidate_MonthScopeLeavesNeighbors(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)
	snapshot := warmTwoMonths(t, s)

	resp, err := s.Invalidate(context.Background(), &InvalidateRequest{
		Scope:    "month",
		MonthKey: "2024-05",
	})
	if err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	if resp.Removed != 2 {
		t.Errorf("removed %d entries, want 2 (monthly + calendar)", resp.Removed)
	}

	// June survives, May is re-derived on next access.
	before := s.derivations.Load()
	s.monthlyAppointments(snapshot, 2024, time.June)
	if got := s.derivations.Load(); got != before {
		t.Error("June projection should still be cached")
	}
	s.monthlyAppointments(snapshot, 2024, time.May)
	if got := s.derivations.Load(); got != before+1 {
		t.Error("May projection should have been re-derived")
	}
}

func TestInvalidate_AllClearsEverything(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)
	warmTwoMonths(t, s)

	s.displayTime("14:30")
	resp, err := s.Invalidate(context.Background(), &InvalidateRequest{Scope: "all"})
	if err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	if resp.Removed != 3 {
		t.Errorf("removed %d entries, want 3", resp.Removed)
	}
	if s.cache.Len() != 0 {
		t.Errorf("cache has %d entries after full invalidation", s.cache.Len())
	}

	s.timeConvMu.RLock()
	convSize := len(s.timeConv)
	s.timeConvMu.RUnlock()
	if convSize != 0 {
		t.Errorf("time-conversion sub-cache has %d entries, want 0", convSize)
	}
}

func TestInvalidate_Validation(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	if _, err := s.Invalidate(context.Background(), &InvalidateRequest{Scope: "month"}); err == nil {
		t.Error("expected error for month scope without month key")
	}
	if _, err := s.Invalidate(context.Background(), &InvalidateRequest{Scope: "weekly"}); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestHandleSnapshotChanged(t *testing.T) {
	newEvent := func(entity events.EntityType, monthKey string) *events.SnapshotChangedEvent {
		return &events.SnapshotChangedEvent{
			Version:     events.EventVersion1,
			Service:     "invalidation",
			EntityType:  entity,
			MonthKey:    monthKey,
			TriggeredAt: time.Now(),
			RequestID:   "r-1",
		}
	}

	t.Run("appointments with month key drops one bucket", func(t *testing.T) {
		clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
		s, _ := newTestService(clock)
		warmTwoMonths(t, s)

		if err := s.handleSnapshotChanged(context.Background(), newEvent(events.EntityAppointments, "2024-05")); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if _, ok := s.cache.Get(keyMonthly + "2024-06"); !ok {
			t.Error("June entry should survive a May invalidation")
		}
		if _, ok := s.cache.Get(keyMonthly + "2024-05"); ok {
			t.Error("May entry should be gone")
		}
	})

	t.Run("appointments without month key clears cache", func(t *testing.T) {
		clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
		s, _ := newTestService(clock)
		warmTwoMonths(t, s)

		if err := s.handleSnapshotChanged(context.Background(), newEvent(events.EntityAppointments, "")); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if s.cache.Len() != 0 {
			t.Errorf("cache has %d entries, want 0", s.cache.Len())
		}
	})

	t.Run("unrelated entity is ignored", func(t *testing.T) {
		clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
		s, _ := newTestService(clock)
		warmTwoMonths(t, s)

		if err := s.handleSnapshotChanged(context.Background(), newEvent(events.EntityPayments, "")); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if s.cache.Len() != 3 {
			t.Errorf("cache has %d entries, want 3 untouched", s.cache.Len())
		}
	})

	t.Run("all clears cache and sub-cache", func(t *testing.T) {
		clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
		s, _ := newTestService(clock)
		warmTwoMonths(t, s)
		s.displayTime("09:00")

		if err := s.handleSnapshotChanged(context.Background(), newEvent(events.EntityAll, "")); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if s.cache.Len() != 0 {
			t.Errorf("cache has %d entries, want 0", s.cache.Len())
		}
		s.timeConvMu.RLock()
		convSize := len(s.timeConv)
		s.timeConvMu.RUnlock()
		if convSize != 0 {
			t.Errorf("time-conversion sub-cache has %d entries, want 0", convSize)
		}
	})
}

func TestMonthlyEndpoint_Validation(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	for _, month := range []int{0, 13, -1} {
		if _, err := s.Monthly(context.Background(), &MonthlyRequest{Year: 2024, Month: month}); err == nil {
			t.Errorf("expected error for month %d", month)
		}
	}

	resp, err := s.Monthly(context.Background(), &MonthlyRequest{
		Appointments: []models.Appointment{appt(1, "2024-05-10", "09:00", "A")},
		Year:         2024,
		Month:        5,
	})
	if err != nil {
		t.Fatalf("Monthly error: %v", err)
	}
	if resp.MonthKey != "2024-05" {
		t.Errorf("MonthKey = %q, want 2024-05", resp.MonthKey)
	}
	if len(resp.Appointments) != 1 {
		t.Errorf("appointments = %d, want 1", len(resp.Appointments))
	}
}

func TestCacheMetricsEndpoint(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)
	snapshot := warmTwoMonths(t, s)

	s.monthlyAppointments(snapshot, 2024, time.May) // hit

	m, err := s.CacheMetrics(context.Background())
	if err != nil {
		t.Fatalf("CacheMetrics error: %v", err)
	}
	if m.Entries != 3 {
		t.Errorf("Entries = %d, want 3", m.Entries)
	}
	if m.Derivations != 2 {
		t.Errorf("Derivations = %d, want 2", m.Derivations)
	}
	if m.Hits < 1 {
		t.Errorf("Hits = %d, want at least 1", m.Hits)
	}
	if m.Sets != 3 {
		t.Errorf("Sets = %d, want 3", m.Sets)
	}
}
