package appointments

import (
	"testing"
	"time"

	"encore.app/pkg/models"
)

func TestMonthlyAppointments_CachesDerivation(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	snapshot := []models.Appointment{
		appt(1, "2024-05-10", "09:00", "A"),
		appt(2, "2024-05-11", "10:00", "B"),
		appt(3, "2024-06-01", "09:00", "C"),
	}

	first := s.monthlyAppointments(snapshot, 2024, time.May)
	if len(first) != 2 {
		t.Fatalf("derived %d appointments for May, want 2", len(first))
	}
	if got := s.derivations.Load(); got != 1 {
		t.Fatalf("derivations = %d, want 1", got)
	}

	// Second call inside the TTL window must hit the cache.
	second := s.monthlyAppointments(snapshot, 2024, time.May)
	if got := s.derivations.Load(); got != 1 {
		t.Errorf("derivations = %d after cached call, want 1", got)
	}
	if len(second) != 2 {
		t.Errorf("cached result has %d appointments, want 2", len(second))
	}

	// After invalidation a changed snapshot is re-derived and reflected.
	s.cache.InvalidateBucket("2024-05")
	updated := append(snapshot, appt(4, "2024-05-20", "11:00", "D"))
	third := s.monthlyAppointments(updated, 2024, time.May)
	if got := s.derivations.Load(); got != 2 {
		t.Errorf("derivations = %d after invalidation, want 2", got)
	}
	if len(third) != 3 {
		t.Errorf("re-derived result has %d appointments, want 3", len(third))
	}
}

func TestMonthlyAppointments_TTLExpiryRecomputes(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	snapshot := []models.Appointment{appt(1, "2024-05-10", "09:00", "A")}

	s.monthlyAppointments(snapshot, 2024, time.May)
	clock.Advance(s.config.MonthlyTTL + time.Second)
	s.monthlyAppointments(snapshot, 2024, time.May)

	if got := s.derivations.Load(); got != 2 {
		t.Errorf("derivations = %d after TTL expiry, want 2", got)
	}
}

func TestSortedAppointments_StableOrder(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	snapshot := []models.Appointment{
		appt(1, "2024-05-10", "09:00", "First Nine"),
		appt(2, "2024-05-10", "14:30", "Afternoon"),
		appt(3, "2024-05-10", "09:00", "Second Nine"),
	}

	sorted, err := s.sortedAppointments(snapshot, "2024-05-10")
	if err != nil {
		t.Fatalf("sortedAppointments error: %v", err)
	}
	if len(sorted) != 3 {
		t.Fatalf("sorted %d appointments, want 3", len(sorted))
	}

	wantIDs := []int64{1, 3, 2}
	for i, want := range wantIDs {
		if sorted[i].ID != want {
			t.Errorf("position %d has ID %d, want %d", i, sorted[i].ID, want)
		}
	}
}

func TestSortedAppointments_InvalidDate(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	if _, err := s.sortedAppointments(nil, "10/05/2024"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestCalendarData_CountsAndToday(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	snapshot := []models.Appointment{
		appt(1, "2024-05-10", "09:00", "A"),
		appt(2, "2024-05-10", "08:30", "B"),
		appt(3, "2024-05-11", "10:00", "C"),
	}

	days := s.calendarData(snapshot, 2024, time.May)
	if days["2024-05-10"].Count != 2 {
		t.Errorf("count for 2024-05-10 = %d, want 2", days["2024-05-10"].Count)
	}
	if days["2024-05-11"].Count != 1 {
		t.Errorf("count for 2024-05-11 = %d, want 1", days["2024-05-11"].Count)
	}
	if !days["2024-05-10"].IsToday {
		t.Error("2024-05-10 should be flagged as today")
	}
	if days["2024-05-11"].IsToday {
		t.Error("2024-05-11 should not be flagged as today")
	}
	if _, ok := days["2024-05-12"]; ok {
		t.Error("days without appointments should not appear in the index")
	}
}

func TestVisibleCalendarDays_FullMonthGrid(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	snapshot := []models.Appointment{
		appt(1, "2024-05-10", "09:00", "A"),
		appt(2, "2024-05-10", "08:30", "B"),
		appt(3, "2024-05-11", "10:00", "C"),
	}

	days := s.visibleCalendarDays(snapshot, 2024, time.May)
	if len(days) != 31 {
		t.Fatalf("May grid has %d days, want 31", len(days))
	}

	day10 := days[9]
	if day10.Day != 10 || day10.Date != "2024-05-10" {
		t.Fatalf("unexpected day at index 9: %+v", day10)
	}
	if day10.AppointmentCount != 2 {
		t.Errorf("day 10 count = %d, want 2", day10.AppointmentCount)
	}
	if day10.Appointments[0].Time != "08:30" || day10.Appointments[1].Time != "09:00" {
		t.Errorf("day 10 appointments not sorted by time slot: %s, %s",
			day10.Appointments[0].Time, day10.Appointments[1].Time)
	}
	if !day10.IsToday {
		t.Error("day 10 should be flagged as today")
	}

	// 2024-05-11 was a Saturday, index 0 in the Saturday-first week.
	if days[10].Weekday != 0 {
		t.Errorf("weekday of 2024-05-11 = %d, want 0", days[10].Weekday)
	}
	if days[9].Weekday != 6 {
		t.Errorf("weekday of 2024-05-10 = %d, want 6", days[9].Weekday)
	}

	// Empty days still render with zero counts.
	if days[0].AppointmentCount != 0 || len(days[0].Appointments) != 0 {
		t.Errorf("day 1 should be empty, got %+v", days[0])
	}
}

func TestVisibleCalendarDays_FebruaryLeapYear(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	if got := len(s.visibleCalendarDays(nil, 2024, time.February)); got != 29 {
		t.Errorf("February 2024 grid has %d days, want 29", got)
	}
	if got := len(s.visibleCalendarDays(nil, 2023, time.February)); got != 28 {
		t.Errorf("February 2023 grid has %d days, want 28", got)
	}
}

func TestDateRangeAppointments_AdjacentMonths(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC))
	s, _ := newTestService(clock)

	snapshot := []models.Appointment{
		appt(1, "2024-02-14", "09:00", "Feb"),
		appt(2, "2024-03-31", "10:00", "Mar"),
		appt(3, "2024-04-01", "11:00", "Apr"),
	}

	// March 31 exercises the month-boundary normalization trap.
	r, err := s.dateRangeAppointments(snapshot, "2024-03-31")
	if err != nil {
		t.Fatalf("dateRangeAppointments error: %v", err)
	}
	if len(r.Previous) != 1 || r.Previous[0].PatientName != "Feb" {
		t.Errorf("previous month mismatch: %+v", r.Previous)
	}
	if len(r.Current) != 1 || r.Current[0].PatientName != "Mar" {
		t.Errorf("current month mismatch: %+v", r.Current)
	}
	if len(r.Next) != 1 || r.Next[0].PatientName != "Apr" {
		t.Errorf("next month mismatch: %+v", r.Next)
	}

	// All three month projections should now be cached.
	if got := s.derivations.Load(); got != 3 {
		t.Errorf("derivations = %d, want 3", got)
	}
	s.monthlyAppointments(snapshot, 2024, time.February)
	s.monthlyAppointments(snapshot, 2024, time.April)
	if got := s.derivations.Load(); got != 3 {
		t.Errorf("derivations = %d after cached neighbor reads, want 3", got)
	}
}
