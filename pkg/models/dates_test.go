package models

import (
	"testing"
	"time"
)

func TestDayAndMonthKeys(t *testing.T) {
	d := time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)
	if got := DayKey(d); got != "2024-05-10" {
		t.Errorf("DayKey = %q, want 2024-05-10", got)
	}
	if got := MonthKey(d); got != "2024-05" {
		t.Errorf("MonthKey = %q, want 2024-05", got)
	}
	if got := MonthKeyFor(2024, time.December); got != "2024-12" {
		t.Errorf("MonthKeyFor = %q, want 2024-12", got)
	}
}

func TestMonthBounds(t *testing.T) {
	d := time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)
	start, end := MonthBounds(d)

	if !start.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if !end.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", end)
	}

	// December rolls into the next year.
	start, end = MonthBounds(time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC))
	if start.Month() != time.December || end.Year() != 2024 || end.Month() != time.January {
		t.Errorf("december bounds = [%v, %v)", start, end)
	}
}

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2024, time.May, 31},
		{2024, time.April, 30},
		{2024, time.February, 29}, // leap year
		{2023, time.February, 28},
		{2024, time.December, 31},
	}
	for _, tt := range tests {
		if got := DaysInMonth(tt.year, tt.month); got != tt.want {
			t.Errorf("DaysInMonth(%d, %v) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestWeekdayIndexSaturdayFirst(t *testing.T) {
	// 2024-05-11 was a Saturday.
	sat := time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		if got := WeekdayIndex(sat.AddDate(0, 0, i)); got != i {
			t.Errorf("WeekdayIndex(+%dd) = %d, want %d", i, got, i)
		}
	}
}

func TestWeekBounds(t *testing.T) {
	// Wednesday 2024-05-15 belongs to the clinic week Sat 05-11 .. Fri 05-17.
	wed := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	start, end := WeekBounds(wed)

	if DayKey(start) != "2024-05-11" {
		t.Errorf("week start = %s, want 2024-05-11", DayKey(start))
	}
	if DayKey(end) != "2024-05-18" {
		t.Errorf("week end = %s, want 2024-05-18", DayKey(end))
	}

	// A Saturday starts its own week.
	start, _ = WeekBounds(time.Date(2024, 5, 11, 23, 0, 0, 0, time.UTC))
	if DayKey(start) != "2024-05-11" {
		t.Errorf("saturday week start = %s, want 2024-05-11", DayKey(start))
	}
}

func TestInRange(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	if !InRange(start, start, end) {
		t.Error("range start should be inclusive")
	}
	if InRange(end, start, end) {
		t.Error("range end should be exclusive")
	}
	if !InRange(start.AddDate(0, 0, 15), start, end) {
		t.Error("mid-month instant should be in range")
	}
}
