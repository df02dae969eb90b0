package models

import "time"

// DayKey formats t as an ISO day string in t's location.
func DayKey(t time.Time) string {
	return t.Format(ISODate)
}

// MonthKey formats t as "yyyy-MM".
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// MonthKeyFor builds a "yyyy-MM" key from a year and 1-based month.
func MonthKeyFor(year int, month time.Month) string {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// MonthBounds returns the first instant of the month containing t and the
// first instant of the following month, in t's location. The half-open range
// [start, end) covers the whole month.
func MonthBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// DayBounds returns the first instant of t's day and the first instant of the
// next day.
func DayBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// DaysInMonth returns the number of calendar days in the given month (28-31).
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WeekdayIndex maps t's weekday to the clinic's Saturday-first convention:
// Saturday=0, Sunday=1, ... Friday=6.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 1) % 7
}

// WeekBounds returns the first instant of the Saturday starting the clinic
// week containing t, and the first instant of the following Saturday.
func WeekBounds(t time.Time) (start, end time.Time) {
	day, _ := DayBounds(t)
	start = day.AddDate(0, 0, -WeekdayIndex(day))
	return start, start.AddDate(0, 0, 7)
}

// InRange reports whether t falls within the half-open range [start, end).
func InRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
