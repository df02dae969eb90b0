package appointments

import (
	"fmt"
	"time"

	"encore.app/pkg/models"
)

// Cache key prefixes. Month-scoped entries carry the month key as bucket tag
// so one invalidation drops every view of that month.
const (
	keyMonthly  = "monthly_appointments_" // + "2006-01", TTL 10m
	keySorted   = "sorted_appointments_"  // + "2006-01-02", TTL 5m
	keyCalendar = "calendar_data_"        // + "2006-01", TTL 2m
)

// monthlyAppointments returns the optimized projection for one month, cached
// and deduplicated so concurrent misses for the same month derive once.
func (s *Service) monthlyAppointments(snapshot []models.Appointment, year int, month time.Month) []models.OptimizedAppointment {
	monthKey := models.MonthKeyFor(year, month)
	cacheKey := keyMonthly + monthKey

	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]models.OptimizedAppointment)
	}

	result, _, _ := s.deduper.Do(cacheKey, func() (any, error) {
		// Re-check: a concurrent caller may have populated the entry
		// between our miss and acquiring the flight.
		if cached, ok := s.cache.Get(cacheKey); ok {
			return cached, nil
		}
		derived := s.deriveMonth(snapshot, monthKey)
		s.cache.Set(cacheKey, derived, s.config.MonthlyTTL, monthKey)
		return derived, nil
	})
	return result.([]models.OptimizedAppointment)
}

// sortedAppointments returns one day's appointments ordered by time slot.
func (s *Service) sortedAppointments(snapshot []models.Appointment, date string) ([]models.OptimizedAppointment, error) {
	day, err := time.Parse(models.ISODate, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	cacheKey := keySorted + date

	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]models.OptimizedAppointment), nil
	}

	monthly := s.monthlyAppointments(snapshot, day.Year(), day.Month())
	daily := make([]models.OptimizedAppointment, 0)
	for _, appt := range monthly {
		if appt.Date == date {
			daily = append(daily, appt)
		}
	}
	sorted := sortByTimeSlot(daily)

	s.cache.Set(cacheKey, sorted, s.config.SortedTTL, models.MonthKey(day))
	return sorted, nil
}

// calendarData builds the date->count index for one month in a single pass.
func (s *Service) calendarData(snapshot []models.Appointment, year int, month time.Month) map[string]models.CalendarDay {
	monthKey := models.MonthKeyFor(year, month)
	cacheKey := keyCalendar + monthKey

	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(map[string]models.CalendarDay)
	}

	today := models.DayKey(s.now())
	index := make(map[string]models.CalendarDay)
	for _, appt := range s.monthlyAppointments(snapshot, year, month) {
		day := index[appt.Date]
		day.Date = appt.Date
		day.Count++
		day.IsToday = appt.Date == today
		index[appt.Date] = day
	}

	s.cache.Set(cacheKey, index, s.config.CalendarTTL, monthKey)
	return index
}

// visibleCalendarDays produces one entry per calendar day of the month, each
// carrying its sorted appointments. Not cached itself: it is cheap given the
// cached monthly projection.
func (s *Service) visibleCalendarDays(snapshot []models.Appointment, year int, month time.Month) []models.VisibleDay {
	monthly := s.monthlyAppointments(snapshot, year, month)

	byDate := make(map[string][]models.OptimizedAppointment)
	for _, appt := range monthly {
		byDate[appt.Date] = append(byDate[appt.Date], appt)
	}

	today := models.DayKey(s.now())
	total := models.DaysInMonth(year, month)
	days := make([]models.VisibleDay, 0, total)
	for dayNum := 1; dayNum <= total; dayNum++ {
		date := time.Date(year, month, dayNum, 0, 0, 0, 0, time.UTC)
		dateKey := models.DayKey(date)
		appts := sortByTimeSlot(byDate[dateKey])
		days = append(days, models.VisibleDay{
			Date:             dateKey,
			Day:              dayNum,
			Weekday:          models.WeekdayIndex(date),
			IsToday:          dateKey == today,
			AppointmentCount: len(appts),
			Appointments:     appts,
		})
	}
	return days
}

// dateRangeAppointments loads the month containing currentDate plus both
// neighbors, pre-warming the cache for calendar navigation.
func (s *Service) dateRangeAppointments(snapshot []models.Appointment, currentDate string) (models.DateRangeAppointments, error) {
	day, err := time.Parse(models.ISODate, currentDate)
	if err != nil {
		return models.DateRangeAppointments{}, fmt.Errorf("invalid date %q: %w", currentDate, err)
	}

	// Anchor at the first of the month so AddDate cannot normalize across
	// month boundaries (e.g. March 31 minus one month).
	anchor := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := anchor.AddDate(0, -1, 0)
	next := anchor.AddDate(0, 1, 0)
	return models.DateRangeAppointments{
		Previous: s.monthlyAppointments(snapshot, prev.Year(), prev.Month()),
		Current:  s.monthlyAppointments(snapshot, anchor.Year(), anchor.Month()),
		Next:     s.monthlyAppointments(snapshot, next.Year(), next.Month()),
	}, nil
}
