package models

// TodayStats aggregates activity for the current day.
type TodayStats struct {
	Date             string  `json:"date"`
	AppointmentCount int     `json:"appointment_count"`
	PatientCount     int     `json:"patient_count"` // distinct patients seen today
	Revenue          float64 `json:"revenue"`
	Expenses         float64 `json:"expenses"`
	Net              float64 `json:"net"`
}

// MonthlyStats aggregates activity for a calendar month.
type MonthlyStats struct {
	Month            string  `json:"month"` // "2006-01"
	AppointmentCount int     `json:"appointment_count"`
	NewPatients      int     `json:"new_patients"`
	TotalRevenue     float64 `json:"total_revenue"`
	TotalExpenses    float64 `json:"total_expenses"`
	NetProfit        float64 `json:"net_profit"`
}

// WeeklyStats aggregates activity for the clinic week (Saturday..Friday)
// containing the reference day.
type WeeklyStats struct {
	WeekStart        string  `json:"week_start"` // ISO day string of the Saturday
	WeekEnd          string  `json:"week_end"`   // ISO day string of the Friday
	AppointmentCount int     `json:"appointment_count"`
	Revenue          float64 `json:"revenue"`
	Expenses         float64 `json:"expenses"`
	Net              float64 `json:"net"`
}

// QuickStats holds system-wide counts for the dashboard header.
type QuickStats struct {
	TotalPatients       int `json:"total_patients"`
	TotalDoctors        int `json:"total_doctors"`
	PendingAppointments int `json:"pending_appointments"` // pending or scheduled
	OverduePayments     int `json:"overdue_payments"`
}

// EnrichedAppointment is a dashboard today-list item with resolved names.
type EnrichedAppointment struct {
	Appointment
	DisplayTime string `json:"display_time"` // 12-hour rendering of Time
}

// DashboardStats is the full dashboard aggregate assembled by AllStats.
type DashboardStats struct {
	Today             TodayStats            `json:"today"`
	Monthly           MonthlyStats          `json:"monthly"`
	TodayAppointments []EnrichedAppointment `json:"today_appointments"`
	Quick             QuickStats            `json:"quick"`
}

// OptimizedAppointment is the normalized, sortable, searchable projection the
// appointment optimizer derives from a raw appointment.
type OptimizedAppointment struct {
	Appointment
	TimeSlot    int    `json:"time_slot"`    // minutes since midnight; 0 when unparseable
	DisplayTime string `json:"display_time"` // 12-hour rendering of Time
	SortKey     string `json:"sort_key"`     // date + time concatenation
	SearchText  string `json:"search_text"`  // lowercased haystack for substring search
}

// CalendarDay is one bucket of the date->count calendar index.
type CalendarDay struct {
	Date    string `json:"date"`
	Count   int    `json:"count"`
	IsToday bool   `json:"is_today"`
}

// VisibleDay is one cell of a rendered month grid.
type VisibleDay struct {
	Date             string                 `json:"date"`
	Day              int                    `json:"day"`     // day of month, 1-based
	Weekday          int                    `json:"weekday"` // Saturday-first index, Sat=0..Fri=6
	IsToday          bool                   `json:"is_today"`
	AppointmentCount int                    `json:"appointment_count"`
	Appointments     []OptimizedAppointment `json:"appointments"`
}

// AppointmentStats summarizes an appointment snapshot.
type AppointmentStats struct {
	Total     int            `json:"total"`
	Today     int            `json:"today"`
	ThisMonth int            `json:"this_month"`
	ByStatus  map[string]int `json:"by_status"`
}

// DateRangeAppointments bundles the current month's projection with its
// neighbors for fast calendar navigation.
type DateRangeAppointments struct {
	Previous []OptimizedAppointment `json:"previous"`
	Current  []OptimizedAppointment `json:"current"`
	Next     []OptimizedAppointment `json:"next"`
}
