// Package models provides the canonical entity schemas and derived read-model
// types shared across the clinic services.
//
// Design Philosophy:
// - Entity snapshots are caller-owned: services read them, never mutate them
// - Explicit typed schemas at the input boundary (no loose field access)
// - Dates travel as ISO day strings ("2006-01-02") plus a free-form time
//   string, matching how the clinic front-end stores them
// - Derived read models are plain records, safe to serialize as JSON
package models

import "time"

// ISODate is the layout for day-granularity date strings.
const ISODate = "2006-01-02"

// AppointmentStatus enumerates the lifecycle states of an appointment.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// PaymentStatus enumerates payment states.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Appointment is a single scheduled visit. PatientName and DoctorName are the
// names as stored at booking time; they are authoritative only when the
// referenced patient or doctor record no longer exists in the snapshot.
type Appointment struct {
	ID           int64             `json:"id"`
	PatientID    int64             `json:"patient_id"`
	DoctorID     int64             `json:"doctor_id"`
	PatientName  string            `json:"patient_name"`
	DoctorName   string            `json:"doctor_name"`
	Date         string            `json:"date"` // ISO day string, e.g. "2024-05-10"
	Time         string            `json:"time"` // "15:04" or "3:04 PM"
	Status       AppointmentStatus `json:"status"`
	IsNewPatient bool              `json:"is_new_patient"`
	Treatment    string            `json:"treatment"`
	Notes        string            `json:"notes"`
}

// Patient is a registered clinic patient.
type Patient struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Doctor is a member of the clinical staff.
type Doctor struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

// Payment is money received (or expected) from a patient.
type Payment struct {
	ID          int64         `json:"id"`
	PatientID   int64         `json:"patient_id"`
	Amount      float64       `json:"amount"`
	PaymentDate time.Time     `json:"payment_date"`
	DueDate     time.Time     `json:"due_date"`
	Status      PaymentStatus `json:"status"`
}

// Expense is money spent by the practice.
type Expense struct {
	ID       int64     `json:"id"`
	Amount   float64   `json:"amount"`
	Date     time.Time `json:"date"`
	Category string    `json:"category"`
}
