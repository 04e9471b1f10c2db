package models

import (
	"time"

	"gorm.io/gorm"
)

// Appointment statuses. Cancellation is a status transition; rows are never
// physically deleted.
const (
	AppointmentScheduled = "scheduled"
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"
)

// ActiveAppointmentStatuses are the states that block calendar slots.
var ActiveAppointmentStatuses = []string{AppointmentScheduled, AppointmentConfirmed}

// Appointment is a scheduled booking. StartsAt always holds the true UTC
// instant; localization to the business zone happens only at the edges.
// UserID is nullable because bookings arriving through the native in-chat UI
// may not carry an owner.
type Appointment struct {
	gorm.Model
	UserID *uint `gorm:"index" json:"user_id"`

	ContactWaID string `gorm:"index" json:"contact_wa_id"`
	ContactName string `json:"contact_name"`

	StartsAt    time.Time `gorm:"not null;index" json:"starts_at"`
	DurationMin int       `gorm:"not null;default:30" json:"duration_min"`
	Status      string    `gorm:"default:'scheduled';index" json:"status"`
	Notes       string    `gorm:"type:text" json:"notes"`
}

// EndsAt returns the UTC instant the appointment finishes.
func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMin) * time.Minute)
}

// IsActive reports whether the appointment still blocks its slots.
func (a *Appointment) IsActive() bool {
	return a.Status == AppointmentScheduled || a.Status == AppointmentConfirmed
}
