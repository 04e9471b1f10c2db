package utils

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"waflow/config"
	"waflow/models"
)

const slotDateLayout = "2006-01-02"

// Slot is one bookable interval, ID carries the local date+time so it can
// round-trip through the booking protocol unchanged.
type Slot struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SlotConfig captures the deployment's business-hours calendar in its fixed
// local zone.
type SlotConfig struct {
	Location    *time.Location
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	SlotMinutes int
}

// SlotConfigFromApp builds the calendar settings from loaded configuration.
func SlotConfigFromApp() SlotConfig {
	b := config.AppConfig.Booking
	return SlotConfig{
		Location:    config.BusinessLocation(),
		OpenHour:    b.OpenHour,
		OpenMinute:  b.OpenMinute,
		CloseHour:   b.CloseHour,
		CloseMinute: b.CloseMinute,
		SlotMinutes: b.SlotMinutes,
	}
}

// LocalDayBounds returns the UTC instants bounding the given local date.
func LocalDayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(slotDateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

// LocalToUTC converts a local "YYYY-MM-DD HH:MM" pair to its UTC instant.
func LocalToUTC(date, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(slotDateLayout+" 15:04", date+" "+hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid local time %q %q: %w", date, hhmm, err)
	}
	return t.UTC(), nil
}

// ComputeSlots enumerates the surviving slots for one local date. A slot is
// blocked when any active appointment overlaps any part of its interval, so an
// appointment that starts mid-slot still consumes every slot it touches; when
// the date is today in the business zone, slots not strictly after now are
// dropped.
func ComputeSlots(date string, appointments []models.Appointment, now time.Time, cfg SlotConfig) ([]Slot, error) {
	day, err := time.ParseInLocation(slotDateLayout, date, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	open := time.Date(day.Year(), day.Month(), day.Day(), cfg.OpenHour, cfg.OpenMinute, 0, 0, cfg.Location)
	close := time.Date(day.Year(), day.Month(), day.Day(), cfg.CloseHour, cfg.CloseMinute, 0, 0, cfg.Location)
	step := time.Duration(cfg.SlotMinutes) * time.Minute

	localNow := now.In(cfg.Location)
	isToday := localNow.Format(slotDateLayout) == date

	var slots []Slot
	for t := open; t.Before(close); t = t.Add(step) {
		if slotBlocked(t, step, appointments) {
			continue
		}
		if isToday && !t.After(localNow) {
			continue
		}
		slots = append(slots, Slot{
			ID:    t.Format(slotDateLayout + " 15:04"),
			Title: t.Format("03:04 PM"),
		})
	}
	return slots, nil
}

// slotBlocked reports whether any active appointment overlaps the interval
// [t, t+step). A partial overlap blocks the whole slot.
func slotBlocked(t time.Time, step time.Duration, appointments []models.Appointment) bool {
	slotEnd := t.Add(step)
	for i := range appointments {
		appt := &appointments[i]
		if !appt.IsActive() {
			continue
		}
		if t.Before(appt.EndsAt()) && slotEnd.After(appt.StartsAt) {
			return true
		}
	}
	return false
}

// AvailableSlots loads the active appointments overlapping the local day and
// computes the open slots for it.
func AvailableSlots(db *gorm.DB, date string) ([]Slot, error) {
	cfg := SlotConfigFromApp()

	dayStart, dayEnd, err := LocalDayBounds(date, cfg.Location)
	if err != nil {
		return nil, err
	}

	var appointments []models.Appointment
	if err := db.Where("status IN ?", models.ActiveAppointmentStatuses).
		Where("starts_at < ? AND starts_at + (duration_min * interval '1 minute') > ?", dayEnd, dayStart).
		Find(&appointments).Error; err != nil {
		return nil, err
	}

	return ComputeSlots(date, appointments, time.Now(), cfg)
}

// NextDays lists the next n calendar days in the business zone, today first.
func NextDays(n int, now time.Time, loc *time.Location) []Slot {
	localNow := now.In(loc)
	days := make([]Slot, 0, n)
	for i := 0; i < n; i++ {
		d := localNow.AddDate(0, 0, i)
		days = append(days, Slot{
			ID:    d.Format(slotDateLayout),
			Title: d.Format("Mon, Jan 2"),
		})
	}
	return days
}
