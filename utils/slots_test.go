package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waflow/models"
)

func testSlotConfig() SlotConfig {
	return SlotConfig{
		Location:    time.FixedZone("business", 330*60),
		OpenHour:    9,
		CloseHour:   17,
		SlotMinutes: 30,
	}
}

func slotIDs(slots []Slot) []string {
	ids := make([]string, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestComputeSlotsFullDay(t *testing.T) {
	cfg := testSlotConfig()
	// A "now" well before the target date so the today filter never applies.
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, cfg.Location)

	slots, err := ComputeSlots("2026-03-02", nil, now, cfg)
	require.NoError(t, err)

	// 09:00 through 16:30 at 30 minute steps.
	require.Len(t, slots, 16)
	assert.Equal(t, "2026-03-02 09:00", slots[0].ID)
	assert.Equal(t, "09:00 AM", slots[0].Title)
	assert.Equal(t, "2026-03-02 16:30", slots[15].ID)
	assert.Equal(t, "04:30 PM", slots[15].Title)
}

func TestComputeSlotsBlocksAppointmentDuration(t *testing.T) {
	cfg := testSlotConfig()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, cfg.Location)

	startsAt, err := LocalToUTC("2026-03-02", "10:00", cfg.Location)
	require.NoError(t, err)

	appointments := []models.Appointment{{
		StartsAt:    startsAt,
		DurationMin: 60,
		Status:      models.AppointmentScheduled,
	}}

	slots, err := ComputeSlots("2026-03-02", appointments, now, cfg)
	require.NoError(t, err)

	ids := slotIDs(slots)
	// The 60 minute appointment consumes both 30 minute slots it spans.
	assert.NotContains(t, ids, "2026-03-02 10:00")
	assert.NotContains(t, ids, "2026-03-02 10:30")
	assert.Contains(t, ids, "2026-03-02 09:30")
	assert.Contains(t, ids, "2026-03-02 11:00")
	assert.Len(t, slots, 14)
}

func TestComputeSlotsBlocksUnalignedAppointment(t *testing.T) {
	cfg := testSlotConfig()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, cfg.Location)

	// Starts mid-slot: 10:15 for 30 minutes spills into two slot intervals.
	startsAt, err := LocalToUTC("2026-03-02", "10:15", cfg.Location)
	require.NoError(t, err)

	appointments := []models.Appointment{{
		StartsAt:    startsAt,
		DurationMin: 30,
		Status:      models.AppointmentScheduled,
	}}

	slots, err := ComputeSlots("2026-03-02", appointments, now, cfg)
	require.NoError(t, err)

	ids := slotIDs(slots)
	assert.NotContains(t, ids, "2026-03-02 10:00")
	assert.NotContains(t, ids, "2026-03-02 10:30")
	assert.Contains(t, ids, "2026-03-02 09:30")
	assert.Contains(t, ids, "2026-03-02 11:00")
	assert.Len(t, slots, 14)
}

func TestComputeSlotsIgnoresInactiveAppointments(t *testing.T) {
	cfg := testSlotConfig()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, cfg.Location)

	startsAt, err := LocalToUTC("2026-03-02", "10:00", cfg.Location)
	require.NoError(t, err)

	appointments := []models.Appointment{{
		StartsAt:    startsAt,
		DurationMin: 60,
		Status:      models.AppointmentCancelled,
	}}

	slots, err := ComputeSlots("2026-03-02", appointments, now, cfg)
	require.NoError(t, err)
	assert.Contains(t, slotIDs(slots), "2026-03-02 10:00")
}

func TestComputeSlotsTodayDropsPastSlots(t *testing.T) {
	cfg := testSlotConfig()
	// 12:00 exactly: the 12:00 slot is not strictly after now and is dropped.
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, cfg.Location)

	slots, err := ComputeSlots("2026-03-02", nil, now, cfg)
	require.NoError(t, err)

	require.NotEmpty(t, slots)
	assert.Equal(t, "2026-03-02 12:30", slots[0].ID)
}

func TestComputeSlotsInvalidDate(t *testing.T) {
	_, err := ComputeSlots("02-03-2026", nil, time.Now(), testSlotConfig())
	assert.Error(t, err)
}

func TestLocalDayBounds(t *testing.T) {
	loc := time.FixedZone("business", 330*60)

	start, end, err := LocalDayBounds("2026-03-02", loc)
	require.NoError(t, err)

	// Local midnight in UTC+5:30 is 18:30 UTC the previous evening.
	assert.Equal(t, time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC), end)
}

func TestLocalToUTC(t *testing.T) {
	loc := time.FixedZone("business", 330*60)

	instant, err := LocalToUTC("2026-03-02", "10:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC), instant)

	_, err = LocalToUTC("2026-03-02", "25:00", loc)
	assert.Error(t, err)
}

func TestNextDays(t *testing.T) {
	loc := time.FixedZone("business", 330*60)
	now := time.Date(2026, 3, 2, 23, 45, 0, 0, loc)

	days := NextDays(7, now, loc)
	require.Len(t, days, 7)
	assert.Equal(t, "2026-03-02", days[0].ID)
	assert.Equal(t, "Mon, Mar 2", days[0].Title)
	assert.Equal(t, "2026-03-08", days[6].ID)
}
