package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"waflow/models"
)

// AppointmentWorker sweeps the calendar: active appointments whose end time
// has passed are transitioned to completed so they stop blocking slots and
// show up correctly in the booking list.
type AppointmentWorker struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewAppointmentWorker(db *gorm.DB, logger *log.Logger) *AppointmentWorker {
	return &AppointmentWorker{
		db:     db,
		logger: logger,
	}
}

func (aw *AppointmentWorker) Start(ctx context.Context) {
	aw.logger.Println("Starting appointment worker...")
	ticker := time.NewTicker(5 * time.Minute)

	for {
		select {
		case <-ticker.C:
			aw.completePastAppointments()
		case <-ctx.Done():
			aw.logger.Println("Stopping appointment worker...")
			ticker.Stop()
			return
		}
	}
}

func (aw *AppointmentWorker) completePastAppointments() {
	result := aw.db.Model(&models.Appointment{}).
		Where("status IN ?", models.ActiveAppointmentStatuses).
		Where("starts_at + (duration_min * interval '1 minute') < ?", time.Now().UTC()).
		Update("status", models.AppointmentCompleted)
	if result.Error != nil {
		aw.logger.Printf("Failed to complete past appointments: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		aw.logger.Printf("Marked %d appointment(s) completed", result.RowsAffected)
	}
}
