package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"waflow/config"
	"waflow/models"
	"waflow/utils"
)

type AppointmentController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAppointmentController(db *gorm.DB, logger *log.Logger) *AppointmentController {
	return &AppointmentController{DB: db, Logger: logger}
}

type appointmentInput struct {
	ContactWaID string `json:"contact_wa_id"`
	ContactName string `json:"contact_name"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time" validate:"required,datetime=15:04"`
	DurationMin int    `json:"duration_min" validate:"omitempty,min=5,max=480"`
	Status      string `json:"status" validate:"omitempty,oneof=scheduled confirmed cancelled completed"`
	Notes       string `json:"notes"`
}

// CreateAppointment books manually on behalf of the operator. Date and time
// arrive in the business zone and are stored as UTC.
func (ac *AppointmentController) CreateAppointment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input appointmentInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	startsAt, err := utils.LocalToUTC(input.Date, input.Time, config.BusinessLocation())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid date or time",
		})
	}

	duration := input.DurationMin
	if duration == 0 {
		duration = config.AppConfig.Booking.DurationMinutes
	}
	status := input.Status
	if status == "" {
		status = models.AppointmentScheduled
	}

	appointment := models.Appointment{
		UserID:      &user.ID,
		ContactWaID: input.ContactWaID,
		ContactName: input.ContactName,
		StartsAt:    startsAt,
		DurationMin: duration,
		Status:      status,
		Notes:       input.Notes,
	}

	if err := ac.DB.Create(&appointment).Error; err != nil {
		ac.Logger.Printf("Failed to create appointment: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create appointment",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Appointment created successfully",
		"appointment": appointment,
	})
}

// GetAppointments lists bookings, filterable by status and local date range.
// Ownerless bookings from the native UI are visible to every operator.
func (ac *AppointmentController) GetAppointments(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := ac.DB.Model(&models.Appointment{}).
		Where("user_id = ? OR user_id IS NULL", user.ID)

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if from := c.Query("from"); from != "" {
		start, _, err := utils.LocalDayBounds(from, config.BusinessLocation())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid from date",
			})
		}
		query = query.Where("starts_at >= ?", start)
	}
	if to := c.Query("to"); to != "" {
		_, end, err := utils.LocalDayBounds(to, config.BusinessLocation())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid to date",
			})
		}
		query = query.Where("starts_at < ?", end)
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var total int64
	query.Count(&total)

	var appointments []models.Appointment
	if err := query.Order("starts_at ASC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&appointments).Error; err != nil {
		ac.Logger.Printf("Failed to fetch appointments: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch appointments",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  appointments,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (ac *AppointmentController) GetAppointment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	appointmentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid appointment ID",
		})
	}

	var appointment models.Appointment
	if err := ac.DB.Where("id = ? AND (user_id = ? OR user_id IS NULL)", appointmentID, user.ID).
		First(&appointment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Appointment not found",
		})
	}

	return c.JSON(fiber.Map{"appointment": appointment})
}

func (ac *AppointmentController) UpdateAppointment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	appointmentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid appointment ID",
		})
	}

	var appointment models.Appointment
	if err := ac.DB.Where("id = ? AND (user_id = ? OR user_id IS NULL)", appointmentID, user.ID).
		First(&appointment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Appointment not found",
		})
	}

	var input struct {
		ContactName *string `json:"contact_name"`
		Date        *string `json:"date"`
		Time        *string `json:"time"`
		DurationMin *int    `json:"duration_min"`
		Status      *string `json:"status" validate:"omitempty,oneof=scheduled confirmed cancelled completed"`
		Notes       *string `json:"notes"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if input.Date != nil || input.Time != nil {
		loc := config.BusinessLocation()
		date := appointment.StartsAt.In(loc).Format("2006-01-02")
		hhmm := appointment.StartsAt.In(loc).Format("15:04")
		if input.Date != nil {
			date = *input.Date
		}
		if input.Time != nil {
			hhmm = *input.Time
		}
		startsAt, err := utils.LocalToUTC(date, hhmm, loc)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid date or time",
			})
		}
		appointment.StartsAt = startsAt
	}
	if input.ContactName != nil {
		appointment.ContactName = *input.ContactName
	}
	if input.DurationMin != nil {
		appointment.DurationMin = *input.DurationMin
	}
	if input.Status != nil {
		appointment.Status = *input.Status
	}
	if input.Notes != nil {
		appointment.Notes = *input.Notes
	}

	if err := ac.DB.Save(&appointment).Error; err != nil {
		ac.Logger.Printf("Failed to update appointment %d: %v", appointment.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update appointment",
		})
	}

	return c.JSON(fiber.Map{
		"message":     "Appointment updated successfully",
		"appointment": appointment,
	})
}

// CancelAppointment is the delete operation: a status transition, the row is
// never removed.
func (ac *AppointmentController) CancelAppointment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	appointmentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid appointment ID",
		})
	}

	var appointment models.Appointment
	if err := ac.DB.Where("id = ? AND (user_id = ? OR user_id IS NULL)", appointmentID, user.ID).
		First(&appointment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Appointment not found",
		})
	}

	if err := ac.DB.Model(&appointment).
		Updates(map[string]interface{}{"status": models.AppointmentCancelled, "updated_at": time.Now()}).Error; err != nil {
		ac.Logger.Printf("Failed to cancel appointment %d: %v", appointment.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel appointment",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Appointment cancelled",
	})
}
