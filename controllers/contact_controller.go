package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"waflow/models"
	"waflow/utils"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{DB: db, Logger: logger}
}

func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contacts []models.Contact
	if err := cc.DB.Where("user_id = ?", user.ID).
		Order("updated_at DESC").Find(&contacts).Error; err != nil {
		cc.Logger.Printf("Failed to fetch contacts: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}

	return c.JSON(fiber.Map{"contacts": contacts})
}

// MarkContactRead zeroes the unread counter.
func (cc *ContactController) MarkContactRead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	contactID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid contact ID",
		})
	}

	result := cc.DB.Model(&models.Contact{}).
		Where("id = ? AND user_id = ?", contactID, user.ID).
		Update("unread_count", 0)
	if result.Error != nil {
		cc.Logger.Printf("Failed to mark contact %d read: %v", contactID, result.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to mark contact read",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	return c.JSON(fiber.Map{"message": "Contact marked read"})
}

// GetContactMessages returns the inbound history for one contact, newest
// first.
func (cc *ContactController) GetContactMessages(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	contactID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid contact ID",
		})
	}

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND user_id = ?", contactID, user.ID).First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
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
	cc.DB.Model(&models.InboundMessage{}).Where("contact_id = ?", contact.ID).Count(&total)

	var messages []models.InboundMessage
	if err := cc.DB.Where("contact_id = ?", contact.ID).
		Order("timestamp DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&messages).Error; err != nil {
		cc.Logger.Printf("Failed to fetch messages for contact %d: %v", contact.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch messages",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  messages,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
