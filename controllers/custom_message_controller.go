package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"waflow/models"
	"waflow/utils"
)

type CustomMessageController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCustomMessageController(db *gorm.DB, logger *log.Logger) *CustomMessageController {
	return &CustomMessageController{DB: db, Logger: logger}
}

type customMessageInput struct {
	Name    string   `json:"name" validate:"required,min=1,max=120"`
	Body    string   `json:"body" validate:"required"`
	Buttons []string `json:"buttons" validate:"max=3"`
}

func (cc *CustomMessageController) CreateCustomMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input customMessageInput
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

	var count int64
	cc.DB.Model(&models.CustomMessage{}).Where("user_id = ? AND name = ?", user.ID, input.Name).Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A custom message with this name already exists",
		})
	}

	message := models.CustomMessage{
		UserID:  user.ID,
		Name:    input.Name,
		Body:    input.Body,
		Buttons: input.Buttons,
	}

	// Placeholders are recomputed from the body by the model's save hook
	if err := cc.DB.Create(&message).Error; err != nil {
		cc.Logger.Printf("Failed to create custom message: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create custom message",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":        "Custom message created successfully",
		"custom_message": message,
	})
}

func (cc *CustomMessageController) GetCustomMessages(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var messages []models.CustomMessage
	if err := cc.DB.Where("user_id = ?", user.ID).Order("name ASC").Find(&messages).Error; err != nil {
		cc.Logger.Printf("Failed to fetch custom messages: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch custom messages",
		})
	}

	return c.JSON(fiber.Map{"custom_messages": messages})
}

func (cc *CustomMessageController) GetCustomMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	messageID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid custom message ID",
		})
	}

	var message models.CustomMessage
	if err := cc.DB.Where("id = ? AND user_id = ?", messageID, user.ID).First(&message).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Custom message not found",
		})
	}

	return c.JSON(fiber.Map{"custom_message": message})
}

func (cc *CustomMessageController) UpdateCustomMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	messageID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid custom message ID",
		})
	}

	var message models.CustomMessage
	if err := cc.DB.Where("id = ? AND user_id = ?", messageID, user.ID).First(&message).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Custom message not found",
		})
	}

	var input customMessageInput
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

	if input.Name != message.Name {
		var count int64
		cc.DB.Model(&models.CustomMessage{}).
			Where("user_id = ? AND name = ? AND id <> ?", user.ID, input.Name, message.ID).Count(&count)
		if count > 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A custom message with this name already exists",
			})
		}
	}

	message.Name = input.Name
	message.Body = input.Body
	message.Buttons = input.Buttons

	if err := cc.DB.Save(&message).Error; err != nil {
		cc.Logger.Printf("Failed to update custom message %d: %v", message.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update custom message",
		})
	}

	return c.JSON(fiber.Map{
		"message":        "Custom message updated successfully",
		"custom_message": message,
	})
}

func (cc *CustomMessageController) DeleteCustomMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	messageID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid custom message ID",
		})
	}

	var message models.CustomMessage
	if err := cc.DB.Where("id = ? AND user_id = ?", messageID, user.ID).First(&message).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Custom message not found",
		})
	}

	if err := cc.DB.Delete(&message).Error; err != nil {
		cc.Logger.Printf("Failed to delete custom message %d: %v", message.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete custom message",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Custom message deleted successfully",
	})
}
