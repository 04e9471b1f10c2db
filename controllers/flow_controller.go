package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"waflow/models"
	"waflow/utils"
)

type FlowController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewFlowController(db *gorm.DB, logger *log.Logger) *FlowController {
	return &FlowController{DB: db, Logger: logger}
}

type flowInput struct {
	Name        string                `json:"name" validate:"required,min=1,max=120"`
	TriggerType string                `json:"trigger_type" validate:"omitempty,oneof=exact includes starts_with any"`
	TriggerText string                `json:"trigger_text"`
	FirstNode   string                `json:"first_node"`
	IsActive    *bool                 `json:"is_active"`
	Connections []models.Connection   `json:"connections"`
	Functions   []models.FlowFunction `json:"functions"`
}

func (fc *FlowController) CreateFlow(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input flowInput
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
	if err := validateFlowGraph(input.Connections, input.Functions); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Duplicate flow names are rejected explicitly, not as a generic failure
	var count int64
	fc.DB.Model(&models.Flow{}).Where("user_id = ? AND name = ?", user.ID, input.Name).Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A flow with this name already exists",
		})
	}

	triggerType := input.TriggerType
	if triggerType == "" {
		triggerType = models.TriggerAny
	}

	flow := models.Flow{
		UserID:      user.ID,
		Name:        input.Name,
		TriggerType: triggerType,
		TriggerText: input.TriggerText,
		FirstNode:   input.FirstNode,
		IsActive:    true,
		Connections: dedupeConnections(input.Connections),
		Functions:   input.Functions,
	}
	if input.IsActive != nil {
		flow.IsActive = *input.IsActive
	}

	if err := fc.DB.Create(&flow).Error; err != nil {
		fc.Logger.Printf("Failed to create flow: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create flow",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Flow created successfully",
		"flow":    flow,
	})
}

func (fc *FlowController) GetFlows(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var flows []models.Flow
	if err := fc.DB.Where("user_id = ?", user.ID).Order("id ASC").Find(&flows).Error; err != nil {
		fc.Logger.Printf("Failed to fetch flows: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch flows",
		})
	}

	return c.JSON(fiber.Map{"flows": flows})
}

func (fc *FlowController) GetFlow(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	flowID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid flow ID",
		})
	}

	var flow models.Flow
	if err := fc.DB.Where("id = ? AND user_id = ?", flowID, user.ID).First(&flow).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Flow not found",
		})
	}

	return c.JSON(fiber.Map{"flow": flow})
}

// UpdateFlow is a full replace of the flow definition.
func (fc *FlowController) UpdateFlow(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	flowID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid flow ID",
		})
	}

	var flow models.Flow
	if err := fc.DB.Where("id = ? AND user_id = ?", flowID, user.ID).First(&flow).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Flow not found",
		})
	}

	var input flowInput
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
	if err := validateFlowGraph(input.Connections, input.Functions); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if input.Name != flow.Name {
		var count int64
		fc.DB.Model(&models.Flow{}).
			Where("user_id = ? AND name = ? AND id <> ?", user.ID, input.Name, flow.ID).Count(&count)
		if count > 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A flow with this name already exists",
			})
		}
	}

	flow.Name = input.Name
	if input.TriggerType != "" {
		flow.TriggerType = input.TriggerType
	}
	flow.TriggerText = input.TriggerText
	flow.FirstNode = input.FirstNode
	flow.Connections = dedupeConnections(input.Connections)
	flow.Functions = input.Functions
	if input.IsActive != nil {
		flow.IsActive = *input.IsActive
	}

	if err := fc.DB.Save(&flow).Error; err != nil {
		fc.Logger.Printf("Failed to update flow %d: %v", flow.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update flow",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Flow updated successfully",
		"flow":    flow,
	})
}

// PatchFlow replaces only the supplied parts of the definition.
func (fc *FlowController) PatchFlow(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	flowID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid flow ID",
		})
	}

	var flow models.Flow
	if err := fc.DB.Where("id = ? AND user_id = ?", flowID, user.ID).First(&flow).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Flow not found",
		})
	}

	var input struct {
		Name        *string                `json:"name"`
		TriggerType *string                `json:"trigger_type"`
		TriggerText *string                `json:"trigger_text"`
		FirstNode   *string                `json:"first_node"`
		IsActive    *bool                  `json:"is_active"`
		Connections *[]models.Connection   `json:"connections"`
		Functions   *[]models.FlowFunction `json:"functions"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}

	if input.Name != nil {
		flow.Name = *input.Name
	}
	if input.TriggerType != nil {
		flow.TriggerType = *input.TriggerType
	}
	if input.TriggerText != nil {
		flow.TriggerText = *input.TriggerText
	}
	if input.FirstNode != nil {
		flow.FirstNode = *input.FirstNode
	}
	if input.IsActive != nil {
		flow.IsActive = *input.IsActive
	}
	if input.Connections != nil {
		flow.Connections = dedupeConnections(*input.Connections)
	}
	if input.Functions != nil {
		flow.Functions = *input.Functions
	}
	if err := validateFlowGraph(flow.Connections, flow.Functions); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := fc.DB.Save(&flow).Error; err != nil {
		fc.Logger.Printf("Failed to patch flow %d: %v", flow.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update flow",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Flow updated successfully",
		"flow":    flow,
	})
}

func (fc *FlowController) DeleteFlow(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	flowID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid flow ID",
		})
	}

	var flow models.Flow
	if err := fc.DB.Where("id = ? AND user_id = ?", flowID, user.ID).First(&flow).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Flow not found",
		})
	}

	if err := fc.DB.Delete(&flow).Error; err != nil {
		fc.Logger.Printf("Failed to delete flow %d: %v", flow.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete flow",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Flow deleted successfully",
	})
}

// dedupeConnections enforces last-write-wins on (sourceNode, button) pairs.
func dedupeConnections(conns []models.Connection) []models.Connection {
	type edge struct{ source, button string }
	index := make(map[edge]int, len(conns))
	out := make([]models.Connection, 0, len(conns))
	for _, conn := range conns {
		key := edge{conn.SourceNode, conn.Button}
		if i, ok := index[key]; ok {
			out[i] = conn
			continue
		}
		index[key] = len(out)
		out = append(out, conn)
	}
	return out
}

func validateFlowGraph(conns []models.Connection, fns []models.FlowFunction) error {
	names := make(map[string]struct{}, len(fns))
	for _, fn := range fns {
		if fn.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "function name is required")
		}
		if _, dup := names[fn.Name]; dup {
			return fiber.NewError(fiber.StatusBadRequest, "duplicate function name: "+fn.Name)
		}
		names[fn.Name] = struct{}{}
	}
	for _, conn := range conns {
		if conn.SourceNode == "" || conn.TargetName == "" {
			return fiber.NewError(fiber.StatusBadRequest, "connection source and target are required")
		}
		switch conn.TargetType {
		case models.TargetTemplate, models.TargetCustomMessage:
		case models.TargetFunction:
			if _, ok := names[conn.TargetName]; !ok {
				return fiber.NewError(fiber.StatusBadRequest, "connection references unknown function: "+conn.TargetName)
			}
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid connection target type: "+conn.TargetType)
		}
	}
	return nil
}
