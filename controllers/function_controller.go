package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"waflow/models"
	"waflow/utils"
)

type FunctionController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewFunctionController(db *gorm.DB, logger *log.Logger) *FunctionController {
	return &FunctionController{DB: db, Logger: logger}
}

// TestFunction runs caller-supplied code synchronously against a caller-supplied
// input. It never touches the routing engine; it exists so the flow editor can
// try functions before wiring them in.
func (fc *FunctionController) TestFunction(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Code      string                 `json:"code" validate:"required"`
		Input     interface{}            `json:"input"`
		Context   map[string]interface{} `json:"context"`
		TimeoutMS int                    `json:"timeout_ms"`
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

	fnContext := input.Context
	if fnContext == nil {
		fnContext = map[string]interface{}{}
	}
	fnContext["userId"] = user.ID

	result, err := utils.RunFunction(input.Code, input.Input, fnContext, utils.ClampTimeout(input.TimeoutMS))
	if err != nil {
		return fc.testRunError(c, err)
	}

	return c.JSON(fiber.Map{
		"output":      result.Output,
		"logs":        result.Logs,
		"duration_ms": result.DurationMS(),
	})
}

func (fc *FunctionController) testRunError(c *fiber.Ctx, err error) error {
	var execErr *utils.ExecutionError
	switch {
	case errors.Is(err, utils.ErrExecutionTimeout):
		return c.Status(fiber.StatusRequestTimeout).JSON(fiber.Map{
			"error":      "Function execution timed out",
			"error_type": "timeout",
		})
	case errors.Is(err, utils.ErrNotAFunction):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":      "Code must evaluate to a function (or define handler)",
			"error_type": "not_a_function",
		})
	case errors.As(err, &execErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":      execErr.Message,
			"error_type": "execution_error",
		})
	}
	fc.Logger.Printf("Function test run failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to run function",
	})
}
