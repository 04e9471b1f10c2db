package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "waflow/controllers"
	"waflow/middleware"
	"waflow/utils"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, bus *utils.EventBus) {
	// Shared collaborators
	sender := utils.NewWhatsAppSender(log.New(os.Stdout, "SEND: ", log.LstdFlags))
	router := utils.NewFlowRouter(db, sender, bus, log.New(os.Stdout, "ROUTER: ", log.LstdFlags))
	booking := utils.NewBookingFlow(db, sender, bus, log.New(os.Stdout, "BOOKING: ", log.LstdFlags))

	// Controllers with their respective loggers
	webhookController := controller.NewWebhookController(db, router, bus, log.New(os.Stdout, "WEBHOOK: ", log.LstdFlags))
	bookingFlowController := controller.NewBookingFlowController(db, booking, log.New(os.Stdout, "BOOKING: ", log.LstdFlags))
	flowController := controller.NewFlowController(db, log.New(os.Stdout, "FLOW: ", log.LstdFlags))
	functionController := controller.NewFunctionController(db, log.New(os.Stdout, "FUNCTION: ", log.LstdFlags))
	customMessageController := controller.NewCustomMessageController(db, log.New(os.Stdout, "MESSAGE: ", log.LstdFlags))
	appointmentController := controller.NewAppointmentController(db, log.New(os.Stdout, "APPOINTMENT: ", log.LstdFlags))
	contactController := controller.NewContactController(db, log.New(os.Stdout, "CONTACT: ", log.LstdFlags))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Provider-facing endpoints (no auth; the provider cannot hold a JWT)
	app.Get("/webhook", webhookController.VerifyWebhook)
	app.Post("/webhook", webhookController.HandleWebhook)
	app.Post("/bookings/flow", bookingFlowController.HandleFlowRequest)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Flow routes
	flow := api.Group("/flows")
	flow.Post("/", flowController.CreateFlow)
	flow.Get("/", flowController.GetFlows)
	flow.Get("/:id", flowController.GetFlow)
	flow.Put("/:id", flowController.UpdateFlow)
	flow.Patch("/:id", flowController.PatchFlow)
	flow.Delete("/:id", flowController.DeleteFlow)

	// Synchronous sandbox test runs, rate limited
	api.Post("/functions/test", middleware.FunctionTestRateLimiter(), functionController.TestFunction)

	// Custom message routes
	message := api.Group("/custom-messages")
	message.Post("/", customMessageController.CreateCustomMessage)
	message.Get("/", customMessageController.GetCustomMessages)
	message.Get("/:id", customMessageController.GetCustomMessage)
	message.Put("/:id", customMessageController.UpdateCustomMessage)
	message.Delete("/:id", customMessageController.DeleteCustomMessage)

	// Appointment routes (delete is a cancellation, never a row removal)
	appointment := api.Group("/appointments")
	appointment.Post("/", appointmentController.CreateAppointment)
	appointment.Get("/", appointmentController.GetAppointments)
	appointment.Get("/:id", appointmentController.GetAppointment)
	appointment.Put("/:id", appointmentController.UpdateAppointment)
	appointment.Delete("/:id", appointmentController.CancelAppointment)

	// Contact routes
	contact := api.Group("/contacts")
	contact.Get("/", contactController.GetContacts)
	contact.Post("/:id/read", contactController.MarkContactRead)
	contact.Get("/:id/messages", contactController.GetContactMessages)

	// WebSocket route for live events
	app.Get("/api/v1/events", middleware.Protected(), websocket.New(func(c *websocket.Conn) {
		controller.HandleEventsWS(c, bus)
	}))

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	log.Println("API routes initialized successfully")
}
