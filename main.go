package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"waflow/config"
	"waflow/middleware"
	"waflow/routes"
	"waflow/utils"
	"waflow/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "WAFLOW: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize error reporting
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Event bus for live UI updates; shut down with the process
	bus := utils.NewEventBus()
	defer bus.Shutdown()

	// Initialize and start the appointment sweeper
	appointmentWorker := worker.NewAppointmentWorker(config.DB, log.New(os.Stdout, "APPOINTMENT: ", log.LstdFlags))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go appointmentWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, bus)

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
