package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"waflow/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// WhatsAppConfig holds the Cloud API credentials and the private key the
// booking flow endpoint uses to unwrap encrypted requests.
type WhatsAppConfig struct {
	AccessToken    string `json:"-"`
	PhoneNumberID  string `json:"phone_number_id"`
	VerifyToken    string `json:"-"`
	GraphBaseURL   string `json:"graph_base_url"`
	FlowPrivateKey string `json:"-"`
}

// BookingConfig describes the deployment's business hours in a single fixed
// local zone. Offset is minutes east of UTC.
type BookingConfig struct {
	UTCOffsetMinutes int `json:"utc_offset_minutes"`
	OpenHour         int `json:"open_hour"`
	OpenMinute       int `json:"open_minute"`
	CloseHour        int `json:"close_hour"`
	CloseMinute      int `json:"close_minute"`
	SlotMinutes      int `json:"slot_minutes"`
	DurationMinutes  int `json:"duration_minutes"`
}

type Config struct {
	Environment           string         `json:"environment"`
	EncryptionKey         string         `json:"-"`
	ServerPort            string         `json:"server_port"`
	DBHost                string         `json:"db_host"`
	DBPort                string         `json:"db_port"`
	DBUser                string         `json:"db_user"`
	DBPassword            string         `json:"-"`
	DBName                string         `json:"db_name"`
	DBSSLMode             string         `json:"db_ssl_mode"`
	DBMaxIdleConns        int            `json:"db_max_idle_conns"`
	DBMaxOpenConns        int            `json:"db_max_open_conns"`
	SentryDSN             string         `json:"-"`
	RateLimitFunctionTest int            `json:"rate_limit_function_test"`
	Redis                 RedisConfig    `json:"redis"`
	WhatsApp              WhatsAppConfig `json:"whatsapp"`
	Booking               BookingConfig  `json:"booking"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	envLoaded = godotenv.Load() == nil
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "waflow"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		SentryDSN:      getEnv("SENTRY_DSN", ""),

		RateLimitFunctionTest: getEnvAsInt("RATE_LIMIT_FUNCTION_TEST", 10),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		WhatsApp: WhatsAppConfig{
			AccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			VerifyToken:   getEnv("WEBHOOK_VERIFY_TOKEN", ""),
			GraphBaseURL:  getEnv("GRAPH_BASE_URL", "https://graph.facebook.com/v19.0"),
			// PEM arrives through the environment with literal \n sequences
			FlowPrivateKey: strings.ReplaceAll(getEnv("FLOW_PRIVATE_KEY", ""), `\n`, "\n"),
		},

		Booking: BookingConfig{
			UTCOffsetMinutes: getEnvAsInt("BUSINESS_UTC_OFFSET_MINUTES", 330),
			OpenHour:         getEnvAsInt("BUSINESS_OPEN_HOUR", 9),
			OpenMinute:       getEnvAsInt("BUSINESS_OPEN_MINUTE", 0),
			CloseHour:        getEnvAsInt("BUSINESS_CLOSE_HOUR", 17),
			CloseMinute:      getEnvAsInt("BUSINESS_CLOSE_MINUTE", 0),
			SlotMinutes:      getEnvAsInt("BOOKING_SLOT_MINUTES", 30),
			DurationMinutes:  getEnvAsInt("BOOKING_DURATION_MINUTES", 30),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if AppConfig.Booking.SlotMinutes <= 0 {
		return fmt.Errorf("BOOKING_SLOT_MINUTES must be positive")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.WhatsApp.AccessToken == "" || AppConfig.WhatsApp.PhoneNumberID == "" {
			return fmt.Errorf("WhatsApp Cloud API credentials are required in production")
		}
		if AppConfig.WhatsApp.VerifyToken == "" {
			return fmt.Errorf("WEBHOOK_VERIFY_TOKEN is required in production")
		}
	}

	logConfig()
	return nil
}

// BusinessLocation returns the deployment's fixed business zone. The offset is
// explicit so slot math never depends on the host machine's zone database.
func BusinessLocation() *time.Location {
	offset := AppConfig.Booking.UTCOffsetMinutes
	return time.FixedZone("business", offset*60)
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("WhatsApp: phone number id set (%t), flow private key set (%t)",
		AppConfig.WhatsApp.PhoneNumberID != "",
		AppConfig.WhatsApp.FlowPrivateKey != "")
	log.Printf("Business hours: %02d:%02d-%02d:%02d, %d-minute slots, UTC%+d min",
		AppConfig.Booking.OpenHour, AppConfig.Booking.OpenMinute,
		AppConfig.Booking.CloseHour, AppConfig.Booking.CloseMinute,
		AppConfig.Booking.SlotMinutes, AppConfig.Booking.UTCOffsetMinutes)
}

func migrateDB(db *gorm.DB) error {

	// Disable foreign key constraints during migration
	if err := db.Exec("SET CONSTRAINTS ALL DEFERRED").Error; err != nil {
		return fmt.Errorf("failed to defer constraints: %w", err)
	}

	return db.AutoMigrate(
		&models.User{},
		&models.Flow{},
		&models.Contact{},
		&models.InboundMessage{},
		&models.OutboundMessage{},
		&models.CustomMessage{},
		&models.Appointment{},
	)
}
