package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	LogLevel    string
	Environment string

	// APIKeys is the comma-separated list of accepted X-API-Key values.
	// Empty disables authentication (development convenience).
	APIKeys string

	// ServiceFee is the flat fee (F CFA) added to every displayed price.
	ServiceFee float64
	// WhatsAppContactNumber is the contact channel shown to matched parties.
	WhatsAppContactNumber string

	// GeminiAPIKey enables the AI collaborator; empty degrades to fixed
	// apology replies and manual field entry.
	GeminiAPIKey string
	GeminiModel  string

	// FirebaseProjectID selects Firestore persistence; empty falls back to
	// the in-memory storage with local file persistence.
	FirebaseProjectID string
	FirestoreDatabase string
	DataPath          string

	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration

	// MetricsExporter selects the metrics pipeline: "scraper" serves a
	// Prometheus /metrics page on MetricsPort, anything else exports over
	// OTLP gRPC.
	MetricsExporter string
	MetricsPort     string

	// BotTypingDelay is the cosmetic pause before each bot message. Zero
	// disables it; it carries no correctness semantics.
	BotTypingDelay time.Duration
}

// LoadConfig loads configuration from .env file and environment variables.
func LoadConfig() *Config {
	// Load .env file if it exists. This will not override existing
	// environment variables.
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with system environment variables only", "error", err)
	}

	config := &Config{
		Port:                   getEnvWithDefault("PORT", "8080"),
		LogLevel:               getEnvWithDefault("LOG_LEVEL", "info"),
		Environment:            getEnvWithDefault("ENVIRONMENT", "development"),
		APIKeys:                getEnvWithDefault("API_KEYS", ""),
		ServiceFee:             getEnvFloat("SERVICE_FEE", 500),
		WhatsAppContactNumber:  getEnvWithDefault("WHATSAPP_CONTACT_NUMBER", "+22900000000"),
		GeminiAPIKey:           getEnvWithDefault("GEMINI_API_KEY", ""),
		GeminiModel:            getEnvWithDefault("GEMINI_MODEL", "gemini-2.0-flash-001"),
		FirebaseProjectID:      getEnvWithDefault("FIREBASE_PROJECT_ID", ""),
		FirestoreDatabase:      getEnvWithDefault("FIRESTORE_DATABASE", "(default)"),
		DataPath:               getEnvWithDefault("DATA_PATH", "./data"),
		SessionTTL:             getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Minute),
		MetricsExporter:        getEnvWithDefault("METRICS_EXPORTER", ""),
		MetricsPort:            getEnvWithDefault("METRICS_PORT", "9080"),
		BotTypingDelay:         getEnvDuration("BOT_TYPING_DELAY", 0),
	}

	SetupLogging(config.LogLevel)

	slog.Info("Configuration loaded",
		"port", config.Port,
		"environment", config.Environment,
		"logLevel", config.LogLevel,
		"serviceFee", config.ServiceFee,
		"dataPath", config.DataPath,
		"firestore", config.FirebaseProjectID != "",
		"geminiConfigured", config.GeminiAPIKey != "",
		"sessionTTL", config.SessionTTL.String(),
		"botTypingDelay", config.BotTypingDelay.String())

	return config
}

// SetupLogging configures the global slog handler based on log level.
// This should be called once at application startup.
func SetupLogging(logLevel string) {
	var level slog.Level

	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnvWithDefault gets an environment variable with a default fallback.
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			slog.Warn("Invalid numeric value, using default", "key", key, "provided", value)
			return defaultValue
		}
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			slog.Warn("Invalid duration, using default", "key", key, "provided", value)
			return defaultValue
		}
		return d
	}
	return defaultValue
}
