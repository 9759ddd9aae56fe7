package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the honest report service.
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port        string
	SiteBaseURL string
	DevMode     bool

	// Serper configuration
	SerperAPIKey     string
	SerperMaxResults int

	// OpenAI configuration
	OpenAIAPIKey string
	OpenAIModel  string

	// Image enrichment
	EnrichWorkers    int
	EnrichMaxRetries int
	EnrichBaseDelay  time.Duration

	// RabbitMQ; empty AMQPURL means the in-process queue is used.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Admin
	AdminSecret       string
	AdminPasswordHash string
	JWTSecret         string

	// Newsletter
	SendGridAPIKey string
	EmailFromName  string
	EmailFromAddr  string

	// Affiliate
	AffiliateTag string

	// Rate limiting (requests per minute per IP on generation)
	GenerateRPM int

	// Logging
	LogLevel string
}

// Load loads configuration from the environment, reading a local .env file
// first when present.
func Load() *Config {
	// Missing .env is fine in deployed environments.
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "honestreport"),

		Port:        getEnv("PORT", "8080"),
		SiteBaseURL: getEnv("SITE_BASE_URL", "https://rapport-honnete.fr"),
		DevMode:     getBoolEnv("DEV_MODE", false),

		SerperAPIKey:     getEnv("SERPER_API_KEY", ""),
		SerperMaxResults: getIntEnv("SERPER_MAX_RESULTS", 10),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		EnrichWorkers:    getIntEnv("ENRICH_WORKERS", 2),
		EnrichMaxRetries: getIntEnv("ENRICH_MAX_RETRIES", 3),
		EnrichBaseDelay:  getDurationEnv("ENRICH_BASE_DELAY", 2*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "honestreport"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "image-enrichment"),

		AdminSecret:       getEnv("ADMIN_API_SECRET", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Rapport Honnête"),
		EmailFromAddr:  getEnv("EMAIL_FROM_ADDRESS", "bonjour@rapport-honnete.fr"),

		AffiliateTag: getEnv("AFFILIATE_TAG", ""),

		GenerateRPM: getIntEnv("GENERATE_RPM", 5),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv gets a boolean environment variable or returns a default value.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
