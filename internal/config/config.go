package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	AllowedOrigins string
	HistoryLimit   int
	LogLevel       string
	LogFormat      string
	Environment    string // development, staging, production
}

// Load loads configuration from environment variables and validates for production
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "3001"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		HistoryLimit:   getEnvInt("HISTORY_LIMIT", 100),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		Environment:    getEnv("ENVIRONMENT", "development"),
	}

	// Validate production configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive (got %d)", c.HistoryLimit)
	}

	if c.IsProduction() {
		if c.AllowedOrigins == "" || c.AllowedOrigins == "*" {
			return fmt.Errorf("ALLOWED_ORIGINS must list explicit origins in production")
		}
		log.Println("WARNING: Ensure ALLOWED_ORIGINS uses HTTPS in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
