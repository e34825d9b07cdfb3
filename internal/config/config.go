package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// News server
	TCPHost          string        `env:"TCP_HOST" default:"0.0.0.0"`
	TCPPort          int           `env:"TCP_PORT" default:"8910"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" default:"5s"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" default:"5s"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxPayloadSize   int           `env:"MAX_PAYLOAD_SIZE" default:"65535"`
	ClientRateLimit  float64       `env:"CLIENT_RATE_LIMIT" default:"10"`
	ClientRateBurst  int           `env:"CLIENT_RATE_BURST" default:"20"`

	// Admin API
	HTTPPort       int    `env:"HTTP_PORT" default:"8911"`
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`

	// Redis news ingest, disabled when empty
	RedisURL         string `env:"REDIS_URL"`
	RedisNewsChannel string `env:"REDIS_NEWS_CHANNEL" default:"news"`

	// Audit database, disabled when empty
	DatabaseURL string `env:"DATABASE_URL"`

	// Monitoring
	PrometheusEnabled bool `env:"PROMETHEUS_ENABLED" default:"true"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// a missing .env is fine, system env vars still apply
	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("env_file_not_loaded", "error", err.Error())
	}

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	// News server
	if err := loadEnvString(&config.TCPHost, "TCP_HOST", "0.0.0.0"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.TCPPort, "TCP_PORT", 8910); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.HandshakeTimeout, "HANDSHAKE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.WriteTimeout, "WRITE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ShutdownTimeout, "SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MaxPayloadSize, "MAX_PAYLOAD_SIZE", 65535); err != nil {
		return nil, err
	}
	if err := loadEnvFloat(&config.ClientRateLimit, "CLIENT_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.ClientRateBurst, "CLIENT_RATE_BURST", 20); err != nil {
		return nil, err
	}

	// Admin API
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 8911); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.AdminJWTSecret, "ADMIN_JWT_SECRET", ""); err != nil {
		return nil, err
	}

	// Redis
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisNewsChannel, "REDIS_NEWS_CHANNEL", "news"); err != nil {
		return nil, err
	}

	// Database
	if err := loadEnvString(&config.DatabaseURL, "DATABASE_URL", ""); err != nil {
		return nil, err
	}

	// Monitoring
	if err := loadEnvBool(&config.PrometheusEnabled, "PROMETHEUS_ENABLED", true); err != nil {
		return nil, err
	}

	// Logging
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "json"); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.TCPPort < 1 || c.TCPPort > 65535 {
		errors = append(errors, "TCP_PORT must be between 1 and 65535")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 0 (disabled) and 65535")
	}
	if c.HTTPPort == c.TCPPort {
		errors = append(errors, "HTTP_PORT and TCP_PORT must differ")
	}

	// the wire format caps payloads at 65535 bytes; the limit can only be lowered
	if c.MaxPayloadSize < 1 || c.MaxPayloadSize > 65535 {
		errors = append(errors, "MAX_PAYLOAD_SIZE must be between 1 and 65535")
	}
	if c.HandshakeTimeout <= 0 {
		errors = append(errors, "HANDSHAKE_TIMEOUT must be positive")
	}
	if c.WriteTimeout <= 0 {
		errors = append(errors, "WRITE_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		errors = append(errors, "SHUTDOWN_TIMEOUT must be positive")
	}
	if c.ClientRateLimit < 0 {
		errors = append(errors, "CLIENT_RATE_LIMIT must not be negative")
	}
	if c.ClientRateLimit > 0 && c.ClientRateBurst < 1 {
		errors = append(errors, "CLIENT_RATE_BURST must be at least 1 when CLIENT_RATE_LIMIT is set")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	// an empty secret leaves the admin API open
	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < 32 {
		errors = append(errors, "ADMIN_JWT_SECRET should be at least 32 characters long")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

func (c *Config) TCPAddr() string {
	return fmt.Sprintf("%s:%d", c.TCPHost, c.TCPPort)
}

// HTTPAddr returns the admin API address, or "" when HTTP_PORT is 0.
func (c *Config) HTTPAddr() string {
	if c.HTTPPort == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
