// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment gateway
	GatewayBaseURL       string // REST base URL of the PIX/boleto gateway
	GatewayAccessToken   string // Bearer token for outbound gateway calls
	GatewayWebhookSecret string // Shared secret for inbound webhook signatures (optional)

	// Access gate
	SuperAdminEmails []string // emails that bypass tenant-status checks
	AdminSecret      string   // shared secret guarding the /v1/admin surface

	// Billing
	DefaultMonthlyPrice string // price applied to tenants registered without one

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled when empty

	// HTTP
	RateLimitRPM   int
	AllowedOrigins []string
}

// Defaults
const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultGatewayURL   = "https://api.pagamentos.example.com"
	DefaultPrice        = "99.90"
	DefaultRateLimitRPM = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", DefaultGatewayURL),
		GatewayAccessToken:   os.Getenv("GATEWAY_ACCESS_TOKEN"),
		GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		SuperAdminEmails:     splitList(os.Getenv("SUPER_ADMIN_EMAILS")),
		AdminSecret:          os.Getenv("ADMIN_SECRET"),
		DefaultMonthlyPrice:  getEnv("DEFAULT_MONTHLY_PRICE", DefaultPrice),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:         getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		AllowedOrigins:       splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration is coherent
func (c *Config) Validate() error {
	if c.GatewayBaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL is required")
	}
	if c.IsProduction() {
		if c.GatewayAccessToken == "" {
			return fmt.Errorf("GATEWAY_ACCESS_TOKEN is required in production")
		}
		if c.GatewayWebhookSecret == "" {
			return fmt.Errorf("GATEWAY_WEBHOOK_SECRET is required in production")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.AdminSecret == "" {
			return fmt.Errorf("ADMIN_SECRET is required in production")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
