package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the platform server.
type Config struct {
	DataDir     string
	BindAddress string
	Port        int

	LogLevel  string
	LogFormat string

	// Secrets for the inbound webhook boundary.
	StripeWebhookSecret   string
	IdentityWebhookSecret string

	// Bearer tokens accepted on the authenticated API, formatted as
	// "token:identity" pairs separated by commas. Admin tokens carry a
	// trailing ":admin".
	APITokens string

	// AI provider settings.
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Metered AI actions allowed per calendar month for standard users.
	AIMonthlyLimit int
}

// Load reads configuration from environment variables.
// A .env file is loaded if present but not required.
func Load() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("QUILL_PORT", 8080)
	if err != nil {
		return nil, err
	}
	aiLimit, err := envOrDefaultInt("QUILL_AI_MONTHLY_LIMIT", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:               envOrDefault("QUILL_DATA_DIR", "/data"),
		BindAddress:           envOrDefault("QUILL_BIND_ADDRESS", "0.0.0.0"),
		Port:                  port,
		LogLevel:              envOrDefault("QUILL_LOG_LEVEL", "info"),
		LogFormat:             envOrDefault("QUILL_LOG_FORMAT", "auto"),
		StripeWebhookSecret:   strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		IdentityWebhookSecret: strings.TrimSpace(os.Getenv("IDENTITY_WEBHOOK_SECRET")),
		APITokens:             strings.TrimSpace(os.Getenv("QUILL_API_TOKENS")),
		OpenAIAPIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:           envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:         strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		AIMonthlyLimit:        aiLimit,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.IdentityWebhookSecret == "" {
		missing = append(missing, "IDENTITY_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("QUILL_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.AIMonthlyLimit < 0 {
		return fmt.Errorf("QUILL_AI_MONTHLY_LIMIT must not be negative, got %d", c.AIMonthlyLimit)
	}
	return nil
}

// ListenAddr returns the bind address and port joined for net.Listen.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}
