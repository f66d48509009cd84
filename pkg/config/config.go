// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// AppConfig is the process-wide configuration, read once at startup.
type AppConfig struct {
	// LLM router (primary provider).
	OpenRouterAPIKey string
	OpenRouterURL    string

	// Optional BYOK passthroughs for matching model families.
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Email provider.
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string

	// Object store for non-sensitive photos.
	StorageBucket   string
	StorageEndpoint string
	StorageRegion   string

	AppURL string
	Debug  bool

	// Path to the optional model-selection JSON file.
	ModelConfigPath string

	// Email worker tuning.
	EmailWorkerCount   int
	EmailRetryInterval time.Duration
}

// Load reads configuration from the environment. Only the OpenRouter key
// is mandatory; everything else degrades gracefully.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		OpenRouterAPIKey:   os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterURL:      getEnv("OPENROUTER_URL", "https://openrouter.ai/api/v1/chat/completions"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		SendGridAPIKey:     os.Getenv("SENDGRID_API_KEY"),
		EmailFromAddress:   getEnv("EMAIL_FROM_ADDRESS", "reports@proximahealth.app"),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "Proxima Health"),
		StorageBucket:      getEnv("SUPABASE_STORAGE_BUCKET", "medical-photos"),
		StorageEndpoint:    os.Getenv("SUPABASE_URL"),
		StorageRegion:      getEnv("STORAGE_REGION", "us-east-1"),
		AppURL:             getEnv("APP_URL", "http://localhost:3000"),
		Debug:              parseBool(os.Getenv("DEBUG")),
		ModelConfigPath:    getEnv("MODEL_CONFIG_PATH", "./config/models.json"),
		EmailWorkerCount:   getEnvInt("EMAIL_WORKER_COUNT", 2),
		EmailRetryInterval: getEnvDuration("EMAIL_RETRY_INTERVAL", time.Minute),
	}

	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	return cfg, nil
}

// EmailEnabled reports whether outbound email is configured.
func (c *AppConfig) EmailEnabled() bool {
	return c.SendGridAPIKey != ""
}

// StorageEnabled reports whether the object store is configured.
func (c *AppConfig) StorageEnabled() bool {
	return c.StorageEndpoint != ""
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
