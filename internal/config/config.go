package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`

	// Storage
	DBPath string `envconfig:"DB_PATH" default:"clearity.db"`

	// Reasoning provider (OpenRouter-compatible chat completions API)
	OpenRouterAPIKey  string        `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string        `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	FastModel         string        `envconfig:"FAST_MODEL" default:"openai/gpt-4o-mini"`
	DeepModel         string        `envconfig:"DEEP_MODEL" default:"openai/gpt-4o"`
	ProviderTimeout   time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`

	// Pipeline tuning
	MaxTasksPerTurn   int `envconfig:"PIPELINE_MAX_TASKS" default:"5"`
	HistoryWindow     int `envconfig:"PIPELINE_HISTORY_WINDOW" default:"15"`
	MemoryLimit       int `envconfig:"PIPELINE_MEMORY_LIMIT" default:"3"`
	SummaryCacheSize  int `envconfig:"PIPELINE_SUMMARY_CACHE_SIZE" default:"256"`

	// Prompt overrides (optional YAML file; built-in templates if empty)
	PromptsPath string `envconfig:"PROMPTS_PATH"`

	// Auth
	AuthMode      string        `envconfig:"AUTH_MODE" default:"jwt"` // "jwt" or "none"
	JWTSecret     string        `envconfig:"JWT_SECRET"`
	JWTExpiration time.Duration `envconfig:"JWT_EXPIRATION" default:"720h"`

	// HTTP hardening
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

// ProviderEnabled returns true if a reasoning provider API key is configured.
// Without one the service still starts; every turn degrades to fallbacks.
func (c *Config) ProviderEnabled() bool {
	return c.OpenRouterAPIKey != ""
}

// AuthEnabled returns true if JWT auth is configured.
func (c *Config) AuthEnabled() bool {
	return strings.EqualFold(c.AuthMode, "jwt") && c.JWTSecret != ""
}

// Validate checks cross-field constraints that envconfig defaults cannot.
func (c *Config) Validate() error {
	if c.MaxTasksPerTurn < 1 {
		return fmt.Errorf("PIPELINE_MAX_TASKS must be >= 1, got %d", c.MaxTasksPerTurn)
	}
	if strings.EqualFold(c.AuthMode, "jwt") && c.JWTSecret == "" && c.Environment != "development" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt outside development")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
