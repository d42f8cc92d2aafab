package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vnmchuo/inference-gateway/internal/provider"
	"github.com/vnmchuo/inference-gateway/internal/provider/gemini"
	"github.com/vnmchuo/inference-gateway/internal/provider/openai"
	"github.com/vnmchuo/inference-gateway/internal/registry"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database, optional: usage and keys stay in memory without it
	PostgresDSN string

	// Cache, optional: no rate limiting and an in-memory model overlay without it
	RedisAddr string

	// Providers
	OpenAIAPIKey    string
	GeminiAPIKey    string
	AnthropicAPIKey string
	OpenAIBaseURL   string
	GeminiBaseURL   string
	OpenAITimeout   time.Duration
	GeminiTimeout   time.Duration

	// Model selection
	DefaultProvider    string
	ProviderPreference []string
	SelectionStrategy  registry.Strategy
	FallbackProviders  []string

	// Retry
	RetryMaxAttempts     uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// Discovery
	DiscoveryInterval time.Duration // 0 disables the refresher
	DiscoveryTTL      time.Duration

	// Observability
	OTELExporterType     string // "stdout", "otlp" or "none"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitTPM int64 // tokens per minute, default: 100000

	RunSeed bool
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", openai.DefaultBaseURL),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", gemini.DefaultBaseURL),
		DefaultProvider:      getEnv("DEFAULT_PROVIDER", provider.OpenAI),
		ProviderPreference:   splitList(getEnv("PROVIDER_PREFERENCE", "openai,google")),
		FallbackProviders:    splitList(os.Getenv("FALLBACK_PROVIDERS")),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		RunSeed:              os.Getenv("RUN_SEED") == "true",
	}

	var err error
	if cfg.SelectionStrategy, err = registry.ParseStrategy(os.Getenv("SELECTION_STRATEGY")); err != nil {
		return nil, fmt.Errorf("invalid SELECTION_STRATEGY: %w", err)
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"OPENAI_TIMEOUT", "60s", &cfg.OpenAITimeout},
		{"GEMINI_TIMEOUT", "60s", &cfg.GeminiTimeout},
		{"RETRY_INITIAL_INTERVAL", "500ms", &cfg.RetryInitialInterval},
		{"RETRY_MAX_INTERVAL", "8s", &cfg.RetryMaxInterval},
		{"DISCOVERY_INTERVAL", "0s", &cfg.DiscoveryInterval},
		{"DISCOVERY_TTL", "1h", &cfg.DiscoveryTTL},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", d.key)
		}
		*d.dst = v
	}

	attempts, err := strconv.ParseUint(getEnv("RETRY_MAX_ATTEMPTS", "3"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
	}
	if attempts == 0 {
		return nil, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: must be at least 1")
	}
	cfg.RetryMaxAttempts = uint(attempts)

	// Rate Limiting Default
	tpmStr := getEnv("DEFAULT_RATE_LIMIT_TPM", "100000")
	tpm, err := strconv.ParseInt(tpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_TPM: %w", err)
	}
	cfg.DefaultRateLimitTPM = tpm

	switch cfg.OTELExporterType {
	case "stdout", "otlp", "none":
	default:
		return nil, fmt.Errorf("invalid OTEL_EXPORTER_TYPE %q", cfg.OTELExporterType)
	}

	return cfg, nil
}

// Timeouts returns the per-provider call timeouts.
func (c *Config) Timeouts() map[string]time.Duration {
	return map[string]time.Duration{
		provider.OpenAI: c.OpenAITimeout,
		provider.Google: c.GeminiTimeout,
	}
}

// Preference returns the auto-selection preference.
func (c *Config) Preference() registry.Preference {
	return registry.Preference{
		Strategy:  c.SelectionStrategy,
		Providers: c.ProviderPreference,
		Fallbacks: c.FallbackProviders,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
