package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnmchuo/inference-gateway/internal/registry"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PROVIDER_PREFERENCE", "openai,google")
	t.Setenv("SELECTION_STRATEGY", "")
	t.Setenv("OTEL_EXPORTER_TYPE", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "", cfg.PostgresDSN)
	assert.Equal(t, registry.CostOptimized, cfg.SelectionStrategy)
	assert.Equal(t, []string{"openai", "google"}, cfg.ProviderPreference)
	assert.Equal(t, uint(3), cfg.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryInitialInterval)
	assert.Equal(t, time.Hour, cfg.DiscoveryTTL)
	assert.Equal(t, 60*time.Second, cfg.Timeouts()["openai"])
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_TYPE", "none")
	t.Setenv("SELECTION_STRATEGY", "performance")
	t.Setenv("FALLBACK_PROVIDERS", " google , anthropic,")
	t.Setenv("GEMINI_TIMEOUT", "15s")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("DISCOVERY_INTERVAL", "10m")

	cfg, err := Load()
	require.NoError(t, err)
	pref := cfg.Preference()
	assert.Equal(t, registry.Performance, pref.Strategy)
	assert.Equal(t, []string{"google", "anthropic"}, pref.Fallbacks)
	assert.Equal(t, 15*time.Second, cfg.Timeouts()["google"])
	assert.Equal(t, uint(5), cfg.RetryMaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.DiscoveryInterval)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SELECTION_STRATEGY":     "cheapest",
		"OPENAI_TIMEOUT":         "soon",
		"RETRY_MAX_ATTEMPTS":     "0",
		"DEFAULT_RATE_LIMIT_TPM": "lots",
		"OTEL_EXPORTER_TYPE":     "jaeger",
		"DISCOVERY_TTL":          "-1m",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_TYPE", "none")
			t.Setenv(key, value)
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}
