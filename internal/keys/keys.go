// Package keys resolves provider API keys. Keys are never logged.
package keys

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vnmchuo/inference-gateway/internal/provider"
)

// Chain asks each lookup in order and returns the first key found. Lookup
// failures other than provider.ErrNoAPIKey are logged and skipped.
type Chain []provider.KeyLookup

func (c Chain) APIKey(ctx context.Context, providerName string) (string, error) {
	for _, l := range c {
		key, err := l.APIKey(ctx, providerName)
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil && !errors.Is(err, provider.ErrNoAPIKey) {
			slog.Warn("api key lookup failed", "provider", providerName, "error", err)
		}
	}
	return "", provider.ErrNoAPIKey
}

// FromEnv builds a lookup over keys read from the environment. Empty keys are
// treated as missing.
func FromEnv(openAI, gemini, anthropic string) provider.StaticKeys {
	keys := provider.StaticKeys{}
	for name, key := range map[string]string{
		provider.OpenAI:    openAI,
		provider.Google:    gemini,
		provider.Anthropic: anthropic,
	} {
		if key != "" {
			keys[name] = key
		}
	}
	return keys
}
