// Package registry resolves model identifiers to ModelConfig entries: a
// static catalog first, then the discovery overlay, then naming-convention
// inference, then a conservative text-only default.
package registry

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/vnmchuo/inference-gateway/internal/provider"
)

// Strategy orders auto-selection candidates.
type Strategy string

const (
	CostOptimized Strategy = "cost_optimized"
	Performance   Strategy = "performance"
	ProviderOrder Strategy = "provider_order"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return CostOptimized, nil
	case CostOptimized, Performance, ProviderOrder:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown selection strategy %q", s)
}

// Preference drives ResolveAuto. Providers orders the candidates searched
// first; Fallbacks come next, then every other provider in the catalog.
type Preference struct {
	Strategy  Strategy
	Providers []string
	Fallbacks []string
}

type Registry struct {
	static          []provider.ModelConfig
	overlay         Overlay
	defaultProvider string
	providers       []string
}

// New validates catalog and builds a registry. overlay may be nil.
func New(catalog []provider.ModelConfig, overlay Overlay, defaultProvider string) (*Registry, error) {
	r := &Registry{overlay: overlay, defaultProvider: defaultProvider}
	seen := make(map[string]bool, len(catalog))
	for _, m := range catalog {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if seen[m.RegistryName()] {
			return nil, fmt.Errorf("duplicate model %s", m.RegistryName())
		}
		seen[m.RegistryName()] = true
		if m.Source == "" {
			m.Source = provider.SourceStatic
		}
		r.static = append(r.static, m)
		if !slices.Contains(r.providers, m.Provider) {
			r.providers = append(r.providers, m.Provider)
		}
	}
	if r.defaultProvider == "" {
		r.defaultProvider = provider.OpenAI
	}
	return r, nil
}

// Models returns the static catalog in declaration order.
func (r *Registry) Models() []provider.ModelConfig {
	return slices.Clone(r.static)
}

// Providers returns every provider named by the catalog.
func (r *Registry) Providers() []string {
	return slices.Clone(r.providers)
}

// SplitName splits a "provider/model" selector. A prefix that is not a known
// provider is treated as part of the model id.
func (r *Registry) SplitName(selector string) (providerName, id string) {
	if p, rest, ok := strings.Cut(selector, "/"); ok && slices.Contains(r.providers, p) {
		return p, rest
	}
	return "", selector
}

// Resolve looks up selector ("gpt-4o" or "openai/gpt-4o"). It never fails:
// unknown ids degrade to an inferred or conservative default config.
func (r *Registry) Resolve(ctx context.Context, selector string) provider.ModelConfig {
	providerName, id := r.SplitName(selector)

	for _, m := range r.static {
		if m.ID == id && (providerName == "" || m.Provider == providerName) {
			return m
		}
	}

	if r.overlay != nil {
		candidates := r.providers
		if providerName != "" {
			candidates = []string{providerName}
		} else if guess, ok := ProviderFor(id); ok {
			candidates = []string{guess}
		}
		for _, p := range candidates {
			cfg, ok, err := r.overlay.Lookup(ctx, p, id)
			if err != nil {
				slog.Warn("registry overlay lookup failed", "provider", p, "model", id, "error", err)
				continue
			}
			if ok {
				return cfg
			}
		}
	}

	if cfg, ok := Infer(providerName, id); ok {
		return cfg
	}

	if providerName == "" {
		providerName = r.defaultProvider
	}
	slog.Debug("unknown model, using conservative default", "provider", providerName, "model", id)
	return conservativeDefault(providerName, id)
}

// ResolveAuto picks the best catalog model able to serve rt. Results are
// deterministic for a fixed catalog and preference.
func (r *Registry) ResolveAuto(rt provider.RequestType, pref Preference) (provider.ModelConfig, error) {
	required := provider.RequiredCapabilities(rt)

	pools := [][]string{pref.Providers}
	if len(pref.Providers) > 0 {
		if len(pref.Fallbacks) > 0 {
			pools = append(pools, pref.Fallbacks)
		}
		pools = append(pools, nil)
	}
	for _, providers := range pools {
		if best, ok := r.best(required, providers, pref.Strategy); ok {
			return best, nil
		}
	}
	return provider.ModelConfig{}, &provider.NoCapableModelError{RequestType: rt}
}

// ResolveForProvider picks the best catalog model of providerName for rt.
func (r *Registry) ResolveForProvider(providerName string, rt provider.RequestType, strategy Strategy) (provider.ModelConfig, bool) {
	return r.best(provider.RequiredCapabilities(rt), []string{providerName}, strategy)
}

func (r *Registry) best(required []provider.Capability, providers []string, strategy Strategy) (provider.ModelConfig, bool) {
	var candidates []provider.ModelConfig
	for _, m := range r.static {
		if len(providers) > 0 && !slices.Contains(providers, m.Provider) {
			continue
		}
		if m.HasAll(required) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return provider.ModelConfig{}, false
	}

	rank := func(p string) int {
		if i := slices.Index(providers, p); i >= 0 {
			return i
		}
		return len(providers) + slices.Index(r.providers, p)
	}
	slices.SortStableFunc(candidates, func(a, b provider.ModelConfig) int {
		var c int
		switch strategy {
		case Performance:
			c = cmp.Or(cmp.Compare(b.ContextWindow, a.ContextWindow), compareCost(a, b))
		case ProviderOrder:
			c = cmp.Compare(rank(a.Provider), rank(b.Provider))
		default:
			c = compareCost(a, b)
		}
		return cmp.Or(c, cmp.Compare(rank(a.Provider), rank(b.Provider)), strings.Compare(a.ID, b.ID))
	})
	return candidates[0], true
}

// compareCost orders by ascending cost with unknown (zero) cost last.
func compareCost(a, b provider.ModelConfig) int {
	switch {
	case a.CostPer1KTokens == b.CostPer1KTokens:
		return 0
	case a.CostPer1KTokens == 0:
		return 1
	case b.CostPer1KTokens == 0:
		return -1
	}
	return cmp.Compare(a.CostPer1KTokens, b.CostPer1KTokens)
}

// Discover asks lister for the provider's live model ids and replaces the
// provider's overlay entries with every id the catalog does not already
// describe. It returns the number of overlay entries written.
func (r *Registry) Discover(ctx context.Context, providerName string, lister provider.ModelLister) (int, error) {
	if r.overlay == nil {
		return 0, fmt.Errorf("registry has no overlay")
	}
	ids, err := lister.ListModelIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("discover %s models: %w", providerName, err)
	}

	var models []provider.ModelConfig
	for _, id := range ids {
		if r.isStatic(providerName, id) {
			continue
		}
		cfg, ok := Infer(providerName, id)
		if !ok {
			cfg = conservativeDefault(providerName, id)
		}
		cfg.Source = provider.SourceDiscovered
		models = append(models, cfg)
	}
	if err := r.overlay.Replace(ctx, providerName, models); err != nil {
		return 0, err
	}
	slog.Info("registry overlay refreshed", "provider", providerName, "listed", len(ids), "cached", len(models))
	return len(models), nil
}

func (r *Registry) isStatic(providerName, id string) bool {
	for _, m := range r.static {
		if m.Provider == providerName && m.ID == id {
			return true
		}
	}
	return false
}
