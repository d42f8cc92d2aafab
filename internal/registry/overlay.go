package registry

import (
	"context"
	"sync"
	"time"

	"github.com/vnmchuo/inference-gateway/internal/provider"
)

// Overlay is the runtime cache of discovered models consulted after the
// static catalog. Replace swaps a provider's entries wholesale; concurrent
// writers resolve last-writer-wins.
type Overlay interface {
	Lookup(ctx context.Context, providerName, id string) (provider.ModelConfig, bool, error)
	Replace(ctx context.Context, providerName string, models []provider.ModelConfig) error
}

type memoryGeneration struct {
	models  map[string]provider.ModelConfig
	expires time.Time
}

// MemoryOverlay is an in-process Overlay with a per-provider TTL.
type MemoryOverlay struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	byKey map[string]memoryGeneration
}

// NewMemoryOverlay returns an overlay whose entries expire ttl after the
// refresh that wrote them. A zero ttl never expires.
func NewMemoryOverlay(ttl time.Duration) *MemoryOverlay {
	return &MemoryOverlay{
		ttl:   ttl,
		now:   time.Now,
		byKey: make(map[string]memoryGeneration),
	}
}

func (o *MemoryOverlay) Lookup(_ context.Context, providerName, id string) (provider.ModelConfig, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	gen, ok := o.byKey[providerName]
	if !ok {
		return provider.ModelConfig{}, false, nil
	}
	if !gen.expires.IsZero() && o.now().After(gen.expires) {
		return provider.ModelConfig{}, false, nil
	}
	cfg, ok := gen.models[id]
	return cfg, ok, nil
}

func (o *MemoryOverlay) Replace(_ context.Context, providerName string, models []provider.ModelConfig) error {
	gen := memoryGeneration{models: make(map[string]provider.ModelConfig, len(models))}
	for _, m := range models {
		gen.models[m.ID] = m
	}
	if o.ttl > 0 {
		gen.expires = o.now().Add(o.ttl)
	}

	o.mu.Lock()
	o.byKey[providerName] = gen
	o.mu.Unlock()
	return nil
}
