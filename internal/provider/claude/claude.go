// Package claude registers Anthropic models without a working client. Every
// call fails with provider.NotImplementedError so the registry can list the
// provider while dispatch stays uniform.
package claude

import (
	"context"

	"github.com/vnmchuo/inference-gateway/internal/provider"
)

type Shim struct {
	supported []string
}

// New returns the placeholder shim. supported names the providers that do
// work and is reported in every error.
func New(supported ...string) *Shim {
	return &Shim{supported: supported}
}

func (s *Shim) Name() string {
	return provider.Anthropic
}

func (s *Shim) Unimplemented() {}

func (s *Shim) ProcessRequest(context.Context, *provider.Request, provider.ModelConfig) (*provider.Response, error) {
	return nil, s.err()
}

func (s *Shim) ProcessStream(context.Context, *provider.Request, provider.ModelConfig) (<-chan *provider.Chunk, error) {
	return nil, s.err()
}

func (s *Shim) err() error {
	return &provider.NotImplementedError{Provider: provider.Anthropic, Supported: s.supported}
}
