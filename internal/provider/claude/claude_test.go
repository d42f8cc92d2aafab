package claude

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vnmchuo/inference-gateway/internal/provider"
)

func TestProcessRequest_NotImplemented(t *testing.T) {
	s := New(provider.OpenAI, provider.Google)

	_, err := s.ProcessRequest(context.Background(), &provider.Request{Prompt: "hi"}, provider.ModelConfig{ID: "claude-3-5-sonnet"})
	if !errors.Is(err, provider.ErrNotImplemented) {
		t.Fatalf("Expected ErrNotImplemented, got %v", err)
	}
	if !strings.Contains(err.Error(), "anthropic") || !strings.Contains(err.Error(), "openai, google") {
		t.Errorf("Error should name the provider and the supported ones, got %q", err.Error())
	}
	if provider.IsTransient(err) {
		t.Error("Not implemented must not be retried")
	}

	if _, err := s.ProcessStream(context.Background(), &provider.Request{Prompt: "hi"}, provider.ModelConfig{}); !errors.Is(err, provider.ErrNotImplemented) {
		t.Errorf("Expected ErrNotImplemented from stream, got %v", err)
	}
}

func TestName(t *testing.T) {
	if New().Name() != "anthropic" {
		t.Errorf("Expected 'anthropic', got %s", New().Name())
	}
}
