package proxy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/vnmchuo/inference-gateway/internal/provider"
)

// MockShim returns scripted errors in order, then succeeds.
type MockShim struct {
	name   string
	mu     sync.Mutex
	calls  int
	errs   []error
	fail   error
	block  bool
	last   *provider.Request
	models []string
}

func (m *MockShim) Name() string { return m.name }

func (m *MockShim) ProcessRequest(ctx context.Context, req *provider.Request, model provider.ModelConfig) (*provider.Response, error) {
	m.mu.Lock()
	m.calls++
	m.last = req
	block := m.block
	var err error
	switch {
	case m.fail != nil:
		err = m.fail
	case len(m.errs) > 0:
		err, m.errs = m.errs[0], m.errs[1:]
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, provider.NewTransportError(m.name, model.ID, ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	return &provider.Response{
		Content:      "mock",
		Provider:     m.name,
		Model:        model.ID,
		FinishReason: provider.FinishStop,
		Usage:        provider.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

func (m *MockShim) ProcessStream(ctx context.Context, req *provider.Request, model provider.ModelConfig) (<-chan *provider.Chunk, error) {
	m.mu.Lock()
	m.calls++
	fail := m.fail
	block := m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, provider.NewTransportError(m.name, model.ID, ctx.Err())
	}
	ch := make(chan *provider.Chunk, 2)
	if fail != nil {
		ch <- &provider.Chunk{Err: fail}
	} else {
		ch <- &provider.Chunk{Delta: "mock"}
		ch <- &provider.Chunk{Done: true, Usage: &provider.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}}
	}
	close(ch)
	return ch, nil
}

func (m *MockShim) ListModelIDs(context.Context) ([]string, error) {
	return m.models, nil
}

func (m *MockShim) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// plainShim cannot stream.
type plainShim struct{ name string }

func (p plainShim) Name() string { return p.name }

func (p plainShim) ProcessRequest(context.Context, *provider.Request, provider.ModelConfig) (*provider.Response, error) {
	return &provider.Response{Provider: p.name}, nil
}

var fastRetry = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func model(providerName, id string) provider.ModelConfig {
	return provider.ModelConfig{ID: id, Provider: providerName, Capabilities: []provider.Capability{provider.CapText}}
}

func rateLimited(p string) error {
	return &provider.ProviderError{Provider: p, Kind: provider.KindRateLimit, StatusCode: 429}
}

func TestExecute_CircuitBreakerOpens(t *testing.T) {
	bad := &MockShim{name: "openai", fail: &provider.ProviderError{Provider: "openai", Kind: provider.KindConnection}}
	router := NewRouter([]provider.Shim{bad}, nil, fastRetry)
	m := model("openai", "gpt-4o")

	for i := 0; i < 3; i++ {
		router.Execute(context.Background(), &provider.Request{Prompt: "hi"}, m)
	}
	if router.BreakerState("openai") != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", router.BreakerState("openai"))
	}

	_, err := router.Execute(context.Background(), &provider.Request{Prompt: "hi"}, m)
	var pe *provider.ProviderError
	if !errors.As(err, &pe) || pe.Kind != provider.KindUnavailable {
		t.Fatalf("expected unavailable provider error, got %v", err)
	}
	if !provider.IsTransient(err) {
		t.Errorf("open breaker should be transient")
	}
	if bad.Calls() != 3 {
		t.Errorf("expected 3 calls to reach the shim, got %d", bad.Calls())
	}
}

func TestExecute_CallerErrorsDoNotTripBreaker(t *testing.T) {
	shim := &MockShim{name: "openai", fail: &provider.ProviderError{Provider: "openai", Kind: provider.KindBadRequest, StatusCode: 400}}
	router := NewRouter([]provider.Shim{shim}, nil, fastRetry)

	for i := 0; i < 5; i++ {
		router.Execute(context.Background(), &provider.Request{Prompt: "hi"}, model("openai", "gpt-4o"))
	}
	if router.BreakerState("openai") != gobreaker.StateClosed {
		t.Errorf("expected closed breaker, got %s", router.BreakerState("openai"))
	}
}

func TestExecute_PerProviderTimeout(t *testing.T) {
	slow := &MockShim{name: "google", block: true}
	router := NewRouter([]provider.Shim{slow}, map[string]time.Duration{"google": 10 * time.Millisecond}, fastRetry)

	_, err := router.Execute(context.Background(), &provider.Request{Prompt: "hi"}, model("google", "gemini-1.5-flash"))
	var pe *provider.ProviderError
	if !errors.As(err, &pe) || pe.Kind != provider.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestExecuteWithRetry(t *testing.T) {
	shim := &MockShim{name: "openai", errs: []error{rateLimited("openai"), rateLimited("openai")}}
	router := NewRouter([]provider.Shim{shim}, nil, fastRetry)

	resp, calls, err := router.ExecuteWithRetry(context.Background(), &provider.Request{Prompt: "hi"}, model("openai", "gpt-4o"))
	if err != nil {
		t.Fatalf("ExecuteWithRetry failed: %v", err)
	}
	if calls != 3 || resp.Provider != "openai" {
		t.Errorf("expected success on third call, got calls=%d provider=%s", calls, resp.Provider)
	}
}

func TestExecuteWithRetry_PermanentErrorStopsImmediately(t *testing.T) {
	authErr := &provider.ProviderError{Provider: "openai", Kind: provider.KindAuth, StatusCode: 401}
	shim := &MockShim{name: "openai", fail: authErr}
	router := NewRouter([]provider.Shim{shim}, nil, fastRetry)

	_, calls, err := router.ExecuteWithRetry(context.Background(), &provider.Request{Prompt: "hi"}, model("openai", "gpt-4o"))
	if !errors.Is(err, authErr) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestExecuteWithRetry_GivesUpAtCeiling(t *testing.T) {
	shim := &MockShim{name: "openai", fail: rateLimited("openai")}
	router := NewRouter([]provider.Shim{shim}, nil, RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond})

	_, calls, err := router.ExecuteWithRetry(context.Background(), &provider.Request{Prompt: "hi"}, model("openai", "gpt-4o"))
	if !provider.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestExecuteWithRetry_OutlastsBreakerThreshold(t *testing.T) {
	limited := rateLimited("openai")
	shim := &MockShim{name: "openai", errs: []error{limited, limited, limited}}
	router := NewRouter([]provider.Shim{shim}, nil, RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond})

	resp, calls, err := router.ExecuteWithRetry(context.Background(), &provider.Request{Prompt: "hi"}, model("openai", "gpt-4o"))
	if err != nil {
		t.Fatalf("ExecuteWithRetry failed: %v", err)
	}
	if calls != 4 || shim.Calls() != 4 || resp.Provider != "openai" {
		t.Errorf("expected success on fourth call, got calls=%d shim calls=%d", calls, shim.Calls())
	}
	if router.BreakerState("openai") != gobreaker.StateClosed {
		t.Errorf("expected closed breaker, got %s", router.BreakerState("openai"))
	}
}

func TestExecute_UnknownProvider(t *testing.T) {
	router := NewRouter([]provider.Shim{&MockShim{name: "openai"}}, nil, fastRetry)

	_, err := router.Execute(context.Background(), &provider.Request{Prompt: "hi"}, model("mistral", "large"))
	if !errors.Is(err, provider.ErrNotImplemented) {
		t.Errorf("expected not implemented, got %v", err)
	}
}

func TestExecuteStream(t *testing.T) {
	router := NewRouter([]provider.Shim{&MockShim{name: "openai"}, plainShim{name: "google"}}, nil, fastRetry)

	ch, err := router.ExecuteStream(context.Background(), &provider.Request{Prompt: "hi"}, model("openai", "gpt-4o"))
	if err != nil {
		t.Fatalf("ExecuteStream failed: %v", err)
	}
	var text string
	done := false
	for c := range ch {
		text += c.Delta
		done = done || c.Done
	}
	if text != "mock" || !done {
		t.Errorf("unexpected stream: %q done=%v", text, done)
	}

	_, err = router.ExecuteStream(context.Background(), &provider.Request{Prompt: "hi"}, model("google", "gemini-1.5-flash"))
	if !errors.Is(err, provider.ErrUnsupportedCapability) {
		t.Errorf("expected unsupported capability, got %v", err)
	}
}

func TestExecuteStream_OpenTimeoutTripsBreaker(t *testing.T) {
	shim := &MockShim{name: "openai", block: true}
	router := NewRouter([]provider.Shim{shim}, map[string]time.Duration{"openai": 20 * time.Millisecond}, fastRetry)
	m := model("openai", "gpt-4o")

	for i := 0; i < 3; i++ {
		_, err := router.ExecuteStream(context.Background(), &provider.Request{Prompt: "hi"}, m)
		var pe *provider.ProviderError
		if !errors.As(err, &pe) || pe.Kind != provider.KindTimeout {
			t.Fatalf("expected timeout opening stream, got %v", err)
		}
	}
	if router.BreakerState("openai") != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", router.BreakerState("openai"))
	}

	_, err := router.ExecuteStream(context.Background(), &provider.Request{Prompt: "hi"}, m)
	var pe *provider.ProviderError
	if !errors.As(err, &pe) || pe.Kind != provider.KindUnavailable {
		t.Fatalf("expected unavailable provider error, got %v", err)
	}
	if shim.Calls() != 3 {
		t.Errorf("expected 3 stream opens, got %d", shim.Calls())
	}
}

func TestProviders_Sorted(t *testing.T) {
	router := NewRouter([]provider.Shim{&MockShim{name: "openai"}, &MockShim{name: "google"}}, nil, fastRetry)
	got := router.Providers()
	if len(got) != 2 || got[0] != "google" || got[1] != "openai" {
		t.Errorf("unexpected providers: %v", got)
	}
}
