package proxy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vnmchuo/inference-gateway/internal/provider"
	"github.com/vnmchuo/inference-gateway/internal/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service is the unified inference entry point. It holds no per-call state.
type Service struct {
	registry *registry.Registry
	router   *Router
	keys     provider.KeyLookup
	pref     registry.Preference
	tracer   trace.Tracer
}

func NewService(reg *registry.Registry, router *Router, keys provider.KeyLookup, pref registry.Preference, tracer trace.Tracer) *Service {
	return &Service{
		registry: reg,
		router:   router,
		keys:     keys,
		pref:     pref,
		tracer:   tracer,
	}
}

// ProcessRequest classifies req, resolves a model and dispatches it. Transient
// failures are retried on the primary provider and then tried once on each
// fallback provider. Nothing is sent to a provider when req is invalid.
func (s *Service) ProcessRequest(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	ctx, span := s.tracer.Start(ctx, "inference.process_request")
	defer span.End()

	rt, model, err := s.prepare(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("request_type", string(rt)),
		attribute.String("provider", model.Provider),
		attribute.String("model", model.ID),
	)

	start := time.Now()
	resp, err := withFallback(ctx, s, rt, model, func(ctx context.Context, m provider.ModelConfig, primary bool) (*provider.Response, error) {
		var (
			resp *provider.Response
			err  error
		)
		if primary {
			var calls int
			resp, calls, err = s.router.ExecuteWithRetry(ctx, req, m)
			trace.SpanFromContext(ctx).SetAttributes(attribute.Int("calls", calls))
		} else {
			resp, err = s.router.Execute(ctx, req, m)
		}
		if err != nil {
			return nil, err
		}
		resp.RegistryModel = m.RegistryName()
		return resp, nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	resp.LatencyMs = time.Since(start).Milliseconds()
	span.SetAttributes(attribute.String("served_by", resp.Provider+"/"+resp.Model))
	return resp, nil
}

// ProcessStream is ProcessRequest for streamed text. Opening the stream is
// tried once on the primary provider and once on each fallback; failures
// after the first chunk arrive on the channel.
func (s *Service) ProcessStream(ctx context.Context, req *provider.Request) (<-chan *provider.Chunk, provider.ModelConfig, error) {
	ctx, span := s.tracer.Start(ctx, "inference.process_stream")
	defer span.End()

	rt, model, err := s.prepare(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, provider.ModelConfig{}, err
	}
	if rt == provider.RequestImageGeneration || rt == provider.RequestImageEdit {
		err := &provider.UnsupportedCapabilityError{Provider: model.Provider, Model: model.ID, RequestType: rt}
		recordError(span, err)
		return nil, provider.ModelConfig{}, err
	}

	var served provider.ModelConfig
	ch, err := withFallback(ctx, s, rt, model, func(ctx context.Context, m provider.ModelConfig, _ bool) (<-chan *provider.Chunk, error) {
		ch, err := s.router.ExecuteStream(ctx, req, m)
		if err == nil {
			served = m
		}
		return ch, err
	})
	if err != nil {
		recordError(span, err)
		return nil, provider.ModelConfig{}, err
	}
	return ch, served, nil
}

// prepare runs every check that must pass before a provider is contacted.
func (s *Service) prepare(ctx context.Context, req *provider.Request) (provider.RequestType, provider.ModelConfig, error) {
	if req == nil {
		return "", provider.ModelConfig{}, &provider.ValidationError{Field: "request", Reason: "request is required"}
	}
	if err := req.Validate(); err != nil {
		return "", provider.ModelConfig{}, err
	}

	rt := provider.Classify(req)
	model, err := s.resolve(ctx, req, rt)
	if err != nil {
		return rt, provider.ModelConfig{}, err
	}
	if !model.HasAll(provider.RequiredCapabilities(rt)) {
		return rt, provider.ModelConfig{}, &provider.UnsupportedCapabilityError{Provider: model.Provider, Model: model.ID, RequestType: rt}
	}
	if _, ok := s.router.Shim(model.Provider); !ok {
		return rt, provider.ModelConfig{}, &provider.NotImplementedError{Provider: model.Provider, Supported: s.SupportedProviders()}
	}
	return rt, model, nil
}

func (s *Service) resolve(ctx context.Context, req *provider.Request, rt provider.RequestType) (provider.ModelConfig, error) {
	selector := req.ModelSelector()
	if selector == provider.AutoModel {
		return s.registry.ResolveAuto(rt, s.pref)
	}
	return s.registry.Resolve(ctx, selector), nil
}

// withFallback runs call on the primary model. A transient failure moves on
// to one attempt per fallback provider; every failure is kept in order.
func withFallback[T any](
	ctx context.Context,
	s *Service,
	rt provider.RequestType,
	primary provider.ModelConfig,
	call func(ctx context.Context, m provider.ModelConfig, primary bool) (T, error),
) (T, error) {
	var zero T

	out, err := attempt(ctx, s.tracer, primary, 0, func(ctx context.Context) (T, error) {
		return call(ctx, primary, true)
	})
	if err == nil {
		return out, nil
	}
	if !provider.IsTransient(err) {
		return zero, err
	}

	attempts := []provider.Attempt{{Provider: primary.Provider, Model: primary.ID, Err: err}}
	for i, fb := range s.pref.Fallbacks {
		if fb == primary.Provider {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		model, ok := s.fallbackModel(fb, rt)
		if !ok {
			slog.Debug("fallback provider has no capable model", "provider", fb, "request_type", rt)
			continue
		}
		slog.Warn("falling back", "from", primary.RegistryName(), "to", model.RegistryName(), "error", err)

		out, err = attempt(ctx, s.tracer, model, i+1, func(ctx context.Context) (T, error) {
			return call(ctx, model, false)
		})
		if err == nil {
			return out, nil
		}
		attempts = append(attempts, provider.Attempt{Provider: model.Provider, Model: model.ID, Err: err})
	}
	return zero, &provider.ExhaustedError{Attempts: attempts}
}

// attempt wraps one dispatch in a child span.
func attempt[T any](ctx context.Context, tracer trace.Tracer, model provider.ModelConfig, n int, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "inference.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", model.Provider),
		attribute.String("model", model.ID),
		attribute.Int("attempt", n),
	)
	out, err := fn(ctx)
	if err != nil {
		recordError(span, err)
	}
	return out, err
}

// fallbackModel picks the fallback provider's best model for rt.
func (s *Service) fallbackModel(providerName string, rt provider.RequestType) (provider.ModelConfig, bool) {
	if _, ok := s.router.Shim(providerName); !ok {
		return provider.ModelConfig{}, false
	}
	return s.registry.ResolveForProvider(providerName, rt, s.pref.Strategy)
}

// RequestOption customises the requests built by the convenience wrappers.
type RequestOption func(*provider.Request)

func WithModel(model string) RequestOption {
	return func(r *provider.Request) { r.Model = model }
}

func WithSystemMessage(msg string) RequestOption {
	return func(r *provider.Request) { r.SystemMessage = msg }
}

func WithParams(p provider.GenerationParams) RequestOption {
	return func(r *provider.Request) { r.Params = p }
}

func WithExtras(extras map[string]any) RequestOption {
	return func(r *provider.Request) { r.Extras = extras }
}

func WithResponseFormat(f provider.ResponseFormat) RequestOption {
	return func(r *provider.Request) { r.ResponseFormat = f }
}

// WithAttachments adds attachments; image attachments turn GenerateImage
// into an edit.
func WithAttachments(as ...provider.Attachment) RequestOption {
	return func(r *provider.Request) { r.Attachments = append(r.Attachments, as...) }
}

func build(req provider.Request, opts []RequestOption) *provider.Request {
	for _, opt := range opts {
		opt(&req)
	}
	return &req
}

// Chat sends a conversation. A single user message is sent as a prompt so a
// WithSystemMessage option still applies.
func (s *Service) Chat(ctx context.Context, messages []provider.Message, opts ...RequestOption) (*provider.Response, error) {
	req := provider.Request{Messages: messages}
	if len(messages) == 1 && messages[0].Role == provider.RoleUser {
		req = provider.Request{Prompt: messages[0].Content}
	}
	return s.ProcessRequest(ctx, build(req, opts))
}

func (s *Service) AnalyzeImage(ctx context.Context, prompt string, images []provider.Attachment, opts ...RequestOption) (*provider.Response, error) {
	if len(images) == 0 {
		return nil, &provider.ValidationError{Field: "attachments", Reason: "at least one image is required"}
	}
	return s.ProcessRequest(ctx, build(provider.Request{Prompt: prompt, Attachments: images}, opts))
}

func (s *Service) GenerateImage(ctx context.Context, prompt string, opts ...RequestOption) (*provider.Response, error) {
	req := build(provider.Request{Prompt: prompt}, opts)
	req.ResponseFormat = provider.FormatImage
	return s.ProcessRequest(ctx, req)
}

// ListModels returns the static catalog.
func (s *Service) ListModels() []provider.ModelConfig {
	return s.registry.Models()
}

// SupportedProviders lists the providers with a working shim.
func (s *Service) SupportedProviders() []string {
	var out []string
	for _, name := range s.router.Providers() {
		shim, _ := s.router.Shim(name)
		if _, stub := shim.(provider.Unimplemented); !stub {
			out = append(out, name)
		}
	}
	return out
}

// ProviderStatus reports, per registered provider, whether calls can succeed:
// the shim is implemented and a key is configured.
func (s *Service) ProviderStatus(ctx context.Context) map[string]bool {
	status := make(map[string]bool)
	for _, name := range s.router.Providers() {
		shim, _ := s.router.Shim(name)
		if _, stub := shim.(provider.Unimplemented); stub {
			status[name] = false
			continue
		}
		_, err := s.keys.APIKey(ctx, name)
		status[name] = err == nil
	}
	return status
}

// RefreshModels runs live discovery for every provider that supports it and
// has a key. It returns the overlay size per provider.
func (s *Service) RefreshModels(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	var errs []error
	for _, name := range s.router.Providers() {
		shim, _ := s.router.Shim(name)
		lister, ok := shim.(provider.ModelLister)
		if !ok {
			continue
		}
		if _, err := s.keys.APIKey(ctx, name); err != nil {
			continue
		}
		n, err := s.registry.Discover(ctx, name, lister)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		counts[name] = n
	}
	return counts, errors.Join(errs...)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
