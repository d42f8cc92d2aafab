package proxy

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"github.com/vnmchuo/inference-gateway/internal/provider"
)

// RetryPolicy bounds transient retries against a single provider.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     8 * time.Second,
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// Router owns the shims and guards each provider with a circuit breaker and
// a per-call timeout.
type Router struct {
	shims    map[string]provider.Shim
	breakers map[string]*gobreaker.CircuitBreaker
	timeouts map[string]time.Duration
	retry    RetryPolicy
}

func NewRouter(shims []provider.Shim, timeouts map[string]time.Duration, retry RetryPolicy) *Router {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 1
	}
	r := &Router{
		shims:    make(map[string]provider.Shim),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		timeouts: timeouts,
		retry:    retry,
	}
	// One retried call must be able to use every attempt before the breaker opens.
	trip := uint32(max(3, retry.MaxAttempts))
	for _, s := range shims {
		settings := gobreaker.Settings{
			Name:        s.Name(),
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= trip
			},
			// Caller mistakes must not open the breaker.
			IsSuccessful: func(err error) bool {
				return err == nil || !provider.IsTransient(err)
			},
		}
		r.shims[s.Name()] = s
		r.breakers[s.Name()] = gobreaker.NewCircuitBreaker(settings)
	}
	return r
}

func (r *Router) Shim(name string) (provider.Shim, bool) {
	s, ok := r.shims[name]
	return s, ok
}

// Providers returns the registered provider names, sorted.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.shims))
	for name := range r.shims {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BreakerState reports the circuit state of a provider.
func (r *Router) BreakerState(name string) gobreaker.State {
	if cb, ok := r.breakers[name]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

func (r *Router) withTimeout(ctx context.Context, name string) (context.Context, context.CancelFunc) {
	if d := r.timeouts[name]; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Execute makes one call through the provider's breaker.
func (r *Router) Execute(ctx context.Context, req *provider.Request, model provider.ModelConfig) (*provider.Response, error) {
	s, ok := r.shims[model.Provider]
	if !ok {
		return nil, &provider.NotImplementedError{Provider: model.Provider, Supported: r.Providers()}
	}

	ctx, cancel := r.withTimeout(ctx, model.Provider)
	defer cancel()

	result, err := r.breakers[model.Provider].Execute(func() (interface{}, error) {
		return s.ProcessRequest(ctx, req, model)
	})
	if err != nil {
		return nil, breakerError(model, err)
	}
	return result.(*provider.Response), nil
}

// ExecuteWithRetry retries transient failures on the same provider with
// exponential backoff. It reports how many calls were made.
func (r *Router) ExecuteWithRetry(ctx context.Context, req *provider.Request, model provider.ModelConfig) (*provider.Response, int, error) {
	calls := 0
	resp, err := backoff.Retry(ctx, func() (*provider.Response, error) {
		calls++
		resp, err := r.Execute(ctx, req, model)
		if err != nil && !provider.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}, backoff.WithBackOff(r.retry.backOff()), backoff.WithMaxTries(r.retry.MaxAttempts))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, calls, err
	}
	return resp, calls, nil
}

var errStreamOpenTimeout = errors.New("stream open timed out")

// ExecuteStream opens a stream through the provider's breaker. The provider
// timeout bounds opening the stream only, not reading it. Errors seen
// mid-stream are counted against the breaker too.
func (r *Router) ExecuteStream(ctx context.Context, req *provider.Request, model provider.ModelConfig) (<-chan *provider.Chunk, error) {
	s, ok := r.shims[model.Provider]
	if !ok {
		return nil, &provider.NotImplementedError{Provider: model.Provider, Supported: r.Providers()}
	}
	streamer, ok := s.(provider.Streamer)
	if !ok {
		return nil, &provider.UnsupportedCapabilityError{Provider: model.Provider, Model: model.ID, RequestType: provider.Classify(req)}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	var timer *time.Timer
	if d := r.timeouts[model.Provider]; d > 0 {
		timer = time.AfterFunc(d, func() { cancel(errStreamOpenTimeout) })
	}

	cb := r.breakers[model.Provider]
	result, err := cb.Execute(func() (interface{}, error) {
		ch, err := streamer.ProcessStream(ctx, req, model)
		if err != nil && errors.Is(context.Cause(ctx), errStreamOpenTimeout) {
			err = provider.NewTransportError(model.Provider, model.ID, context.DeadlineExceeded)
		}
		return ch, err
	})
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		cancel(nil)
		return nil, breakerError(model, err)
	}
	origCh := result.(<-chan *provider.Chunk)

	wrappedCh := make(chan *provider.Chunk)
	go func() {
		defer close(wrappedCh)
		defer cancel(nil)
		for chunk := range origCh {
			if chunk.Err != nil {
				_, _ = cb.Execute(func() (interface{}, error) {
					return nil, chunk.Err
				})
			}
			if !provider.SendChunk(ctx, wrappedCh, chunk) {
				return
			}
		}
	}()

	return wrappedCh, nil
}

// breakerError turns breaker rejections into transient provider errors.
func breakerError(model provider.ModelConfig, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &provider.ProviderError{
			Provider: model.Provider,
			Model:    model.ID,
			Kind:     provider.KindUnavailable,
			Message:  "circuit breaker: " + err.Error(),
			Err:      err,
		}
	}
	return err
}
