package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/inference-gateway/config"
	"github.com/vnmchuo/inference-gateway/internal/billing"
	"github.com/vnmchuo/inference-gateway/internal/identity"
	"github.com/vnmchuo/inference-gateway/internal/keys"
	"github.com/vnmchuo/inference-gateway/internal/provider"
	"github.com/vnmchuo/inference-gateway/internal/provider/claude"
	"github.com/vnmchuo/inference-gateway/internal/provider/gemini"
	"github.com/vnmchuo/inference-gateway/internal/provider/openai"
	"github.com/vnmchuo/inference-gateway/internal/proxy"
	"github.com/vnmchuo/inference-gateway/internal/registry"
	"github.com/vnmchuo/inference-gateway/internal/seeder"
	"github.com/vnmchuo/inference-gateway/internal/telemetry"
	"github.com/vnmchuo/inference-gateway/internal/worker"
	"github.com/vnmchuo/inference-gateway/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("inference-gateway", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	ctx := context.Background()
	envKeys := keys.FromEnv(cfg.OpenAIAPIKey, cfg.GeminiAPIKey, cfg.AnthropicAPIKey)

	// 3. PostgreSQL: usage log and stored provider keys
	var (
		keyLookup    provider.KeyLookup = envKeys
		billingStore billing.Store      = billing.NewMemoryStore()
	)
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to connect postgres: %v", err)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			log.Fatalf("failed to ping postgres: %v", err)
		}
		log.Println("PostgreSQL connected")

		pgBilling := billing.NewPostgresStore(pool)
		if err := pgBilling.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate billing: %v", err)
		}
		billingStore = pgBilling

		keyStore := keys.NewPostgresStore(pool)
		if err := keyStore.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate keys: %v", err)
		}
		if cfg.RunSeed {
			seeder.SeedProviderKeys(ctx, keyStore, envKeys)
		}
		keyLookup = keys.Chain{keyStore, envKeys}
	} else {
		log.Println("POSTGRES_DSN not set, usage is kept in memory")
	}

	// 4. Redis: model overlay and rate limiting
	var (
		overlay registry.Overlay = registry.NewMemoryOverlay(cfg.DiscoveryTTL)
		limiter *ratelimit.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to ping redis: %v", err)
		}
		log.Println("Redis connected")

		overlay = registry.NewRedisOverlay(rdb, cfg.DiscoveryTTL)
		limiter = ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitTPM)
	} else {
		log.Println("REDIS_ADDR not set, rate limiting disabled")
	}

	// 5. Init registry
	reg, err := registry.New(registry.Catalog(), overlay, cfg.DefaultProvider)
	if err != nil {
		log.Fatalf("failed to build model registry: %v", err)
	}

	// 6. Init shims
	httpClient := &http.Client{}
	shims := []provider.Shim{
		openai.New(keyLookup, cfg.OpenAIBaseURL, httpClient),
		gemini.New(keyLookup, cfg.GeminiBaseURL, httpClient),
		claude.New(provider.Google, provider.OpenAI),
	}

	// 7. Init router and service
	router := proxy.NewRouter(shims, cfg.Timeouts(), proxy.RetryPolicy{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	})
	tracer := otel.GetTracerProvider().Tracer("inference-gateway")
	service := proxy.NewService(reg, router, keyLookup, cfg.Preference(), tracer)

	// 8. Init handler
	handler := proxy.NewHandler(service, billingStore, limiter)

	// 9. Model discovery
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go worker.NewRefresher(service, cfg.DiscoveryInterval).Start(workerCtx)

	// 10. Init Chi router
	r := chi.NewRouter()
	r.Use(identity.NewMiddleware())
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"inference-gateway"}`))
	})
	r.Mount("/v1", handler.Routes())

	// 11. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Inference gateway starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
