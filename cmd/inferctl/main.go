// Command inferctl calls the unified inference service from the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vnmchuo/inference-gateway/config"
	"github.com/vnmchuo/inference-gateway/internal/keys"
	"github.com/vnmchuo/inference-gateway/internal/provider"
	"github.com/vnmchuo/inference-gateway/internal/provider/claude"
	"github.com/vnmchuo/inference-gateway/internal/provider/gemini"
	"github.com/vnmchuo/inference-gateway/internal/provider/openai"
	"github.com/vnmchuo/inference-gateway/internal/proxy"
	"github.com/vnmchuo/inference-gateway/internal/registry"
)

var (
	model   string
	system  string
	extras  map[string]string
	asJSON  bool
	timeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "inferctl",
		Short: "Unified OpenAI and Gemini inference from the command line",
		Long: `inferctl sends requests through the same model registry, parameter
mapping and fallback logic as the gateway. Keys come from OPENAI_API_KEY,
GEMINI_API_KEY and ANTHROPIC_API_KEY (or a .env file).

Examples:
  inferctl chat "Explain TCP slow start"
  inferctl chat -m gemini-2.5-flash --system "be brief" "hello"
  inferctl vision cat.png "what breed is this?"
  inferctl image -o fox.png --set aspect_ratio=16:9 "a red fox in snow"
  inferctl models`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", provider.AutoModel, "model id, provider/model, or auto")
	rootCmd.PersistentFlags().StringVar(&system, "system", "", "system message")
	rootCmd.PersistentFlags().StringToStringVar(&extras, "set", nil, "provider-specific extras (key=value)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall request timeout")

	rootCmd.AddCommand(
		chatCmd(),
		visionCmd(),
		imageCmd(),
		modelsCmd(),
		providersCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newService wires the service the same way the gateway does, without
// Postgres or Redis.
func newService() (*proxy.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	keyLookup := keys.FromEnv(cfg.OpenAIAPIKey, cfg.GeminiAPIKey, cfg.AnthropicAPIKey)

	reg, err := registry.New(registry.Catalog(), registry.NewMemoryOverlay(cfg.DiscoveryTTL), cfg.DefaultProvider)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{}
	router := proxy.NewRouter([]provider.Shim{
		openai.New(keyLookup, cfg.OpenAIBaseURL, httpClient),
		gemini.New(keyLookup, cfg.GeminiBaseURL, httpClient),
		claude.New(provider.Google, provider.OpenAI),
	}, cfg.Timeouts(), proxy.RetryPolicy{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	})

	return proxy.NewService(reg, router, keyLookup, cfg.Preference(), noop.NewTracerProvider().Tracer("inferctl")), nil
}

func commonOptions() []proxy.RequestOption {
	opts := []proxy.RequestOption{proxy.WithModel(model)}
	if system != "" {
		opts = append(opts, proxy.WithSystemMessage(system))
	}
	if len(extras) > 0 {
		m := make(map[string]any, len(extras))
		for k, v := range extras {
			m[k] = v
		}
		opts = append(opts, proxy.WithExtras(m))
	}
	return opts
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResponse(resp *provider.Response) error {
	if asJSON {
		return printJSON(resp)
	}
	fmt.Println(resp.Content)
	fmt.Fprintln(os.Stderr, color.New(color.Faint).Sprintf("[%s/%s, %d tokens, %dms]", resp.Provider, resp.Model, resp.Usage.TotalTokens, resp.LatencyMs))
	return nil
}
