package registry

import (
	"strings"

	"github.com/vnmchuo/inference-gateway/internal/provider"
)

var familyPrefixes = []struct {
	prefix   string
	provider string
}{
	{"gpt-", provider.OpenAI},
	{"chatgpt-", provider.OpenAI},
	{"dall-e", provider.OpenAI},
	{"o1", provider.OpenAI},
	{"o3", provider.OpenAI},
	{"o4", provider.OpenAI},
	{"gemini-", provider.Google},
	{"imagen-", provider.Google},
	{"claude-", provider.Anthropic},
}

// ProviderFor guesses the provider of a model id from its family prefix.
func ProviderFor(id string) (string, bool) {
	lower := strings.ToLower(id)
	for _, f := range familyPrefixes {
		if strings.HasPrefix(lower, f.prefix) {
			return f.provider, true
		}
	}
	return "", false
}

// Infer builds a conservative config for an id the catalog does not know,
// using the naming conventions of the provider family. providerHint may be
// empty, in which case the provider is taken from the id prefix.
func Infer(providerHint, id string) (provider.ModelConfig, bool) {
	name := providerHint
	if name == "" {
		var ok bool
		if name, ok = ProviderFor(id); !ok {
			return provider.ModelConfig{}, false
		}
	}

	var cfg provider.ModelConfig
	switch name {
	case provider.OpenAI:
		cfg = inferOpenAI(strings.ToLower(id))
	case provider.Google:
		cfg = inferGemini(strings.ToLower(id))
	case provider.Anthropic:
		cfg = provider.ModelConfig{
			Capabilities:        []provider.Capability{provider.CapText, provider.CapVision},
			Mapping:             provider.ParameterMapping{Fields: map[provider.Param]string{provider.ParamStop: "stop_sequences"}},
			SupportedParameters: []string{"max_tokens", "temperature", "top_p", "stop_sequences"},
			ContextWindow:       200000,
		}
	default:
		return provider.ModelConfig{}, false
	}
	cfg.ID = id
	cfg.DisplayName = id
	cfg.Provider = name
	cfg.Source = provider.SourceInferred
	return cfg, true
}

func inferOpenAI(id string) provider.ModelConfig {
	switch {
	case strings.HasPrefix(id, "dall-e"):
		return provider.ModelConfig{
			Capabilities:        []provider.Capability{provider.CapImageGeneration},
			Mapping:             imageOnly,
			SupportedParameters: []string{"size", "quality", "style", "n"},
			ContextWindow:       4000,
		}
	case strings.HasPrefix(id, "gpt-image"):
		return provider.ModelConfig{
			Capabilities:        []provider.Capability{provider.CapImageGeneration, provider.CapImageEdit},
			Mapping:             imageOnly,
			SupportedParameters: []string{"size", "quality", "n"},
			ContextWindow:       4000,
		}
	case isOpenAIReasoning(id):
		return provider.ModelConfig{
			Capabilities: []provider.Capability{provider.CapText, provider.CapVision, provider.CapReasoning, provider.CapJSONMode},
			Mapping: provider.ParameterMapping{Fields: map[provider.Param]string{
				provider.ParamMaxTokens:        "max_completion_tokens",
				provider.ParamTemperature:      provider.Unsupported,
				provider.ParamTopP:             provider.Unsupported,
				provider.ParamFrequencyPenalty: provider.Unsupported,
				provider.ParamPresencePenalty:  provider.Unsupported,
				provider.ParamStop:             provider.Unsupported,
			}},
			SupportedParameters: []string{"max_completion_tokens", "reasoning_effort"},
			ContextWindow:       8192,
		}
	}

	cfg := provider.ModelConfig{
		Capabilities:        []provider.Capability{provider.CapText, provider.CapStreaming},
		Mapping:             provider.ParameterMapping{Fields: map[provider.Param]string{provider.ParamReasoningEffort: provider.Unsupported}},
		SupportedParameters: openAIChatParams,
		ContextWindow:       8192,
	}
	if strings.Contains(id, "gpt-4") {
		cfg.Capabilities = append(cfg.Capabilities, provider.CapVision, provider.CapJSONMode)
	}
	return cfg
}

func isOpenAIReasoning(id string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

func inferGemini(id string) provider.ModelConfig {
	if strings.HasPrefix(id, "imagen-") {
		return provider.ModelConfig{
			Capabilities:        []provider.Capability{provider.CapImageGeneration},
			Mapping:             imageOnly,
			SupportedParameters: []string{"aspect_ratio"},
			ContextWindow:       480,
		}
	}

	cfg := provider.ModelConfig{
		Capabilities:        []provider.Capability{provider.CapText},
		Mapping:             geminiMapping,
		SupportedParameters: geminiParams,
		ContextWindow:       32768,
	}
	if strings.Contains(id, "vision") || strings.Contains(id, "pro") {
		cfg.Capabilities = append(cfg.Capabilities, provider.CapVision)
	}
	if strings.Contains(id, "1.5") {
		cfg.ContextWindow = 1000000
		if strings.Contains(id, "pro") {
			cfg.ContextWindow = 2000000
		}
	}
	if strings.Contains(id, "image") {
		cfg.Capabilities = []provider.Capability{provider.CapText, provider.CapVision, provider.CapImageGeneration, provider.CapImageEdit}
		cfg.SupportedParameters = []string{"max_output_tokens", "temperature", "top_p", "aspect_ratio", "response_modalities"}
	}
	return cfg
}

// conservativeDefault is the last resort of Resolve: text only, no optional
// parameters.
func conservativeDefault(providerName, id string) provider.ModelConfig {
	return provider.ModelConfig{
		ID:           id,
		DisplayName:  id,
		Provider:     providerName,
		Capabilities: []provider.Capability{provider.CapText},
		Source:       provider.SourceDefault,
	}
}
