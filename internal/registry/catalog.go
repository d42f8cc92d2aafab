package registry

import "github.com/vnmchuo/inference-gateway/internal/provider"

var openAIChatParams = []string{"max_tokens", "temperature", "top_p", "frequency_penalty", "presence_penalty", "stop"}

var geminiParams = []string{"max_output_tokens", "temperature", "top_p", "stop_sequences"}

// Gemini has no penalties or reasoning effort.
var geminiMapping = provider.ParameterMapping{
	Fields: map[provider.Param]string{
		provider.ParamMaxTokens:        "max_output_tokens",
		provider.ParamStop:             "stop_sequences",
		provider.ParamFrequencyPenalty: provider.Unsupported,
		provider.ParamPresencePenalty:  provider.Unsupported,
		provider.ParamReasoningEffort:  provider.Unsupported,
	},
}

// imageOnly drops every unified generation parameter; image endpoints take
// their options from request extras.
var imageOnly = provider.ParameterMapping{
	Fields: map[provider.Param]string{
		provider.ParamTemperature:      provider.Unsupported,
		provider.ParamMaxTokens:        provider.Unsupported,
		provider.ParamTopP:             provider.Unsupported,
		provider.ParamFrequencyPenalty: provider.Unsupported,
		provider.ParamPresencePenalty:  provider.Unsupported,
		provider.ParamStop:             provider.Unsupported,
		provider.ParamReasoningEffort:  provider.Unsupported,
	},
}

// Catalog returns the built-in model table. Entries share mapping tables,
// which must not be modified.
func Catalog() []provider.ModelConfig {
	return []provider.ModelConfig{
		{
			ID:                  "gpt-4o",
			DisplayName:         "GPT-4o",
			Provider:            provider.OpenAI,
			Capabilities:        []provider.Capability{provider.CapText, provider.CapVision, provider.CapStreaming, provider.CapJSONMode},
			Mapping:             provider.ParameterMapping{Fields: map[provider.Param]string{provider.ParamReasoningEffort: provider.Unsupported}},
			SupportedParameters: openAIChatParams,
			CostPer1KTokens:     0.005,
			ContextWindow:       128000,
		},
		{
			ID:                  "gpt-4o-mini",
			DisplayName:         "GPT-4o mini",
			Provider:            provider.OpenAI,
			Capabilities:        []provider.Capability{provider.CapText, provider.CapVision, provider.CapStreaming, provider.CapJSONMode},
			Mapping:             provider.ParameterMapping{Fields: map[provider.Param]string{provider.ParamReasoningEffort: provider.Unsupported}},
			SupportedParameters: openAIChatParams,
			CostPer1KTokens:     0.00015,
			ContextWindow:       128000,
		},
		{
			ID:           "gpt-5",
			DisplayName:  "GPT-5",
			Provider:     provider.OpenAI,
			Capabilities: []provider.Capability{provider.CapText, provider.CapVision, provider.CapReasoning, provider.CapStreaming, provider.CapJSONMode},
			Mapping: provider.ParameterMapping{
				Fields: map[provider.Param]string{
					provider.ParamMaxTokens:        "max_completion_tokens",
					provider.ParamTemperature:      provider.Unsupported,
					provider.ParamTopP:             provider.Unsupported,
					provider.ParamFrequencyPenalty: provider.Unsupported,
					provider.ParamPresencePenalty:  provider.Unsupported,
					provider.ParamStop:             provider.Unsupported,
				},
				CustomParams: map[string]any{"reasoning_effort": "medium"},
			},
			SupportedParameters: []string{"max_completion_tokens", "reasoning_effort"},
			CostPer1KTokens:     0.01,
			ContextWindow:       200000,
		},
		{
			ID:                  "dall-e-3",
			DisplayName:         "DALL-E 3",
			Provider:            provider.OpenAI,
			Capabilities:        []provider.Capability{provider.CapImageGeneration},
			Mapping:             imageOnly,
			SupportedParameters: []string{"size", "quality", "style", "n"},
			CostPer1KTokens:     0.04,
			ContextWindow:       4000,
		},
		{
			ID:                  "gpt-image-1",
			DisplayName:         "GPT Image 1",
			Provider:            provider.OpenAI,
			Capabilities:        []provider.Capability{provider.CapImageGeneration, provider.CapImageEdit},
			Mapping:             imageOnly,
			SupportedParameters: []string{"size", "quality", "n"},
			CostPer1KTokens:     0.04,
			ContextWindow:       32000,
		},
		{
			ID:                  "gemini-1.5-pro",
			DisplayName:         "Gemini 1.5 Pro",
			Provider:            provider.Google,
			Capabilities:        []provider.Capability{provider.CapText, provider.CapVision, provider.CapStreaming, provider.CapJSONMode},
			Mapping:             geminiMapping,
			SupportedParameters: geminiParams,
			CostPer1KTokens:     0.0035,
			ContextWindow:       2000000,
		},
		{
			ID:                  "gemini-1.5-flash",
			DisplayName:         "Gemini 1.5 Flash",
			Provider:            provider.Google,
			Capabilities:        []provider.Capability{provider.CapText, provider.CapVision, provider.CapStreaming, provider.CapJSONMode},
			Mapping:             geminiMapping,
			SupportedParameters: geminiParams,
			CostPer1KTokens:     0.00075,
			ContextWindow:       1000000,
		},
		{
			ID:                  "gemini-2.5-flash",
			DisplayName:         "Gemini 2.5 Flash",
			Provider:            provider.Google,
			Capabilities:        []provider.Capability{provider.CapText, provider.CapVision, provider.CapReasoning, provider.CapStreaming, provider.CapJSONMode},
			Mapping:             geminiMapping,
			SupportedParameters: geminiParams,
			CostPer1KTokens:     0.00075,
			ContextWindow:       1000000,
		},
		{
			ID:                  "gemini-2.5-flash-image",
			DisplayName:         "Gemini 2.5 Flash Image",
			Provider:            provider.Google,
			Capabilities:        []provider.Capability{provider.CapText, provider.CapVision, provider.CapImageGeneration, provider.CapImageEdit},
			Mapping:             geminiMapping,
			SupportedParameters: []string{"max_output_tokens", "temperature", "top_p", "aspect_ratio", "response_modalities"},
			CostPer1KTokens:     0.00075,
			ContextWindow:       1000000,
		},
		{
			ID:                  "claude-3-5-sonnet",
			DisplayName:         "Claude 3.5 Sonnet",
			Provider:            provider.Anthropic,
			Capabilities:        []provider.Capability{provider.CapText, provider.CapVision, provider.CapStreaming},
			Mapping:             provider.ParameterMapping{Fields: map[provider.Param]string{provider.ParamStop: "stop_sequences"}},
			SupportedParameters: []string{"max_tokens", "temperature", "top_p", "stop_sequences"},
			CostPer1KTokens:     0.003,
			ContextWindow:       200000,
		},
	}
}
