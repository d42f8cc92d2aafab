package provider

import (
	"fmt"
	"slices"
)

type Capability string

const (
	CapText            Capability = "text"
	CapVision          Capability = "vision"
	CapImageGeneration Capability = "image_generation"
	CapImageEdit       Capability = "image_edit"
	CapReasoning       Capability = "reasoning"
	CapStreaming       Capability = "streaming"
	CapJSONMode        Capability = "json_mode"
)

// Param names a unified generation parameter.
type Param string

const (
	ParamTemperature      Param = "temperature"
	ParamMaxTokens        Param = "max_tokens"
	ParamTopP             Param = "top_p"
	ParamFrequencyPenalty Param = "frequency_penalty"
	ParamPresencePenalty  Param = "presence_penalty"
	ParamStop             Param = "stop"
	ParamReasoningEffort  Param = "reasoning_effort"
)

// UnifiedParams lists every unified parameter in mapping order.
var UnifiedParams = []Param{
	ParamTemperature,
	ParamMaxTokens,
	ParamTopP,
	ParamFrequencyPenalty,
	ParamPresencePenalty,
	ParamStop,
	ParamReasoningEffort,
}

// Unsupported is the field name that tells the mapper to drop a parameter.
const Unsupported = ""

// ParameterMapping renames unified parameters for one model. A parameter
// absent from Fields keeps its unified name; one mapped to Unsupported is
// dropped. CustomParams are merged into every call.
type ParameterMapping struct {
	Fields       map[Param]string `json:"fields,omitempty"`
	CustomParams map[string]any   `json:"custom_params,omitempty"`
}

// Target returns the wire name for p and whether p is sent at all.
func (m ParameterMapping) Target(p Param) (string, bool) {
	name, ok := m.Fields[p]
	if !ok {
		return string(p), true
	}
	return name, name != Unsupported
}

// Model source labels.
const (
	SourceStatic     = "static"
	SourceDiscovered = "discovered"
	SourceInferred   = "inferred"
	SourceDefault    = "default"
)

// ModelConfig describes one model. Registry entries are never mutated after
// insertion; they are replaced wholesale.
type ModelConfig struct {
	ID                  string           `json:"id"`
	DisplayName         string           `json:"display_name"`
	Provider            string           `json:"provider"`
	Capabilities        []Capability     `json:"capabilities"`
	Mapping             ParameterMapping `json:"parameter_mapping"`
	SupportedParameters []string         `json:"supported_parameters"`
	CostPer1KTokens     float64          `json:"cost_per_1k_tokens,omitempty"`
	ContextWindow       int              `json:"context_window,omitempty"`
	Source              string           `json:"source,omitempty"`
}

func (m ModelConfig) Has(c Capability) bool {
	return slices.Contains(m.Capabilities, c)
}

// HasAll reports whether every capability in cs is declared.
func (m ModelConfig) HasAll(cs []Capability) bool {
	for _, c := range cs {
		if !m.Has(c) {
			return false
		}
	}
	return true
}

func (m ModelConfig) Supports(param string) bool {
	return slices.Contains(m.SupportedParameters, param)
}

// RegistryName is the provider-qualified model name, e.g. "openai/gpt-4o".
func (m ModelConfig) RegistryName() string {
	return m.Provider + "/" + m.ID
}

// Validate checks the registry invariants of a model entry.
func (m ModelConfig) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("model config: empty id")
	}
	if m.Provider == "" {
		return fmt.Errorf("model config %s: empty provider", m.ID)
	}
	for key := range m.Mapping.CustomParams {
		if !m.Supports(key) {
			return fmt.Errorf("model config %s: custom param %q not in supported parameters", m.ID, key)
		}
	}
	return nil
}
