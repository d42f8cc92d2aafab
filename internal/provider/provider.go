package provider

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Provider identifiers used by the registry and the shims.
const (
	OpenAI    = "openai"
	Google    = "google"
	Anthropic = "anthropic"
)

// AutoModel asks the service to pick a model from the classified request type.
const AutoModel = "auto"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat string

const (
	FormatText  ResponseFormat = "text"
	FormatImage ResponseFormat = "image"
	FormatJSON  ResponseFormat = "json"
)

// GenerationParams is the provider-independent parameter bag. Nil pointers and
// empty values mean "not set" and never reach the wire.
type GenerationParams struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	ReasoningEffort  string   `json:"reasoning_effort,omitempty"`
}

// Values returns the set parameters keyed by their unified names.
func (p GenerationParams) Values() map[Param]any {
	out := make(map[Param]any)
	if p.Temperature != nil {
		out[ParamTemperature] = *p.Temperature
	}
	if p.MaxTokens != nil {
		out[ParamMaxTokens] = *p.MaxTokens
	}
	if p.TopP != nil {
		out[ParamTopP] = *p.TopP
	}
	if p.FrequencyPenalty != nil {
		out[ParamFrequencyPenalty] = *p.FrequencyPenalty
	}
	if p.PresencePenalty != nil {
		out[ParamPresencePenalty] = *p.PresencePenalty
	}
	if len(p.Stop) > 0 {
		out[ParamStop] = append([]string(nil), p.Stop...)
	}
	if p.ReasoningEffort != "" {
		out[ParamReasoningEffort] = p.ReasoningEffort
	}
	return out
}

// Request is the unified inference request. Exactly one of Prompt and
// Messages must be set. A Request must not be modified once handed to the
// service.
type Request struct {
	Prompt         string
	SystemMessage  string
	Messages       []Message
	Attachments    []Attachment
	Params         GenerationParams
	ResponseFormat ResponseFormat
	Stream         bool
	Model          string
	Extras         map[string]any
}

// Validate rejects malformed requests before any provider is contacted.
func (r *Request) Validate() error {
	hasPrompt := r.Prompt != ""
	hasMessages := len(r.Messages) > 0

	switch {
	case hasPrompt && hasMessages:
		return &ValidationError{Field: "prompt", Reason: "cannot provide both prompt and messages"}
	case !hasPrompt && r.Messages != nil && !hasMessages:
		return &ValidationError{Field: "messages", Reason: "messages must not be empty"}
	case !hasPrompt && !hasMessages:
		return &ValidationError{Field: "prompt", Reason: "either prompt or messages must be provided"}
	}

	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return &ValidationError{Field: "messages", Reason: "message " + strconv.Itoa(i) + " has unknown role " + string(m.Role)}
		}
	}

	switch r.ResponseFormat {
	case "", FormatText, FormatImage, FormatJSON:
	default:
		return &ValidationError{Field: "response_format", Reason: "unknown response format " + string(r.ResponseFormat)}
	}

	for i, a := range r.Attachments {
		if len(a.Content()) == 0 {
			return &ValidationError{Field: "attachments", Reason: "attachment " + strconv.Itoa(i) + " is empty"}
		}
	}
	return nil
}

func (r *Request) IsMultiTurn() bool {
	return len(r.Messages) > 0
}

// Conversation returns the request as an ordered message list. Single-turn
// requests become an optional system message followed by the user prompt.
func (r *Request) Conversation() []Message {
	if r.IsMultiTurn() {
		return append([]Message(nil), r.Messages...)
	}
	var msgs []Message
	if r.SystemMessage != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.SystemMessage})
	}
	return append(msgs, Message{Role: RoleUser, Content: r.Prompt})
}

// PromptText is the instruction used by image endpoints: the prompt, or the
// content of the last user message in a conversation.
func (r *Request) PromptText() string {
	if !r.IsMultiTurn() {
		return r.Prompt
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// ModelSelector returns the requested model, defaulting to AutoModel.
func (r *Request) ModelSelector() string {
	m := strings.TrimSpace(r.Model)
	if m == "" {
		return AutoModel
	}
	return m
}

func (r *Request) Format() ResponseFormat {
	if r.ResponseFormat == "" {
		return FormatText
	}
	return r.ResponseFormat
}

func (r *Request) ImageAttachments() []Attachment {
	var out []Attachment
	for _, a := range r.Attachments {
		if a.Type() == AttachmentImage {
			out = append(out, a)
		}
	}
	return out
}

type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
)

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AttachmentUsage records how a shim used one request attachment.
type AttachmentUsage struct {
	Index    int            `json:"index"`
	Type     AttachmentType `json:"type"`
	MimeType string         `json:"mime_type"`
	Filename string         `json:"filename,omitempty"`
	UsedAs   string         `json:"used_as"`
}

const (
	UsedAsImage     = "inline_image"
	UsedAsReference = "reference_image"
	UsedAsEditBase  = "edit_source"
	UsedAsDocument  = "document"
	UsedAsText      = "text"
	UsedAsIgnored   = "ignored"
)

type Response struct {
	Content      string            `json:"content,omitempty"`
	Images       []string          `json:"images,omitempty"`
	Model        string            `json:"model"`
	Provider     string            `json:"provider"`
	Usage        Usage             `json:"usage"`
	FinishReason FinishReason      `json:"finish_reason"`
	Attachments  []AttachmentUsage `json:"attachments_processed,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	LatencyMs    int64             `json:"latency_ms"`

	// RegistryModel names the registry entry that was dispatched. Model is
	// what the provider reported, often a dated snapshot id.
	RegistryModel string `json:"registry_model,omitempty"`
}

type Chunk struct {
	Delta string
	Done  bool
	Err   error
	// Usage is set on the final chunk when the provider reports token counts.
	Usage *Usage
}

// Shim adapts unified requests to one provider's wire format.
type Shim interface {
	Name() string
	ProcessRequest(ctx context.Context, req *Request, model ModelConfig) (*Response, error)
}

// Streamer is implemented by shims that can stream text responses.
type Streamer interface {
	ProcessStream(ctx context.Context, req *Request, model ModelConfig) (<-chan *Chunk, error)
}

// ModelLister is implemented by shims that support live model discovery.
type ModelLister interface {
	ListModelIDs(ctx context.Context) ([]string, error)
}

// Unimplemented marks placeholder shims that always fail with NotImplementedError.
type Unimplemented interface {
	Unimplemented()
}

// HTTPDoer is the transport collaborator. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeyLookup is the secret collaborator. Implementations return ErrNoAPIKey
// when the provider has no key.
type KeyLookup interface {
	APIKey(ctx context.Context, provider string) (string, error)
}

// StaticKeys is a KeyLookup over a fixed map.
type StaticKeys map[string]string

func (s StaticKeys) APIKey(_ context.Context, provider string) (string, error) {
	if k := s[provider]; k != "" {
		return k, nil
	}
	return "", ErrNoAPIKey
}
