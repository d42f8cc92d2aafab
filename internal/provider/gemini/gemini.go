// Package gemini adapts unified requests to the Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/vnmchuo/inference-gateway/internal/params"
	"github.com/vnmchuo/inference-gateway/internal/provider"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

type Shim struct {
	keys    provider.KeyLookup
	baseURL string
	client  provider.HTTPDoer
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
	Thought    bool        `json:"thought,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate   `json:"candidates"`
	UsageMetadata  geminiUsageMetadata `json:"usageMetadata"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	ModelVersion string `json:"modelVersion"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
}

type modelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}

// New returns the Gemini shim. An empty baseURL uses DefaultBaseURL and a nil
// client uses http.DefaultClient.
func New(keys provider.KeyLookup, baseURL string, client provider.HTTPDoer) *Shim {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Shim{keys: keys, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *Shim) Name() string {
	return provider.Google
}

func (s *Shim) ProcessRequest(ctx context.Context, req *provider.Request, model provider.ModelConfig) (*provider.Response, error) {
	var (
		body     geminiRequest
		usage    []provider.AttachmentUsage
		warnings []string
	)
	switch provider.Classify(req) {
	case provider.RequestImageGeneration, provider.RequestImageEdit:
		body, usage, warnings = s.imageBody(req, model)
	default:
		body, usage = s.textBody(req, model)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := s.newRequest(ctx, http.MethodPost, "/v1beta/models/"+url.PathEscape(model.ID)+":generateContent", nil, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	respBody, err := provider.Call(s.client, httpReq, provider.Google, model.ID)
	if err != nil {
		return nil, err
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, provider.NewDecodeError(provider.Google, model.ID, err)
	}
	return s.response(geminiResp, model, usage, warnings)
}

func (s *Shim) response(geminiResp geminiResponse, model provider.ModelConfig, usage []provider.AttachmentUsage, warnings []string) (*provider.Response, error) {
	resp := &provider.Response{
		Model:    model.ID,
		Provider: provider.Google,
		Usage: provider.Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		},
		Attachments: usage,
		Metadata:    map[string]any{},
	}
	if geminiResp.ModelVersion != "" {
		resp.Metadata["model_version"] = geminiResp.ModelVersion
	}
	if n := geminiResp.UsageMetadata.ThoughtsTokenCount; n > 0 {
		resp.Metadata["reasoning_tokens"] = n
	}
	if len(warnings) > 0 {
		resp.Metadata["warnings"] = warnings
	}

	if len(geminiResp.Candidates) == 0 {
		if reason := geminiResp.PromptFeedback.BlockReason; reason != "" {
			resp.FinishReason = provider.FinishContentFilter
			resp.Metadata["block_reason"] = reason
			return resp, nil
		}
		return nil, provider.NewDecodeError(provider.Google, model.ID, errors.New("gemini api returned no candidates"))
	}

	candidate := geminiResp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		switch {
		case part.InlineData != nil:
			resp.Images = append(resp.Images, "data:"+part.InlineData.MimeType+";base64,"+part.InlineData.Data)
		case part.Thought:
		default:
			text.WriteString(part.Text)
		}
	}
	resp.Content = text.String()
	resp.FinishReason = mapFinishReason(candidate.FinishReason)
	return resp, nil
}

// buildContents maps the conversation one message to one content entry.
// Gemini has no system role, so system messages are sent as user turns and
// assistant turns use the "model" role.
func buildContents(req *provider.Request) ([]geminiContent, int) {
	conversation := req.Conversation()
	contents := make([]geminiContent, len(conversation))
	target := -1
	for i, m := range conversation {
		role := "user"
		switch m.Role {
		case provider.RoleAssistant:
			role = "model"
		case provider.RoleUser:
			target = i
		}
		contents[i] = geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}}
	}
	return contents, target
}

func (s *Shim) textBody(req *provider.Request, model provider.ModelConfig) (geminiRequest, []provider.AttachmentUsage) {
	contents, target := buildContents(req)

	var usage []provider.AttachmentUsage
	if target >= 0 {
		for i, a := range req.Attachments {
			used := provider.AttachmentUsage{Index: i, Type: a.Type(), MimeType: a.MimeType(), Filename: a.Filename(), UsedAs: provider.UsedAsIgnored}
			switch a.Type() {
			case provider.AttachmentImage:
				contents[target].Parts = append(contents[target].Parts, inlinePart(a))
				used.UsedAs = provider.UsedAsImage
			case provider.AttachmentPDF:
				contents[target].Parts = append(contents[target].Parts, inlinePart(a))
				used.UsedAs = provider.UsedAsDocument
			case provider.AttachmentText:
				text, _ := a.ToText()
				if a.Filename() != "" {
					text = fmt.Sprintf("[%s]\n%s", a.Filename(), text)
				}
				contents[target].Parts = append(contents[target].Parts, geminiPart{Text: text})
				used.UsedAs = provider.UsedAsText
			}
			usage = append(usage, used)
		}
	}

	cfg := generationConfig(params.Map(req.Params, req.Extras, model))
	if req.Format() == provider.FormatJSON && model.Has(provider.CapJSONMode) {
		cfg["responseMimeType"] = "application/json"
	}
	return geminiRequest{Contents: contents, GenerationConfig: cfg}, usage
}

// imageBody builds an image generation or edit call. Source images precede
// the instruction in the final user turn.
func (s *Shim) imageBody(req *provider.Request, model provider.ModelConfig) (geminiRequest, []provider.AttachmentUsage, []string) {
	contents, target := buildContents(req)
	if target < 0 {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.PromptText()}}})
		target = len(contents) - 1
	}

	var (
		usage  []provider.AttachmentUsage
		images []geminiPart
	)
	for i, a := range req.Attachments {
		used := provider.AttachmentUsage{Index: i, Type: a.Type(), MimeType: a.MimeType(), Filename: a.Filename(), UsedAs: provider.UsedAsIgnored}
		if a.Type() == provider.AttachmentImage {
			used.UsedAs = provider.UsedAsReference
			if len(images) == 0 {
				used.UsedAs = provider.UsedAsEditBase
			}
			images = append(images, inlinePart(a))
		}
		usage = append(usage, used)
	}
	contents[target].Parts = append(images, contents[target].Parts...)

	validated, warnings := params.ValidateImage(model.ID, req.Extras)
	cfg := generationConfig(params.Map(req.Params, validated, model))
	if _, ok := cfg["responseModalities"]; !ok {
		cfg["responseModalities"] = []string{"TEXT", "IMAGE"}
	}
	return geminiRequest{Contents: contents, GenerationConfig: cfg}, usage, warnings
}

func inlinePart(a provider.Attachment) geminiPart {
	return geminiPart{InlineData: &inlineData{MimeType: a.MimeType(), Data: a.ToBase64()}}
}

// generationConfig renames mapped parameters to the camelCase wire fields.
// aspect_ratio lives in the nested imageConfig.
func generationConfig(wire map[string]any) map[string]any {
	cfg := make(map[string]any, len(wire))
	for key, v := range wire {
		if key == "aspect_ratio" {
			cfg["imageConfig"] = map[string]any{"aspectRatio": v}
			continue
		}
		cfg[camelCase(key)] = v
	}
	return cfg
}

func camelCase(key string) string {
	parts := strings.Split(key, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "STOP":
		return provider.FinishStop
	case "MAX_TOKENS":
		return provider.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return provider.FinishContentFilter
	case "MALFORMED_FUNCTION_CALL":
		return provider.FinishError
	default:
		return provider.FinishOther
	}
}

// ListModelIDs returns every model that supports generateContent.
func (s *Shim) ListModelIDs(ctx context.Context) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		query := url.Values{"pageSize": {"1000"}}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		httpReq, err := s.newRequest(ctx, http.MethodGet, "/v1beta/models", query, nil)
		if err != nil {
			return nil, err
		}
		respBody, err := provider.Call(s.client, httpReq, provider.Google, "")
		if err != nil {
			return nil, err
		}

		var list modelsResponse
		if err := json.Unmarshal(respBody, &list); err != nil {
			return nil, provider.NewDecodeError(provider.Google, "", err)
		}
		for _, m := range list.Models {
			if slices.Contains(m.SupportedGenerationMethods, "generateContent") {
				ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
			}
		}
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}
	slices.Sort(ids)
	return ids, nil
}

// ProcessStream streams a text response. Image requests cannot stream.
func (s *Shim) ProcessStream(ctx context.Context, req *provider.Request, model provider.ModelConfig) (<-chan *provider.Chunk, error) {
	if rt := provider.Classify(req); rt == provider.RequestImageGeneration || rt == provider.RequestImageEdit {
		return nil, &provider.UnsupportedCapabilityError{Provider: provider.Google, Model: model.ID, RequestType: rt}
	}

	body, _ := s.textBody(req, model)
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := s.newRequest(ctx, http.MethodPost, "/v1beta/models/"+url.PathEscape(model.ID)+":streamGenerateContent",
		url.Values{"alt": {"sse"}}, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	resp, err := provider.Open(s.client, httpReq, provider.Google, model.ID)
	if err != nil {
		return nil, err
	}

	ch := make(chan *provider.Chunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var usage *provider.Usage
		err := provider.ReadSSE(resp.Body, func(data string) error {
			var event geminiResponse
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				return provider.NewDecodeError(provider.Google, model.ID, err)
			}
			// usageMetadata is cumulative; the last event holds the totals.
			if m := event.UsageMetadata; m.TotalTokenCount > 0 {
				usage = &provider.Usage{
					PromptTokens:     m.PromptTokenCount,
					CompletionTokens: m.CandidatesTokenCount,
					TotalTokens:      m.TotalTokenCount,
				}
			}
			if len(event.Candidates) == 0 {
				return nil
			}
			for _, part := range event.Candidates[0].Content.Parts {
				if part.Text == "" || part.Thought {
					continue
				}
				if !provider.SendChunk(ctx, ch, &provider.Chunk{Delta: part.Text}) {
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil {
			provider.SendChunk(ctx, ch, &provider.Chunk{Err: err})
			return
		}
		provider.SendChunk(ctx, ch, &provider.Chunk{Done: true, Usage: usage})
	}()

	return ch, nil
}

// newRequest sends the key in a header so it never appears in URLs or in
// transport errors that embed them.
func (s *Shim) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	key, err := s.keys.APIKey(ctx, provider.Google)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", provider.ErrProviderNotConfigured, provider.Google, err)
	}
	target := s.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("x-goog-api-key", key)
	return httpReq, nil
}
