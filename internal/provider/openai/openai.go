// Package openai adapts unified requests to the OpenAI chat completions and
// images APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/vnmchuo/inference-gateway/internal/params"
	"github.com/vnmchuo/inference-gateway/internal/provider"
)

const DefaultBaseURL = "https://api.openai.com"

type Shim struct {
	keys    provider.KeyLookup
	baseURL string
	client  provider.HTTPDoer
}

type chatRequestMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	File     *filePart `json:"file,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type filePart struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	Delta        chatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens            int `json:"prompt_tokens"`
	CompletionTokens        int `json:"completion_tokens"`
	TotalTokens             int `json:"total_tokens"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

type imagesResponse struct {
	Created int64       `json:"created"`
	Data    []imageData `json:"data"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type imageData struct {
	URL           string `json:"url"`
	B64JSON       string `json:"b64_json"`
	RevisedPrompt string `json:"revised_prompt"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// New returns the OpenAI shim. An empty baseURL uses DefaultBaseURL and a nil
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
	return provider.OpenAI
}

func (s *Shim) ProcessRequest(ctx context.Context, req *provider.Request, model provider.ModelConfig) (*provider.Response, error) {
	switch provider.Classify(req) {
	case provider.RequestImageGeneration:
		return s.generateImage(ctx, req, model)
	case provider.RequestImageEdit:
		return s.editImage(ctx, req, model)
	default:
		return s.chat(ctx, req, model)
	}
}

func (s *Shim) chat(ctx context.Context, req *provider.Request, model provider.ModelConfig) (*provider.Response, error) {
	body, usage := s.chatBody(req, model)
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := s.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(raw), "application/json")
	if err != nil {
		return nil, err
	}
	respBody, err := provider.Call(s.client, httpReq, provider.OpenAI, model.ID)
	if err != nil {
		return nil, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, provider.NewDecodeError(provider.OpenAI, model.ID, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, provider.NewDecodeError(provider.OpenAI, model.ID, errors.New("openai api returned no choices"))
	}

	choice := chatResp.Choices[0]
	metadata := map[string]any{"id": chatResp.ID}
	if rt := chatResp.Usage.CompletionTokensDetails.ReasoningTokens; rt > 0 {
		metadata["reasoning_tokens"] = rt
		if choice.Message.Content == "" {
			metadata["empty_content_reason"] = "reasoning tokens consumed the completion budget"
		}
	}

	servedBy := chatResp.Model
	if servedBy == "" {
		servedBy = model.ID
	}
	return &provider.Response{
		Content:  choice.Message.Content,
		Model:    servedBy,
		Provider: provider.OpenAI,
		Usage: provider.Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
		FinishReason: mapFinishReason(choice.FinishReason),
		Attachments:  usage,
		Metadata:     metadata,
	}, nil
}

func (s *Shim) chatBody(req *provider.Request, model provider.ModelConfig) (map[string]any, []provider.AttachmentUsage) {
	messages, usage := buildMessages(req)
	body := params.Map(req.Params, req.Extras, model)
	body["model"] = model.ID
	body["messages"] = messages
	if req.Format() == provider.FormatJSON && model.Has(provider.CapJSONMode) {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	return body, usage
}

// buildMessages keeps conversation order and attaches every attachment to the
// last user message as content parts.
func buildMessages(req *provider.Request) ([]chatRequestMessage, []provider.AttachmentUsage) {
	conversation := req.Conversation()
	target := -1
	for i, m := range conversation {
		if m.Role == provider.RoleUser {
			target = i
		}
	}

	messages := make([]chatRequestMessage, len(conversation))
	var usage []provider.AttachmentUsage
	for i, m := range conversation {
		messages[i] = chatRequestMessage{Role: string(m.Role), Content: m.Content}
		if i != target || len(req.Attachments) == 0 {
			continue
		}

		parts := []contentPart{{Type: "text", Text: m.Content}}
		for j, a := range req.Attachments {
			used := provider.AttachmentUsage{Index: j, Type: a.Type(), MimeType: a.MimeType(), Filename: a.Filename()}
			switch a.Type() {
			case provider.AttachmentImage:
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: a.DataURI()}})
				used.UsedAs = provider.UsedAsImage
			case provider.AttachmentText:
				text, _ := a.ToText()
				parts = append(parts, contentPart{Type: "text", Text: documentText(a.Filename(), text)})
				used.UsedAs = provider.UsedAsText
			case provider.AttachmentPDF:
				parts = append(parts, contentPart{Type: "file", File: &filePart{Filename: a.Filename(), FileData: a.DataURI()}})
				used.UsedAs = provider.UsedAsDocument
			default:
				used.UsedAs = provider.UsedAsIgnored
			}
			usage = append(usage, used)
		}
		messages[i].Content = parts
	}
	return messages, usage
}

func documentText(filename, text string) string {
	if filename == "" {
		return text
	}
	return fmt.Sprintf("[%s]\n%s", filename, text)
}

func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "stop":
		return provider.FinishStop
	case "length":
		return provider.FinishLength
	case "content_filter":
		return provider.FinishContentFilter
	case "tool_calls", "function_call":
		return provider.FinishToolCalls
	default:
		return provider.FinishOther
	}
}

// imageOptions validates caller image options and maps them to the wire.
// gpt-image-1 takes an aspect ratio only through the matching size.
func imageOptions(req *provider.Request, model provider.ModelConfig) (map[string]any, []string) {
	validated, warnings := params.ValidateImage(model.ID, req.Extras)
	if ratio, ok := validated["aspect_ratio"]; ok {
		if _, hasSize := validated["size"]; !hasSize {
			if spec, ok := params.ImageSpecFor(model.ID); ok {
				validated["size"] = params.SizeForAspectRatio(fmt.Sprint(ratio), spec.Sizes)
			}
		}
	}

	wire := params.Map(req.Params, validated, model)
	if _, ok := wire["size"]; !ok && model.Supports("size") {
		wire["size"] = "1024x1024"
	}
	if strings.HasPrefix(model.ID, "dall-e") {
		if _, ok := wire["quality"]; !ok && model.Supports("quality") {
			wire["quality"] = "standard"
		}
	}
	return wire, warnings
}

func (s *Shim) generateImage(ctx context.Context, req *provider.Request, model provider.ModelConfig) (*provider.Response, error) {
	body, warnings := imageOptions(req, model)
	body["model"] = model.ID
	body["prompt"] = req.PromptText()
	if strings.HasPrefix(model.ID, "dall-e") {
		body["response_format"] = "b64_json"
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := s.newRequest(ctx, http.MethodPost, "/v1/images/generations", bytes.NewReader(raw), "application/json")
	if err != nil {
		return nil, err
	}
	respBody, err := provider.Call(s.client, httpReq, provider.OpenAI, model.ID)
	if err != nil {
		return nil, err
	}
	return s.imageResponse(respBody, model, warnings, nil)
}

func (s *Shim) editImage(ctx context.Context, req *provider.Request, model provider.ModelConfig) (*provider.Response, error) {
	wire, warnings := imageOptions(req, model)

	images := req.ImageAttachments()
	form := newMultipartForm()
	form.field("model", model.ID)
	form.field("prompt", req.PromptText())
	for _, key := range slices.Sorted(maps.Keys(wire)) {
		form.field(key, fmt.Sprint(wire[key]))
	}
	fieldName := "image"
	if len(images) > 1 {
		fieldName = "image[]"
	}

	var usage []provider.AttachmentUsage
	imageIndex := 0
	for i, a := range req.Attachments {
		used := provider.AttachmentUsage{Index: i, Type: a.Type(), MimeType: a.MimeType(), Filename: a.Filename(), UsedAs: provider.UsedAsIgnored}
		if a.Type() == provider.AttachmentImage {
			form.file(fieldName, a)
			used.UsedAs = provider.UsedAsReference
			if imageIndex == 0 {
				used.UsedAs = provider.UsedAsEditBase
			}
			imageIndex++
		}
		usage = append(usage, used)
	}
	body, contentType, err := form.finish()
	if err != nil {
		return nil, err
	}

	httpReq, err := s.newRequest(ctx, http.MethodPost, "/v1/images/edits", body, contentType)
	if err != nil {
		return nil, err
	}
	respBody, err := provider.Call(s.client, httpReq, provider.OpenAI, model.ID)
	if err != nil {
		return nil, err
	}
	return s.imageResponse(respBody, model, warnings, usage)
}

func (s *Shim) imageResponse(respBody []byte, model provider.ModelConfig, warnings []string, usage []provider.AttachmentUsage) (*provider.Response, error) {
	var imgResp imagesResponse
	if err := json.Unmarshal(respBody, &imgResp); err != nil {
		return nil, provider.NewDecodeError(provider.OpenAI, model.ID, err)
	}
	if len(imgResp.Data) == 0 {
		return nil, provider.NewDecodeError(provider.OpenAI, model.ID, errors.New("openai api returned no images"))
	}

	metadata := map[string]any{"created": imgResp.Created}
	images := make([]string, 0, len(imgResp.Data))
	for _, d := range imgResp.Data {
		switch {
		case d.URL != "":
			images = append(images, d.URL)
		case d.B64JSON != "":
			images = append(images, "data:image/png;base64,"+d.B64JSON)
		}
		if d.RevisedPrompt != "" {
			metadata["revised_prompt"] = d.RevisedPrompt
		}
	}
	if len(warnings) > 0 {
		metadata["warnings"] = warnings
	}

	return &provider.Response{
		Images:   images,
		Model:    model.ID,
		Provider: provider.OpenAI,
		Usage: provider.Usage{
			PromptTokens:     imgResp.Usage.InputTokens,
			CompletionTokens: imgResp.Usage.OutputTokens,
			TotalTokens:      imgResp.Usage.TotalTokens,
		},
		FinishReason: provider.FinishStop,
		Attachments:  usage,
		Metadata:     metadata,
	}, nil
}

// ListModelIDs returns the ids served by GET /v1/models.
func (s *Shim) ListModelIDs(ctx context.Context) ([]string, error) {
	httpReq, err := s.newRequest(ctx, http.MethodGet, "/v1/models", nil, "")
	if err != nil {
		return nil, err
	}
	respBody, err := provider.Call(s.client, httpReq, provider.OpenAI, "")
	if err != nil {
		return nil, err
	}

	var list modelsResponse
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, provider.NewDecodeError(provider.OpenAI, "", err)
	}
	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

// ProcessStream streams a chat completion. Image requests cannot stream.
func (s *Shim) ProcessStream(ctx context.Context, req *provider.Request, model provider.ModelConfig) (<-chan *provider.Chunk, error) {
	if rt := provider.Classify(req); rt == provider.RequestImageGeneration || rt == provider.RequestImageEdit {
		return nil, &provider.UnsupportedCapabilityError{Provider: provider.OpenAI, Model: model.ID, RequestType: rt}
	}

	body, _ := s.chatBody(req, model)
	body["stream"] = true
	body["stream_options"] = map[string]any{"include_usage": true}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := s.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(raw), "application/json")
	if err != nil {
		return nil, err
	}
	resp, err := provider.Open(s.client, httpReq, provider.OpenAI, model.ID)
	if err != nil {
		return nil, err
	}

	ch := make(chan *provider.Chunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		done := false
		var usage *provider.Usage
		err := provider.ReadSSE(resp.Body, func(data string) error {
			if data == "[DONE]" {
				done = true
				return provider.ErrStopStream
			}
			var event chatResponse
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				return provider.NewDecodeError(provider.OpenAI, model.ID, err)
			}
			// With include_usage the last event before [DONE] has no choices.
			if event.Usage.TotalTokens > 0 {
				usage = &provider.Usage{
					PromptTokens:     event.Usage.PromptTokens,
					CompletionTokens: event.Usage.CompletionTokens,
					TotalTokens:      event.Usage.TotalTokens,
				}
			}
			if len(event.Choices) > 0 && event.Choices[0].Delta.Content != "" {
				if !provider.SendChunk(ctx, ch, &provider.Chunk{Delta: event.Choices[0].Delta.Content}) {
					return ctx.Err()
				}
			}
			return nil
		})
		switch {
		case err != nil:
			provider.SendChunk(ctx, ch, &provider.Chunk{Err: err})
		case done:
			provider.SendChunk(ctx, ch, &provider.Chunk{Done: true, Usage: usage})
		default:
			provider.SendChunk(ctx, ch, &provider.Chunk{Err: provider.NewTransportError(provider.OpenAI, model.ID, io.ErrUnexpectedEOF)})
		}
	}()

	return ch, nil
}

func (s *Shim) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	key, err := s.keys.APIKey(ctx, provider.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", provider.ErrProviderNotConfigured, provider.OpenAI, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	return httpReq, nil
}
