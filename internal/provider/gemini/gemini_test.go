package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vnmchuo/inference-gateway/internal/provider"
	"github.com/vnmchuo/inference-gateway/internal/registry"
)

func model(t *testing.T, id string) provider.ModelConfig {
	t.Helper()
	for _, m := range registry.Catalog() {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("model %s not in catalog", id)
	return provider.ModelConfig{}
}

func newTestShim(url string) *Shim {
	return New(provider.StaticKeys{provider.Google: "test-key"}, url, nil)
}

func TestProcessRequest_Mock(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash:generateContent" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("Expected api key header")
		}
		if r.URL.Query().Get("key") != "" {
			t.Errorf("api key must not be sent in the URL")
		}
		json.NewDecoder(r.Body).Decode(&got)

		resp := geminiResponse{
			Candidates: []geminiCandidate{
				{
					Content:      geminiContent{Parts: []geminiPart{{Text: "thinking", Thought: true}, {Text: "Hello from mock!"}}},
					FinishReason: "MAX_TOKENS",
				},
			},
			UsageMetadata: geminiUsageMetadata{
				PromptTokenCount:     10,
				CandidatesTokenCount: 20,
				TotalTokenCount:      30,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	maxTokens := 100
	req := &provider.Request{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "You are terse."},
			{Role: provider.RoleUser, Content: "hi"},
			{Role: provider.RoleAssistant, Content: "hello"},
		},
		Params: provider.GenerationParams{MaxTokens: &maxTokens, Stop: []string{"END"}},
	}

	resp, err := newTestShim(server.URL).ProcessRequest(context.Background(), req, model(t, "gemini-2.5-flash"))
	if err != nil {
		t.Fatalf("ProcessRequest failed: %v", err)
	}

	if resp.Content != "Hello from mock!" {
		t.Errorf("Expected 'Hello from mock!', got %s", resp.Content)
	}
	if resp.Usage.PromptTokens != 10 || resp.Usage.CompletionTokens != 20 {
		t.Errorf("Unexpected usage %+v", resp.Usage)
	}
	if resp.FinishReason != provider.FinishLength {
		t.Errorf("Expected length finish reason, got %s", resp.FinishReason)
	}

	if len(got.Contents) != 3 {
		t.Fatalf("Expected 3 contents, got %d", len(got.Contents))
	}
	if got.Contents[0].Role != "user" || got.Contents[0].Parts[0].Text != "You are terse." {
		t.Errorf("System message should become a leading user turn, got %+v", got.Contents[0])
	}
	if got.Contents[2].Role != "model" {
		t.Errorf("Assistant should map to model, got %s", got.Contents[2].Role)
	}
	if got.GenerationConfig["maxOutputTokens"] != float64(100) {
		t.Errorf("Expected maxOutputTokens, got %v", got.GenerationConfig)
	}
	if _, ok := got.GenerationConfig["stopSequences"]; !ok {
		t.Errorf("Expected stopSequences, got %v", got.GenerationConfig)
	}
}

func TestProcessRequest_VisionJSON(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"cat\":true}"}]},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	req := &provider.Request{
		Prompt:         "what is this?",
		Attachments:    []provider.Attachment{provider.NewAttachment([]byte{1, 2, 3}, "image/jpeg", "", nil)},
		ResponseFormat: provider.FormatJSON,
	}
	resp, err := newTestShim(server.URL).ProcessRequest(context.Background(), req, model(t, "gemini-1.5-flash"))
	if err != nil {
		t.Fatalf("ProcessRequest failed: %v", err)
	}

	parts := got.Contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.Data != "AQID" {
		t.Errorf("Expected inline image part, got %+v", parts)
	}
	if got.GenerationConfig["responseMimeType"] != "application/json" {
		t.Errorf("Expected JSON mime type, got %v", got.GenerationConfig)
	}
	if resp.FinishReason != provider.FinishStop || resp.Attachments[0].UsedAs != provider.UsedAsImage {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestProcessRequest_ImageEdit(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"done"},{"inlineData":{"mimeType":"image/png","data":"aW1n"}}]},"finishReason":"STOP"}]}`)
	}))
	defer server.Close()

	req := &provider.Request{
		Prompt:         "make it blue",
		ResponseFormat: provider.FormatImage,
		Attachments: []provider.Attachment{
			provider.NewAttachment([]byte{1}, "image/png", "base.png", nil),
			provider.NewAttachment([]byte{2}, "image/png", "style.png", nil),
		},
		Extras: map[string]any{"aspect_ratio": "7:3"},
	}
	resp, err := newTestShim(server.URL).ProcessRequest(context.Background(), req, model(t, "gemini-2.5-flash-image"))
	if err != nil {
		t.Fatalf("ProcessRequest failed: %v", err)
	}

	if len(resp.Images) != 1 || resp.Images[0] != "data:image/png;base64,aW1n" {
		t.Errorf("Unexpected images %v", resp.Images)
	}
	parts := got.Contents[0].Parts
	if len(parts) != 3 || parts[0].InlineData == nil || parts[2].Text != "make it blue" {
		t.Errorf("Expected images before the instruction, got %+v", parts)
	}
	imageConfig, _ := got.GenerationConfig["imageConfig"].(map[string]any)
	if imageConfig["aspectRatio"] != "1:1" {
		t.Errorf("Expected unsupported aspect ratio replaced by default, got %v", got.GenerationConfig)
	}
	if _, ok := got.GenerationConfig["responseModalities"]; !ok {
		t.Error("Expected responseModalities")
	}
	if resp.Attachments[0].UsedAs != provider.UsedAsEditBase || resp.Attachments[1].UsedAs != provider.UsedAsReference {
		t.Errorf("Unexpected attachment usage %+v", resp.Attachments)
	}
	if resp.Metadata["warnings"] == nil {
		t.Error("Expected aspect ratio warning")
	}
}

func TestProcessRequest_Blocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer server.Close()

	resp, err := newTestShim(server.URL).ProcessRequest(context.Background(), &provider.Request{Prompt: "x"}, model(t, "gemini-1.5-pro"))
	if err != nil {
		t.Fatalf("ProcessRequest failed: %v", err)
	}
	if resp.FinishReason != provider.FinishContentFilter || resp.Metadata["block_reason"] != "SAFETY" {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestProcessStream_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("Expected alt=sse")
		}
		w.Header().Set("Content-Type", "text/event-stream")

		chunks := []string{"Hello", " from", " Gemini", "!"}
		for i, chunk := range chunks {
			resp := geminiResponse{
				Candidates:    []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: chunk}}}}},
				UsageMetadata: geminiUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: i + 1, TotalTokenCount: i + 4},
			}
			data, _ := json.Marshal(resp)
			fmt.Fprintf(w, "data: %s\n\n", string(data))
		}
	}))
	defer server.Close()

	ch, err := newTestShim(server.URL).ProcessStream(context.Background(), &provider.Request{Prompt: "hi"}, model(t, "gemini-1.5-flash"))
	if err != nil {
		t.Fatalf("ProcessStream failed: %v", err)
	}

	var content string
	var final *provider.Chunk
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("Received error from chunk: %v", chunk.Err)
		}
		if chunk.Done {
			final = chunk
			continue
		}
		content += chunk.Delta
	}

	if final == nil {
		t.Fatal("Expected stream to be done")
	}
	if content != "Hello from Gemini!" {
		t.Errorf("Expected 'Hello from Gemini!', got %s", content)
	}
	if final.Usage == nil || final.Usage.TotalTokens != 7 || final.Usage.CompletionTokens != 4 {
		t.Errorf("Expected cumulative usage on final chunk, got %+v", final.Usage)
	}
}

func TestListModelIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			io.WriteString(w, `{"models":[{"name":"models/gemini-2.5-flash","supportedGenerationMethods":["generateContent"]},{"name":"models/embedding-001","supportedGenerationMethods":["embedContent"]}],"nextPageToken":"p2"}`)
			return
		}
		io.WriteString(w, `{"models":[{"name":"models/gemini-1.5-pro","supportedGenerationMethods":["generateContent","countTokens"]}]}`)
	}))
	defer server.Close()

	ids, err := newTestShim(server.URL).ListModelIDs(context.Background())
	if err != nil {
		t.Fatalf("ListModelIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "gemini-1.5-pro" || ids[1] != "gemini-2.5-flash" {
		t.Errorf("Unexpected ids %v", ids)
	}
}

func TestCamelCase(t *testing.T) {
	cases := map[string]string{
		"max_output_tokens":   "maxOutputTokens",
		"temperature":         "temperature",
		"response_modalities": "responseModalities",
	}
	for in, want := range cases {
		if got := camelCase(in); got != want {
			t.Errorf("camelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestName(t *testing.T) {
	s := New(provider.StaticKeys{}, "", nil)
	if s.Name() != "google" {
		t.Errorf("Expected 'google', got %s", s.Name())
	}
}
