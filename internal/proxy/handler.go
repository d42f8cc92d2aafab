package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vnmchuo/inference-gateway/internal/billing"
	"github.com/vnmchuo/inference-gateway/internal/identity"
	"github.com/vnmchuo/inference-gateway/internal/provider"
	"github.com/vnmchuo/inference-gateway/pkg/ratelimit"
)

type Handler struct {
	service *Service
	billing billing.Store
	limiter *ratelimit.Limiter
	fetch   provider.HTTPDoer
}

// NewHandler builds the HTTP surface. limiter may be nil to disable rate
// limiting.
func NewHandler(service *Service, billing billing.Store, limiter *ratelimit.Limiter) *Handler {
	return &Handler{
		service: service,
		billing: billing,
		limiter: limiter,
		fetch:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Routes mounts every endpoint on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/inference", h.HandleInference)
	r.Post("/chat", h.HandleChat)
	r.Post("/chat/stream", h.HandleChatStream)
	r.Post("/vision", h.HandleVision)
	r.Post("/images/generations", h.HandleImageGeneration)
	r.Get("/models", h.HandleModels)
	r.Get("/providers", h.HandleProviders)
	r.Get("/usage", h.HandleUsage)
	return r
}

type attachmentInput struct {
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
}

type inferenceRequest struct {
	Prompt         string                  `json:"prompt,omitempty"`
	SystemMessage  string                  `json:"system_message,omitempty"`
	Messages       []provider.Message      `json:"messages,omitempty"`
	Attachments    []attachmentInput       `json:"attachments,omitempty"`
	ResponseFormat provider.ResponseFormat `json:"response_format,omitempty"`
	Model          string                  `json:"model,omitempty"`
	Extras         map[string]any          `json:"extras,omitempty"`
	provider.GenerationParams
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the error taxonomy to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var exhausted *provider.ExhaustedError
	switch {
	case errors.Is(err, provider.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrNoCapableModel),
		errors.Is(err, provider.ErrUnsupportedCapability),
		errors.Is(err, provider.ErrUnsupportedExtraction):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, provider.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, provider.ErrProviderNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &exhausted):
		attempts := make([]map[string]string, len(exhausted.Attempts))
		for i, a := range exhausted.Attempts {
			attempts[i] = map[string]string{"provider": a.Provider, "model": a.Model, "error": a.Err.Error()}
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "attempts": attempts})
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// decode parses the body, admits it through the rate limiter and builds the
// unified request. It writes the error response itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*provider.Request, bool) {
	var in inferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	estimatedTokens := 0
	if in.MaxTokens != nil {
		estimatedTokens = *in.MaxTokens
	}
	allowed, err := h.limiter.Allow(r.Context(), identity.GetClientID(r.Context()), estimatedTokens)
	if err != nil || !allowed {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": "60s",
		})
		return nil, false
	}

	attachments, err := h.attachments(r.Context(), in.Attachments)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}

	return &provider.Request{
		Prompt:         in.Prompt,
		SystemMessage:  in.SystemMessage,
		Messages:       in.Messages,
		Attachments:    attachments,
		Params:         in.GenerationParams,
		ResponseFormat: in.ResponseFormat,
		Model:          in.Model,
		Extras:         in.Extras,
	}, true
}

func (h *Handler) attachments(ctx context.Context, in []attachmentInput) ([]provider.Attachment, error) {
	out := make([]provider.Attachment, 0, len(in))
	for i, a := range in {
		var (
			att provider.Attachment
			err error
		)
		switch {
		case a.URL != "":
			att, err = provider.AttachmentFromURL(ctx, h.fetch, a.URL)
		case a.Data != "":
			att, err = provider.AttachmentFromBase64(a.Data, a.MimeType, a.Filename)
		default:
			err = &provider.ValidationError{Field: "attachments", Reason: fmt.Sprintf("attachment %d has neither data nor url", i)}
		}
		if err != nil {
			if !errors.Is(err, provider.ErrValidation) {
				err = &provider.ValidationError{Field: "attachments", Reason: fmt.Sprintf("attachment %d: %v", i, err)}
			}
			return nil, err
		}
		out = append(out, att)
	}
	return out, nil
}

func (h *Handler) logUsage(ctx context.Context, rt provider.RequestType, resp *provider.Response) {
	clientID := identity.GetClientID(ctx)
	requestID := identity.GetRequestID(ctx)
	name := resp.RegistryModel
	if name == "" {
		name = resp.Provider + "/" + resp.Model
	}
	cost := h.service.registry.Resolve(ctx, name).CostPer1KTokens

	go func() {
		_ = h.billing.LogUsage(context.Background(), &billing.UsageLog{
			ClientID:     clientID,
			RequestID:    requestID,
			RequestType:  string(rt),
			Provider:     resp.Provider,
			Model:        resp.Model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			CostUSD:      billing.EstimateCost(resp.Usage.TotalTokens, cost),
			LatencyMs:    resp.LatencyMs,
		})
	}()
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, req *provider.Request) (*provider.Response, bool) {
	resp, err := h.service.ProcessRequest(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	h.logUsage(r.Context(), provider.Classify(req), resp)
	return resp, true
}

// HandleInference accepts the full unified request and returns the unified
// response.
func (h *Handler) HandleInference(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	resp, ok := h.serve(w, r, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": identity.GetRequestID(r.Context()),
		"response":   resp,
	})
}

// HandleChat answers in the OpenAI chat completion shape.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.ResponseFormat == provider.FormatImage {
		writeError(w, http.StatusBadRequest, "use /v1/images/generations for image output")
		return
	}
	resp, ok := h.serve(w, r, req)
	if !ok {
		return
	}

	respID, _ := resp.Metadata["id"].(string)
	if respID == "" {
		respID = identity.GetRequestID(r.Context())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       respID,
		"object":   "chat.completion",
		"model":    resp.Model,
		"provider": resp.Provider,
		"choices": []interface{}{
			map[string]interface{}{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": resp.Content,
				},
				"finish_reason": resp.FinishReason,
			},
		},
		"usage":      resp.Usage,
		"latency_ms": resp.LatencyMs,
	})
}

type streamDelta struct {
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Index int               `json:"index"`
	Delta map[string]string `json:"delta"`
}

func (h *Handler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	req.Stream = true

	ch, model, err := h.service.ProcessStream(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Model", model.RegistryName())

	start := time.Now()
	completed := false
	var usage provider.Usage
	for chunk := range ch {
		if chunk.Err != nil {
			payload, _ := json.Marshal(map[string]string{"error": chunk.Err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			flusher.Flush()
			break
		}

		if chunk.Delta != "" {
			payload, _ := json.Marshal(streamDelta{Choices: []streamChoice{{Delta: map[string]string{"content": chunk.Delta}}}})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}

		if chunk.Done {
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			fmt.Fprintf(w, "data: [DONE]\n\n")
			flusher.Flush()
			completed = true
			break
		}
	}

	if completed {
		h.logUsage(r.Context(), provider.Classify(req), &provider.Response{
			Provider:      model.Provider,
			Model:         model.ID,
			RegistryModel: model.RegistryName(),
			Usage:         usage,
			LatencyMs:     time.Since(start).Milliseconds(),
		})
	}
}

// HandleVision requires at least one image attachment.
func (h *Handler) HandleVision(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if len(req.ImageAttachments()) == 0 {
		writeError(w, http.StatusBadRequest, "at least one image attachment is required")
		return
	}
	req.ResponseFormat = provider.FormatText
	resp, ok := h.serve(w, r, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleImageGeneration serves generation, or an edit when images are
// attached. Image options (aspect_ratio, size, quality, style) go in extras.
func (h *Handler) HandleImageGeneration(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	req.ResponseFormat = provider.FormatImage
	resp, ok := h.serve(w, r, req)
	if !ok {
		return
	}

	data := make([]map[string]string, len(resp.Images))
	for i, img := range resp.Images {
		data[i] = map[string]string{"url": img}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"created":  time.Now().Unix(),
		"model":    resp.Model,
		"provider": resp.Provider,
		"data":     data,
		"text":     resp.Content,
		"metadata": resp.Metadata,
	})
}

func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	models := h.service.ListModels()
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"count":  len(models),
		"models": models,
	})
}

func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": h.service.ProviderStatus(r.Context()),
		"supported": h.service.SupportedProviders(),
	})
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := identity.GetClientID(ctx)

	// Parse query parameters
	now := time.Now()
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'from' date format (use RFC3339)")
			return
		}
	}

	if toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'to' date format (use RFC3339)")
			return
		}
	}

	logs, err := h.billing.GetUsageByClient(ctx, clientID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	totalCost, err := h.billing.GetTotalCostByClient(ctx, clientID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"client_id":      clientID,
		"total_requests": len(logs),
		"total_cost_usd": totalCost,
		"logs":           logs,
		"from":           from,
		"to":             to,
	})
}
