package billing

import (
	"context"
	"time"
)

// UsageLog records one served inference call.
type UsageLog struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	RequestID    string    `json:"request_id"`
	RequestType  string    `json:"request_type"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store interface {
	LogUsage(ctx context.Context, log *UsageLog) error
	GetUsageByClient(ctx context.Context, clientID string, from, to time.Time) ([]*UsageLog, error)
	GetTotalCostByClient(ctx context.Context, clientID string, from, to time.Time) (float64, error)
}

// EstimateCost prices tokens at a flat per-1K rate.
func EstimateCost(tokens int, costPer1K float64) float64 {
	return float64(tokens) / 1000 * costPer1K
}
