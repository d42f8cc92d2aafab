package billing

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps usage logs in process. It is used when no database is
// configured.
type MemoryStore struct {
	mu   sync.RWMutex
	logs []UsageLog
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) LogUsage(_ context.Context, log *UsageLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = s.now()

	s.mu.Lock()
	s.logs = append(s.logs, *log)
	s.mu.Unlock()
	return nil
}

// GetUsageByClient returns matching logs newest first.
func (s *MemoryStore) GetUsageByClient(_ context.Context, clientID string, from, to time.Time) ([]*UsageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*UsageLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if l.ClientID != clientID || l.CreatedAt.Before(from) || l.CreatedAt.After(to) {
			continue
		}
		out = append(out, &l)
	}
	slices.SortStableFunc(out, func(a, b *UsageLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetTotalCostByClient(ctx context.Context, clientID string, from, to time.Time) (float64, error) {
	logs, err := s.GetUsageByClient(ctx, clientID, from, to)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, l := range logs {
		total += l.CostUSD
	}
	return total, nil
}
