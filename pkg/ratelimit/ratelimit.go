// Package ratelimit budgets estimated tokens per client per minute.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// DefaultEstimate is charged when a request does not bound its output.
const DefaultEstimate = 1000

// Limiter is a thin wrapper around github.com/vnmchuo/ratelimiter
type Limiter struct {
	store extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, tokensPerMinute int64) *Limiter {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(int(tokensPerMinute)),
		extratelimit.WithWindow(time.Minute),
	)
	return &Limiter{store: store}
}

func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{store: store}
}

func key(clientID string) string {
	return fmt.Sprintf("ratelimit:client:%s", clientID)
}

// Allow charges tokens to the client's window. A nil Limiter allows
// everything.
func (l *Limiter) Allow(ctx context.Context, clientID string, tokens int) (bool, error) {
	if l == nil {
		return true, nil
	}
	if tokens <= 0 {
		tokens = DefaultEstimate
	}
	res, err := l.store.AllowN(ctx, key(clientID), tokens)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *Limiter) Status(ctx context.Context, clientID string) (*extratelimit.Result, error) {
	if l == nil {
		return nil, fmt.Errorf("rate limiting disabled")
	}
	return l.store.Status(ctx, key(clientID))
}
