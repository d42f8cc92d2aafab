package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vnmchuo/inference-gateway/internal/provider"
)

// cachedModel adapts ModelConfig to the redis marshaler interfaces.
type cachedModel provider.ModelConfig

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (m cachedModel) MarshalBinary() ([]byte, error) {
	return json.Marshal(provider.ModelConfig(m))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (m *cachedModel) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, (*provider.ModelConfig)(m))
}

// RedisOverlay shares discovered models between gateway replicas. Each
// provider is one hash keyed by model id; the hash expires ttl after the
// refresh that wrote it.
type RedisOverlay struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisOverlay(rdb redis.Cmdable, ttl time.Duration) *RedisOverlay {
	return &RedisOverlay{rdb: rdb, ttl: ttl}
}

func overlayKey(providerName string) string {
	return fmt.Sprintf("registry:models:%s", providerName)
}

func (o *RedisOverlay) Lookup(ctx context.Context, providerName, id string) (provider.ModelConfig, bool, error) {
	var m cachedModel
	err := o.rdb.HGet(ctx, overlayKey(providerName), id).Scan(&m)
	if errors.Is(err, redis.Nil) {
		return provider.ModelConfig{}, false, nil
	}
	if err != nil {
		return provider.ModelConfig{}, false, fmt.Errorf("redis overlay lookup %s/%s: %w", providerName, id, err)
	}
	return provider.ModelConfig(m), true, nil
}

func (o *RedisOverlay) Replace(ctx context.Context, providerName string, models []provider.ModelConfig) error {
	key := overlayKey(providerName)
	_, err := o.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(models) == 0 {
			return nil
		}
		fields := make([]any, 0, len(models)*2)
		for _, m := range models {
			fields = append(fields, m.ID, cachedModel(m))
		}
		pipe.HSet(ctx, key, fields...)
		if o.ttl > 0 {
			pipe.Expire(ctx, key, o.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis overlay replace %s: %w", providerName, err)
	}
	return nil
}
