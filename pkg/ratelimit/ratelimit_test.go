package ratelimit

import (
	"context"
	"errors"
	"testing"

	extratelimit "github.com/vnmchuo/ratelimiter"
)

type recordingStore struct {
	allowed bool
	err     error
	key     string
	n       int
}

func (s *recordingStore) AllowN(ctx context.Context, key string, n int) (*extratelimit.Result, error) {
	s.key, s.n = key, n
	return &extratelimit.Result{Allowed: s.allowed}, s.err
}

func (s *recordingStore) Allow(ctx context.Context, key string) (*extratelimit.Result, error) {
	return s.AllowN(ctx, key, 1)
}

func (s *recordingStore) Status(ctx context.Context, key string) (*extratelimit.Result, error) {
	s.key = key
	return &extratelimit.Result{Allowed: s.allowed}, s.err
}

func TestAllow_KeysByClient(t *testing.T) {
	store := &recordingStore{allowed: true}
	l := NewTestLimiter(store)

	ok, err := l.Allow(context.Background(), "cli-1", 0)
	if err != nil || !ok {
		t.Fatalf("Expected allowed, got %v %v", ok, err)
	}
	if store.key != "ratelimit:client:cli-1" {
		t.Errorf("Unexpected key %q", store.key)
	}
	if store.n != DefaultEstimate {
		t.Errorf("Expected default estimate, got %d", store.n)
	}
}

func TestAllow_StoreError(t *testing.T) {
	l := NewTestLimiter(&recordingStore{err: errors.New("redis down")})
	if ok, err := l.Allow(context.Background(), "cli-1", 10); err == nil || ok {
		t.Errorf("Expected error, got %v %v", ok, err)
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	ok, err := l.Allow(context.Background(), "cli-1", 10)
	if err != nil || !ok {
		t.Errorf("Expected nil limiter to allow, got %v %v", ok, err)
	}
	if _, err := l.Status(context.Background(), "cli-1"); err == nil {
		t.Errorf("Expected status error on nil limiter")
	}
}
