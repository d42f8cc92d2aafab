package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDiscoverer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeDiscoverer) RefreshModels(context.Context) (map[string]int, error) {
	f.calls.Add(1)
	return map[string]int{"openai": 2}, f.err
}

func TestRefreshOnce(t *testing.T) {
	d := &fakeDiscoverer{}
	r := NewRefresher(d, time.Minute)

	run := r.RefreshOnce(context.Background())
	if run.Status != RunStatusDone || run.Counts["openai"] != 2 {
		t.Errorf("Unexpected run %+v", run)
	}

	d.err = errors.New("list failed")
	run = r.RefreshOnce(context.Background())
	if run.Status != RunStatusFailed || run.Err == nil {
		t.Errorf("Expected failed run, got %+v", run)
	}
}

func TestStart_RunsUntilCanceled(t *testing.T) {
	d := &fakeDiscoverer{}
	r := NewRefresher(d, 5*time.Millisecond)
	runs := make(chan Run, 16)
	r.OnRun(func(run Run) {
		select {
		case runs <- run:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-runs:
		case <-time.After(time.Second):
			t.Fatal("refresher did not run")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}

func TestStart_DisabledInterval(t *testing.T) {
	d := &fakeDiscoverer{}
	NewRefresher(d, 0).Start(context.Background())
	if d.calls.Load() != 0 {
		t.Errorf("Expected no refresh, got %d", d.calls.Load())
	}
}
