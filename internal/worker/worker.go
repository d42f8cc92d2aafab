// Package worker runs background jobs for the gateway.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Discoverer refreshes the model registry overlay from live provider
// listings. *proxy.Service satisfies it.
type Discoverer interface {
	RefreshModels(ctx context.Context) (map[string]int, error)
}

type RunStatus string

const (
	RunStatusDone   RunStatus = "done"
	RunStatusFailed RunStatus = "failed"
)

// Run is the outcome of one refresh.
type Run struct {
	Status     RunStatus
	Counts     map[string]int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Refresher runs discovery on a fixed interval.
type Refresher struct {
	discoverer Discoverer
	interval   time.Duration
	onRun      func(Run)
}

func NewRefresher(d Discoverer, interval time.Duration) *Refresher {
	return &Refresher{discoverer: d, interval: interval}
}

// OnRun registers a callback invoked after every refresh.
func (r *Refresher) OnRun(fn func(Run)) {
	r.onRun = fn
}

// RefreshOnce runs a single discovery pass. Partial failures still return
// the counts of the providers that succeeded.
func (r *Refresher) RefreshOnce(ctx context.Context) Run {
	run := Run{StartedAt: time.Now()}
	run.Counts, run.Err = r.discoverer.RefreshModels(ctx)
	run.FinishedAt = time.Now()
	run.Status = RunStatusDone
	if run.Err != nil {
		run.Status = RunStatusFailed
		slog.Warn("model discovery failed", "error", run.Err, "refreshed", run.Counts)
	} else {
		slog.Info("model discovery finished", "refreshed", run.Counts, "took", run.FinishedAt.Sub(run.StartedAt))
	}
	if r.onRun != nil {
		r.onRun(run)
	}
	return run
}

// Start refreshes immediately and then on every tick until ctx is done. A
// non-positive interval disables the loop.
func (r *Refresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.RefreshOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}
