package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"settle-gate.backend/pkg/logger"
	"settle-gate.backend/pkg/metrics"
)

// TriggerFunc is one scheduled unit of work.
type TriggerFunc func(ctx context.Context) error

type trigger struct {
	name     string
	interval time.Duration
	fn       TriggerFunc
	running  atomic.Bool
}

// Scheduler runs registered triggers on their own interval tickers. A
// trigger that is still running when its interval fires is skipped rather
// than stacked; cross-process exclusivity is the trigger's own business,
// via the distributed lock.
type Scheduler struct {
	triggers []*trigger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{stop: make(chan struct{})}
}

// Register adds a trigger. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, fn TriggerFunc) {
	s.triggers = append(s.triggers, &trigger{name: name, interval: interval, fn: fn})
}

// Start launches one goroutine per trigger and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.triggers {
		s.wg.Add(1)
		go s.run(ctx, t)
	}
	logger.Info(ctx, "scheduler started", zap.Int("triggers", len(s.triggers)))
}

// Stop signals all triggers and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, t *trigger) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, t)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, t *trigger) {
	if !t.running.CompareAndSwap(false, true) {
		metrics.SweepRuns.WithLabelValues(t.name, "overlap").Inc()
		return
	}
	defer t.running.Store(false)

	if err := t.fn(ctx); err != nil {
		metrics.SweepRuns.WithLabelValues(t.name, "error").Inc()
		logger.Error(ctx, "trigger failed", zap.String("trigger", t.name), zap.Error(err))
		return
	}
	metrics.SweepRuns.WithLabelValues(t.name, "ok").Inc()
}
