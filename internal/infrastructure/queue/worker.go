package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"settle-gate.backend/pkg/logger"
	"settle-gate.backend/pkg/metrics"
)

// Handler processes one job. Returning an error triggers a retry; once the
// job's attempts are exhausted it is parked on the dead list. Handlers that
// want to give up early must record the failure themselves and return nil.
type Handler func(ctx context.Context, job *Job) error

// Worker polls a queue and runs jobs through a handler with bounded
// concurrency. Delivery is at-least-once; handlers are expected to be
// idempotent.
type Worker struct {
	queue        *Queue
	handler      Handler
	concurrency  int
	pollInterval time.Duration

	wg sync.WaitGroup
}

// NewWorker creates a worker for the queue. concurrency defaults to 1 and
// pollInterval to 200ms when zero values are given.
func NewWorker(q *Queue, handler Handler, concurrency int, pollInterval time.Duration) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &Worker{
		queue:        q,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}
}

// Start launches the polling goroutines. It returns immediately; the worker
// runs until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	logger.Info(ctx, "queue worker starting",
		zap.String("queue", w.queue.Name()),
		zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Wait blocks until all polling goroutines have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain promotes due jobs and processes pending ones until the queue is
// empty or the context is cancelled.
func (w *Worker) drain(ctx context.Context) {
	if err := w.queue.promoteDue(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Error(ctx, "promote delayed jobs", zap.String("queue", w.queue.Name()), zap.Error(err))
		}
		return
	}

	for ctx.Err() == nil {
		job, err := w.queue.dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error(ctx, "dequeue job", zap.String("queue", w.queue.Name()), zap.Error(err))
			}
			return
		}
		if job == nil {
			return
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	job.Attempts++
	jobCtx := context.WithValue(ctx, logger.JobIDKey, job.ID)

	err := w.safeHandle(jobCtx, job)
	if err == nil {
		if markErr := w.queue.markCompleted(ctx); markErr != nil {
			logger.Error(jobCtx, "mark job completed", zap.Error(markErr))
		}
		return
	}

	metrics.JobsFailed.WithLabelValues(w.queue.Name()).Inc()
	logger.Warn(jobCtx, "job attempt failed",
		zap.String("queue", w.queue.Name()),
		zap.Int("attempt", job.Attempts),
		zap.Error(err))

	if retryErr := w.queue.retryOrKill(ctx, job, err); retryErr != nil {
		logger.Error(jobCtx, "reschedule job", zap.Error(retryErr))
	}
}

// safeHandle converts a handler panic into a failed attempt so one bad job
// cannot take the worker down.
func (w *Worker) safeHandle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
			logger.Error(ctx, "job handler panicked", zap.Any("panic", r))
		}
	}()
	return w.handler(ctx, job)
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	if s, ok := e.value.(string); ok {
		return "handler panic: " + s
	}
	if err, ok := e.value.(error); ok {
		return "handler panic: " + err.Error()
	}
	return "handler panic"
}
