package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/pkg/logger"
	"settle-gate.backend/pkg/metrics"
	"settle-gate.backend/pkg/utils"
)

// Job is the unit of work carried through Redis. Payload stays opaque to the
// queue; handlers unmarshal it themselves.
type Job struct {
	ID             string          `json:"id"`
	Queue          string          `json:"queue"`
	Payload        json.RawMessage `json:"payload"`
	Attempts       int             `json:"attempts"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
}

// Stats is a point-in-time snapshot of a queue's backlog and counters.
type Stats struct {
	Pending   int64 `json:"pending"`
	Delayed   int64 `json:"delayed"`
	Dead      int64 `json:"dead"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Queue is a named at-least-once job queue on Redis. Ready jobs live on a
// list, delayed and retrying jobs on a sorted set scored by their due time,
// and jobs that exhaust their retries are parked on a dead list for manual
// inspection.
type Queue struct {
	rdb         *redis.Client
	name        string
	maxAttempts int
	backoffBase time.Duration
	dedupeTTL   time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts sets how many times a job runs before it is parked dead.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) { q.maxAttempts = n }
}

// WithBackoffBase sets the first retry delay; subsequent retries double it.
func WithBackoffBase(d time.Duration) Option {
	return func(q *Queue) { q.backoffBase = d }
}

// WithDedupeTTL sets how long idempotency keys suppress duplicate enqueues.
func WithDedupeTTL(d time.Duration) Option {
	return func(q *Queue) { q.dedupeTTL = d }
}

// New creates a queue bound to the given Redis client.
func New(rdb *redis.Client, name string, opts ...Option) *Queue {
	q := &Queue{
		rdb:         rdb,
		name:        name,
		maxAttempts: 5,
		backoffBase: 30 * time.Second,
		dedupeTTL:   24 * time.Hour,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) pendingKey() string { return "queue:" + q.name + ":pending" }
func (q *Queue) delayedKey() string { return "queue:" + q.name + ":delayed" }
func (q *Queue) deadKey() string    { return "queue:" + q.name + ":dead" }
func (q *Queue) counterKey(outcome string) string {
	return "queue:" + q.name + ":" + outcome
}
func (q *Queue) dedupeKey(idemKey string) string {
	return "queue:" + q.name + ":keys:" + idemKey
}

// Enqueue adds a job. A positive delay schedules it for later instead of
// making it immediately available. A non-empty idempotencyKey suppresses
// duplicates while the job is waiting to run: the second enqueue with the
// same key returns the first job's ID without adding anything. The key is
// released once a worker claims the job, so a job lost mid-flight never
// blocks the recovery sweeps from re-enqueueing its business key.
func (q *Queue) Enqueue(ctx context.Context, payload interface{}, delay time.Duration, idempotencyKey string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	jobID := utils.GenerateUUIDv7().String()

	if idempotencyKey != "" {
		set, err := q.rdb.SetNX(ctx, q.dedupeKey(idempotencyKey), jobID, q.dedupeTTL).Result()
		if err != nil {
			return "", fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !set {
			existing, err := q.rdb.Get(ctx, q.dedupeKey(idempotencyKey)).Result()
			if err != nil && err != redis.Nil {
				return "", fmt.Errorf("read idempotency key: %w", err)
			}
			return existing, nil
		}
	}

	job := Job{
		ID:             jobID,
		Queue:          q.name,
		Payload:        body,
		EnqueuedAt:     time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	if delay > 0 {
		err = q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: raw,
		}).Err()
	} else {
		err = q.rdb.LPush(ctx, q.pendingKey(), raw).Err()
	}
	if err != nil {
		return "", fmt.Errorf("push job: %w", err)
	}
	return jobID, nil
}

// promoteDue moves delayed jobs whose due time has passed onto the pending
// list. ZRem acts as the claim: only the caller that removes the member
// pushes it, so concurrent workers never promote the same job twice.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range members {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.pendingKey(), member).Err(); err != nil {
			return err
		}
	}
	return nil
}

// dequeue pops one ready job, or returns nil when the queue is empty.
func (q *Queue) dequeue(ctx context.Context) (*Job, error) {
	raw, err := q.rdb.RPop(ctx, q.pendingKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.IdempotencyKey != "" {
		// Claiming releases the dedupe guard. From here on duplicates are the
		// handler's problem, and handlers are idempotent.
		if err := q.rdb.Del(ctx, q.dedupeKey(job.IdempotencyKey)).Err(); err != nil {
			logger.Warn(ctx, "release idempotency key",
				zap.String("queue", q.name), zap.Error(err))
		}
	}
	return &job, nil
}

// retryOrKill reschedules a failed job with exponential backoff, or parks it
// on the dead list once attempts are exhausted. Permanent errors skip the
// retries and go straight to the dead list.
func (q *Queue) retryOrKill(ctx context.Context, job *Job, jobErr error) error {
	job.LastError = jobErr.Error()
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if job.Attempts >= q.maxAttempts || domainerrors.IsPermanent(jobErr) {
		if err := q.rdb.LPush(ctx, q.deadKey(), raw).Err(); err != nil {
			return err
		}
		metrics.JobsDead.WithLabelValues(q.name).Inc()
		return q.rdb.Incr(ctx, q.counterKey("failed")).Err()
	}

	backoff := q.backoffBase * (1 << (job.Attempts - 1))
	return q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(time.Now().Add(backoff).UnixMilli()),
		Member: raw,
	}).Err()
}

func (q *Queue) markCompleted(ctx context.Context) error {
	metrics.JobsProcessed.WithLabelValues(q.name).Inc()
	return q.rdb.Incr(ctx, q.counterKey("completed")).Err()
}

// Stats reads the queue's current depth and lifetime counters, and refreshes
// the depth gauges as a side effect.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	pending, err := q.rdb.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return nil, err
	}
	delayed, err := q.rdb.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return nil, err
	}
	dead, err := q.rdb.LLen(ctx, q.deadKey()).Result()
	if err != nil {
		return nil, err
	}
	completed, _ := q.rdb.Get(ctx, q.counterKey("completed")).Int64()
	failed, _ := q.rdb.Get(ctx, q.counterKey("failed")).Int64()

	metrics.QueueDepth.WithLabelValues(q.name, "pending").Set(float64(pending))
	metrics.QueueDepth.WithLabelValues(q.name, "delayed").Set(float64(delayed))
	metrics.QueueDepth.WithLabelValues(q.name, "dead").Set(float64(dead))

	return &Stats{
		Pending:   pending,
		Delayed:   delayed,
		Dead:      dead,
		Completed: completed,
		Failed:    failed,
	}, nil
}

// ListDead returns a page of dead jobs, newest first.
func (q *Queue) ListDead(ctx context.Context, offset, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	raws, err := q.rdb.LRange(ctx, q.deadKey(), offset, offset+limit-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// RequeueDead moves up to n dead jobs back onto the pending list with their
// attempt counters reset. Returns how many were moved.
func (q *Queue) RequeueDead(ctx context.Context, n int64) (int64, error) {
	var moved int64
	for moved < n {
		raw, err := q.rdb.RPop(ctx, q.deadKey()).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return moved, err
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		job.Attempts = 0
		job.LastError = ""
		fresh, err := json.Marshal(job)
		if err != nil {
			return moved, err
		}
		if err := q.rdb.LPush(ctx, q.pendingKey(), fresh).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
