package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records every job a worker hands it.
type collector struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (c *collector) handle(_ context.Context, job *Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, *job)
	return c.err
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
}

func TestWorkerProcessesJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	w := NewWorker(q, c.handle, 1, 5*time.Millisecond)
	w.Start(ctx)

	_, err := q.Enqueue(ctx, testPayload{OrderID: "ord-1"}, 0, "")
	require.NoError(t, err)

	waitFor(t, func() bool { return c.count() == 1 })
	cancel()
	w.Wait()

	var p testPayload
	require.NoError(t, json.Unmarshal(c.jobs[0].Payload, &p))
	assert.Equal(t, "ord-1", p.OrderID)
	assert.Equal(t, 1, c.jobs[0].Attempts)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestWorkerRetriesFailedJob(t *testing.T) {
	q, _ := newTestQueue(t, WithMaxAttempts(3), WithBackoffBase(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{err: assert.AnError}
	w := NewWorker(q, c.handle, 1, 5*time.Millisecond)
	w.Start(ctx)

	_, err := q.Enqueue(ctx, testPayload{OrderID: "flaky"}, 0, "")
	require.NoError(t, err)

	waitFor(t, func() bool { return c.count() == 3 })
	cancel()
	w.Wait()

	assert.Equal(t, 1, c.jobs[0].Attempts)
	assert.Equal(t, 2, c.jobs[1].Attempts)
	assert.Equal(t, 3, c.jobs[2].Attempts)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(0), stats.Completed)
}

func TestWorkerSurvivesPanic(t *testing.T) {
	q, _ := newTestQueue(t, WithMaxAttempts(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	var mu sync.Mutex
	w := NewWorker(q, func(_ context.Context, _ *Job) error {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	}, 1, 5*time.Millisecond)
	w.Start(ctx)

	_, err := q.Enqueue(ctx, testPayload{OrderID: "bad"}, 0, "")
	require.NoError(t, err)

	waitFor(t, func() bool {
		stats, err := q.Stats(context.Background())
		return err == nil && stats.Dead == 1
	})
	cancel()
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)

	dead, err := q.ListDead(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].LastError, "panic")
}

func TestWorkerConcurrentSingleDelivery(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	w := NewWorker(q, c.handle, 4, 5*time.Millisecond)
	w.Start(ctx)

	const n = 20
	for i := 0; i < n; i++ {
		_, err := q.Enqueue(ctx, testPayload{OrderID: "ord"}, 0, "")
		require.NoError(t, err)
	}

	waitFor(t, func() bool { return c.count() == n })
	// Give stray duplicates a chance to surface before asserting.
	time.Sleep(50 * time.Millisecond)
	cancel()
	w.Wait()

	assert.Equal(t, n, c.count(), "each job delivered exactly once")

	seen := make(map[string]bool, n)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, job := range c.jobs {
		assert.False(t, seen[job.ID], "job %s delivered twice", job.ID)
		seen[job.ID] = true
	}
}
