package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewManager(rdb, WithRetries(0)), mr
}

func TestAcquireRelease(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, ok, err := m.Acquire(ctx, "settle", time.Minute, 0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	released, err := m.Release(ctx, "settle", token)
	require.NoError(t, err)
	assert.True(t, released)

	// Second release is a no-op.
	released, err = m.Release(ctx, "settle", token)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestAcquireExclusive(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, ok, err := m.Acquire(ctx, "job:settlement-sweep", time.Minute, 0, 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = m.Acquire(ctx, "job:settlement-sweep", time.Minute, 2, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := m.Acquire(ctx, "contended", time.Minute, 0, 0)
			require.NoError(t, err)
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestReleaseOwnership(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	tokenA, ok, err := m.Acquire(ctx, "owned", time.Minute, 0, 0)
	require.NoError(t, err)
	require.True(t, ok)

	// A stranger's token never removes the holder's lock.
	released, err := m.Release(ctx, "owned", "not-the-owner")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = m.Release(ctx, "owned", tokenA)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestExtendOwnership(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	token, ok, err := m.Acquire(ctx, "extend-me", 100*time.Millisecond, 0, 0)
	require.NoError(t, err)
	require.True(t, ok)

	extended, err := m.Extend(ctx, "extend-me", token, time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)

	extended, err = m.Extend(ctx, "extend-me", "wrong-token", time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)

	// Past the original TTL the extended lock is still held.
	mr.FastForward(200 * time.Millisecond)
	_, ok, err = m.Acquire(ctx, "extend-me", time.Minute, 0, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTTLExpiryFreesLock(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	_, ok, err := m.Acquire(ctx, "ttl", 50*time.Millisecond, 0, 0)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(100 * time.Millisecond)

	_, ok, err = m.Acquire(ctx, "ttl", time.Minute, 0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithLockRunsAndReleases(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	ran := false
	err := m.WithLock(ctx, "scoped", time.Minute, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// Lock must be free again.
	_, ok, err := m.Acquire(ctx, "scoped", time.Minute, 0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithLockReleasesOnError(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	wantErr := errors.New("business failure")
	err := m.WithLock(ctx, "scoped-err", time.Minute, func(ctx context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, ok, err := m.Acquire(ctx, "scoped-err", time.Minute, 0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = m.WithLock(ctx, "scoped-panic", time.Minute, func(ctx context.Context) error {
			panic("boom")
		})
	})

	_, ok, err := m.Acquire(ctx, "scoped-panic", time.Minute, 0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithLockContended(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, ok, err := m.Acquire(ctx, "busy", time.Minute, 0, 0)
	require.NoError(t, err)
	require.True(t, ok)

	ran := false
	err = m.WithLock(ctx, "busy", time.Minute, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, ran, "fn must never run without the lock")
}
