package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"settle-gate.backend/pkg/logger"
)

// ErrNotAcquired is returned by WithLock when the lock is held elsewhere.
var ErrNotAcquired = errors.New("lock not acquired")

const keyPrefix = "lock:"

// Release and Extend must compare the stored owner token and act in a single
// server-side step, otherwise a racer could delete or extend a lock it no
// longer owns.
var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Manager provides distributed mutual exclusion over Redis.
// A lock is an ephemeral key with a TTL; the TTL is the crash-recovery
// mechanism, never relied on for normal release.
type Manager struct {
	rdb        *redis.Client
	retries    int
	retryDelay time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetries sets the default acquire retry count used by WithLock.
func WithRetries(n int) Option {
	return func(m *Manager) { m.retries = n }
}

// WithRetryDelay sets the default delay between acquire attempts used by WithLock.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// NewManager creates a lock manager
func NewManager(rdb *redis.Client, opts ...Option) *Manager {
	m := &Manager{
		rdb:        rdb,
		retries:    3,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire attempts to take the lock, retrying up to retries times with a fixed
// delay. It returns the owner token and whether the lock was taken. Contention
// is not an error.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration, retries int, retryDelay time.Duration) (string, bool, error) {
	token := uuid.New().String()

	for attempt := 0; ; attempt++ {
		ok, err := m.rdb.SetNX(ctx, keyPrefix+key, token, ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return token, true, nil
		}
		if attempt >= retries {
			return "", false, nil
		}

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Release removes the lock if and only if token still owns it.
func (m *Manager) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, m.rdb, []string{keyPrefix + key}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Extend resets the lock TTL if and only if token still owns it.
func (m *Manager) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, m.rdb, []string{keyPrefix + key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// WithLock runs fn while holding the lock. If the lock cannot be acquired it
// returns ErrNotAcquired and fn never runs. The lock is released on every exit
// path, including panics, via the deferred release.
func (m *Manager) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, ok, err := m.Acquire(ctx, key, ttl, m.retries, m.retryDelay)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}

	defer func() {
		// Release even when ctx is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := m.Release(releaseCtx, key, token); err != nil {
			logger.Warn(ctx, "failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}()

	return fn(ctx)
}
