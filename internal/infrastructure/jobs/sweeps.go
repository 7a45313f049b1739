package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"settle-gate.backend/internal/usecases"
	"settle-gate.backend/pkg/lock"
	"settle-gate.backend/pkg/logger"
)

// Sweep batch size; large enough that a healthy system clears its backlog in
// one pass.
const sweepBatchSize = 200

// sweepLockTTL bounds how long a crashed holder can block the next sweep.
const sweepLockTTL = 2 * time.Minute

// confirmSweepLag is how long a transfer record may sit in PENDING before the
// sweep assumes its confirmation job was lost. Long enough that a freshly
// enqueued job is never swept out from under its worker.
const confirmSweepLag = time.Minute

// locked wraps a sweep body in the named distributed lock. Losing the lock
// means another instance is already sweeping; that is a silent skip, not an
// error.
func locked(locks *lock.Manager, name string, fn func(ctx context.Context) error) TriggerFunc {
	key := "job:" + name
	return func(ctx context.Context) error {
		err := locks.WithLock(ctx, key, sweepLockTTL, fn)
		if errors.Is(err, lock.ErrNotAcquired) {
			logger.Debug(ctx, "sweep already held elsewhere", zap.String("job", name))
			return nil
		}
		return err
	}
}

// BlockchainSync scans the next block window. The syncer carries its own
// in-process overlap guard; the lock keeps multiple instances off the same
// window.
func BlockchainSync(locks *lock.Manager, sync *usecases.BlockchainSyncUsecase) TriggerFunc {
	return locked(locks, "blockchain-sync", func(ctx context.Context) error {
		return sync.Run(ctx)
	})
}

// SettlementSweep enqueues APPROVED settlement orders whose scheduled time
// has passed.
func SettlementSweep(locks *lock.Manager, settlements *usecases.SettlementUsecase) TriggerFunc {
	return locked(locks, "settlement-sweep", func(ctx context.Context) error {
		n, err := settlements.EnqueueDue(ctx, time.Now(), sweepBatchSize)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info(ctx, "settlement sweep enqueued orders", zap.Int("count", n))
		}
		return nil
	})
}

// TopupExpiry closes open topup orders past their payment deadline.
func TopupExpiry(locks *lock.Manager, expiry *usecases.TopupExpiryUsecase) TriggerFunc {
	return locked(locks, "topup-expiry", func(ctx context.Context) error {
		n, err := expiry.ExpireOpen(ctx, time.Now(), sweepBatchSize)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info(ctx, "topup expiry closed orders", zap.Int("count", n))
		}
		return nil
	})
}

// TxConfirmSweep re-enqueues confirmation checks for transfer records stuck
// in PENDING, recovering jobs lost to a worker crash.
func TxConfirmSweep(locks *lock.Manager, tracker *usecases.TxConfirmUsecase) TriggerFunc {
	return locked(locks, "tx-confirm-sweep", func(ctx context.Context) error {
		_, err := tracker.SweepPending(ctx, time.Now().Add(-confirmSweepLag), sweepBatchSize)
		return err
	})
}

// CallbackSweep re-enqueues due callbacks that lost their delivery job.
func CallbackSweep(locks *lock.Manager, callbacks *usecases.CallbackUsecase) TriggerFunc {
	return locked(locks, "callback-sweep", func(ctx context.Context) error {
		n, err := callbacks.SweepDue(ctx, time.Now(), sweepBatchSize)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info(ctx, "callback sweep re-enqueued deliveries", zap.Int("count", n))
		}
		return nil
	})
}
