package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settle-gate.backend/internal/domain/entities"
)

func TestExpireOpenClosesAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	expired := seedTopup(t, env, merchantID, entities.TopupStatusPending, decimal.NewFromInt(100), "0xexp1")
	env.db.Exec("UPDATE topup_orders SET expire_at = ? WHERE id = ?", time.Now().Add(-time.Minute), expired.ID)

	expiredPaying := seedTopup(t, env, merchantID, entities.TopupStatusPaying, decimal.NewFromInt(50), "0xexp2")
	env.db.Exec("UPDATE topup_orders SET expire_at = ? WHERE id = ?", time.Now().Add(-time.Minute), expiredPaying.ID)

	// Still inside its window.
	open := seedTopup(t, env, merchantID, entities.TopupStatusPending, decimal.NewFromInt(10), "0xopen")

	// Already paid orders are never expired.
	paid := seedTopup(t, env, merchantID, entities.TopupStatusPaid, decimal.NewFromInt(20), "0xpaid")
	env.db.Exec("UPDATE topup_orders SET expire_at = ? WHERE id = ?", time.Now().Add(-time.Minute), paid.ID)

	u := NewTopupExpiryUsecase(env.topups, env.notifier)
	n, err := u.ExpireOpen(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []uuid.UUID{expired.ID, expiredPaying.ID} {
		got, err := env.topups.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.TopupStatusClosed, got.Status)
	}

	got, err := env.topups.GetByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TopupStatusPending, got.Status)

	got, err = env.topups.GetByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TopupStatusPaid, got.Status)

	assert.Equal(t, 2, env.notifier.count())
	assert.Equal(t, entities.CallbackOrderTopup, env.notifier.last().OrderType)
}

func TestExpireOpenNothingDue(t *testing.T) {
	env := newTestEnv(t)

	seedTopup(t, env, uuid.New(), entities.TopupStatusPending, decimal.NewFromInt(10), "0xopen")

	u := NewTopupExpiryUsecase(env.topups, env.notifier)
	n, err := u.ExpireOpen(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, env.notifier.count())
}
