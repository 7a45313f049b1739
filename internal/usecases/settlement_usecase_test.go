package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settle-gate.backend/internal/domain/entities"
)

const testChain = "base-sepolia"

func seedWallet(t *testing.T, env *testEnv, walletType entities.WalletType, merchantID *uuid.UUID, address string, balance decimal.Decimal) *entities.Wallet {
	t.Helper()
	w := &entities.Wallet{
		MerchantID: merchantID,
		Type:       walletType,
		Chain:      testChain,
		Address:    address,
		Balance:    balance,
		IsActive:   true,
	}
	require.NoError(t, env.wallets.Create(context.Background(), w))
	return w
}

func seedSettlement(t *testing.T, env *testEnv, merchantID uuid.UUID, status entities.SettlementOrderStatus, amount decimal.Decimal) *entities.SettlementOrder {
	t.Helper()
	order := &entities.SettlementOrder{
		SettlementNo:      "ST" + uuid.NewString()[:8],
		MerchantID:        merchantID,
		TokenAmount:       amount,
		FeeAmount:         decimal.NewFromInt(1),
		TokenType:         "USDT",
		Status:            status,
		NotifyURL:         "https://merchant.example/webhook",
		ExpectedProcessAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, env.settlements.Create(context.Background(), order))
	return order
}

func newSettlementUsecase(env *testEnv) *SettlementUsecase {
	return NewSettlementUsecase(env.settlements, env.wallets, env.txs, env.uow,
		env.chain, env.pipeline, env.notifier, testChain)
}

func TestSettleHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	custody := seedWallet(t, env, entities.WalletTypeCustody, &merchantID, "0xcustody", decimal.NewFromInt(1000))
	pool := seedWallet(t, env, entities.WalletTypeFundPool, nil, "0xpool", decimal.Zero)
	order := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(400))

	u := newSettlementUsecase(env)
	require.NoError(t, u.Settle(ctx, order.ID))

	// Order claimed and stamped; terminal state is the tracker's call.
	got, err := env.settlements.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusSettling, got.Status)
	assert.Equal(t, "0xsubmitted", got.TxHash.String)

	// One transfer submitted to the fund pool.
	require.Equal(t, 1, env.chain.sendCount())
	assert.Equal(t, pool.Address, env.chain.sends[0].To)
	assert.True(t, env.chain.sends[0].Amount.Equal(decimal.NewFromInt(400)))

	// Custody debited.
	w, err := env.wallets.GetByID(ctx, custody.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(600)), "balance %s", w.Balance)

	// PENDING OUT transfer record linked to the order.
	require.Equal(t, 1, env.txConfirmQ.count())
	payload := env.txConfirmQ.last().Payload.(TxConfirmJobPayload)
	rec, err := env.txs.GetByID(ctx, payload.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, entities.TxStatusPending, rec.Status)
	assert.Equal(t, entities.TxDirectionOut, rec.Direction)
	assert.Equal(t, order.ID, *rec.SettlementOrderID)
	assert.Equal(t, custody.ID, *rec.WalletID)
}

func TestSettleRepeatCallIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	seedWallet(t, env, entities.WalletTypeCustody, &merchantID, "0xcustody", decimal.NewFromInt(1000))
	seedWallet(t, env, entities.WalletTypeFundPool, nil, "0xpool", decimal.Zero)
	order := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(100))

	u := newSettlementUsecase(env)
	require.NoError(t, u.Settle(ctx, order.ID))
	// At-least-once delivery redelivers the job; the SETTLING status gates it.
	require.NoError(t, u.Settle(ctx, order.ID))
	require.NoError(t, u.Settle(ctx, order.ID))

	assert.Equal(t, 1, env.chain.sendCount(), "transfer submitted exactly once")
}

func TestSettleConcurrentAttemptsSubmitOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	seedWallet(t, env, entities.WalletTypeCustody, &merchantID, "0xcustody", decimal.NewFromInt(1000))
	seedWallet(t, env, entities.WalletTypeFundPool, nil, "0xpool", decimal.Zero)
	order := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(400))

	// One connection so shared-cache sqlite does not return busy errors; the
	// goroutines still race on the APPROVED -> SETTLING claim.
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	u := newSettlementUsecase(env)
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = u.Settle(ctx, order.ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "attempt %d", i)
	}

	// Exactly one attempt won the claim; the rest were no-ops.
	assert.Equal(t, 1, env.chain.sendCount(), "transfer submitted exactly once")
	assert.Equal(t, 1, env.txConfirmQ.count())

	got, err := env.settlements.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusSettling, got.Status)

	wallets, err := env.wallets.GetActiveByMerchantAndType(ctx, merchantID, entities.WalletTypeCustody)
	require.NoError(t, err)
	assert.True(t, wallets.Balance.Equal(decimal.NewFromInt(600)), "balance %s", wallets.Balance)
}

func TestSettleMissingOrderConsumed(t *testing.T) {
	env := newTestEnv(t)
	u := newSettlementUsecase(env)

	require.NoError(t, u.Settle(context.Background(), uuid.New()))
	assert.Zero(t, env.chain.sendCount())
}

func TestSettleNoCustodyWalletFailsOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	seedWallet(t, env, entities.WalletTypeFundPool, nil, "0xpool", decimal.Zero)
	order := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(100))

	u := newSettlementUsecase(env)
	require.NoError(t, u.Settle(ctx, order.ID))

	got, err := env.settlements.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusFailed, got.Status)
	assert.Equal(t, "no active custody wallet", got.FailReason.String)
	assert.Zero(t, env.chain.sendCount())

	// Merchant told about the failure.
	require.Equal(t, 1, env.notifier.count())
	assert.Equal(t, entities.CallbackOrderSettlement, env.notifier.last().OrderType)
}

func TestSettleInactiveCustodyWalletFailsOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	custody := seedWallet(t, env, entities.WalletTypeCustody, &merchantID, "0xcustody", decimal.NewFromInt(500))
	require.NoError(t, env.db.Exec(
		"UPDATE wallets SET is_active = ? WHERE id = ?", false, custody.ID).Error)
	seedWallet(t, env, entities.WalletTypeFundPool, nil, "0xpool", decimal.Zero)
	order := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(100))

	u := newSettlementUsecase(env)
	require.NoError(t, u.Settle(ctx, order.ID))

	got, err := env.settlements.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusFailed, got.Status)
	assert.Equal(t, "custody wallet inactive", got.FailReason.String)
	assert.Zero(t, env.chain.sendCount())
}

func TestSettleInsufficientBalanceFailsOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	seedWallet(t, env, entities.WalletTypeCustody, &merchantID, "0xcustody", decimal.NewFromInt(50))
	seedWallet(t, env, entities.WalletTypeFundPool, nil, "0xpool", decimal.Zero)
	order := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(100))

	u := newSettlementUsecase(env)
	require.NoError(t, u.Settle(ctx, order.ID))

	got, err := env.settlements.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusFailed, got.Status)
	assert.Equal(t, "insufficient custody balance", got.FailReason.String)
	assert.Zero(t, env.chain.sendCount())
}

func TestSettleNoFundPoolFailsOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	seedWallet(t, env, entities.WalletTypeCustody, &merchantID, "0xcustody", decimal.NewFromInt(500))
	order := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(100))

	u := newSettlementUsecase(env)
	require.NoError(t, u.Settle(ctx, order.ID))

	got, err := env.settlements.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusFailed, got.Status)
	assert.Equal(t, "no fund pool wallet configured", got.FailReason.String)
}

func TestSettleSubmitFailureRevertsClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	custody := seedWallet(t, env, entities.WalletTypeCustody, &merchantID, "0xcustody", decimal.NewFromInt(1000))
	seedWallet(t, env, entities.WalletTypeFundPool, nil, "0xpool", decimal.Zero)
	order := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(400))

	env.chain.sendErr = assert.AnError

	u := newSettlementUsecase(env)
	err := u.Settle(ctx, order.ID)
	require.ErrorIs(t, err, assert.AnError, "submit failures are retryable")

	// Order handed back for a later attempt.
	got, err := env.settlements.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusApproved, got.Status)
	assert.False(t, got.TxHash.Valid)

	// Balance untouched, no transfer record, no confirmation job.
	w, err := env.wallets.GetByID(ctx, custody.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(1000)))
	assert.Zero(t, env.txConfirmQ.count())

	// And the retry goes through once the chain recovers.
	env.chain.sendErr = nil
	require.NoError(t, u.Settle(ctx, order.ID))
	assert.Equal(t, 1, env.chain.sendCount())
}

func TestSettleNotApprovedIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	for _, status := range []entities.SettlementOrderStatus{
		entities.SettlementStatusPending,
		entities.SettlementStatusSettling,
		entities.SettlementStatusSuccess,
		entities.SettlementStatusRejected,
	} {
		order := seedSettlement(t, env, merchantID, status, decimal.NewFromInt(100))
		u := newSettlementUsecase(env)
		require.NoError(t, u.Settle(ctx, order.ID))

		got, err := env.settlements.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status, "status %s must not change", status)
	}
	assert.Zero(t, env.chain.sendCount())
}

func TestEnqueueDue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID := uuid.New()

	due := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(100))
	seedSettlement(t, env, merchantID, entities.SettlementStatusPending, decimal.NewFromInt(100))

	notYet := seedSettlement(t, env, merchantID, entities.SettlementStatusApproved, decimal.NewFromInt(100))
	env.db.Exec("UPDATE settlement_orders SET expected_process_at = ? WHERE id = ?",
		time.Now().Add(time.Hour), notYet.ID)

	u := newSettlementUsecase(env)
	n, err := u.EnqueueDue(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Equal(t, 1, env.settlementQ.count())
	payload := env.settlementQ.last().Payload.(SettlementJobPayload)
	assert.Equal(t, due.ID, payload.OrderID)
	assert.NotEmpty(t, env.settlementQ.last().IdemKey)
}
