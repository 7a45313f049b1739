package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settle-gate.backend/internal/domain/entities"
	domainerrors "settle-gate.backend/internal/domain/errors"
)

func seedSettlementOrder(t *testing.T, repo *SettlementOrderRepository, status entities.SettlementOrderStatus) *entities.SettlementOrder {
	t.Helper()
	order := &entities.SettlementOrder{
		SettlementNo:      "ST" + uuid.New().String()[:18],
		MerchantID:        uuid.New(),
		TokenAmount:       decimal.NewFromInt(50),
		TokenType:         "USDT",
		Status:            status,
		ExpectedProcessAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestSettlementCreateAssignsSequentialNo(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettlementOrderRepository(db)
	ctx := context.Background()

	first := &entities.SettlementOrder{
		MerchantID:        uuid.New(),
		TokenAmount:       decimal.NewFromInt(50),
		TokenType:         "USDT",
		Status:            entities.SettlementStatusApproved,
		ExpectedProcessAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, first))
	assert.Regexp(t, `^ST\d{18}$`, first.SettlementNo)

	second := &entities.SettlementOrder{
		MerchantID:        uuid.New(),
		TokenAmount:       decimal.NewFromInt(60),
		TokenType:         "USDT",
		Status:            entities.SettlementStatusApproved,
		ExpectedProcessAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, second))
	assert.NotEqual(t, first.SettlementNo, second.SettlementNo)

	// A caller-provided number is kept as-is.
	explicit := seedSettlementOrder(t, repo, entities.SettlementStatusApproved)
	got, err := repo.GetByNo(ctx, explicit.SettlementNo)
	require.NoError(t, err)
	assert.Equal(t, explicit.ID, got.ID)

	_, err = repo.GetByNo(ctx, "ST00000000000000000000")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestSettlementClaimIsConditional(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettlementOrderRepository(db)
	ctx := context.Background()

	order := seedSettlementOrder(t, repo, entities.SettlementStatusApproved)

	claimed, err := repo.UpdateStatusIf(ctx, order.ID, entities.SettlementStatusApproved, entities.SettlementStatusSettling)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim observes the status mismatch and loses.
	claimed, err = repo.UpdateStatusIf(ctx, order.ID, entities.SettlementStatusApproved, entities.SettlementStatusSettling)
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusSettling, got.Status)
}

func TestSettlementRevertAfterSubmitFailure(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettlementOrderRepository(db)
	ctx := context.Background()

	order := seedSettlementOrder(t, repo, entities.SettlementStatusSettling)

	reverted, err := repo.UpdateStatusIf(ctx, order.ID, entities.SettlementStatusSettling, entities.SettlementStatusApproved)
	require.NoError(t, err)
	assert.True(t, reverted)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusApproved, got.Status)
}

func TestSettlementMarkFailedRecordsReason(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettlementOrderRepository(db)
	ctx := context.Background()

	order := seedSettlementOrder(t, repo, entities.SettlementStatusApproved)

	require.NoError(t, repo.MarkFailed(ctx, order.ID, "insufficient custody balance"))

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusFailed, got.Status)
	assert.Equal(t, "insufficient custody balance", got.FailReason.String)
}

func TestSettlementMarkSuccess(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettlementOrderRepository(db)
	ctx := context.Background()

	order := seedSettlementOrder(t, repo, entities.SettlementStatusSettling)

	done := time.Now()
	ok, err := repo.MarkSuccess(ctx, order.ID, done)
	require.NoError(t, err)
	assert.True(t, ok)

	// Only SETTLING orders can succeed.
	ok, err = repo.MarkSuccess(ctx, order.ID, done)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SettlementStatusSuccess, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestSettlementListDueApproved(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettlementOrderRepository(db)
	ctx := context.Background()

	due := seedSettlementOrder(t, repo, entities.SettlementStatusApproved)
	seedSettlementOrder(t, repo, entities.SettlementStatusSettling)

	notYet := &entities.SettlementOrder{
		SettlementNo:      "ST" + uuid.New().String()[:18],
		MerchantID:        uuid.New(),
		TokenAmount:       decimal.NewFromInt(10),
		TokenType:         "USDT",
		Status:            entities.SettlementStatusApproved,
		ExpectedProcessAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Create(ctx, notYet))

	orders, err := repo.ListDueApproved(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, due.ID, orders[0].ID)

	require.NoError(t, repo.SetTxHash(ctx, due.ID, "0xsettled"))
	got, err := repo.GetByID(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xsettled", got.TxHash.String)
}
