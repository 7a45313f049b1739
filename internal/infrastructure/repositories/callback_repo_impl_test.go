package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settle-gate.backend/internal/domain/entities"
)

func seedCallback(t *testing.T, repo *CallbackRepository, nextRetryAt *time.Time) *entities.MerchantCallback {
	t.Helper()
	cb := &entities.MerchantCallback{
		MerchantID:  uuid.New(),
		OrderType:   entities.CallbackOrderSettlement,
		OrderID:     uuid.New(),
		URL:         "https://merchant.example/notify",
		Payload:     `{"status":"SUCCESS"}`,
		NextRetryAt: nextRetryAt,
	}
	require.NoError(t, repo.Create(context.Background(), cb))
	return cb
}

func TestCallbackLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewCallbackRepository(db)
	ctx := context.Background()

	cb := seedCallback(t, repo, nil)

	got, err := repo.GetByID(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.CallbackStatusPending, got.Status)

	next := time.Now().Add(time.Minute)
	require.NoError(t, repo.RecordFailure(ctx, cb.ID, 1, next, "status 500"))

	got, err = repo.GetByID(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "status 500", got.LastError.String)
	require.NotNil(t, got.NextRetryAt)

	require.NoError(t, repo.MarkSuccess(ctx, cb.ID))
	got, err = repo.GetByID(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.CallbackStatusSuccess, got.Status)
	assert.Nil(t, got.NextRetryAt)
}

func TestCallbackMarkFailed(t *testing.T) {
	db := newTestDB(t)
	repo := NewCallbackRepository(db)
	ctx := context.Background()

	cb := seedCallback(t, repo, nil)

	require.NoError(t, repo.MarkFailed(ctx, cb.ID, 7, "connection refused"))
	got, err := repo.GetByID(ctx, cb.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.CallbackStatusFailed, got.Status)
	assert.Equal(t, 7, got.Attempts)
}

func TestCallbackListDue(t *testing.T) {
	db := newTestDB(t)
	repo := NewCallbackRepository(db)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	due := seedCallback(t, repo, &past)
	seedCallback(t, repo, &future)
	seedCallback(t, repo, nil)

	cbs, err := repo.ListDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, cbs, 1)
	assert.Equal(t, due.ID, cbs[0].ID)
}
