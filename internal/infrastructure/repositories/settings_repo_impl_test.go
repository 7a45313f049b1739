package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRepos "settle-gate.backend/internal/domain/repositories"
)

func TestSettingsGetMissingReturnsZero(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingsRepository(db)

	v, err := repo.GetInt64(context.Background(), domainRepos.SettingLastSyncedBlock)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestSettingsSetAndOverwrite(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.SetInt64(ctx, domainRepos.SettingLastSyncedBlock, 1200))
	v, err := repo.GetInt64(ctx, domainRepos.SettingLastSyncedBlock)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), v)

	require.NoError(t, repo.SetInt64(ctx, domainRepos.SettingLastSyncedBlock, 1300))
	v, err = repo.GetInt64(ctx, domainRepos.SettingLastSyncedBlock)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), v)
}
