package repositories

import "context"

// Setting keys used by the pipeline
const (
	SettingLastSyncedBlock = "blockchain.last_synced_block"
)

// SettingsRepository is a generic key/value store for operational cursors
type SettingsRepository interface {
	// GetInt64 returns 0 when the key has never been written.
	GetInt64(ctx context.Context, key string) (int64, error)
	SetInt64(ctx context.Context, key string, value int64) error
}
