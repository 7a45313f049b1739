package repositories

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"settle-gate.backend/internal/infrastructure/models"
)

// SettingsRepository implements the generic key/value settings store
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetInt64 returns the stored integer, or 0 when the key was never written
func (r *SettingsRepository) GetInt64(ctx context.Context, key string) (int64, error) {
	var m models.Setting
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(m.Value, 10, 64)
}

// SetInt64 upserts the key
func (r *SettingsRepository) SetInt64(ctx context.Context, key string, value int64) error {
	db := GetDB(ctx, r.db)
	m := models.Setting{Key: key, Value: strconv.FormatInt(value, 10)}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&m).Error
}
