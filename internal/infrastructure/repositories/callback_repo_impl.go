package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"settle-gate.backend/internal/domain/entities"
	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/internal/infrastructure/models"
	"settle-gate.backend/pkg/utils"
)

// CallbackRepository implements merchant callback data operations
type CallbackRepository struct {
	db *gorm.DB
}

// NewCallbackRepository creates a new callback repository
func NewCallbackRepository(db *gorm.DB) *CallbackRepository {
	return &CallbackRepository{db: db}
}

func callbackToEntity(m *models.MerchantCallback) *entities.MerchantCallback {
	e := &entities.MerchantCallback{
		ID:          m.ID,
		MerchantID:  m.MerchantID,
		OrderType:   entities.CallbackOrderType(m.OrderType),
		OrderID:     m.OrderID,
		URL:         m.URL,
		Payload:     m.Payload,
		Status:      entities.CallbackStatus(m.Status),
		Attempts:    m.Attempts,
		NextRetryAt: m.NextRetryAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.LastError != nil {
		e.LastError = null.StringFrom(*m.LastError)
	}
	return e
}

// Create creates a new callback record
func (r *CallbackRepository) Create(ctx context.Context, cb *entities.MerchantCallback) error {
	if cb.ID == uuid.Nil {
		cb.ID = utils.GenerateUUIDv7()
	}
	if cb.Status == "" {
		cb.Status = entities.CallbackStatusPending
	}
	m := &models.MerchantCallback{
		ID:          cb.ID,
		MerchantID:  cb.MerchantID,
		OrderType:   string(cb.OrderType),
		OrderID:     cb.OrderID,
		URL:         cb.URL,
		Payload:     cb.Payload,
		Status:      string(cb.Status),
		Attempts:    cb.Attempts,
		NextRetryAt: cb.NextRetryAt,
	}
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets a callback by ID
func (r *CallbackRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.MerchantCallback, error) {
	var m models.MerchantCallback
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return callbackToEntity(&m), nil
}

// MarkSuccess records a delivered callback
func (r *CallbackRepository) MarkSuccess(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.MerchantCallback{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        string(entities.CallbackStatusSuccess),
			"next_retry_at": nil,
		}).Error
}

// RecordFailure stores the failed attempt and schedules the next retry
func (r *CallbackRepository) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt time.Time, lastError string) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.MerchantCallback{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":      attempts,
			"next_retry_at": &nextRetryAt,
			"last_error":    lastError,
		}).Error
}

// MarkFailed parks a callback after its retry schedule is exhausted
func (r *CallbackRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.MerchantCallback{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        string(entities.CallbackStatusFailed),
			"attempts":      attempts,
			"next_retry_at": nil,
			"last_error":    lastError,
		}).Error
}

// ListDue returns pending callbacks whose retry time has passed
func (r *CallbackRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*entities.MerchantCallback, error) {
	var ms []models.MerchantCallback
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			string(entities.CallbackStatusPending), now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}

	cbs := make([]*entities.MerchantCallback, 0, len(ms))
	for i := range ms {
		cbs = append(cbs, callbackToEntity(&ms[i]))
	}
	return cbs, nil
}
