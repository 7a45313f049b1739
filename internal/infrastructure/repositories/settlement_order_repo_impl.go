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

// SettlementOrderRepository implements settlement order data operations
type SettlementOrderRepository struct {
	db  *gorm.DB
	seq *utils.SequenceGenerator
}

// NewSettlementOrderRepository creates a new settlement order repository
func NewSettlementOrderRepository(db *gorm.DB) *SettlementOrderRepository {
	return &SettlementOrderRepository{db: db, seq: utils.NewSequenceGenerator("ST")}
}

func settlementToEntity(m *models.SettlementOrder) *entities.SettlementOrder {
	e := &entities.SettlementOrder{
		ID:                m.ID,
		SettlementNo:      m.SettlementNo,
		MerchantID:        m.MerchantID,
		TokenAmount:       m.TokenAmount,
		FeeAmount:         m.FeeAmount,
		TokenType:         m.TokenType,
		Status:            entities.SettlementOrderStatus(m.Status),
		NotifyURL:         m.NotifyURL,
		ExpectedProcessAt: m.ExpectedProcessAt,
		CompletedAt:       m.CompletedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.TxHash != nil {
		e.TxHash = null.StringFrom(*m.TxHash)
	}
	if m.FailReason != nil {
		e.FailReason = null.StringFrom(*m.FailReason)
	}
	return e
}

// Create creates a new settlement order. An empty SettlementNo is assigned
// from the ST sequence.
func (r *SettlementOrderRepository) Create(ctx context.Context, order *entities.SettlementOrder) error {
	if order.ID == uuid.Nil {
		order.ID = utils.GenerateUUIDv7()
	}
	if order.SettlementNo == "" {
		order.SettlementNo = r.seq.Next()
	}
	m := &models.SettlementOrder{
		ID:                order.ID,
		SettlementNo:      order.SettlementNo,
		MerchantID:        order.MerchantID,
		TokenAmount:       order.TokenAmount,
		FeeAmount:         order.FeeAmount,
		TokenType:         order.TokenType,
		Status:            string(order.Status),
		NotifyURL:         order.NotifyURL,
		ExpectedProcessAt: order.ExpectedProcessAt,
	}
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets a settlement order by ID
func (r *SettlementOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.SettlementOrder, error) {
	var m models.SettlementOrder
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return settlementToEntity(&m), nil
}

// GetByNo gets a settlement order by its settlement number
func (r *SettlementOrderRepository) GetByNo(ctx context.Context, settlementNo string) (*entities.SettlementOrder, error) {
	var m models.SettlementOrder
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("settlement_no = ?", settlementNo).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return settlementToEntity(&m), nil
}

// UpdateStatusIf is the compare-and-swap claim. Zero rows affected means the
// race was lost; callers treat that as an expected outcome.
func (r *SettlementOrderRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to entities.SettlementOrderStatus) (bool, error) {
	db := GetDB(ctx, r.db)
	res := db.WithContext(ctx).Model(&models.SettlementOrder{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetTxHash stamps the order with the submitted transfer hash
func (r *SettlementOrderRepository) SetTxHash(ctx context.Context, id uuid.UUID, txHash string) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.SettlementOrder{}).
		Where("id = ?", id).
		Update("tx_hash", txHash).Error
}

// MarkFailed records a terminal failure with an operator-visible reason
func (r *SettlementOrderRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.SettlementOrder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      string(entities.SettlementStatusFailed),
			"fail_reason": reason,
		}).Error
}

// MarkSuccess advances SETTLING -> SUCCESS with a completion timestamp
func (r *SettlementOrderRepository) MarkSuccess(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error) {
	db := GetDB(ctx, r.db)
	res := db.WithContext(ctx).Model(&models.SettlementOrder{}).
		Where("id = ? AND status = ?", id, string(entities.SettlementStatusSettling)).
		Updates(map[string]interface{}{
			"status":       string(entities.SettlementStatusSuccess),
			"completed_at": &completedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListDueApproved returns APPROVED orders due for processing
func (r *SettlementOrderRepository) ListDueApproved(ctx context.Context, now time.Time, limit int) ([]*entities.SettlementOrder, error) {
	var ms []models.SettlementOrder
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("status = ? AND expected_process_at <= ?", string(entities.SettlementStatusApproved), now).
		Order("expected_process_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*entities.SettlementOrder, 0, len(ms))
	for i := range ms {
		orders = append(orders, settlementToEntity(&ms[i]))
	}
	return orders, nil
}
