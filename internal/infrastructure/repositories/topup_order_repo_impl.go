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

// TopupOrderRepository implements topup order data operations
type TopupOrderRepository struct {
	db *gorm.DB
}

// NewTopupOrderRepository creates a new topup order repository
func NewTopupOrderRepository(db *gorm.DB) *TopupOrderRepository {
	return &TopupOrderRepository{db: db}
}

func topupToEntity(m *models.TopupOrder) *entities.TopupOrder {
	e := &entities.TopupOrder{
		ID:             m.ID,
		OrderNo:        m.OrderNo,
		MerchantID:     m.MerchantID,
		FiatAmount:     m.FiatAmount,
		FiatCurrency:   m.FiatCurrency,
		TokenAmount:    m.TokenAmount,
		TokenType:      m.TokenType,
		Status:         entities.TopupOrderStatus(m.Status),
		DepositAddress: m.DepositAddress,
		NotifyURL:      m.NotifyURL,
		ExpireAt:       m.ExpireAt,
		PaidAt:         m.PaidAt,
		CompletedAt:    m.CompletedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.TxHash != nil {
		e.TxHash = null.StringFrom(*m.TxHash)
	}
	return e
}

// Create creates a new topup order
func (r *TopupOrderRepository) Create(ctx context.Context, order *entities.TopupOrder) error {
	if order.ID == uuid.Nil {
		order.ID = utils.GenerateUUIDv7()
	}
	m := &models.TopupOrder{
		ID:             order.ID,
		OrderNo:        order.OrderNo,
		MerchantID:     order.MerchantID,
		FiatAmount:     order.FiatAmount,
		FiatCurrency:   order.FiatCurrency,
		TokenAmount:    order.TokenAmount,
		TokenType:      order.TokenType,
		Status:         string(order.Status),
		DepositAddress: order.DepositAddress,
		NotifyURL:      order.NotifyURL,
		ExpireAt:       order.ExpireAt,
	}
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets a topup order by ID
func (r *TopupOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.TopupOrder, error) {
	var m models.TopupOrder
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return topupToEntity(&m), nil
}

// FindOpenByDepositAddress finds a PENDING or PAYING order on an address
func (r *TopupOrderRepository) FindOpenByDepositAddress(ctx context.Context, address string) (*entities.TopupOrder, error) {
	var m models.TopupOrder
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("deposit_address = ? AND status IN ?", address,
			[]string{string(entities.TopupStatusPending), string(entities.TopupStatusPaying)}).
		Order("created_at ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return topupToEntity(&m), nil
}

// MarkPaid sets PAID and attaches the deposit tx hash, conditional on the
// order still being open
func (r *TopupOrderRepository) MarkPaid(ctx context.Context, id uuid.UUID, txHash string) (bool, error) {
	db := GetDB(ctx, r.db)
	now := time.Now()
	res := db.WithContext(ctx).Model(&models.TopupOrder{}).
		Where("id = ? AND status IN ?", id,
			[]string{string(entities.TopupStatusPending), string(entities.TopupStatusPaying)}).
		Updates(map[string]interface{}{
			"status":  string(entities.TopupStatusPaid),
			"tx_hash": txHash,
			"paid_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatusIf transitions from -> to and reports whether a row changed
func (r *TopupOrderRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to entities.TopupOrderStatus) (bool, error) {
	db := GetDB(ctx, r.db)
	res := db.WithContext(ctx).Model(&models.TopupOrder{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkSuccess advances PAID -> SUCCESS with a completion timestamp
func (r *TopupOrderRepository) MarkSuccess(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error) {
	db := GetDB(ctx, r.db)
	res := db.WithContext(ctx).Model(&models.TopupOrder{}).
		Where("id = ? AND status = ?", id, string(entities.TopupStatusPaid)).
		Updates(map[string]interface{}{
			"status":       string(entities.TopupStatusSuccess),
			"completed_at": &completedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListExpiredOpen returns open orders past their expiry
func (r *TopupOrderRepository) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]*entities.TopupOrder, error) {
	var ms []models.TopupOrder
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("status IN ? AND expire_at < ?",
			[]string{string(entities.TopupStatusPending), string(entities.TopupStatusPaying)}, now).
		Order("expire_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*entities.TopupOrder, 0, len(ms))
	for i := range ms {
		orders = append(orders, topupToEntity(&ms[i]))
	}
	return orders, nil
}
