package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"settle-gate.backend/internal/domain/entities"
	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/internal/infrastructure/models"
	"settle-gate.backend/pkg/utils"
)

// OnchainTransactionRepository implements transfer-record data operations
type OnchainTransactionRepository struct {
	db *gorm.DB
}

// NewOnchainTransactionRepository creates a new onchain transaction repository
func NewOnchainTransactionRepository(db *gorm.DB) *OnchainTransactionRepository {
	return &OnchainTransactionRepository{db: db}
}

func txToEntity(m *models.OnchainTransaction) *entities.OnchainTransaction {
	return &entities.OnchainTransaction{
		ID:                m.ID,
		TxHash:            m.TxHash,
		Chain:             m.Chain,
		BlockNumber:       m.BlockNumber,
		FromAddress:       m.FromAddress,
		ToAddress:         m.ToAddress,
		Amount:            m.Amount,
		TokenType:         m.TokenType,
		Status:            entities.TxStatus(m.Status),
		Confirmations:     m.Confirmations,
		Direction:         entities.TxDirection(m.Direction),
		WalletID:          m.WalletID,
		TopupOrderID:      m.TopupOrderID,
		SettlementOrderID: m.SettlementOrderID,
		BlockTime:         m.BlockTime,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// Create records a transfer
func (r *OnchainTransactionRepository) Create(ctx context.Context, tx *entities.OnchainTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = utils.GenerateUUIDv7()
	}
	m := &models.OnchainTransaction{
		ID:                tx.ID,
		TxHash:            tx.TxHash,
		Chain:             tx.Chain,
		BlockNumber:       tx.BlockNumber,
		FromAddress:       tx.FromAddress,
		ToAddress:         tx.ToAddress,
		Amount:            tx.Amount,
		TokenType:         tx.TokenType,
		Status:            string(tx.Status),
		Confirmations:     tx.Confirmations,
		Direction:         string(tx.Direction),
		WalletID:          tx.WalletID,
		TopupOrderID:      tx.TopupOrderID,
		SettlementOrderID: tx.SettlementOrderID,
		BlockTime:         tx.BlockTime,
	}
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainerrors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetByID gets a transaction by ID
func (r *OnchainTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.OnchainTransaction, error) {
	var m models.OnchainTransaction
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return txToEntity(&m), nil
}

// GetByHash gets the record for the dedup identity (txHash, from, to).
// Addresses compare case-insensitively: log-decoded addresses are checksummed
// while stored wallet addresses may not be.
func (r *OnchainTransactionRepository) GetByHash(ctx context.Context, txHash, fromAddress, toAddress string) (*entities.OnchainTransaction, error) {
	var m models.OnchainTransaction
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("tx_hash = ? AND LOWER(from_address) = ? AND LOWER(to_address) = ?",
			txHash, strings.ToLower(fromAddress), strings.ToLower(toAddress)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return txToEntity(&m), nil
}

// GetByTxHash gets the earliest record carrying the hash
func (r *OnchainTransactionRepository) GetByTxHash(ctx context.Context, txHash string) (*entities.OnchainTransaction, error) {
	var m models.OnchainTransaction
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("tx_hash = ?", txHash).
		Order("created_at ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return txToEntity(&m), nil
}

// ListPendingBefore returns PENDING records created before the cutoff
func (r *OnchainTransactionRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*entities.OnchainTransaction, error) {
	var ms []models.OnchainTransaction
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(entities.TxStatusPending), before).
		Order("created_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}

	txs := make([]*entities.OnchainTransaction, 0, len(ms))
	for i := range ms {
		txs = append(txs, txToEntity(&ms[i]))
	}
	return txs, nil
}

// UpdateConfirmations persists a confirmation count for a PENDING transaction.
// The count never decreases across polls.
func (r *OnchainTransactionRepository) UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations int64) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.OnchainTransaction{}).
		Where("id = ? AND status = ? AND confirmations < ?", id, string(entities.TxStatusPending), confirmations).
		Update("confirmations", confirmations).Error
}

// MarkConfirmed sets the terminal CONFIRMED state
func (r *OnchainTransactionRepository) MarkConfirmed(ctx context.Context, id uuid.UUID, confirmations int64) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.OnchainTransaction{}).
		Where("id = ? AND status = ?", id, string(entities.TxStatusPending)).
		Updates(map[string]interface{}{
			"status":        string(entities.TxStatusConfirmed),
			"confirmations": confirmations,
		}).Error
}

// MarkFailed sets the terminal FAILED state
func (r *OnchainTransactionRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Model(&models.OnchainTransaction{}).
		Where("id = ? AND status = ?", id, string(entities.TxStatusPending)).
		Update("status", string(entities.TxStatusFailed)).Error
}
