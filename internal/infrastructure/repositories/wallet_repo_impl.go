package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"settle-gate.backend/internal/domain/entities"
	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/internal/infrastructure/models"
	"settle-gate.backend/pkg/utils"
)

// WalletRepository implements wallet data operations
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func walletToEntity(m *models.Wallet) *entities.Wallet {
	return &entities.Wallet{
		ID:            m.ID,
		MerchantID:    m.MerchantID,
		Type:          entities.WalletType(m.Type),
		Chain:         m.Chain,
		Address:       m.Address,
		Balance:       m.Balance,
		NativeBalance: m.NativeBalance,
		IsActive:      m.IsActive,
		LastSyncAt:    m.LastSyncAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// Create creates a new wallet
func (r *WalletRepository) Create(ctx context.Context, wallet *entities.Wallet) error {
	if wallet.ID == uuid.Nil {
		wallet.ID = utils.GenerateUUIDv7()
	}
	m := &models.Wallet{
		ID:            wallet.ID,
		MerchantID:    wallet.MerchantID,
		Type:          string(wallet.Type),
		Chain:         wallet.Chain,
		Address:       wallet.Address,
		Balance:       wallet.Balance,
		NativeBalance: wallet.NativeBalance,
		IsActive:      wallet.IsActive,
	}
	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets a wallet by ID
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error) {
	var m models.Wallet
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return walletToEntity(&m), nil
}

// GetActiveByMerchantAndType gets a merchant's active wallet of a type.
// A wallet that exists but is deactivated returns ErrWalletInactive so
// callers can tell a disabled wallet from a missing one.
func (r *WalletRepository) GetActiveByMerchantAndType(ctx context.Context, merchantID uuid.UUID, walletType entities.WalletType) (*entities.Wallet, error) {
	var m models.Wallet
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND type = ? AND is_active = ?", merchantID, string(walletType), true).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			var inactive int64
			countErr := db.WithContext(ctx).Model(&models.Wallet{}).
				Where("merchant_id = ? AND type = ?", merchantID, string(walletType)).
				Count(&inactive).Error
			if countErr != nil {
				return nil, countErr
			}
			if inactive > 0 {
				return nil, domainerrors.ErrWalletInactive
			}
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return walletToEntity(&m), nil
}

// GetFundPool gets the active platform fund-pool wallet for a chain
func (r *WalletRepository) GetFundPool(ctx context.Context, chain string) (*entities.Wallet, error) {
	var m models.Wallet
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("chain = ? AND type = ? AND is_active = ?", chain, string(entities.WalletTypeFundPool), true).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNoFundPool
		}
		return nil, err
	}
	return walletToEntity(&m), nil
}

// ListMonitored gets all active wallets on a chain
func (r *WalletRepository) ListMonitored(ctx context.Context, chain string) ([]*entities.Wallet, error) {
	var ms []models.Wallet
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("chain = ? AND is_active = ?", chain, true).Find(&ms).Error; err != nil {
		return nil, err
	}

	wallets := make([]*entities.Wallet, 0, len(ms))
	for i := range ms {
		wallets = append(wallets, walletToEntity(&ms[i]))
	}
	return wallets, nil
}

// AdjustBalance adds delta to the wallet balance. The current balance is
// re-read inside the ambient transaction; callers must run this under the
// unit of work when combining it with other writes.
func (r *WalletRepository) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	db := GetDB(ctx, r.db)

	var m models.Wallet
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainerrors.ErrNotFound
		}
		return err
	}

	newBalance := m.Balance.Add(delta)
	if newBalance.IsNegative() {
		return domainerrors.ErrInsufficientFunds
	}

	return db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", id).
		Update("balance", newBalance).Error
}

// TouchLastSync stamps the wallet's last sync time
func (r *WalletRepository) TouchLastSync(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	now := time.Now()
	return db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", id).
		Update("last_sync_at", &now).Error
}
