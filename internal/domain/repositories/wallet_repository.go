package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"settle-gate.backend/internal/domain/entities"
)

// WalletRepository defines wallet data operations
type WalletRepository interface {
	Create(ctx context.Context, wallet *entities.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Wallet, error)
	// GetActiveByMerchantAndType returns the merchant's active wallet of the
	// given type, or ErrNotFound.
	GetActiveByMerchantAndType(ctx context.Context, merchantID uuid.UUID, walletType entities.WalletType) (*entities.Wallet, error)
	// GetFundPool returns the active platform fund-pool wallet for a chain.
	GetFundPool(ctx context.Context, chain string) (*entities.Wallet, error)
	// ListMonitored returns all active wallets on a chain, keyed lookups are
	// done by the caller.
	ListMonitored(ctx context.Context, chain string) ([]*entities.Wallet, error)
	// AdjustBalance adds delta (which may be negative) to the wallet balance.
	// It re-reads the current balance inside the ambient transaction rather
	// than trusting any value read earlier.
	AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	TouchLastSync(ctx context.Context, id uuid.UUID) error
}
