package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletType classifies platform wallets
type WalletType string

const (
	WalletTypeFundPool WalletType = "FUND_POOL"
	WalletTypeGas      WalletType = "GAS"
	WalletTypeCustody  WalletType = "CUSTODY"
	WalletTypeDeposit  WalletType = "DEPOSIT"
)

// Wallet represents a platform-monitored chain wallet.
// Balance is mutated only inside a serializable transaction, by the syncer
// or the settlement engine, never by two writers concurrently.
type Wallet struct {
	ID            uuid.UUID       `json:"id"`
	MerchantID    *uuid.UUID      `json:"merchantId,omitempty"`
	Type          WalletType      `json:"type"`
	Chain         string          `json:"chain"`
	Address       string          `json:"address"`
	Balance       decimal.Decimal `json:"balance"`
	NativeBalance decimal.Decimal `json:"nativeBalance"`
	IsActive      bool            `json:"isActive"`
	LastSyncAt    *time.Time      `json:"lastSyncAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
