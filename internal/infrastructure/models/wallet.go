package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MerchantID    *uuid.UUID      `gorm:"type:uuid;index"` // Nullable, platform wallets have none
	Type          string          `gorm:"type:varchar(20);not null;index"`
	Chain         string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_wallets_chain_address"`
	Address       string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_wallets_chain_address"`
	Balance       decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	NativeBalance decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	IsActive      bool            `gorm:"default:true"`
	LastSyncAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
