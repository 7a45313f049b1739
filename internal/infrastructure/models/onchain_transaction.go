package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OnchainTransaction rows are unique on (tx_hash, from_address, to_address)
// so overlapping sync windows cannot record a transfer twice.
type OnchainTransaction struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TxHash            string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_tx_hash_from_to"`
	Chain             string          `gorm:"type:varchar(50);not null"`
	BlockNumber       int64           `gorm:"index"`
	FromAddress       string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_tx_hash_from_to"`
	ToAddress         string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_tx_hash_from_to"`
	Amount            decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	TokenType         string          `gorm:"type:varchar(20);not null"`
	Status            string          `gorm:"type:varchar(20);not null;index"`
	Confirmations     int64           `gorm:"not null;default:0"`
	Direction         string          `gorm:"type:varchar(5);not null"`
	WalletID          *uuid.UUID      `gorm:"type:uuid;index"`
	TopupOrderID      *uuid.UUID      `gorm:"type:uuid;index"`
	SettlementOrderID *uuid.UUID      `gorm:"type:uuid;index"`
	BlockTime         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
