package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettlementOrder struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SettlementNo      string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	MerchantID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	TokenAmount       decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	FeeAmount         decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	TokenType         string          `gorm:"type:varchar(20);not null"`
	Status            string          `gorm:"type:varchar(20);not null;index"`
	TxHash            *string         `gorm:"type:varchar(255);index"`
	FailReason        *string         `gorm:"type:varchar(500)"`
	NotifyURL         string          `gorm:"type:varchar(500)"`
	ExpectedProcessAt time.Time       `gorm:"index"`
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
