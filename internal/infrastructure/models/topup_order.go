package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TopupOrder struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderNo        string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	MerchantID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	FiatAmount     decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	FiatCurrency   string          `gorm:"type:varchar(10);not null"`
	TokenAmount    decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	TokenType      string          `gorm:"type:varchar(20);not null"`
	Status         string          `gorm:"type:varchar(20);not null;index"`
	DepositAddress string          `gorm:"type:varchar(255);not null;index"`
	TxHash         *string         `gorm:"type:varchar(255);index"`
	NotifyURL      string          `gorm:"type:varchar(500)"`
	ExpireAt       time.Time       `gorm:"index"`
	PaidAt         *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
