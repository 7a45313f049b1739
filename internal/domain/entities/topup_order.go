package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// TopupOrderStatus represents topup order status
type TopupOrderStatus string

const (
	TopupStatusPending  TopupOrderStatus = "PENDING"
	TopupStatusPaying   TopupOrderStatus = "PAYING"
	TopupStatusPaid     TopupOrderStatus = "PAID"
	TopupStatusSuccess  TopupOrderStatus = "SUCCESS"
	TopupStatusFailed   TopupOrderStatus = "FAILED"
	TopupStatusClosed   TopupOrderStatus = "CLOSED"
	TopupStatusRefunded TopupOrderStatus = "REFUNDED"
)

// TopupOrder tracks a payer deposit until on-chain confirmation.
// PAID is set by the syncer on a matching deposit; SUCCESS only by the
// confirmation tracker once the deposit reaches the required depth.
type TopupOrder struct {
	ID             uuid.UUID        `json:"id"`
	OrderNo        string           `json:"orderNo"`
	MerchantID     uuid.UUID        `json:"merchantId"`
	FiatAmount     decimal.Decimal  `json:"fiatAmount"`
	FiatCurrency   string           `json:"fiatCurrency"`
	TokenAmount    decimal.Decimal  `json:"tokenAmount"`
	TokenType      string           `json:"tokenType"`
	Status         TopupOrderStatus `json:"status"`
	DepositAddress string           `json:"depositAddress"`
	TxHash         null.String      `json:"txHash,omitempty"`
	NotifyURL      string           `json:"notifyUrl,omitempty"`
	ExpireAt       time.Time        `json:"expireAt"`
	PaidAt         *time.Time       `json:"paidAt,omitempty"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// IsOpen reports whether the order can still accept a deposit
func (o *TopupOrder) IsOpen() bool {
	return o.Status == TopupStatusPending || o.Status == TopupStatusPaying
}
