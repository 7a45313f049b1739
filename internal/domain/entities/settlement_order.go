package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// SettlementOrderStatus represents settlement order status.
// APPROVED -> SETTLING -> SUCCESS|FAILED is the core state machine;
// SETTLING is the "claimed" marker enforced by a conditional update.
type SettlementOrderStatus string

const (
	SettlementStatusPending      SettlementOrderStatus = "PENDING"
	SettlementStatusPendingAudit SettlementOrderStatus = "PENDING_AUDIT"
	SettlementStatusAuditing     SettlementOrderStatus = "AUDITING"
	SettlementStatusApproved     SettlementOrderStatus = "APPROVED"
	SettlementStatusRejected     SettlementOrderStatus = "REJECTED"
	SettlementStatusSettling     SettlementOrderStatus = "SETTLING"
	SettlementStatusSuccess      SettlementOrderStatus = "SUCCESS"
	SettlementStatusFailed       SettlementOrderStatus = "FAILED"
)

// SettlementOrder is a request to pay out a merchant's accumulated balance.
type SettlementOrder struct {
	ID                uuid.UUID             `json:"id"`
	SettlementNo      string                `json:"settlementNo"`
	MerchantID        uuid.UUID             `json:"merchantId"`
	TokenAmount       decimal.Decimal       `json:"tokenAmount"`
	FeeAmount         decimal.Decimal       `json:"feeAmount"`
	TokenType         string                `json:"tokenType"`
	Status            SettlementOrderStatus `json:"status"`
	TxHash            null.String           `json:"txHash,omitempty"`
	FailReason        null.String           `json:"failReason,omitempty"`
	NotifyURL         string                `json:"notifyUrl,omitempty"`
	ExpectedProcessAt time.Time             `json:"expectedProcessAt"`
	CompletedAt       *time.Time            `json:"completedAt,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}
