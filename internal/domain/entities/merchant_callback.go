package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// CallbackStatus represents delivery status of a merchant notification
type CallbackStatus string

const (
	CallbackStatusPending CallbackStatus = "PENDING"
	CallbackStatusSuccess CallbackStatus = "SUCCESS"
	CallbackStatusFailed  CallbackStatus = "FAILED"
)

// CallbackOrderType identifies which aggregate a callback reports on
type CallbackOrderType string

const (
	CallbackOrderTopup      CallbackOrderType = "TOPUP"
	CallbackOrderSettlement CallbackOrderType = "SETTLEMENT"
)

// MerchantCallback is an at-least-once webhook notification. Delivery is
// retried on a fixed schedule until it succeeds or the schedule runs out.
type MerchantCallback struct {
	ID          uuid.UUID         `json:"id"`
	MerchantID  uuid.UUID         `json:"merchantId"`
	OrderType   CallbackOrderType `json:"orderType"`
	OrderID     uuid.UUID         `json:"orderId"`
	URL         string            `json:"url"`
	Payload     string            `json:"payload"`
	Status      CallbackStatus    `json:"status"`
	Attempts    int               `json:"attempts"`
	NextRetryAt *time.Time        `json:"nextRetryAt,omitempty"`
	LastError   null.String       `json:"lastError,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}
