package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxStatus represents the lifecycle of an observed or submitted transfer.
// CONFIRMED and FAILED are terminal.
type TxStatus string

const (
	TxStatusPending   TxStatus = "PENDING"
	TxStatusConfirmed TxStatus = "CONFIRMED"
	TxStatusFailed    TxStatus = "FAILED"
)

// TxDirection marks transfers relative to platform wallets
type TxDirection string

const (
	TxDirectionIn  TxDirection = "IN"
	TxDirectionOut TxDirection = "OUT"
)

// OnchainTransaction is the single record of a transfer the platform cares
// about. Uniqueness on (txHash, fromAddress, toAddress) guards against
// duplicate recording from overlapping sync windows.
type OnchainTransaction struct {
	ID                uuid.UUID       `json:"id"`
	TxHash            string          `json:"txHash"`
	Chain             string          `json:"chain"`
	BlockNumber       int64           `json:"blockNumber"`
	FromAddress       string          `json:"fromAddress"`
	ToAddress         string          `json:"toAddress"`
	Amount            decimal.Decimal `json:"amount"`
	TokenType         string          `json:"tokenType"`
	Status            TxStatus        `json:"status"`
	Confirmations     int64           `json:"confirmations"`
	Direction         TxDirection     `json:"direction"`
	WalletID          *uuid.UUID      `json:"walletId,omitempty"`
	TopupOrderID      *uuid.UUID      `json:"topupOrderId,omitempty"`
	SettlementOrderID *uuid.UUID      `json:"settlementOrderId,omitempty"`
	BlockTime         *time.Time      `json:"blockTime,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsTerminal reports whether the transaction reached a final state
func (t *OnchainTransaction) IsTerminal() bool {
	return t.Status == TxStatusConfirmed || t.Status == TxStatusFailed
}
