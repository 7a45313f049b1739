package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue names used by the pipeline.
const (
	QueueSettlement = "settlement"
	QueueTxConfirm  = "tx-confirm"
	QueueCallback   = "callback"
)

// Enqueuer abstracts job submission so usecases do not depend on the Redis
// queue directly. One Enqueuer instance is bound per queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload interface{}, delay time.Duration, idempotencyKey string) (string, error)
}

// Pipeline bundles the three queue producers the usecases schedule work on.
type Pipeline struct {
	Settlement Enqueuer
	TxConfirm  Enqueuer
	Callback   Enqueuer
}

// SettlementJobPayload asks the settlement engine to process one order.
type SettlementJobPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// TxConfirmJobPayload asks the tracker to check one transfer record.
type TxConfirmJobPayload struct {
	TransactionID uuid.UUID `json:"transaction_id"`
}

// CallbackJobPayload asks the delivery worker to attempt one callback.
type CallbackJobPayload struct {
	CallbackID uuid.UUID `json:"callback_id"`
}

// idemKey builds the queue idempotency key. The timestamp segment lets the
// same business entity be legitimately re-enqueued later (retries, sweeps)
// while still collapsing bursts of duplicates from a single trigger.
func idemKey(queue string, businessID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", queue, businessID, at.UnixMilli())
}
