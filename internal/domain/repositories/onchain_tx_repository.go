package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"settle-gate.backend/internal/domain/entities"
)

// OnchainTransactionRepository defines transfer-record data operations
type OnchainTransactionRepository interface {
	Create(ctx context.Context, tx *entities.OnchainTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.OnchainTransaction, error)
	// GetByHash returns the record for (txHash, from, to), the dedup identity
	// for overlapping sync windows. ErrNotFound when nothing was recorded.
	GetByHash(ctx context.Context, txHash, fromAddress, toAddress string) (*entities.OnchainTransaction, error)
	// GetByTxHash returns the earliest record carrying the hash.
	GetByTxHash(ctx context.Context, txHash string) (*entities.OnchainTransaction, error)
	// ListPendingBefore returns PENDING records created before the cutoff,
	// oldest first, for the confirmation sweep.
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*entities.OnchainTransaction, error)
	// UpdateConfirmations persists a confirmation count. Counts are only ever
	// raised while the transaction is PENDING.
	UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations int64) error
	MarkConfirmed(ctx context.Context, id uuid.UUID, confirmations int64) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
