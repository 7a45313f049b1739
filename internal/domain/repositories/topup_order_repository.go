package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"settle-gate.backend/internal/domain/entities"
)

// TopupOrderRepository defines topup order data operations
type TopupOrderRepository interface {
	Create(ctx context.Context, order *entities.TopupOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.TopupOrder, error)
	// FindOpenByDepositAddress returns a PENDING or PAYING order expecting a
	// deposit on the address, or ErrNotFound.
	FindOpenByDepositAddress(ctx context.Context, address string) (*entities.TopupOrder, error)
	// MarkPaid sets PAID and attaches the tx hash; conditional on the order
	// still being open. Returns false when the order already moved on.
	MarkPaid(ctx context.Context, id uuid.UUID, txHash string) (bool, error)
	// UpdateStatusIf transitions from -> to as a conditional update and
	// reports whether a row changed.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to entities.TopupOrderStatus) (bool, error)
	MarkSuccess(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error)
	// ListExpiredOpen returns open orders past their expireAt.
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]*entities.TopupOrder, error)
}
