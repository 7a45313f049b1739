package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"settle-gate.backend/internal/domain/entities"
)

// SettlementOrderRepository defines settlement order data operations
type SettlementOrderRepository interface {
	Create(ctx context.Context, order *entities.SettlementOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.SettlementOrder, error)
	GetByNo(ctx context.Context, settlementNo string) (*entities.SettlementOrder, error)
	// UpdateStatusIf is the compare-and-swap claim: UPDATE ... WHERE id = ?
	// AND status = from. Zero rows affected means the race was lost, which is
	// an expected outcome, not an error.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to entities.SettlementOrderStatus) (bool, error)
	SetTxHash(ctx context.Context, id uuid.UUID, txHash string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkSuccess(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error)
	// ListDueApproved returns APPROVED orders whose expectedProcessAt has
	// passed, for the sweep to enqueue.
	ListDueApproved(ctx context.Context, now time.Time, limit int) ([]*entities.SettlementOrder, error)
}
