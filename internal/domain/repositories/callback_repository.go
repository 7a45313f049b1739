package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"settle-gate.backend/internal/domain/entities"
)

// CallbackRepository defines merchant callback data operations
type CallbackRepository interface {
	Create(ctx context.Context, cb *entities.MerchantCallback) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.MerchantCallback, error)
	MarkSuccess(ctx context.Context, id uuid.UUID) error
	// RecordFailure stores the attempt count, next retry time and last error
	// after a failed delivery.
	RecordFailure(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
	// ListDue returns PENDING callbacks whose nextRetryAt has passed, for the
	// retry sweep.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entities.MerchantCallback, error)
}
