package usecases

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"settle-gate.backend/internal/domain/entities"
	"settle-gate.backend/internal/domain/repositories"
	"settle-gate.backend/pkg/logger"
)

// TopupExpiryUsecase closes open topup orders whose payment deadline has
// passed. A deposit arriving after closure is still recorded by the syncer;
// it just no longer completes the order.
type TopupExpiryUsecase struct {
	topups   repositories.TopupOrderRepository
	notifier Notifier
}

func NewTopupExpiryUsecase(topups repositories.TopupOrderRepository, notifier Notifier) *TopupExpiryUsecase {
	return &TopupExpiryUsecase{topups: topups, notifier: notifier}
}

// ExpireOpen closes up to limit expired PENDING/PAYING orders and notifies
// their merchants. Returns how many orders were closed.
func (u *TopupExpiryUsecase) ExpireOpen(ctx context.Context, now time.Time, limit int) (int, error) {
	expired, err := u.topups.ListExpiredOpen(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expired topups: %w", err)
	}

	closed := 0
	for _, order := range expired {
		changed, err := u.topups.UpdateStatusIf(ctx, order.ID, order.Status, entities.TopupStatusClosed)
		if err != nil {
			return closed, fmt.Errorf("close topup %s: %w", order.OrderNo, err)
		}
		if !changed {
			// The syncer marked it PAID between the listing and the close.
			continue
		}
		closed++

		logger.Info(ctx, "topup order expired",
			zap.String("order_no", order.OrderNo),
			zap.Time("expired_at", order.ExpireAt))

		if u.notifier != nil && order.NotifyURL != "" {
			payload := OrderNotification{
				OrderID:   order.ID,
				OrderNo:   order.OrderNo,
				OrderType: entities.CallbackOrderTopup,
				Status:    string(entities.TopupStatusClosed),
				Amount:    order.TokenAmount,
				TokenType: order.TokenType,
			}
			if err := u.notifier.Notify(ctx, order.MerchantID, entities.CallbackOrderTopup, order.ID, order.NotifyURL, payload); err != nil {
				logger.Error(ctx, "schedule expiry callback",
					zap.String("order_no", order.OrderNo), zap.Error(err))
			}
		}
	}
	return closed, nil
}
