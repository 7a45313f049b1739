package usecases

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settle-gate.backend/internal/domain/entities"
	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/internal/domain/repositories"
	"settle-gate.backend/pkg/logger"
)

// DefaultRetrySchedule is the delay before each delivery attempt, in order.
// Attempt 1 runs immediately, attempt 2 after 60s, and so on; once the
// schedule is exhausted the callback is FAILED.
var DefaultRetrySchedule = []time.Duration{
	0,
	60 * time.Second,
	120 * time.Second,
	240 * time.Second,
	480 * time.Second,
	960 * time.Second,
	1920 * time.Second,
}

// Notifier schedules a merchant notification. Implemented by
// CallbackUsecase; the settlement engine and confirmation tracker only see
// this narrow surface.
type Notifier interface {
	Notify(ctx context.Context, merchantID uuid.UUID, orderType entities.CallbackOrderType, orderID uuid.UUID, url string, payload interface{}) error
}

// OrderNotification is the JSON body POSTed to the merchant's notify URL.
type OrderNotification struct {
	OrderID     uuid.UUID                  `json:"orderId"`
	OrderNo     string                     `json:"orderNo"`
	OrderType   entities.CallbackOrderType `json:"orderType"`
	Status      string                     `json:"status"`
	Amount      decimal.Decimal            `json:"amount"`
	Fee         decimal.Decimal            `json:"fee,omitempty"`
	TokenType   string                     `json:"tokenType"`
	TxHash      string                     `json:"txHash,omitempty"`
	CompletedAt *time.Time                 `json:"completedAt,omitempty"`
}

// CallbackUsecase creates merchant callback records and delivers them with
// at-least-once semantics over a fixed retry schedule.
type CallbackUsecase struct {
	callbacks repositories.CallbackRepository
	pipeline  *Pipeline
	client    *http.Client
	schedule  []time.Duration
}

func NewCallbackUsecase(callbacks repositories.CallbackRepository, pipeline *Pipeline, timeout time.Duration, schedule []time.Duration) *CallbackUsecase {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if len(schedule) == 0 {
		schedule = DefaultRetrySchedule
	}
	return &CallbackUsecase{
		callbacks: callbacks,
		pipeline:  pipeline,
		client:    &http.Client{Timeout: timeout},
		schedule:  schedule,
	}
}

// Notify records a callback and enqueues its first delivery. An empty URL
// is a silent no-op: the merchant opted out of notifications.
func (u *CallbackUsecase) Notify(ctx context.Context, merchantID uuid.UUID, orderType entities.CallbackOrderType, orderID uuid.UUID, url string, payload interface{}) error {
	if url == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	cb := &entities.MerchantCallback{
		MerchantID: merchantID,
		OrderType:  orderType,
		OrderID:    orderID,
		URL:        url,
		Payload:    string(body),
		Status:     entities.CallbackStatusPending,
	}
	if err := u.callbacks.Create(ctx, cb); err != nil {
		return fmt.Errorf("create callback record: %w", err)
	}

	if _, err := u.pipeline.Callback.Enqueue(ctx, CallbackJobPayload{CallbackID: cb.ID}, u.schedule[0],
		idemKey(QueueCallback, cb.ID, cb.CreatedAt)); err != nil {
		return fmt.Errorf("enqueue callback delivery: %w", err)
	}
	return nil
}

// Deliver attempts one delivery. Failures are not queue retries: the next
// attempt is scheduled per the configured schedule via delayed re-enqueue,
// and Deliver returns nil so the job completes.
func (u *CallbackUsecase) Deliver(ctx context.Context, callbackID uuid.UUID) error {
	cb, err := u.callbacks.GetByID(ctx, callbackID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			logger.Warn(ctx, "callback record vanished", zap.String("callback_id", callbackID.String()))
			return nil
		}
		return fmt.Errorf("load callback: %w", err)
	}

	if cb.Status != entities.CallbackStatusPending {
		return nil
	}

	attempt := cb.Attempts + 1
	deliverErr := u.post(ctx, cb)
	if deliverErr == nil {
		if err := u.callbacks.MarkSuccess(ctx, cb.ID); err != nil {
			return fmt.Errorf("mark callback success: %w", err)
		}
		logger.Info(ctx, "callback delivered",
			zap.String("callback_id", cb.ID.String()),
			zap.Int("attempt", attempt))
		return nil
	}

	logger.Warn(ctx, "callback delivery failed",
		zap.String("callback_id", cb.ID.String()),
		zap.String("url", cb.URL),
		zap.Int("attempt", attempt),
		zap.Error(deliverErr))

	if attempt >= len(u.schedule) {
		if err := u.callbacks.MarkFailed(ctx, cb.ID, attempt, deliverErr.Error()); err != nil {
			return fmt.Errorf("mark callback failed: %w", err)
		}
		return nil
	}

	delay := u.schedule[attempt]
	nextRetryAt := time.Now().Add(delay)
	if err := u.callbacks.RecordFailure(ctx, cb.ID, attempt, nextRetryAt, deliverErr.Error()); err != nil {
		return fmt.Errorf("record callback failure: %w", err)
	}
	if _, err := u.pipeline.Callback.Enqueue(ctx, CallbackJobPayload{CallbackID: cb.ID}, delay,
		idemKey(QueueCallback, cb.ID, nextRetryAt)); err != nil {
		return fmt.Errorf("re-enqueue callback: %w", err)
	}
	return nil
}

func (u *CallbackUsecase) post(ctx context.Context, cb *entities.MerchantCallback) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cb.URL, bytes.NewReader([]byte(cb.Payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("merchant responded %d", resp.StatusCode)
	}
	return nil
}

// SweepDue re-enqueues PENDING callbacks whose retry time has passed but
// that have no live job, typically after a crash between RecordFailure and
// the re-enqueue. The idempotency key keyed on nextRetryAt keeps this from
// double-delivering callbacks that are merely waiting on their delay.
func (u *CallbackUsecase) SweepDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := u.callbacks.ListDue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due callbacks: %w", err)
	}

	enqueued := 0
	for _, cb := range due {
		at := cb.CreatedAt
		if cb.NextRetryAt != nil {
			at = *cb.NextRetryAt
		}
		if _, err := u.pipeline.Callback.Enqueue(ctx, CallbackJobPayload{CallbackID: cb.ID}, 0,
			idemKey(QueueCallback, cb.ID, at)); err != nil {
			return enqueued, fmt.Errorf("re-enqueue callback %s: %w", cb.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}
