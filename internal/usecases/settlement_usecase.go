package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"settle-gate.backend/internal/domain/entities"
	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/internal/domain/repositories"
	"settle-gate.backend/pkg/logger"
)

// SettlementUsecase pays out approved settlement orders from the merchant's
// custody wallet to the platform fund pool. Settle is the single place an
// order moves past APPROVED; the cron sweep only enqueues due orders.
type SettlementUsecase struct {
	orders   repositories.SettlementOrderRepository
	wallets  repositories.WalletRepository
	txs      repositories.OnchainTransactionRepository
	uow      repositories.UnitOfWork
	chain    ChainClient
	pipeline *Pipeline
	notifier Notifier

	chainName string
}

func NewSettlementUsecase(
	orders repositories.SettlementOrderRepository,
	wallets repositories.WalletRepository,
	txs repositories.OnchainTransactionRepository,
	uow repositories.UnitOfWork,
	chain ChainClient,
	pipeline *Pipeline,
	notifier Notifier,
	chainName string,
) *SettlementUsecase {
	return &SettlementUsecase{
		orders:    orders,
		wallets:   wallets,
		txs:       txs,
		uow:       uow,
		chain:     chain,
		pipeline:  pipeline,
		notifier:  notifier,
		chainName: chainName,
	}
}

// Settle processes one settlement order end-to-end up to transfer
// submission. Terminal SUCCESS/FAILED after submission is decided by the
// confirmation tracker, never here.
//
// Precondition failures are permanent: the order is marked FAILED and the
// job is consumed. A lost claim race is a silent no-op. Only the transfer
// submission and the post-submit bookkeeping return retryable errors.
func (u *SettlementUsecase) Settle(ctx context.Context, orderID uuid.UUID) error {
	order, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			logger.Warn(ctx, "settlement order vanished", zap.String("order_id", orderID.String()))
			return nil
		}
		return fmt.Errorf("load settlement order: %w", err)
	}

	if order.Status != entities.SettlementStatusApproved {
		logger.Debug(ctx, "settlement order not approved, skipping",
			zap.String("order_id", orderID.String()),
			zap.String("status", string(order.Status)))
		return nil
	}

	custody, err := u.wallets.GetActiveByMerchantAndType(ctx, order.MerchantID, entities.WalletTypeCustody)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return u.failOrder(ctx, order, "no active custody wallet")
		}
		if errors.Is(err, domainerrors.ErrWalletInactive) {
			return u.failOrder(ctx, order, "custody wallet inactive")
		}
		return fmt.Errorf("load custody wallet: %w", err)
	}

	if custody.Balance.LessThan(order.TokenAmount) {
		return u.failOrder(ctx, order, "insufficient custody balance")
	}

	fundPool, err := u.wallets.GetFundPool(ctx, u.chainName)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNoFundPool) {
			return u.failOrder(ctx, order, "no fund pool wallet configured")
		}
		return fmt.Errorf("load fund pool wallet: %w", err)
	}

	// Claim the order. Zero rows means another worker won the race.
	claimed, err := u.orders.UpdateStatusIf(ctx, order.ID, entities.SettlementStatusApproved, entities.SettlementStatusSettling)
	if err != nil {
		return fmt.Errorf("claim settlement order: %w", err)
	}
	if !claimed {
		logger.Debug(ctx, "settlement claim lost", zap.String("order_id", orderID.String()))
		return nil
	}

	txHash, err := u.chain.SendTokenTransfer(ctx, fundPool.Address, order.TokenAmount)
	if err != nil {
		// Nothing hit the chain; hand the order back for a later attempt.
		if _, revertErr := u.orders.UpdateStatusIf(ctx, order.ID, entities.SettlementStatusSettling, entities.SettlementStatusApproved); revertErr != nil {
			logger.Error(ctx, "revert settlement claim",
				zap.String("order_id", orderID.String()), zap.Error(revertErr))
		}
		return fmt.Errorf("submit settlement transfer: %w", err)
	}

	record := &entities.OnchainTransaction{
		TxHash:            txHash,
		Chain:             u.chainName,
		FromAddress:       custody.Address,
		ToAddress:         fundPool.Address,
		Amount:            order.TokenAmount,
		TokenType:         order.TokenType,
		Status:            entities.TxStatusPending,
		Direction:         entities.TxDirectionOut,
		WalletID:          &custody.ID,
		SettlementOrderID: &order.ID,
	}

	err = u.uow.Do(ctx, func(txCtx context.Context) error {
		if err := u.txs.Create(txCtx, record); err != nil {
			return fmt.Errorf("record outgoing transfer: %w", err)
		}
		if err := u.orders.SetTxHash(txCtx, order.ID, txHash); err != nil {
			return fmt.Errorf("stamp tx hash: %w", err)
		}
		if err := u.wallets.AdjustBalance(txCtx, custody.ID, order.TokenAmount.Neg()); err != nil {
			return fmt.Errorf("debit custody wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		// The transfer is on chain but unrecorded; the retried job no-ops on
		// the SETTLING status and the syncer reconciles the transfer later.
		logger.Error(ctx, "settlement bookkeeping failed after submit",
			zap.String("order_id", orderID.String()),
			zap.String("tx_hash", txHash), zap.Error(err))
		return err
	}

	if _, err := u.pipeline.TxConfirm.Enqueue(ctx, TxConfirmJobPayload{TransactionID: record.ID}, 0,
		idemKey(QueueTxConfirm, record.ID, record.CreatedAt)); err != nil {
		return fmt.Errorf("enqueue confirmation job: %w", err)
	}

	logger.Info(ctx, "settlement transfer submitted",
		zap.String("order_id", orderID.String()),
		zap.String("settlement_no", order.SettlementNo),
		zap.String("tx_hash", txHash))
	return nil
}

// failOrder marks a precondition failure. The job is consumed, not retried.
func (u *SettlementUsecase) failOrder(ctx context.Context, order *entities.SettlementOrder, reason string) error {
	if err := u.orders.MarkFailed(ctx, order.ID, reason); err != nil {
		return fmt.Errorf("mark settlement failed: %w", err)
	}
	logger.Warn(ctx, "settlement order failed",
		zap.String("order_id", order.ID.String()),
		zap.String("reason", reason))
	u.notifySettlement(ctx, order, entities.SettlementStatusFailed, "")
	return nil
}

func (u *SettlementUsecase) notifySettlement(ctx context.Context, order *entities.SettlementOrder, status entities.SettlementOrderStatus, txHash string) {
	if u.notifier == nil || order.NotifyURL == "" {
		return
	}
	payload := OrderNotification{
		OrderID:   order.ID,
		OrderNo:   order.SettlementNo,
		OrderType: entities.CallbackOrderSettlement,
		Status:    string(status),
		Amount:    order.TokenAmount,
		Fee:       order.FeeAmount,
		TokenType: order.TokenType,
		TxHash:    txHash,
	}
	if err := u.notifier.Notify(ctx, order.MerchantID, entities.CallbackOrderSettlement, order.ID, order.NotifyURL, payload); err != nil {
		logger.Error(ctx, "schedule settlement callback",
			zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

// EnqueueDue pushes APPROVED orders whose scheduled time has passed onto the
// settlement queue. Called by the interval sweep; the idempotency key keyed
// on the order's schedule collapses repeat sweeps of the same due order.
func (u *SettlementUsecase) EnqueueDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := u.orders.ListDueApproved(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due settlements: %w", err)
	}

	enqueued := 0
	for _, order := range due {
		_, err := u.pipeline.Settlement.Enqueue(ctx, SettlementJobPayload{OrderID: order.ID}, 0,
			idemKey(QueueSettlement, order.ID, order.ExpectedProcessAt))
		if err != nil {
			return enqueued, fmt.Errorf("enqueue settlement %s: %w", order.SettlementNo, err)
		}
		enqueued++
	}
	return enqueued, nil
}
