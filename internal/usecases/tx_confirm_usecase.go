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

// TxConfirmUsecase tracks PENDING transfer records until they reach the
// required confirmation depth or fail, then fans the terminal state out to
// the orders riding on them. It is the only writer of terminal order states
// after a transfer is on chain.
type TxConfirmUsecase struct {
	txs         repositories.OnchainTransactionRepository
	topups      repositories.TopupOrderRepository
	settlements repositories.SettlementOrderRepository
	wallets     repositories.WalletRepository
	uow         repositories.UnitOfWork
	chain       ChainClient
	pipeline    *Pipeline
	notifier    Notifier

	requiredConfirmations int64
	recheckDelay          time.Duration
}

func NewTxConfirmUsecase(
	txs repositories.OnchainTransactionRepository,
	topups repositories.TopupOrderRepository,
	settlements repositories.SettlementOrderRepository,
	wallets repositories.WalletRepository,
	uow repositories.UnitOfWork,
	chain ChainClient,
	pipeline *Pipeline,
	notifier Notifier,
	requiredConfirmations int64,
	recheckDelay time.Duration,
) *TxConfirmUsecase {
	if requiredConfirmations <= 0 {
		requiredConfirmations = 12
	}
	if recheckDelay <= 0 {
		recheckDelay = 15 * time.Second
	}
	return &TxConfirmUsecase{
		txs:                   txs,
		topups:                topups,
		settlements:           settlements,
		wallets:               wallets,
		uow:                   uow,
		chain:                 chain,
		pipeline:              pipeline,
		notifier:              notifier,
		requiredConfirmations: requiredConfirmations,
		recheckDelay:          recheckDelay,
	}
}

// Track checks one transfer record against the chain. Pending transfers are
// re-enqueued with a delay and the job completes; only transient chain or
// storage errors bubble up for a queue retry.
func (u *TxConfirmUsecase) Track(ctx context.Context, transactionID uuid.UUID) error {
	rec, err := u.txs.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			logger.Warn(ctx, "transfer record vanished", zap.String("transaction_id", transactionID.String()))
			return nil
		}
		return fmt.Errorf("load transfer record: %w", err)
	}

	if rec.IsTerminal() {
		return nil
	}

	exists, pending, err := u.chain.TransactionByHash(ctx, rec.TxHash)
	if err != nil {
		return fmt.Errorf("look up transaction: %w", err)
	}
	if !exists {
		// Dropped from the mempool without ever mining.
		logger.Warn(ctx, "transaction dropped",
			zap.String("tx_hash", rec.TxHash),
			zap.String("transaction_id", rec.ID.String()))
		return u.settleFailed(ctx, rec, "transaction dropped from mempool")
	}
	if pending {
		return u.recheckLater(ctx, rec)
	}

	receipt, err := u.chain.TransactionReceipt(ctx, rec.TxHash)
	if err != nil {
		if errors.Is(err, domainerrors.ErrTxNotFound) {
			// Known to the node but no receipt yet.
			return u.recheckLater(ctx, rec)
		}
		return fmt.Errorf("fetch receipt: %w", err)
	}

	if !receipt.Success {
		return u.settleFailed(ctx, rec, "transaction reverted")
	}

	head, err := u.chain.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch head: %w", err)
	}

	var confirmations int64
	if head >= receipt.BlockNumber {
		confirmations = int64(head-receipt.BlockNumber) + 1
	}

	if confirmations < u.requiredConfirmations {
		if err := u.txs.UpdateConfirmations(ctx, rec.ID, confirmations); err != nil {
			return fmt.Errorf("persist confirmations: %w", err)
		}
		return u.recheckLater(ctx, rec)
	}

	if err := u.txs.MarkConfirmed(ctx, rec.ID, confirmations); err != nil {
		return fmt.Errorf("mark transfer confirmed: %w", err)
	}
	logger.Info(ctx, "transfer confirmed",
		zap.String("tx_hash", rec.TxHash),
		zap.Int64("confirmations", confirmations))

	u.fanoutConfirmed(ctx, rec)
	return nil
}

// SweepPending re-enqueues confirmation jobs for transfer records that have
// sat in PENDING past the cutoff. A worker crash between claiming a job and
// finishing it loses the job but not the row; the sweep re-arms those rows.
// The creation-time idempotency key collapses the duplicate when the original
// job is still queued.
func (u *TxConfirmUsecase) SweepPending(ctx context.Context, before time.Time, limit int) (int, error) {
	stale, err := u.txs.ListPendingBefore(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending transfers: %w", err)
	}

	enqueued := 0
	for _, rec := range stale {
		if _, err := u.pipeline.TxConfirm.Enqueue(ctx, TxConfirmJobPayload{TransactionID: rec.ID}, 0,
			idemKey(QueueTxConfirm, rec.ID, rec.CreatedAt)); err != nil {
			return enqueued, fmt.Errorf("re-enqueue confirmation job: %w", err)
		}
		enqueued++
	}
	if enqueued > 0 {
		logger.Info(ctx, "re-armed stale confirmation checks", zap.Int("count", enqueued))
	}
	return enqueued, nil
}

func (u *TxConfirmUsecase) recheckLater(ctx context.Context, rec *entities.OnchainTransaction) error {
	_, err := u.pipeline.TxConfirm.Enqueue(ctx, TxConfirmJobPayload{TransactionID: rec.ID}, u.recheckDelay, "")
	if err != nil {
		return fmt.Errorf("re-enqueue confirmation check: %w", err)
	}
	return nil
}

// fanoutConfirmed promotes the orders riding on a confirmed transfer. Each
// update runs independently: one failure is logged and the rest still run,
// and every update is a conditional transition so a retried job is a no-op.
func (u *TxConfirmUsecase) fanoutConfirmed(ctx context.Context, rec *entities.OnchainTransaction) {
	now := time.Now().UTC()

	if rec.TopupOrderID != nil {
		if err := u.completeTopup(ctx, *rec.TopupOrderID, rec, now); err != nil {
			logger.Error(ctx, "promote topup order",
				zap.String("order_id", rec.TopupOrderID.String()), zap.Error(err))
		}
	}

	if rec.SettlementOrderID != nil {
		if err := u.completeSettlement(ctx, *rec.SettlementOrderID, rec, now); err != nil {
			logger.Error(ctx, "promote settlement order",
				zap.String("order_id", rec.SettlementOrderID.String()), zap.Error(err))
		}
	}
}

func (u *TxConfirmUsecase) completeTopup(ctx context.Context, orderID uuid.UUID, rec *entities.OnchainTransaction, now time.Time) error {
	changed, err := u.topups.MarkSuccess(ctx, orderID, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	order, err := u.topups.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	u.notifyTopup(ctx, order, rec.TxHash, &now)
	return nil
}

func (u *TxConfirmUsecase) completeSettlement(ctx context.Context, orderID uuid.UUID, rec *entities.OnchainTransaction, now time.Time) error {
	changed, err := u.settlements.MarkSuccess(ctx, orderID, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	order, err := u.settlements.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	u.notifySettlement(ctx, order, rec.TxHash, &now)
	return nil
}

// settleFailed records the terminal FAILED state and unwinds the orders and
// balance movements that assumed the transfer would land.
func (u *TxConfirmUsecase) settleFailed(ctx context.Context, rec *entities.OnchainTransaction, reason string) error {
	if err := u.txs.MarkFailed(ctx, rec.ID); err != nil {
		return fmt.Errorf("mark transfer failed: %w", err)
	}

	if rec.SettlementOrderID != nil {
		if err := u.failSettlement(ctx, *rec.SettlementOrderID, rec, reason); err != nil {
			logger.Error(ctx, "unwind settlement order",
				zap.String("order_id", rec.SettlementOrderID.String()), zap.Error(err))
		}
	}

	if rec.TopupOrderID != nil {
		if err := u.revertTopup(ctx, *rec.TopupOrderID, rec); err != nil {
			logger.Error(ctx, "revert topup order",
				zap.String("order_id", rec.TopupOrderID.String()), zap.Error(err))
		}
	}
	return nil
}

// failSettlement marks the order FAILED and refunds the custody debit taken
// at submission time, in one transaction.
func (u *TxConfirmUsecase) failSettlement(ctx context.Context, orderID uuid.UUID, rec *entities.OnchainTransaction, reason string) error {
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		if err := u.settlements.MarkFailed(txCtx, orderID, reason); err != nil {
			return err
		}
		if rec.WalletID != nil {
			if err := u.wallets.AdjustBalance(txCtx, *rec.WalletID, rec.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	order, err := u.settlements.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	u.notifySettlement(ctx, order, rec.TxHash, nil)
	return nil
}

// revertTopup puts a PAID order back to PENDING and reverses the deposit
// credit, so a later real deposit can still complete the order.
func (u *TxConfirmUsecase) revertTopup(ctx context.Context, orderID uuid.UUID, rec *entities.OnchainTransaction) error {
	return u.uow.Do(ctx, func(txCtx context.Context) error {
		reverted, err := u.topups.UpdateStatusIf(txCtx, orderID, entities.TopupStatusPaid, entities.TopupStatusPending)
		if err != nil {
			return err
		}
		if !reverted {
			return nil
		}
		if rec.WalletID != nil {
			if err := u.wallets.AdjustBalance(txCtx, *rec.WalletID, rec.Amount.Neg()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (u *TxConfirmUsecase) notifyTopup(ctx context.Context, order *entities.TopupOrder, txHash string, completedAt *time.Time) {
	if u.notifier == nil || order.NotifyURL == "" {
		return
	}
	payload := OrderNotification{
		OrderID:     order.ID,
		OrderNo:     order.OrderNo,
		OrderType:   entities.CallbackOrderTopup,
		Status:      string(order.Status),
		Amount:      order.TokenAmount,
		TokenType:   order.TokenType,
		TxHash:      txHash,
		CompletedAt: completedAt,
	}
	if err := u.notifier.Notify(ctx, order.MerchantID, entities.CallbackOrderTopup, order.ID, order.NotifyURL, payload); err != nil {
		logger.Error(ctx, "schedule topup callback",
			zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

func (u *TxConfirmUsecase) notifySettlement(ctx context.Context, order *entities.SettlementOrder, txHash string, completedAt *time.Time) {
	if u.notifier == nil || order.NotifyURL == "" {
		return
	}
	payload := OrderNotification{
		OrderID:     order.ID,
		OrderNo:     order.SettlementNo,
		OrderType:   entities.CallbackOrderSettlement,
		Status:      string(order.Status),
		Amount:      order.TokenAmount,
		Fee:         order.FeeAmount,
		TokenType:   order.TokenType,
		TxHash:      txHash,
		CompletedAt: completedAt,
	}
	if err := u.notifier.Notify(ctx, order.MerchantID, entities.CallbackOrderSettlement, order.ID, order.NotifyURL, payload); err != nil {
		logger.Error(ctx, "schedule settlement callback",
			zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}
