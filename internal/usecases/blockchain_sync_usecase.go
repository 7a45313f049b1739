package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settle-gate.backend/internal/domain/entities"
	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/internal/domain/repositories"
	"settle-gate.backend/internal/infrastructure/blockchain"
	"settle-gate.backend/pkg/logger"
)

// BlockchainSyncUsecase scans the chain for token transfers touching
// monitored wallets, in either direction.
// Each run advances a persisted block cursor over a bounded window;
// the cursor only moves once every event in the window is durably recorded,
// so a failed run is rescanned and the (txHash, from, to) dedup guard
// absorbs the overlap.
type BlockchainSyncUsecase struct {
	wallets  repositories.WalletRepository
	txs      repositories.OnchainTransactionRepository
	topups   repositories.TopupOrderRepository
	settings repositories.SettingsRepository
	uow      repositories.UnitOfWork
	chain    ChainClient
	pipeline *Pipeline

	chainName  string
	tokenType  string
	startBlock int64
	windowSize int64
	// tolerance is the accepted relative deviation between a deposit and the
	// order's expected amount, e.g. 0.005 for half a percent.
	tolerance decimal.Decimal

	running atomic.Bool
}

func NewBlockchainSyncUsecase(
	wallets repositories.WalletRepository,
	txs repositories.OnchainTransactionRepository,
	topups repositories.TopupOrderRepository,
	settings repositories.SettingsRepository,
	uow repositories.UnitOfWork,
	chain ChainClient,
	pipeline *Pipeline,
	chainName, tokenType string,
	startBlock, windowSize int64,
	tolerance decimal.Decimal,
) *BlockchainSyncUsecase {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &BlockchainSyncUsecase{
		wallets:    wallets,
		txs:        txs,
		topups:     topups,
		settings:   settings,
		uow:        uow,
		chain:      chain,
		pipeline:   pipeline,
		chainName:  chainName,
		tokenType:  tokenType,
		startBlock: startBlock,
		windowSize: windowSize,
		tolerance:  tolerance,
	}
}

// Run scans one window. Overlapping runs are skipped in-process; the
// interval trigger may fire again while a slow window is still scanning.
func (u *BlockchainSyncUsecase) Run(ctx context.Context) error {
	if !u.running.CompareAndSwap(false, true) {
		logger.Debug(ctx, "sync already running, skipping")
		return nil
	}
	defer u.running.Store(false)

	head, err := u.chain.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch head: %w", err)
	}

	cursor, err := u.settings.GetInt64(ctx, repositories.SettingLastSyncedBlock)
	if err != nil {
		return fmt.Errorf("read sync cursor: %w", err)
	}
	if cursor == 0 && u.startBlock > 0 {
		cursor = u.startBlock - 1
	}

	from := cursor + 1
	to := cursor + u.windowSize
	if to > int64(head) {
		to = int64(head)
	}
	if from > to {
		return nil
	}

	monitored, err := u.wallets.ListMonitored(ctx, u.chainName)
	if err != nil {
		return fmt.Errorf("list monitored wallets: %w", err)
	}
	if len(monitored) == 0 {
		return u.settings.SetInt64(ctx, repositories.SettingLastSyncedBlock, to)
	}

	byAddress := make(map[string]*entities.Wallet, len(monitored))
	addresses := make([]string, 0, len(monitored))
	for _, w := range monitored {
		byAddress[strings.ToLower(w.Address)] = w
		addresses = append(addresses, w.Address)
	}

	events, err := u.chain.FilterTokenTransfers(ctx, uint64(from), uint64(to), addresses)
	if err != nil {
		return fmt.Errorf("filter transfers [%d,%d]: %w", from, to, err)
	}

	for _, ev := range events {
		if err := u.processEvent(ctx, ev, byAddress); err != nil {
			// Leave the cursor where it is; the window is rescanned and
			// already-recorded events are deduped.
			return fmt.Errorf("process transfer %s: %w", ev.TxHash, err)
		}
	}

	if err := u.settings.SetInt64(ctx, repositories.SettingLastSyncedBlock, to); err != nil {
		return fmt.Errorf("advance sync cursor: %w", err)
	}

	if len(events) > 0 {
		logger.Info(ctx, "sync window complete",
			zap.Int64("from", from), zap.Int64("to", to),
			zap.Int("events", len(events)))
	}
	return nil
}

func (u *BlockchainSyncUsecase) processEvent(ctx context.Context, ev blockchain.TransferEvent, byAddress map[string]*entities.Wallet) error {
	toWallet := byAddress[strings.ToLower(ev.To)]
	fromWallet := byAddress[strings.ToLower(ev.From)]
	if toWallet == nil && fromWallet == nil {
		return nil
	}

	existing, err := u.txs.GetByHash(ctx, ev.TxHash, ev.From, ev.To)
	if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
		return fmt.Errorf("dedup check: %w", err)
	}
	if existing != nil {
		// Recorded by an earlier pass. A record still in flight gets its
		// confirmation job re-armed; the idempotency key collapses the
		// duplicate while the original job is still waiting to run.
		if existing.Status == entities.TxStatusPending {
			if _, err := u.pipeline.TxConfirm.Enqueue(ctx, TxConfirmJobPayload{TransactionID: existing.ID}, 0,
				idemKey(QueueTxConfirm, existing.ID, existing.CreatedAt)); err != nil {
				return fmt.Errorf("re-enqueue confirmation job: %w", err)
			}
		}
		return nil
	}

	rec := &entities.OnchainTransaction{
		TxHash:      ev.TxHash,
		Chain:       u.chainName,
		BlockNumber: int64(ev.BlockNumber),
		FromAddress: ev.From,
		ToAddress:   ev.To,
		Amount:      ev.Amount,
		TokenType:   u.tokenType,
		Status:      entities.TxStatusPending,
	}
	if toWallet != nil {
		rec.Direction = entities.TxDirectionIn
		rec.WalletID = &toWallet.ID
	} else {
		rec.Direction = entities.TxDirectionOut
		rec.WalletID = &fromWallet.ID
	}

	if blockTime, err := u.chain.BlockTime(ctx, ev.BlockNumber); err == nil {
		rec.BlockTime = &blockTime
	}

	err = u.uow.Do(ctx, func(txCtx context.Context) error {
		if toWallet != nil && toWallet.Type == entities.WalletTypeDeposit {
			order, err := u.matchTopup(txCtx, toWallet.Address, ev.Amount)
			if err != nil {
				return err
			}
			if order != nil {
				paid, err := u.topups.MarkPaid(txCtx, order.ID, ev.TxHash)
				if err != nil {
					return fmt.Errorf("mark topup paid: %w", err)
				}
				if paid {
					rec.TopupOrderID = &order.ID
				}
			}
		}

		if err := u.txs.Create(txCtx, rec); err != nil {
			return err
		}
		if toWallet != nil {
			if err := u.wallets.AdjustBalance(txCtx, toWallet.ID, ev.Amount); err != nil {
				return err
			}
		}
		if fromWallet != nil {
			if err := u.wallets.AdjustBalance(txCtx, fromWallet.ID, ev.Amount.Neg()); err != nil {
				// An out-of-band drain past the recorded balance is an
				// operator problem, not a reason to wedge the window.
				if !errors.Is(err, domainerrors.ErrInsufficientFunds) {
					return err
				}
				logger.Error(ctx, "outgoing transfer exceeds recorded balance",
					zap.String("tx_hash", ev.TxHash),
					zap.String("wallet", ev.From),
					zap.String("amount", ev.Amount.String()))
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			// Lost a race with a concurrent scan of the same window.
			return nil
		}
		return err
	}

	for _, w := range []*entities.Wallet{toWallet, fromWallet} {
		if w == nil {
			continue
		}
		if err := u.wallets.TouchLastSync(ctx, w.ID); err != nil {
			logger.Warn(ctx, "touch wallet sync time",
				zap.String("wallet_id", w.ID.String()), zap.Error(err))
		}
	}

	if _, err := u.pipeline.TxConfirm.Enqueue(ctx, TxConfirmJobPayload{TransactionID: rec.ID}, 0,
		idemKey(QueueTxConfirm, rec.ID, rec.CreatedAt)); err != nil {
		return fmt.Errorf("enqueue confirmation job: %w", err)
	}

	logger.Info(ctx, "transfer observed",
		zap.String("tx_hash", ev.TxHash),
		zap.String("direction", string(rec.Direction)),
		zap.String("amount", ev.Amount.String()))
	return nil
}

// matchTopup finds the open order expecting a deposit on the address and
// checks the received amount against it within the configured tolerance.
// An off-amount deposit is still recorded and credited, it just does not
// move any order to PAID.
func (u *BlockchainSyncUsecase) matchTopup(ctx context.Context, address string, amount decimal.Decimal) (*entities.TopupOrder, error) {
	order, err := u.topups.FindOpenByDepositAddress(ctx, address)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open topup: %w", err)
	}

	deviation := amount.Sub(order.TokenAmount).Abs()
	if deviation.GreaterThan(order.TokenAmount.Mul(u.tolerance)) {
		logger.Warn(ctx, "deposit amount outside tolerance",
			zap.String("order_no", order.OrderNo),
			zap.String("expected", order.TokenAmount.String()),
			zap.String("received", amount.String()))
		return nil, nil
	}
	return order, nil
}
