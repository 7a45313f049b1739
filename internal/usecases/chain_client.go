package usecases

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"settle-gate.backend/internal/infrastructure/blockchain"
)

// ChainClient is the chain surface the pipeline consumes. The EVM client in
// infrastructure/blockchain implements it; tests substitute a fake.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, blockNumber uint64) (time.Time, error)
	FilterTokenTransfers(ctx context.Context, fromBlock, toBlock uint64, addresses []string) ([]blockchain.TransferEvent, error)
	TransactionByHash(ctx context.Context, txHash string) (exists bool, pending bool, err error)
	TransactionReceipt(ctx context.Context, txHash string) (*blockchain.Receipt, error)
	SendTokenTransfer(ctx context.Context, toAddress string, amount decimal.Decimal) (string, error)
}
