package usecases

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"settle-gate.backend/internal/domain/entities"
	domainerrors "settle-gate.backend/internal/domain/errors"
	"settle-gate.backend/internal/domain/repositories"
	"settle-gate.backend/internal/infrastructure/blockchain"
	"settle-gate.backend/internal/infrastructure/models"
	infraRepos "settle-gate.backend/internal/infrastructure/repositories"
)

// testEnv wires real sqlite-backed repositories with fake chain and queue
// collaborators.
type testEnv struct {
	db          *gorm.DB
	wallets     *infraRepos.WalletRepository
	txs         *infraRepos.OnchainTransactionRepository
	topups      *infraRepos.TopupOrderRepository
	settlements *infraRepos.SettlementOrderRepository
	callbacks   *infraRepos.CallbackRepository
	settings    *infraRepos.SettingsRepository
	uow         repositories.UnitOfWork
	chain       *fakeChain
	pipeline    *Pipeline
	settlementQ *fakeEnqueuer
	txConfirmQ  *fakeEnqueuer
	callbackQ   *fakeEnqueuer
	notifier    *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Wallet{},
		&models.OnchainTransaction{},
		&models.TopupOrder{},
		&models.SettlementOrder{},
		&models.MerchantCallback{},
		&models.Setting{},
	))

	settlementQ := &fakeEnqueuer{}
	txConfirmQ := &fakeEnqueuer{}
	callbackQ := &fakeEnqueuer{}

	return &testEnv{
		db:          db,
		wallets:     infraRepos.NewWalletRepository(db),
		txs:         infraRepos.NewOnchainTransactionRepository(db),
		topups:      infraRepos.NewTopupOrderRepository(db),
		settlements: infraRepos.NewSettlementOrderRepository(db),
		callbacks:   infraRepos.NewCallbackRepository(db),
		settings:    infraRepos.NewSettingsRepository(db),
		uow:         infraRepos.NewUnitOfWork(db),
		chain:       newFakeChain(),
		pipeline: &Pipeline{
			Settlement: settlementQ,
			TxConfirm:  txConfirmQ,
			Callback:   callbackQ,
		},
		settlementQ: settlementQ,
		txConfirmQ:  txConfirmQ,
		callbackQ:   callbackQ,
		notifier:    &recordingNotifier{},
	}
}

// fakeChain is an in-memory ChainClient.
type fakeChain struct {
	mu sync.Mutex

	head      uint64
	headErr   error
	events    []blockchain.TransferEvent
	filterErr error

	// txHash -> state
	known    map[string]bool
	pending  map[string]bool
	receipts map[string]*blockchain.Receipt

	sendHash string
	sendErr  error
	sends    []sendCall

	calls int
}

type sendCall struct {
	To     string
	Amount decimal.Decimal
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		known:    make(map[string]bool),
		pending:  make(map[string]bool),
		receipts: make(map[string]*blockchain.Receipt),
		sendHash: "0xsubmitted",
	}
}

// mine registers a hash as mined with a successful receipt at the block.
func (c *fakeChain) mine(txHash string, block uint64, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[txHash] = true
	c.receipts[txHash] = &blockchain.Receipt{BlockNumber: block, Success: success}
}

func (c *fakeChain) markPending(txHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[txHash] = true
	c.pending[txHash] = true
}

func (c *fakeChain) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.head, c.headErr
}

func (c *fakeChain) BlockTime(_ context.Context, blockNumber uint64) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return time.Unix(int64(1700000000+blockNumber*12), 0).UTC(), nil
}

func (c *fakeChain) FilterTokenTransfers(_ context.Context, fromBlock, toBlock uint64, _ []string) ([]blockchain.TransferEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.filterErr != nil {
		return nil, c.filterErr
	}
	var out []blockchain.TransferEvent
	for _, ev := range c.events {
		if ev.BlockNumber >= fromBlock && ev.BlockNumber <= toBlock {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *fakeChain) TransactionByHash(_ context.Context, txHash string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.known[txHash], c.pending[txHash], nil
}

func (c *fakeChain) TransactionReceipt(_ context.Context, txHash string) (*blockchain.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	r, ok := c.receipts[txHash]
	if !ok {
		return nil, domainerrors.ErrTxNotFound
	}
	return r, nil
}

func (c *fakeChain) SendTokenTransfer(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sends = append(c.sends, sendCall{To: to, Amount: amount})
	return c.sendHash, nil
}

func (c *fakeChain) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

func (c *fakeChain) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeEnqueuer records enqueued jobs instead of touching Redis.
type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueuedJob
	fail error
}

type enqueuedJob struct {
	Payload interface{}
	Delay   time.Duration
	IdemKey string
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, payload interface{}, delay time.Duration, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.jobs = append(f.jobs, enqueuedJob{Payload: payload, Delay: delay, IdemKey: idempotencyKey})
	return uuid.NewString(), nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *fakeEnqueuer) last() enqueuedJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[len(f.jobs)-1]
}

// recordingNotifier captures Notify calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	MerchantID uuid.UUID
	OrderType  entities.CallbackOrderType
	OrderID    uuid.UUID
	URL        string
	Payload    interface{}
}

func (n *recordingNotifier) Notify(_ context.Context, merchantID uuid.UUID, orderType entities.CallbackOrderType, orderID uuid.UUID, url string, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{
		MerchantID: merchantID,
		OrderType:  orderType,
		OrderID:    orderID,
		URL:        url,
		Payload:    payload,
	})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *recordingNotifier) last() notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}
