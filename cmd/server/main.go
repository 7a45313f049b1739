package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"settle-gate.backend/internal/config"
	"settle-gate.backend/internal/infrastructure/blockchain"
	"settle-gate.backend/internal/infrastructure/jobs"
	"settle-gate.backend/internal/infrastructure/queue"
	"settle-gate.backend/internal/infrastructure/repositories"
	"settle-gate.backend/internal/interfaces/http/handlers"
	"settle-gate.backend/internal/usecases"
	"settle-gate.backend/pkg/lock"
	"settle-gate.backend/pkg/logger"
	"settle-gate.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	}
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.Password); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	rdb := redis.GetClient()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	chain, err := blockchain.NewEVMClient(
		cfg.Blockchain.RPCURL,
		cfg.Blockchain.TokenContract,
		int32(cfg.Blockchain.TokenDecimals),
		cfg.Blockchain.OperatorPrivateKey,
	)
	if err != nil {
		return fmt.Errorf("failed to connect chain rpc: %w", err)
	}
	defer chain.Close()

	// Repositories
	walletRepo := repositories.NewWalletRepository(db)
	txRepo := repositories.NewOnchainTransactionRepository(db)
	topupRepo := repositories.NewTopupOrderRepository(db)
	settlementRepo := repositories.NewSettlementOrderRepository(db)
	callbackRepo := repositories.NewCallbackRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)
	uow := repositories.NewUnitOfWork(db)

	// Queues
	queueOpts := []queue.Option{
		queue.WithMaxAttempts(cfg.Queue.MaxAttempts),
		queue.WithBackoffBase(cfg.Queue.BackoffBase),
	}
	settlementQ := queue.New(rdb, usecases.QueueSettlement, queueOpts...)
	txConfirmQ := queue.New(rdb, usecases.QueueTxConfirm, queueOpts...)
	callbackQ := queue.New(rdb, usecases.QueueCallback, queueOpts...)

	pipeline := &usecases.Pipeline{
		Settlement: settlementQ,
		TxConfirm:  txConfirmQ,
		Callback:   callbackQ,
	}

	// Usecases
	callbackUsecase := usecases.NewCallbackUsecase(callbackRepo, pipeline, cfg.Callback.Timeout, cfg.Callback.RetrySchedule)
	settlementUsecase := usecases.NewSettlementUsecase(settlementRepo, walletRepo, txRepo, uow,
		chain, pipeline, callbackUsecase, cfg.Blockchain.ChainName)
	txConfirmUsecase := usecases.NewTxConfirmUsecase(txRepo, topupRepo, settlementRepo, walletRepo,
		uow, chain, pipeline, callbackUsecase,
		cfg.Blockchain.RequiredConfirmations, cfg.Blockchain.ConfirmRecheckDelay)
	syncUsecase := usecases.NewBlockchainSyncUsecase(walletRepo, txRepo, topupRepo, settingsRepo,
		uow, chain, pipeline,
		cfg.Blockchain.ChainName, cfg.Blockchain.TokenType,
		cfg.Blockchain.StartBlock, cfg.Blockchain.SyncWindow, cfg.Blockchain.DepositTolerance)
	expiryUsecase := usecases.NewTopupExpiryUsecase(topupRepo, callbackUsecase)

	// Workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settlementWorker := queue.NewWorker(settlementQ, func(ctx context.Context, job *queue.Job) error {
		var payload usecases.SettlementJobPayload
		if err := decodePayload(job, &payload); err != nil {
			return err
		}
		return settlementUsecase.Settle(ctx, payload.OrderID)
	}, cfg.Queue.Concurrency, cfg.Queue.PollInterval)

	txConfirmWorker := queue.NewWorker(txConfirmQ, func(ctx context.Context, job *queue.Job) error {
		var payload usecases.TxConfirmJobPayload
		if err := decodePayload(job, &payload); err != nil {
			return err
		}
		return txConfirmUsecase.Track(ctx, payload.TransactionID)
	}, cfg.Queue.Concurrency, cfg.Queue.PollInterval)

	callbackWorker := queue.NewWorker(callbackQ, func(ctx context.Context, job *queue.Job) error {
		var payload usecases.CallbackJobPayload
		if err := decodePayload(job, &payload); err != nil {
			return err
		}
		return callbackUsecase.Deliver(ctx, payload.CallbackID)
	}, cfg.Queue.Concurrency, cfg.Queue.PollInterval)

	settlementWorker.Start(ctx)
	txConfirmWorker.Start(ctx)
	callbackWorker.Start(ctx)

	// Scheduled triggers
	locks := lock.NewManager(rdb)
	scheduler := jobs.NewScheduler()
	scheduler.Register("blockchain-sync", cfg.Blockchain.SyncInterval, jobs.BlockchainSync(locks, syncUsecase))
	scheduler.Register("settlement-sweep", cfg.Settlement.SweepInterval, jobs.SettlementSweep(locks, settlementUsecase))
	scheduler.Register("topup-expiry", cfg.Settlement.ExpiryInterval, jobs.TopupExpiry(locks, expiryUsecase))
	scheduler.Register("tx-confirm-sweep", cfg.Blockchain.ConfirmSweepInterval, jobs.TxConfirmSweep(locks, txConfirmUsecase))
	scheduler.Register("callback-sweep", cfg.Callback.SweepInterval, jobs.CallbackSweep(locks, callbackUsecase))
	scheduler.Start(ctx)

	// HTTP surface
	queueHandler := handlers.NewQueueHandler(settlementRepo, txRepo, settlementQ, txConfirmQ, callbackQ)
	r := newRouter(queueHandler, sqlDB)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info(context.Background(), "shutting down")

		scheduler.Stop()
		cancel()
		settlementWorker.Wait()
		txConfirmWorker.Wait()
		callbackWorker.Wait()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(context.Background(), "server shutdown", zap.Error(err))
		}
	}()

	logger.Info(context.Background(), "server starting", zap.String("port", cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
