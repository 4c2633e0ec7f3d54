package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freelance-market/backend/internal/config"
	"github.com/freelance-market/backend/internal/db"
	"github.com/freelance-market/backend/internal/events"
	"github.com/freelance-market/backend/internal/repositories"
	"github.com/freelance-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	userRepo := repositories.NewUserRepo(pool)
	jobRepo := repositories.NewJobRepo(pool)
	proposalRepo := repositories.NewProposalRepo(pool)
	contractRepo := repositories.NewContractRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	ledgerRepo := repositories.NewLedgerRepo(pool)
	workRepo := repositories.NewWorkRepo(pool)
	depositRepo := repositories.NewDepositRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	txRunner := services.NewPgxTxRunner(pool, cfg.TxMaxAttempts, 50*time.Millisecond, cfg.TxOpTimeout, log)
	gateway := services.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey, log)
	settlementService := services.NewSettlementService(
		txRunner, contractRepo, escrowRepo, ledgerRepo,
		jobRepo, userRepo, proposalRepo, workRepo, auditRepo,
		publisher, log,
	)
	paymentService := services.NewPaymentService(txRunner, depositRepo, userRepo, ledgerRepo, gateway, cfg.GatewayCallbackURL, publisher, log)

	// Liveness endpoint for the orchestrator.
	health := fiber.New(fiber.Config{DisableStartupMessage: true})
	health.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	go func() {
		if err := health.Listen(":" + cfg.WorkerPort); err != nil {
			log.Error("health server stopped", zap.Error(err))
		}
	}()

	log.Info("worker started", zap.String("port", cfg.WorkerPort))

	expireTicker := time.NewTicker(cfg.ContractExpireInterval)
	verifyTicker := time.NewTicker(cfg.DepositVerifyInterval)
	defer expireTicker.Stop()
	defer verifyTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-expireTicker.C:
			n, err := settlementService.ExpireOverdueContracts(ctx, cfg.ExpireBatchSize)
			if err != nil {
				log.Error("expire pass failed", zap.Error(err))
			}
			if n > 0 {
				log.Info("expired overdue contracts", zap.Int("count", n))
			}
		case <-verifyTicker.C:
			// Catches deposits whose redirect callback never arrived.
			paymentService.VerifyPending(ctx, cfg.ExpireBatchSize)
		case <-sigCh:
			log.Info("shutting down worker")
			_ = health.Shutdown()
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
