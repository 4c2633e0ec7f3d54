package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freelance-market/backend/internal/config"
	"github.com/freelance-market/backend/internal/db"
	"github.com/freelance-market/backend/internal/events"
	apphttp "github.com/freelance-market/backend/internal/http"
	"github.com/freelance-market/backend/internal/http/handlers"
	"github.com/freelance-market/backend/internal/repositories"
	"github.com/freelance-market/backend/internal/services"
	"github.com/freelance-market/backend/internal/storage"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// File storage
	fileStore, err := storage.NewLocalStore(cfg.UploadDir, log)
	if err != nil {
		log.Fatal("failed to init file storage", zap.Error(err))
	}

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	jobRepo := repositories.NewJobRepo(pool)
	proposalRepo := repositories.NewProposalRepo(pool)
	contractRepo := repositories.NewContractRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	ledgerRepo := repositories.NewLedgerRepo(pool)
	workRepo := repositories.NewWorkRepo(pool)
	depositRepo := repositories.NewDepositRepo(pool)
	fileRepo := repositories.NewFileRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	txRunner := services.NewPgxTxRunner(pool, cfg.TxMaxAttempts, 50*time.Millisecond, cfg.TxOpTimeout, log)
	gateway := services.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey, log)
	settlementService := services.NewSettlementService(
		txRunner, contractRepo, escrowRepo, ledgerRepo,
		jobRepo, userRepo, proposalRepo, workRepo, auditRepo,
		publisher, log,
	)
	jobService := services.NewJobService(jobRepo, contractRepo, userRepo, auditRepo, log)
	proposalService := services.NewProposalService(proposalRepo, jobRepo, userRepo, log)
	paymentService := services.NewPaymentService(txRunner, depositRepo, userRepo, ledgerRepo, gateway, cfg.GatewayCallbackURL, publisher, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, cfg, log)
	userHandler := handlers.NewUserHandler(userRepo, ledgerRepo, log)
	jobHandler := handlers.NewJobHandler(jobService, log)
	proposalHandler := handlers.NewProposalHandler(proposalService, log)
	contractHandler := handlers.NewContractHandler(settlementService, contractRepo, escrowRepo, workRepo, log)
	paymentHandler := handlers.NewPaymentHandler(paymentService, log)
	fileHandler := handlers.NewFileHandler(fileRepo, fileStore, cfg.MaxUploadSize, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.MaxUploadSize) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, userHandler, jobHandler, proposalHandler, contractHandler, paymentHandler, fileHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
