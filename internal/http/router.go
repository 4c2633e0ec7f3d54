package http

import (
	"time"

	"github.com/freelance-market/backend/internal/config"
	"github.com/freelance-market/backend/internal/http/handlers"
	"github.com/freelance-market/backend/internal/middleware"
	"github.com/freelance-market/backend/internal/models"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	jobHandler *handlers.JobHandler,
	proposalHandler *handlers.ProposalHandler,
	contractHandler *handlers.ContractHandler,
	paymentHandler *handlers.PaymentHandler,
	fileHandler *handlers.FileHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// Gateway redirect target (public, idempotent)
	api.Get("/payments/verify", paymentHandler.VerifyDeposit)

	// Rate-limited endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// User
	protected.Get("/me", userHandler.GetMe)
	protected.Get("/me/ledger", userHandler.GetLedger)
	protected.Post("/me/ping", userHandler.Ping)

	// Payments
	protected.Post("/payments/deposit", paymentHandler.InitiateDeposit)

	// Jobs
	protected.Post("/jobs", middleware.RequireUserType(models.UserTypeEmployer), jobHandler.CreateJob)
	protected.Get("/jobs", jobHandler.ListJobs)
	protected.Get("/jobs/:id", jobHandler.GetJob)
	protected.Delete("/jobs/:id", jobHandler.DeleteJob)
	protected.Get("/jobs/:id/proposals", proposalHandler.ListJobProposals)

	// Proposals
	protected.Post("/proposals", middleware.RequireUserType(models.UserTypeFreelancer), proposalHandler.SendProposal)
	protected.Get("/proposals/my", proposalHandler.ListMyProposals)

	// Contracts
	protected.Post("/contracts", middleware.RequireUserType(models.UserTypeEmployer), contractHandler.CreateContract)
	protected.Get("/contracts", contractHandler.ListContracts)
	protected.Get("/contracts/:id", contractHandler.GetContract)
	protected.Post("/contracts/:id/respond", middleware.RequireUserType(models.UserTypeFreelancer), contractHandler.RespondToContract)
	protected.Post("/contracts/:id/work", middleware.RequireUserType(models.UserTypeFreelancer), contractHandler.SubmitWork)
	protected.Post("/contracts/:id/close", middleware.RequireUserType(models.UserTypeEmployer), contractHandler.CloseContract)
	protected.Get("/contracts/:id/escrow", contractHandler.GetEscrow)
	protected.Get("/contracts/:id/work", contractHandler.ListWork)

	// Files
	protected.Post("/files", fileHandler.Upload)
	protected.Get("/files/:id", fileHandler.Download)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
