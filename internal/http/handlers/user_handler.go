package handlers

import (
	"strconv"

	"github.com/freelance-market/backend/internal/http/dto"
	"github.com/freelance-market/backend/internal/middleware"
	"github.com/freelance-market/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type UserHandler struct {
	userRepo   *repositories.UserRepo
	ledgerRepo *repositories.LedgerRepo
	log        *zap.Logger
}

func NewUserHandler(userRepo *repositories.UserRepo, ledgerRepo *repositories.LedgerRepo, log *zap.Logger) *UserHandler {
	return &UserHandler{userRepo: userRepo, ledgerRepo: ledgerRepo, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	user, err := h.userRepo.GetByID(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}

// GetLedger returns the caller's balance history, newest first.
func (h *UserHandler) GetLedger(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, err := h.ledgerRepo.ListByUser(c.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error("list ledger failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}

func (h *UserHandler) Ping(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if err := h.userRepo.UpdateLastActive(c.Context(), userID); err != nil {
		h.log.Error("failed to update last_active", zap.Error(err))
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
