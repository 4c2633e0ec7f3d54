package handlers

import (
	"github.com/freelance-market/backend/internal/http/dto"
	"github.com/freelance-market/backend/internal/middleware"
	"github.com/freelance-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	log            *zap.Logger
}

func NewPaymentHandler(paymentService *services.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, log: log}
}

func (h *PaymentHandler) InitiateDeposit(c *fiber.Ctx) error {
	var req dto.InitiateDepositRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid amount"})
	}

	userID := middleware.GetUserID(c)
	checkoutURL, ref, err := h.paymentService.InitiateDeposit(c.Context(), userID, amount)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.DepositResponse{CheckoutURL: checkoutURL, Reference: ref})
}

// VerifyDeposit is the gateway redirect target. The reference arrives as a
// query parameter; crediting is idempotent so replays are harmless.
func (h *PaymentHandler) VerifyDeposit(c *fiber.Ctx) error {
	ref := c.Query("reference")
	if ref == "" {
		ref = c.Query("trxref")
	}
	if ref == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reference is required"})
	}

	settled, err := h.paymentService.VerifyDeposit(c.Context(), ref)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"settled": settled}})
}
