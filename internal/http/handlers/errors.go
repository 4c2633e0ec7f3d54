package handlers

import (
	"errors"

	"github.com/freelance-market/backend/internal/http/dto"
	"github.com/freelance-market/backend/internal/models"
	"github.com/freelance-market/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
)

// respondError maps the settlement error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is a 500 with the detail kept server-side.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, models.ErrValidation):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		status, msg = fiber.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrUnauthorized):
		status, msg = fiber.StatusForbidden, err.Error()
	case errors.Is(err, models.ErrInsufficientFunds):
		status, msg = fiber.StatusPaymentRequired, err.Error()
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrDuplicateContract),
		errors.Is(err, models.ErrDuplicateEscrow),
		errors.Is(err, models.ErrDuplicateProposal),
		errors.Is(err, models.ErrAlreadyDisposed):
		status, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, repositories.ErrEmailTaken):
		status, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, models.ErrTransientStore):
		status, msg = fiber.StatusServiceUnavailable, "temporarily unavailable, retry"
	}

	return c.Status(status).JSON(dto.ErrorResponse{Error: msg})
}
