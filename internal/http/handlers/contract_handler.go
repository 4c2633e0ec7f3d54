package handlers

import (
	"strconv"
	"time"

	"github.com/freelance-market/backend/internal/http/dto"
	"github.com/freelance-market/backend/internal/middleware"
	"github.com/freelance-market/backend/internal/models"
	"github.com/freelance-market/backend/internal/repositories"
	"github.com/freelance-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ContractHandler struct {
	settlement   *services.SettlementService
	contractRepo *repositories.ContractRepo
	escrowRepo   *repositories.EscrowRepo
	workRepo     *repositories.WorkRepo
	log          *zap.Logger
}

func NewContractHandler(
	settlement *services.SettlementService,
	contractRepo *repositories.ContractRepo,
	escrowRepo *repositories.EscrowRepo,
	workRepo *repositories.WorkRepo,
	log *zap.Logger,
) *ContractHandler {
	return &ContractHandler{
		settlement:   settlement,
		contractRepo: contractRepo,
		escrowRepo:   escrowRepo,
		workRepo:     workRepo,
		log:          log,
	}
}

func (h *ContractHandler) CreateContract(c *fiber.Ctx) error {
	var req dto.CreateContractRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job_id"})
	}
	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid worker_id"})
	}
	budget, err := decimal.NewFromString(req.Budget)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid budget"})
	}
	if req.Deadline.IsZero() || req.Deadline.Before(time.Now()) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "deadline must be in the future"})
	}

	principal := middleware.GetUserID(c)
	contract, err := h.settlement.CreateContract(c.Context(), principal, jobID, workerID, budget, req.Deadline)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: contract})
}

func (h *ContractHandler) RespondToContract(c *fiber.Ctx) error {
	contractID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid contract id"})
	}

	var req dto.RespondContractRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	principal := middleware.GetUserID(c)
	if err := h.settlement.RespondToContract(c.Context(), principal, contractID, req.Decision); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *ContractHandler) SubmitWork(c *fiber.Ctx) error {
	contractID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid contract id"})
	}

	var req dto.SubmitWorkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	var attachmentID *uuid.UUID
	if req.AttachmentID != nil {
		id, err := uuid.Parse(*req.AttachmentID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid attachment_id"})
		}
		attachmentID = &id
	}

	principal := middleware.GetUserID(c)
	work, err := h.settlement.SubmitWork(c.Context(), principal, contractID, req.Comment, attachmentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: work})
}

func (h *ContractHandler) CloseContract(c *fiber.Ctx) error {
	contractID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid contract id"})
	}

	principal := middleware.GetUserID(c)
	if err := h.settlement.CloseContract(c.Context(), principal, contractID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *ContractHandler) GetContract(c *fiber.Ctx) error {
	contractID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid contract id"})
	}

	contract, err := h.contractRepo.GetByID(c.Context(), contractID)
	if err != nil {
		return respondError(c, err)
	}

	payload := fiber.Map{"contract": contract}
	// The employer evaluates the newest submission when deciding to close.
	if latest, err := h.workRepo.GetLatestByContract(c.Context(), contractID); err == nil {
		payload["latest_work"] = latest
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payload})
}

func (h *ContractHandler) ListContracts(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	filter := repositories.ContractFilter{Limit: 20, Offset: 0}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		st := models.ContractStatus(v)
		filter.Status = &st
	}

	// A freelancer sees contracts where they are the worker; an employer
	// the contracts on their jobs.
	if middleware.GetUserType(c) == models.UserTypeFreelancer {
		filter.WorkerID = &userID
	} else {
		filter.EmployerID = &userID
	}

	contracts, err := h.contractRepo.ListWithJob(c.Context(), filter)
	if err != nil {
		h.log.Error("list contracts failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: contracts})
}

func (h *ContractHandler) GetEscrow(c *fiber.Ctx) error {
	contractID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid contract id"})
	}

	escrow, err := h.escrowRepo.GetByContractID(c.Context(), contractID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *ContractHandler) ListWork(c *fiber.Ctx) error {
	contractID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid contract id"})
	}

	works, err := h.workRepo.ListByContract(c.Context(), contractID)
	if err != nil {
		h.log.Error("list work failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: works})
}
