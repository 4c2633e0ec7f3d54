package handlers

import (
	"github.com/freelance-market/backend/internal/http/dto"
	"github.com/freelance-market/backend/internal/middleware"
	"github.com/freelance-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProposalHandler struct {
	proposalService *services.ProposalService
	log             *zap.Logger
}

func NewProposalHandler(proposalService *services.ProposalService, log *zap.Logger) *ProposalHandler {
	return &ProposalHandler{proposalService: proposalService, log: log}
}

func (h *ProposalHandler) SendProposal(c *fiber.Ctx) error {
	var req dto.SendProposalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job_id"})
	}

	var attachmentID *uuid.UUID
	if req.AttachmentID != nil {
		id, err := uuid.Parse(*req.AttachmentID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid attachment_id"})
		}
		attachmentID = &id
	}

	workerID := middleware.GetUserID(c)
	proposal, err := h.proposalService.SendProposal(c.Context(), workerID, jobID, req.Content, attachmentID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: proposal})
}

// ListJobProposals returns proposals for a job; job owner only.
func (h *ProposalHandler) ListJobProposals(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job id"})
	}

	actorID := middleware.GetUserID(c)
	proposals, err := h.proposalService.ListJobProposals(c.Context(), actorID, jobID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: proposals})
}

func (h *ProposalHandler) ListMyProposals(c *fiber.Ctx) error {
	workerID := middleware.GetUserID(c)
	proposals, err := h.proposalService.ListMyProposals(c.Context(), workerID)
	if err != nil {
		h.log.Error("list my proposals failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: proposals})
}
