package handlers

import (
	"strconv"

	"github.com/freelance-market/backend/internal/http/dto"
	"github.com/freelance-market/backend/internal/middleware"
	"github.com/freelance-market/backend/internal/repositories"
	"github.com/freelance-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type JobHandler struct {
	jobService *services.JobService
	log        *zap.Logger
}

func NewJobHandler(jobService *services.JobService, log *zap.Logger) *JobHandler {
	return &JobHandler{jobService: jobService, log: log}
}

func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	var req dto.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	budget, err := decimal.NewFromString(req.Budget)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid budget"})
	}

	ownerID := middleware.GetUserID(c)
	job, err := h.jobService.CreateJob(c.Context(), ownerID, req.Title, req.Description, req.ExperienceLevel, budget)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: job})
}

func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job id"})
	}

	job, err := h.jobService.GetJob(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: job})
}

func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	filter := repositories.JobFilter{Limit: 20, Offset: 0}

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
	if v := c.Query("q"); v != "" {
		filter.Keyword = &v
	}
	if v := c.Query("experience_level"); v != "" {
		filter.ExperienceLevel = &v
	}
	if v := c.Query("mine"); v == "true" {
		ownerID := middleware.GetUserID(c)
		filter.OwnerID = &ownerID
	}

	jobs, err := h.jobService.ListJobs(c.Context(), filter)
	if err != nil {
		h.log.Error("list jobs failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: jobs})
}

func (h *JobHandler) DeleteJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job id"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.jobService.DeleteJob(c.Context(), actorID, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
