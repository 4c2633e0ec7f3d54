package services

import (
	"context"
	"fmt"

	"github.com/freelance-market/backend/internal/models"
	"github.com/freelance-market/backend/internal/rbac"
	"github.com/freelance-market/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type JobRegistry interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, f repositories.JobFilter) ([]models.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ContractReader interface {
	ExistsNonRejectedForJob(ctx context.Context, jobID uuid.UUID) (bool, error)
}

type AuditWriter interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type JobService struct {
	jobRepo      JobRegistry
	contractRepo ContractReader
	userRepo     UserReader
	auditRepo    AuditWriter
	log          *zap.Logger
}

func NewJobService(
	jobRepo JobRegistry,
	contractRepo ContractReader,
	userRepo UserReader,
	auditRepo AuditWriter,
	log *zap.Logger,
) *JobService {
	return &JobService{jobRepo: jobRepo, contractRepo: contractRepo, userRepo: userRepo, auditRepo: auditRepo, log: log}
}

func (s *JobService) CreateJob(ctx context.Context, ownerID uuid.UUID, title, description, experienceLevel string, budget decimal.Decimal) (*models.Job, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if !models.IsValidExperienceLevel(experienceLevel) {
		return nil, fmt.Errorf("%w: invalid experience level %q, must be one of: entry, intermediate, expert", models.ErrValidation, experienceLevel)
	}
	if budget.Sign() <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive", models.ErrValidation)
	}

	owner, err := s.userRepo.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !rbac.HasPermission(owner.UserType, rbac.PermPostJob) {
		return nil, models.ErrUnauthorized
	}

	job := &models.Job{
		OwnerID:         ownerID,
		Title:           title,
		Description:     description,
		ExperienceLevel: experienceLevel,
		Budget:          budget,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &ownerID,
		ActorType:   "user",
		Action:      "job_posted",
		EntityType:  "job",
		EntityID:    &job.ID,
		Meta:        map[string]any{"title": title, "budget": budget.String()},
	})

	return job, nil
}

// DeleteJob removes a posting. Disallowed once any non-rejected contract
// references the job.
func (s *JobService) DeleteJob(ctx context.Context, actorID, jobID uuid.UUID) error {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OwnerID != actorID {
		return models.ErrUnauthorized
	}

	referenced, err := s.contractRepo.ExistsNonRejectedForJob(ctx, jobID)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: job has an open contract", models.ErrInvalidTransition)
	}

	if err := s.jobRepo.Delete(ctx, jobID); err != nil {
		return err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   "user",
		Action:      "job_deleted",
		EntityType:  "job",
		EntityID:    &jobID,
	})
	return nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.jobRepo.GetByID(ctx, id)
}

func (s *JobService) ListJobs(ctx context.Context, f repositories.JobFilter) ([]models.Job, error) {
	return s.jobRepo.List(ctx, f)
}
