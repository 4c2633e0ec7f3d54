package services

import (
	"context"
	"fmt"

	"github.com/freelance-market/backend/internal/models"
	"github.com/freelance-market/backend/internal/rbac"
	"github.com/freelance-market/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProposalService struct {
	proposalRepo *repositories.ProposalRepo
	jobRepo      *repositories.JobRepo
	userRepo     *repositories.UserRepo
	log          *zap.Logger
}

func NewProposalService(
	proposalRepo *repositories.ProposalRepo,
	jobRepo *repositories.JobRepo,
	userRepo *repositories.UserRepo,
	log *zap.Logger,
) *ProposalService {
	return &ProposalService{proposalRepo: proposalRepo, jobRepo: jobRepo, userRepo: userRepo, log: log}
}

// SendProposal lets a freelancer pitch for a job, optionally with an
// attachment. One active proposal per (job, worker).
func (s *ProposalService) SendProposal(ctx context.Context, workerID, jobID uuid.UUID, content string, attachmentID *uuid.UUID) (*models.Proposal, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", models.ErrValidation)
	}

	worker, err := s.userRepo.GetByID(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if !rbac.HasPermission(worker.UserType, rbac.PermSendProposal) {
		return nil, models.ErrUnauthorized
	}

	if _, err := s.jobRepo.GetByID(ctx, jobID); err != nil {
		return nil, err
	}

	p := &models.Proposal{
		JobID:        jobID,
		WorkerID:     workerID,
		Content:      content,
		AttachmentID: attachmentID,
	}
	if err := s.proposalRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListJobProposals returns proposals for a job; only the job owner may read them.
func (s *ProposalService) ListJobProposals(ctx context.Context, actorID, jobID uuid.UUID) ([]models.Proposal, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != actorID {
		return nil, models.ErrUnauthorized
	}
	return s.proposalRepo.ListByJob(ctx, jobID)
}

func (s *ProposalService) ListMyProposals(ctx context.Context, workerID uuid.UUID) ([]models.ProposalWithJob, error) {
	return s.proposalRepo.ListByWorker(ctx, workerID)
}
