package repositories

import (
	"context"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProposalRepo struct {
	pool *pgxpool.Pool
}

func NewProposalRepo(pool *pgxpool.Pool) *ProposalRepo {
	return &ProposalRepo{pool: pool}
}

// Create inserts a proposal. (job_id, worker_id) is unique: a worker has at
// most one proposal per job.
func (r *ProposalRepo) Create(ctx context.Context, p *models.Proposal) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO proposals (job_id, worker_id, content, attachment_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sent_at
	`, p.JobID, p.WorkerID, p.Content, p.AttachmentID).Scan(&p.ID, &p.SentAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateProposal
	}
	return err
}

// Exists is the proposal registry's read contract for contract creation.
func (r *ProposalRepo) Exists(ctx context.Context, jobID, workerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM proposals WHERE job_id = $1 AND worker_id = $2)
	`, jobID, workerID).Scan(&exists)
	return exists, err
}

func (r *ProposalRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Proposal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, worker_id, content, attachment_id, sent_at
		FROM proposals WHERE job_id = $1
		ORDER BY sent_at DESC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProposals(rows)
}

func (r *ProposalRepo) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]models.ProposalWithJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.job_id, p.worker_id, p.content, p.attachment_id, p.sent_at, j.title
		FROM proposals p
		JOIN jobs j ON j.id = p.job_id
		WHERE p.worker_id = $1
		ORDER BY p.sent_at DESC
	`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []models.ProposalWithJob
	for rows.Next() {
		var p models.ProposalWithJob
		if err := rows.Scan(&p.ID, &p.JobID, &p.WorkerID, &p.Content, &p.AttachmentID, &p.SentAt, &p.JobTitle); err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

type proposalRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanProposals(rows proposalRows) ([]models.Proposal, error) {
	var proposals []models.Proposal
	for rows.Next() {
		var p models.Proposal
		if err := rows.Scan(&p.ID, &p.JobID, &p.WorkerID, &p.Content, &p.AttachmentID, &p.SentAt); err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}
