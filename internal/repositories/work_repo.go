package repositories

import (
	"context"
	"errors"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WorkRepo struct {
	pool *pgxpool.Pool
}

func NewWorkRepo(pool *pgxpool.Pool) *WorkRepo {
	return &WorkRepo{pool: pool}
}

// CreateTx appends a work submission inside the caller's transaction.
func (r *WorkRepo) CreateTx(ctx context.Context, tx pgx.Tx, w *models.Work) error {
	return tx.QueryRow(ctx, `
		INSERT INTO work_submissions (contract_id, comment, attachment_id)
		VALUES ($1, $2, $3)
		RETURNING id, submitted_at
	`, w.ContractID, w.Comment, w.AttachmentID).Scan(&w.ID, &w.SubmittedAt)
}

// GetLatestByContract returns the most recent submission; only the latest
// matters for closure.
func (r *WorkRepo) GetLatestByContract(ctx context.Context, contractID uuid.UUID) (*models.Work, error) {
	var w models.Work
	err := r.pool.QueryRow(ctx, `
		SELECT id, contract_id, comment, attachment_id, submitted_at
		FROM work_submissions WHERE contract_id = $1
		ORDER BY submitted_at DESC LIMIT 1
	`, contractID).Scan(&w.ID, &w.ContractID, &w.Comment, &w.AttachmentID, &w.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WorkRepo) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.Work, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, contract_id, comment, attachment_id, submitted_at
		FROM work_submissions WHERE contract_id = $1
		ORDER BY submitted_at DESC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var works []models.Work
	for rows.Next() {
		var w models.Work
		if err := rows.Scan(&w.ID, &w.ContractID, &w.Comment, &w.AttachmentID, &w.SubmittedAt); err != nil {
			return nil, err
		}
		works = append(works, w)
	}
	return works, rows.Err()
}
