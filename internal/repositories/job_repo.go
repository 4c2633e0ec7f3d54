package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO jobs (owner_id, title, description, experience_level, budget)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, j.OwnerID, j.Title, j.Description, j.ExperienceLevel, j.Budget).Scan(&j.ID, &j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return r.scanOne(r.pool.QueryRow(ctx, jobSelect+` WHERE id = $1 AND deleted_at IS NULL`, id))
}

// GetTx reads a job inside the caller's transaction.
func (r *JobRepo) GetTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return r.scanOne(tx.QueryRow(ctx, jobSelect+` WHERE id = $1 AND deleted_at IS NULL`, id))
}

const jobSelect = `
	SELECT id, owner_id, title, description, experience_level, budget, created_at
	FROM jobs`

func (r *JobRepo) scanOne(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.OwnerID, &j.Title, &j.Description, &j.ExperienceLevel, &j.Budget, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

type JobFilter struct {
	OwnerID         *uuid.UUID
	Keyword         *string
	ExperienceLevel *string
	Limit           int
	Offset          int
}

func (r *JobRepo) List(ctx context.Context, f JobFilter) ([]models.Job, error) {
	query := jobSelect
	args := []any{}
	argIdx := 1
	where := []string{"deleted_at IS NULL"}

	if f.OwnerID != nil {
		where = append(where, fmt.Sprintf("owner_id = $%d", argIdx))
		args = append(args, *f.OwnerID)
		argIdx++
	}
	if f.Keyword != nil && *f.Keyword != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+*f.Keyword+"%")
		argIdx++
	}
	if f.ExperienceLevel != nil {
		where = append(where, fmt.Sprintf("experience_level = $%d", argIdx))
		args = append(args, *f.ExperienceLevel)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.OwnerID, &j.Title, &j.Description, &j.ExperienceLevel, &j.Budget, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Delete soft-deletes the posting. The row stays so contracts retained for
// audit, rejected ones included, keep a valid reference.
func (r *JobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
