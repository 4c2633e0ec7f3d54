package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ContractRepo struct {
	pool *pgxpool.Pool
}

func NewContractRepo(pool *pgxpool.Pool) *ContractRepo {
	return &ContractRepo{pool: pool}
}

// CreateTx inserts a contract in its initial status. The partial unique index
// on (job_id, worker_id) WHERE status <> 'rejected' closes the
// check-then-insert race; a violation surfaces as ErrDuplicateContract.
func (r *ContractRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.Contract) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO contracts (job_id, worker_id, budget, deadline, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, c.JobID, c.WorkerID, c.Budget, c.Deadline, c.Status).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateContract
	}
	return err
}

func (r *ContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return r.get(ctx, r.pool, id, false)
}

// GetByIDForUpdate locks the contract row for the duration of tx, so the
// guard evaluated on the returned status holds until commit.
func (r *ContractRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error) {
	return r.get(ctx, tx, id, true)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *ContractRepo) get(ctx context.Context, q rowQuerier, id uuid.UUID, forUpdate bool) (*models.Contract, error) {
	query := `
		SELECT id, job_id, worker_id, budget, deadline, status, created_at, updated_at
		FROM contracts WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var c models.Contract
	err := q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.JobID, &c.WorkerID, &c.Budget, &c.Deadline, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateStatusTx moves a contract from one expected status to another. The
// WHERE clause re-checks the source status so a lost race shows up as zero
// rows affected rather than a silent overwrite.
func (r *ContractRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to models.ContractStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE contracts SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidTransition
	}
	return nil
}

// ListOverdueAccepted returns ids of accepted contracts whose deadline has
// passed. Candidates only: the expiry transition re-checks under a row lock.
func (r *ContractRepo) ListOverdueAccepted(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM contracts
		WHERE status = $1 AND deadline < $2
		ORDER BY deadline ASC LIMIT $3
	`, models.ContractStatusAccepted, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExistsNonRejectedForJob reports whether any contract other than a rejected
// one references the job. Used to block job deletion.
func (r *ContractRepo) ExistsNonRejectedForJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM contracts WHERE job_id = $1 AND status <> $2)
	`, jobID, models.ContractStatusRejected).Scan(&exists)
	return exists, err
}

type ContractFilter struct {
	WorkerID   *uuid.UUID
	EmployerID *uuid.UUID // through jobs.owner_id
	Status     *models.ContractStatus
	Limit      int
	Offset     int
}

func (r *ContractRepo) ListWithJob(ctx context.Context, f ContractFilter) ([]models.ContractWithJob, error) {
	query := `
		SELECT c.id, c.job_id, c.worker_id, c.budget, c.deadline, c.status, c.created_at, c.updated_at,
		       j.title, j.owner_id
		FROM contracts c
		JOIN jobs j ON j.id = c.job_id
	`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.WorkerID != nil {
		where = append(where, fmt.Sprintf("c.worker_id = $%d", argIdx))
		args = append(args, *f.WorkerID)
		argIdx++
	}
	if f.EmployerID != nil {
		where = append(where, fmt.Sprintf("j.owner_id = $%d", argIdx))
		args = append(args, *f.EmployerID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("c.status = $%d", argIdx))
		args = append(args, *f.Status)
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
	query += fmt.Sprintf(" ORDER BY c.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []models.ContractWithJob
	for rows.Next() {
		var c models.ContractWithJob
		if err := rows.Scan(&c.ID, &c.JobID, &c.WorkerID, &c.Budget, &c.Deadline, &c.Status,
			&c.CreatedAt, &c.UpdatedAt, &c.JobTitle, &c.EmployerID); err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
