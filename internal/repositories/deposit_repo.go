package repositories

import (
	"context"
	"errors"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DepositRepo struct {
	pool *pgxpool.Pool
}

func NewDepositRepo(pool *pgxpool.Pool) *DepositRepo {
	return &DepositRepo{pool: pool}
}

func (r *DepositRepo) Create(ctx context.Context, d *models.Deposit) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO deposits (user_id, checkout_ref, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, d.UserID, d.CheckoutRef, d.Amount, d.Status).Scan(&d.ID, &d.CreatedAt)
}

func (r *DepositRepo) GetByRef(ctx context.Context, ref string) (*models.Deposit, error) {
	var d models.Deposit
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, checkout_ref, amount, status, created_at, settled_at
		FROM deposits WHERE checkout_ref = $1
	`, ref).Scan(&d.ID, &d.UserID, &d.CheckoutRef, &d.Amount, &d.Status, &d.CreatedAt, &d.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DepositRepo) ListPending(ctx context.Context, limit int) ([]models.Deposit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, checkout_ref, amount, status, created_at, settled_at
		FROM deposits WHERE status = $1
		ORDER BY created_at ASC LIMIT $2
	`, models.DepositStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []models.Deposit
	for rows.Next() {
		var d models.Deposit
		if err := rows.Scan(&d.ID, &d.UserID, &d.CheckoutRef, &d.Amount, &d.Status, &d.CreatedAt, &d.SettledAt); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// MarkSettledTx flips a pending deposit to settled. Zero rows affected means
// another verification already settled it, which keeps the ledger credit
// exactly-once per checkout ref.
func (r *DepositRepo) MarkSettledTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE deposits SET status = $1, settled_at = now()
		WHERE id = $2 AND status = $3
	`, models.DepositStatusSettled, id, models.DepositStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DepositRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deposits SET status = $1 WHERE id = $2 AND status = $3
	`, models.DepositStatusFailed, id, models.DepositStatusPending)
	return err
}
