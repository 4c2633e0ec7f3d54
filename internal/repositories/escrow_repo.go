package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

// FundTx creates the escrow row holding the contract budget in trust.
// escrows.contract_id is unique, so funding twice is a storage-level error.
func (r *EscrowRepo) FundTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO escrows (contract_id, amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, funded_at
	`, e.ContractID, e.Amount, e.Status).Scan(&e.ID, &e.FundedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateEscrow
	}
	return err
}

func (r *EscrowRepo) GetByContractID(ctx context.Context, contractID uuid.UUID) (*models.Escrow, error) {
	return r.getByContract(ctx, r.pool, contractID, false)
}

func (r *EscrowRepo) GetByContractIDForUpdate(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) (*models.Escrow, error) {
	return r.getByContract(ctx, tx, contractID, true)
}

func (r *EscrowRepo) getByContract(ctx context.Context, q rowQuerier, contractID uuid.UUID, forUpdate bool) (*models.Escrow, error) {
	query := `
		SELECT id, contract_id, amount, status, funded_at, initiated_at, disposed_at, disposed_to
		FROM escrows WHERE contract_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var e models.Escrow
	err := q.QueryRow(ctx, query, contractID).Scan(
		&e.ID, &e.ContractID, &e.Amount, &e.Status, &e.FundedAt, &e.InitiatedAt, &e.DisposedAt, &e.DisposedTo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkInitiatedTx stamps the date of initiation when the worker accepts.
// No fund movement happens here.
func (r *EscrowRepo) MarkInitiatedTx(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE escrows SET initiated_at = $1 WHERE id = $2
	`, at, escrowID)
	return err
}

// ReleaseTx records the release-to-worker disposition.
func (r *EscrowRepo) ReleaseTx(ctx context.Context, tx pgx.Tx, escrowID, toUser uuid.UUID) error {
	return r.dispose(ctx, tx, escrowID, toUser, models.EscrowStatusReleased)
}

// RefundTx records the refund-to-employer disposition.
func (r *EscrowRepo) RefundTx(ctx context.Context, tx pgx.Tx, escrowID, toUser uuid.UUID) error {
	return r.dispose(ctx, tx, escrowID, toUser, models.EscrowStatusRefunded)
}

// dispose is exactly-once: the WHERE status = 'held' guard means a second
// disposition affects zero rows and surfaces as ErrAlreadyDisposed instead
// of silently duplicating funds.
func (r *EscrowRepo) dispose(ctx context.Context, tx pgx.Tx, escrowID, toUser uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE escrows SET status = $1, disposed_at = now(), disposed_to = $2
		WHERE id = $3 AND status = $4
	`, status, toUser, escrowID, models.EscrowStatusHeld)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAlreadyDisposed
	}
	return nil
}
