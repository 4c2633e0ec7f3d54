package repositories

import (
	"context"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LedgerRepo is the system of record for spendable balances. Balances are
// only mutated through DebitTx/CreditTx, always inside the caller's
// transaction, and every movement writes a ledger_entries row.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// DebitTx deducts amount from the user's balance. The conditional UPDATE
// verifies sufficient funds and performs the deduction in one statement, so
// the balance can never go negative.
func (r *LedgerRepo) DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, contractID *uuid.UUID, entryType string, amount decimal.Decimal) error {
	var balanceAfter decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE users SET balance = balance - $1
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`, amount, userID).Scan(&balanceAfter)
	if err == pgx.ErrNoRows {
		return models.ErrInsufficientFunds
	}
	if err != nil {
		return err
	}
	return r.insertEntry(ctx, tx, userID, contractID, entryType, amount.Neg(), balanceAfter)
}

// CreditTx adds amount to the user's balance.
func (r *LedgerRepo) CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, contractID *uuid.UUID, entryType string, amount decimal.Decimal) error {
	var balanceAfter decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE users SET balance = balance + $1
		WHERE id = $2
		RETURNING balance
	`, amount, userID).Scan(&balanceAfter)
	if err == pgx.ErrNoRows {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}
	return r.insertEntry(ctx, tx, userID, contractID, entryType, amount, balanceAfter)
}

func (r *LedgerRepo) insertEntry(ctx context.Context, tx pgx.Tx, userID uuid.UUID, contractID *uuid.UUID, entryType string, amount, balanceAfter decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (user_id, contract_id, entry_type, amount, balance_after)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, contractID, entryType, amount, balanceAfter)
	return err
}

func (r *LedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, contract_id, entry_type, amount, balance_after, created_at
		FROM ledger_entries WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ContractID, &e.EntryType, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
