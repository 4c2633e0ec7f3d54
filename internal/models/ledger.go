package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger entry types
const (
	LedgerEntryDeposit       = "deposit"
	LedgerEntryEscrowHold    = "escrow_hold"
	LedgerEntryEscrowRelease = "escrow_release"
	LedgerEntryEscrowRefund  = "escrow_refund"
)

// LedgerEntry records every balance movement together with the balance the
// account ended up with, so drift is auditable after the fact.
type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	ContractID   *uuid.UUID      `json:"contract_id,omitempty"`
	EntryType    string          `json:"entry_type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Deposit statuses
const (
	DepositStatusPending = "pending"
	DepositStatusSettled = "settled"
	DepositStatusFailed  = "failed"
)

// Deposit tracks a payment-gateway checkout. CheckoutRef is the idempotency
// key: the ledger is credited at most once per ref.
type Deposit struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	CheckoutRef string          `json:"checkout_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	SettledAt   *time.Time      `json:"settled_at,omitempty"`
}
