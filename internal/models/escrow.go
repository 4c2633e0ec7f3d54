package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Escrow statuses. held is the only live state; released and refunded are
// the two terminal dispositions and exactly one of them may ever be recorded.
const (
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

type Escrow struct {
	ID          uuid.UUID       `json:"id"`
	ContractID  uuid.UUID       `json:"contract_id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	FundedAt    time.Time       `json:"funded_at"`
	InitiatedAt *time.Time      `json:"initiated_at,omitempty"` // stamped when the contract is accepted
	DisposedAt  *time.Time      `json:"disposed_at,omitempty"`
	DisposedTo  *uuid.UUID      `json:"disposed_to,omitempty"`
}
