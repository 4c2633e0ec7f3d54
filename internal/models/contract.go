package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractStatus is a closed set; transitions only move along
// ValidContractTransitions.
type ContractStatus string

const (
	ContractStatusProposed  ContractStatus = "proposed"
	ContractStatusAccepted  ContractStatus = "accepted"
	ContractStatusRejected  ContractStatus = "rejected"
	ContractStatusFinished  ContractStatus = "finished"
	ContractStatusCancelled ContractStatus = "cancelled"
)

// Valid state transitions: from -> []to
var ValidContractTransitions = map[ContractStatus][]ContractStatus{
	ContractStatusProposed:  {ContractStatusAccepted, ContractStatusRejected},
	ContractStatusAccepted:  {ContractStatusFinished, ContractStatusCancelled},
	ContractStatusRejected:  {},
	ContractStatusFinished:  {},
	ContractStatusCancelled: {},
}

func IsValidTransition(from, to ContractStatus) bool {
	allowed, ok := ValidContractTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ContractStatus) IsTerminal() bool {
	allowed, ok := ValidContractTransitions[s]
	return ok && len(allowed) == 0
}

type Contract struct {
	ID        uuid.UUID       `json:"id"`
	JobID     uuid.UUID       `json:"job_id"`
	WorkerID  uuid.UUID       `json:"worker_id"`
	Budget    decimal.Decimal `json:"budget"`
	Deadline  time.Time       `json:"deadline"`
	Status    ContractStatus  `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ContractWithJob embeds Contract and adds job info to avoid N+1 queries.
type ContractWithJob struct {
	Contract
	JobTitle   *string    `json:"job_title,omitempty"`
	EmployerID *uuid.UUID `json:"employer_id,omitempty"`
}
