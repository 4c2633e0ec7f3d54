package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freelance-market/backend/internal/events"
	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Narrow store interfaces so the settlement logic is testable without a
// database. Satisfied by the repositories package.

type ContractStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.Contract) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to models.ContractStatus) error
	ListOverdueAccepted(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type EscrowStore interface {
	FundTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) error
	GetByContractIDForUpdate(ctx context.Context, tx pgx.Tx, contractID uuid.UUID) (*models.Escrow, error)
	MarkInitiatedTx(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, at time.Time) error
	ReleaseTx(ctx context.Context, tx pgx.Tx, escrowID, toUser uuid.UUID) error
	RefundTx(ctx context.Context, tx pgx.Tx, escrowID, toUser uuid.UUID) error
}

type Ledger interface {
	DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, contractID *uuid.UUID, entryType string, amount decimal.Decimal) error
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, contractID *uuid.UUID, entryType string, amount decimal.Decimal) error
}

type JobStore interface {
	GetTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
}

type UserStore interface {
	GetTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error)
}

type ProposalStore interface {
	Exists(ctx context.Context, jobID, workerID uuid.UUID) (bool, error)
}

type WorkStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Work) error
}

type AuditLogger interface {
	LogTx(ctx context.Context, tx pgx.Tx, entry models.AuditLog) error
}

// SettlementService pairs every contract status transition with its fund
// movement inside one unit of work: a reader sees either both or neither.
// The acting principal is always passed in explicitly.
type SettlementService struct {
	txr       TxRunner
	contracts ContractStore
	escrows   EscrowStore
	ledger    Ledger
	jobs      JobStore
	users     UserStore
	proposals ProposalStore
	works     WorkStore
	audit     AuditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewSettlementService(
	txr TxRunner,
	contracts ContractStore,
	escrows EscrowStore,
	ledger Ledger,
	jobs JobStore,
	users UserStore,
	proposals ProposalStore,
	works WorkStore,
	audit AuditLogger,
	publisher events.Publisher,
	log *zap.Logger,
) *SettlementService {
	return &SettlementService{
		txr:       txr,
		contracts: contracts,
		escrows:   escrows,
		ledger:    ledger,
		jobs:      jobs,
		users:     users,
		proposals: proposals,
		works:     works,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

// CreateContract debits the employer, funds escrow, and inserts the contract
// in proposed status as one atomic step. Guards: principal owns the job, the
// worker has proposed, no open contract exists for (job, worker), and the
// employer can afford the budget.
func (s *SettlementService) CreateContract(ctx context.Context, principal, jobID, workerID uuid.UUID, budget decimal.Decimal, deadline time.Time) (*models.Contract, error) {
	if budget.Sign() <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive", models.ErrValidation)
	}

	hasProposal, err := s.proposals.Exists(ctx, jobID, workerID)
	if err != nil {
		return nil, err
	}
	if !hasProposal {
		return nil, fmt.Errorf("%w: no proposal from worker for this job", models.ErrNotFound)
	}

	var contract *models.Contract
	err = s.txr.WithTx(ctx, func(tx pgx.Tx) error {
		job, err := s.jobs.GetTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.OwnerID != principal {
			return models.ErrUnauthorized
		}
		if _, err := s.users.GetTx(ctx, tx, workerID); err != nil {
			return err
		}

		c := &models.Contract{
			JobID:    jobID,
			WorkerID: workerID,
			Budget:   budget,
			Deadline: deadline,
			Status:   models.ContractStatusProposed,
		}
		// Insert first: the partial unique index rejects a duplicate before
		// any money moves.
		if err := s.contracts.CreateTx(ctx, tx, c); err != nil {
			return err
		}

		if err := s.ledger.DebitTx(ctx, tx, principal, &c.ID, models.LedgerEntryEscrowHold, budget); err != nil {
			return err
		}

		e := &models.Escrow{
			ContractID: c.ID,
			Amount:     budget,
			Status:     models.EscrowStatusHeld,
		}
		if err := s.escrows.FundTx(ctx, tx, e); err != nil {
			return err
		}

		if err := s.audit.LogTx(ctx, tx, models.AuditLog{
			ActorUserID: &principal,
			ActorType:   "user",
			Action:      "contract_created",
			EntityType:  "contract",
			EntityID:    &c.ID,
			Meta:        map[string]any{"job_id": jobID.String(), "worker_id": workerID.String(), "budget": budget.String()},
		}); err != nil {
			return err
		}

		contract = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventContractStatusChanged, map[string]any{
		"contract_id": contract.ID.String(),
		"old_status":  "",
		"new_status":  string(models.ContractStatusProposed),
		"worker_id":   workerID.String(),
	})
	return contract, nil
}

// Contract responses
const (
	ResponseAccept = "accept"
	ResponseReject = "reject"
)

// RespondToContract lets the proposed worker accept or reject. Accept stamps
// the escrow's date of initiation, no fund movement. Reject refunds the
// employer atomically with the status write. Concurrent responses serialize
// on the contract row lock; the loser observes ErrInvalidTransition.
func (s *SettlementService) RespondToContract(ctx context.Context, principal, contractID uuid.UUID, decision string) error {
	if decision != ResponseAccept && decision != ResponseReject {
		return fmt.Errorf("%w: decision must be %q or %q", models.ErrValidation, ResponseAccept, ResponseReject)
	}

	newStatus := models.ContractStatusAccepted
	if decision == ResponseReject {
		newStatus = models.ContractStatusRejected
	}

	err := s.txr.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if c.WorkerID != principal {
			return models.ErrUnauthorized
		}
		if !models.IsValidTransition(c.Status, newStatus) {
			return models.ErrInvalidTransition
		}

		if err := s.contracts.UpdateStatusTx(ctx, tx, c.ID, models.ContractStatusProposed, newStatus); err != nil {
			return err
		}
		if newStatus == models.ContractStatusAccepted {
			e, err := s.escrows.GetByContractIDForUpdate(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			if err := s.escrows.MarkInitiatedTx(ctx, tx, e.ID, time.Now()); err != nil {
				return err
			}
		} else {
			job, err := s.jobs.GetTx(ctx, tx, c.JobID)
			if err != nil {
				return err
			}
			if err := s.refundEscrowTx(ctx, tx, c, job.OwnerID); err != nil {
				return err
			}
		}

		return s.audit.LogTx(ctx, tx, models.AuditLog{
			ActorUserID: &principal,
			ActorType:   "user",
			Action:      fmt.Sprintf("contract_status_%s_to_%s", models.ContractStatusProposed, newStatus),
			EntityType:  "contract",
			EntityID:    &c.ID,
			Meta:        map[string]any{"decision": decision},
		})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.EventContractStatusChanged, map[string]any{
		"contract_id": contractID.String(),
		"old_status":  string(models.ContractStatusProposed),
		"new_status":  string(newStatus),
	})
	return nil
}

// SubmitWork appends a work submission to an accepted contract. The status
// does not change and no funds move; multiple submissions are allowed.
func (s *SettlementService) SubmitWork(ctx context.Context, principal, contractID uuid.UUID, comment *string, attachmentID *uuid.UUID) (*models.Work, error) {
	var work *models.Work
	err := s.txr.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if c.WorkerID != principal {
			return models.ErrUnauthorized
		}
		// Work is accepted only while the contract can still finish.
		if !models.IsValidTransition(c.Status, models.ContractStatusFinished) {
			return models.ErrInvalidTransition
		}

		w := &models.Work{
			ContractID:   c.ID,
			Comment:      comment,
			AttachmentID: attachmentID,
		}
		if err := s.works.CreateTx(ctx, tx, w); err != nil {
			return err
		}
		work = w

		return s.audit.LogTx(ctx, tx, models.AuditLog{
			ActorUserID: &principal,
			ActorType:   "user",
			Action:      "work_submitted",
			EntityType:  "contract",
			EntityID:    &c.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventWorkSubmitted, map[string]any{
		"contract_id": contractID.String(),
		"work_id":     work.ID.String(),
	})
	return work, nil
}

// CloseContract finishes an accepted contract: status to finished, escrow
// released, worker credited, all in one transaction. Racing a concurrent
// expiry, whichever commits first wins; the loser sees ErrInvalidTransition.
func (s *SettlementService) CloseContract(ctx context.Context, principal, contractID uuid.UUID) error {
	var workerID uuid.UUID
	err := s.txr.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
		if err != nil {
			return err
		}
		job, err := s.jobs.GetTx(ctx, tx, c.JobID)
		if err != nil {
			return err
		}
		if job.OwnerID != principal {
			return models.ErrUnauthorized
		}
		if !models.IsValidTransition(c.Status, models.ContractStatusFinished) {
			return models.ErrInvalidTransition
		}

		if err := s.contracts.UpdateStatusTx(ctx, tx, c.ID, models.ContractStatusAccepted, models.ContractStatusFinished); err != nil {
			return err
		}

		e, err := s.escrows.GetByContractIDForUpdate(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if err := s.escrows.ReleaseTx(ctx, tx, e.ID, c.WorkerID); err != nil {
			return err
		}
		if err := s.ledger.CreditTx(ctx, tx, c.WorkerID, &c.ID, models.LedgerEntryEscrowRelease, e.Amount); err != nil {
			return err
		}
		workerID = c.WorkerID

		return s.audit.LogTx(ctx, tx, models.AuditLog{
			ActorUserID: &principal,
			ActorType:   "user",
			Action:      fmt.Sprintf("contract_status_%s_to_%s", models.ContractStatusAccepted, models.ContractStatusFinished),
			EntityType:  "contract",
			EntityID:    &c.ID,
			Meta:        map[string]any{"released_to": c.WorkerID.String()},
		})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.EventContractStatusChanged, map[string]any{
		"contract_id": contractID.String(),
		"old_status":  string(models.ContractStatusAccepted),
		"new_status":  string(models.ContractStatusFinished),
		"worker_id":   workerID.String(),
	})
	return nil
}

// ExpireOverdueContracts cancels accepted contracts whose deadline passed and
// refunds their escrow to the employer. Each contract settles in its own
// transaction; one that loses a race to a concurrent close is skipped.
func (s *SettlementService) ExpireOverdueContracts(ctx context.Context, limit int) (int, error) {
	ids, err := s.contracts.ListOverdueAccepted(ctx, time.Now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if err := s.expireOne(ctx, id); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				// Resolved concurrently (closed or already expired).
				continue
			}
			s.log.Error("failed to expire contract", zap.String("contract_id", id.String()), zap.Error(err))
			continue
		}
		expired++

		s.publish(ctx, events.EventContractStatusChanged, map[string]any{
			"contract_id": id.String(),
			"old_status":  string(models.ContractStatusAccepted),
			"new_status":  string(models.ContractStatusCancelled),
		})
	}
	return expired, nil
}

func (s *SettlementService) expireOne(ctx context.Context, contractID uuid.UUID) error {
	return s.txr.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := s.contracts.GetByIDForUpdate(ctx, tx, contractID)
		if err != nil {
			return err
		}
		// Re-check under the row lock: a close may have won the race.
		if !models.IsValidTransition(c.Status, models.ContractStatusCancelled) || time.Now().Before(c.Deadline) {
			return models.ErrInvalidTransition
		}

		if err := s.contracts.UpdateStatusTx(ctx, tx, c.ID, models.ContractStatusAccepted, models.ContractStatusCancelled); err != nil {
			return err
		}

		job, err := s.jobs.GetTx(ctx, tx, c.JobID)
		if err != nil {
			return err
		}
		if err := s.refundEscrowTx(ctx, tx, c, job.OwnerID); err != nil {
			return err
		}

		return s.audit.LogTx(ctx, tx, models.AuditLog{
			ActorType:  "system",
			Action:     fmt.Sprintf("contract_status_%s_to_%s", models.ContractStatusAccepted, models.ContractStatusCancelled),
			EntityType: "contract",
			EntityID:   &c.ID,
			Meta:       map[string]any{"reason": "deadline_missed"},
		})
	})
}

// refundEscrowTx disposes the contract's escrow back to the employer and
// credits the employer's balance, inside the caller's transaction.
func (s *SettlementService) refundEscrowTx(ctx context.Context, tx pgx.Tx, c *models.Contract, employerID uuid.UUID) error {
	e, err := s.escrows.GetByContractIDForUpdate(ctx, tx, c.ID)
	if err != nil {
		return err
	}
	if err := s.escrows.RefundTx(ctx, tx, e.ID, employerID); err != nil {
		return err
	}
	return s.ledger.CreditTx(ctx, tx, employerID, &c.ID, models.LedgerEntryEscrowRefund, e.Amount)
}

func (s *SettlementService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, "events:contract", events.Event{Type: eventType, Payload: payload})
}
