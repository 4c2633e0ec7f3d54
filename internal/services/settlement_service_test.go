package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// memStore is an in-memory stand-in for the repositories. The serialTxRunner
// snapshots it before each unit of work and restores the snapshot when fn
// fails, so a failed operation leaves no partial effect, same as a rollback.
type memStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*models.User
	jobs      map[uuid.UUID]*models.Job
	proposals map[[2]uuid.UUID]bool // (jobID, workerID)
	contracts map[uuid.UUID]*models.Contract
	escrows   map[uuid.UUID]*models.Escrow // by contract ID
	ledger    []models.LedgerEntry
	works     []models.Work
	auditLog  []models.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[uuid.UUID]*models.User),
		jobs:      make(map[uuid.UUID]*models.Job),
		proposals: make(map[[2]uuid.UUID]bool),
		contracts: make(map[uuid.UUID]*models.Contract),
		escrows:   make(map[uuid.UUID]*models.Escrow),
	}
}

func (m *memStore) snapshot() *memStore {
	s := newMemStore()
	for k, v := range m.users {
		u := *v
		s.users[k] = &u
	}
	for k, v := range m.jobs {
		j := *v
		s.jobs[k] = &j
	}
	for k, v := range m.proposals {
		s.proposals[k] = v
	}
	for k, v := range m.contracts {
		c := *v
		s.contracts[k] = &c
	}
	for k, v := range m.escrows {
		e := *v
		s.escrows[k] = &e
	}
	s.ledger = append([]models.LedgerEntry(nil), m.ledger...)
	s.works = append([]models.Work(nil), m.works...)
	s.auditLog = append([]models.AuditLog(nil), m.auditLog...)
	return s
}

func (m *memStore) restore(s *memStore) {
	m.users = s.users
	m.jobs = s.jobs
	m.proposals = s.proposals
	m.contracts = s.contracts
	m.escrows = s.escrows
	m.ledger = s.ledger
	m.works = s.works
	m.auditLog = s.auditLog
}

// totalMoney sums user balances plus escrow still held; every settlement
// operation must leave it unchanged.
func (m *memStore) totalMoney() decimal.Decimal {
	total := decimal.Zero
	for _, u := range m.users {
		total = total.Add(u.Balance)
	}
	for _, e := range m.escrows {
		if e.Status == models.EscrowStatusHeld {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// serialTxRunner serializes units of work on the store's mutex, mimicking
// row-lock serialization, and rolls the store back when fn fails.
type serialTxRunner struct {
	store *memStore
}

func (r *serialTxRunner) WithTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	snap := r.store.snapshot()
	if err := fn(nil); err != nil {
		r.store.restore(snap)
		return err
	}
	return nil
}

// Store interface implementations. Methods taking a pgx.Tx ignore it; the
// runner holds the lock for the whole unit of work.

type memContracts struct{ s *memStore }

func (m memContracts) CreateTx(_ context.Context, _ pgx.Tx, c *models.Contract) error {
	for _, existing := range m.s.contracts {
		if existing.JobID == c.JobID && existing.WorkerID == c.WorkerID &&
			existing.Status != models.ContractStatusRejected {
			return models.ErrDuplicateContract
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.s.contracts[c.ID] = &cp
	return nil
}

func (m memContracts) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Contract, error) {
	c, ok := m.s.contracts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m memContracts) UpdateStatusTx(_ context.Context, _ pgx.Tx, id uuid.UUID, from, to models.ContractStatus) error {
	c, ok := m.s.contracts[id]
	if !ok || c.Status != from {
		return models.ErrInvalidTransition
	}
	c.Status = to
	c.UpdatedAt = time.Now()
	return nil
}

// Called outside a unit of work, so it takes the store lock itself.
func (m memContracts) ListOverdueAccepted(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var ids []uuid.UUID
	for id, c := range m.s.contracts {
		if c.Status == models.ContractStatusAccepted && c.Deadline.Before(now) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

type memEscrows struct{ s *memStore }

func (m memEscrows) FundTx(_ context.Context, _ pgx.Tx, e *models.Escrow) error {
	if _, ok := m.s.escrows[e.ContractID]; ok {
		return models.ErrDuplicateEscrow
	}
	e.ID = uuid.New()
	e.FundedAt = time.Now()
	cp := *e
	m.s.escrows[e.ContractID] = &cp
	return nil
}

func (m memEscrows) GetByContractIDForUpdate(_ context.Context, _ pgx.Tx, contractID uuid.UUID) (*models.Escrow, error) {
	e, ok := m.s.escrows[contractID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m memEscrows) MarkInitiatedTx(_ context.Context, _ pgx.Tx, escrowID uuid.UUID, at time.Time) error {
	for _, e := range m.s.escrows {
		if e.ID == escrowID {
			e.InitiatedAt = &at
			return nil
		}
	}
	return models.ErrNotFound
}

func (m memEscrows) ReleaseTx(ctx context.Context, tx pgx.Tx, escrowID, toUser uuid.UUID) error {
	return m.dispose(escrowID, toUser, models.EscrowStatusReleased)
}

func (m memEscrows) RefundTx(ctx context.Context, tx pgx.Tx, escrowID, toUser uuid.UUID) error {
	return m.dispose(escrowID, toUser, models.EscrowStatusRefunded)
}

func (m memEscrows) dispose(escrowID, toUser uuid.UUID, status string) error {
	for _, e := range m.s.escrows {
		if e.ID == escrowID {
			if e.Status != models.EscrowStatusHeld {
				return models.ErrAlreadyDisposed
			}
			now := time.Now()
			e.Status = status
			e.DisposedAt = &now
			e.DisposedTo = &toUser
			return nil
		}
	}
	return models.ErrNotFound
}

type memLedger struct{ s *memStore }

func (m memLedger) DebitTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, contractID *uuid.UUID, entryType string, amount decimal.Decimal) error {
	u, ok := m.s.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	if u.Balance.LessThan(amount) {
		return models.ErrInsufficientFunds
	}
	u.Balance = u.Balance.Sub(amount)
	m.s.ledger = append(m.s.ledger, models.LedgerEntry{
		UserID: userID, ContractID: contractID, EntryType: entryType,
		Amount: amount.Neg(), BalanceAfter: u.Balance,
	})
	return nil
}

func (m memLedger) CreditTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, contractID *uuid.UUID, entryType string, amount decimal.Decimal) error {
	u, ok := m.s.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	u.Balance = u.Balance.Add(amount)
	m.s.ledger = append(m.s.ledger, models.LedgerEntry{
		UserID: userID, ContractID: contractID, EntryType: entryType,
		Amount: amount, BalanceAfter: u.Balance,
	})
	return nil
}

type memJobs struct{ s *memStore }

func (m memJobs) GetTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Job, error) {
	j, ok := m.s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

type memUsers struct{ s *memStore }

func (m memUsers) GetTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.User, error) {
	u, ok := m.s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type memProposals struct{ s *memStore }

func (m memProposals) Exists(_ context.Context, jobID, workerID uuid.UUID) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.proposals[[2]uuid.UUID{jobID, workerID}], nil
}

type memWorks struct{ s *memStore }

func (m memWorks) CreateTx(_ context.Context, _ pgx.Tx, w *models.Work) error {
	w.ID = uuid.New()
	w.SubmittedAt = time.Now()
	m.s.works = append(m.s.works, *w)
	return nil
}

type memAudit struct{ s *memStore }

func (m memAudit) LogTx(_ context.Context, _ pgx.Tx, entry models.AuditLog) error {
	m.s.auditLog = append(m.s.auditLog, entry)
	return nil
}

type testEnv struct {
	store    *memStore
	svc      *SettlementService
	employer uuid.UUID
	worker   uuid.UUID
	jobID    uuid.UUID
}

func newTestEnv(t *testing.T, employerBalance string) *testEnv {
	t.Helper()
	store := newMemStore()
	txr := &serialTxRunner{store: store}

	svc := NewSettlementService(
		txr,
		memContracts{store}, memEscrows{store}, memLedger{store},
		memJobs{store}, memUsers{store}, memProposals{store},
		memWorks{store}, memAudit{store},
		nil, zap.NewNop(),
	)

	employer := uuid.New()
	worker := uuid.New()
	store.users[employer] = &models.User{ID: employer, UserType: models.UserTypeEmployer, Balance: mustDec(t, employerBalance)}
	store.users[worker] = &models.User{ID: worker, UserType: models.UserTypeFreelancer, Balance: decimal.Zero}

	jobID := uuid.New()
	store.jobs[jobID] = &models.Job{ID: jobID, OwnerID: employer, Title: "build a parser", Budget: mustDec(t, "100")}
	store.proposals[[2]uuid.UUID{jobID, worker}] = true

	return &testEnv{store: store, svc: svc, employer: employer, worker: worker, jobID: jobID}
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func (e *testEnv) createContract(t *testing.T, budget string) *models.Contract {
	t.Helper()
	c, err := e.svc.CreateContract(context.Background(), e.employer, e.jobID, e.worker, mustDec(t, budget), time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	return c
}

func (e *testEnv) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	u, ok := e.store.users[id]
	if !ok {
		t.Fatalf("no such user %s", id)
	}
	return u.Balance
}

func TestCreateContract(t *testing.T) {
	env := newTestEnv(t, "100")
	before := env.store.totalMoney()

	c := env.createContract(t, "60")

	if c.Status != models.ContractStatusProposed {
		t.Errorf("status = %s, want proposed", c.Status)
	}
	if got := env.balance(t, env.employer); !got.Equal(mustDec(t, "40")) {
		t.Errorf("employer balance = %s, want 40", got)
	}
	e, ok := env.store.escrows[c.ID]
	if !ok {
		t.Fatal("escrow not funded")
	}
	if e.Status != models.EscrowStatusHeld || !e.Amount.Equal(mustDec(t, "60")) {
		t.Errorf("escrow = %s %s, want held 60", e.Status, e.Amount)
	}
	if !env.store.totalMoney().Equal(before) {
		t.Errorf("money not conserved: %s -> %s", before, env.store.totalMoney())
	}
}

func TestCreateContractGuards(t *testing.T) {
	t.Run("insufficient funds", func(t *testing.T) {
		env := newTestEnv(t, "50")
		_, err := env.svc.CreateContract(context.Background(), env.employer, env.jobID, env.worker, mustDec(t, "60"), time.Now().Add(time.Hour))
		if !errors.Is(err, models.ErrInsufficientFunds) {
			t.Fatalf("err = %v, want ErrInsufficientFunds", err)
		}
		// Rolled back: no contract row, balance untouched.
		if len(env.store.contracts) != 0 {
			t.Error("contract left behind after failed funding")
		}
		if got := env.balance(t, env.employer); !got.Equal(mustDec(t, "50")) {
			t.Errorf("employer balance = %s, want 50", got)
		}
	})

	t.Run("no proposal", func(t *testing.T) {
		env := newTestEnv(t, "100")
		stranger := uuid.New()
		env.store.users[stranger] = &models.User{ID: stranger, UserType: models.UserTypeFreelancer}
		_, err := env.svc.CreateContract(context.Background(), env.employer, env.jobID, stranger, mustDec(t, "10"), time.Now().Add(time.Hour))
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("not job owner", func(t *testing.T) {
		env := newTestEnv(t, "100")
		_, err := env.svc.CreateContract(context.Background(), env.worker, env.jobID, env.worker, mustDec(t, "10"), time.Now().Add(time.Hour))
		if !errors.Is(err, models.ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("non-positive budget", func(t *testing.T) {
		env := newTestEnv(t, "100")
		_, err := env.svc.CreateContract(context.Background(), env.employer, env.jobID, env.worker, decimal.Zero, time.Now().Add(time.Hour))
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", err)
		}
	})
}

func TestCreateContractDuplicate(t *testing.T) {
	env := newTestEnv(t, "100")
	env.createContract(t, "30")

	_, err := env.svc.CreateContract(context.Background(), env.employer, env.jobID, env.worker, mustDec(t, "30"), time.Now().Add(time.Hour))
	if !errors.Is(err, models.ErrDuplicateContract) {
		t.Fatalf("err = %v, want ErrDuplicateContract", err)
	}
	// Duplicate attempt must not move money.
	if got := env.balance(t, env.employer); !got.Equal(mustDec(t, "70")) {
		t.Errorf("employer balance = %s, want 70", got)
	}
}

func TestCreateContractAfterRejection(t *testing.T) {
	env := newTestEnv(t, "100")
	c := env.createContract(t, "30")

	if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseReject); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// A rejection frees the (job, worker) slot.
	c2 := env.createContract(t, "45")
	if got := env.balance(t, env.employer); !got.Equal(mustDec(t, "55")) {
		t.Errorf("employer balance = %s, want 55", got)
	}
	if env.store.escrows[c2.ID].Status != models.EscrowStatusHeld {
		t.Error("second escrow not held")
	}
}

func TestRespondToContract(t *testing.T) {
	t.Run("accept", func(t *testing.T) {
		env := newTestEnv(t, "100")
		c := env.createContract(t, "60")

		if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept); err != nil {
			t.Fatalf("accept: %v", err)
		}
		if got := env.store.contracts[c.ID].Status; got != models.ContractStatusAccepted {
			t.Errorf("status = %s, want accepted", got)
		}
		e := env.store.escrows[c.ID]
		if e.Status != models.EscrowStatusHeld {
			t.Errorf("escrow status = %s, accept must not move funds", e.Status)
		}
		if e.InitiatedAt == nil {
			t.Error("accept must stamp the escrow initiation time")
		}
	})

	t.Run("reject refunds employer", func(t *testing.T) {
		env := newTestEnv(t, "100")
		c := env.createContract(t, "60")

		if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseReject); err != nil {
			t.Fatalf("reject: %v", err)
		}
		if got := env.store.contracts[c.ID].Status; got != models.ContractStatusRejected {
			t.Errorf("status = %s, want rejected", got)
		}
		if got := env.balance(t, env.employer); !got.Equal(mustDec(t, "100")) {
			t.Errorf("employer balance = %s, want full refund of 100", got)
		}
		e := env.store.escrows[c.ID]
		if e.Status != models.EscrowStatusRefunded || e.DisposedTo == nil || *e.DisposedTo != env.employer {
			t.Errorf("escrow not refunded to employer: %+v", e)
		}
	})

	t.Run("only the proposed worker may respond", func(t *testing.T) {
		env := newTestEnv(t, "100")
		c := env.createContract(t, "60")
		err := env.svc.RespondToContract(context.Background(), env.employer, c.ID, ResponseAccept)
		if !errors.Is(err, models.ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("unknown decision", func(t *testing.T) {
		env := newTestEnv(t, "100")
		c := env.createContract(t, "60")
		err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, "maybe")
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", err)
		}
	})

	t.Run("second response conflicts", func(t *testing.T) {
		env := newTestEnv(t, "100")
		c := env.createContract(t, "60")
		if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept); err != nil {
			t.Fatalf("accept: %v", err)
		}
		err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseReject)
		if !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestSubmitWork(t *testing.T) {
	env := newTestEnv(t, "100")
	c := env.createContract(t, "60")

	// Not yet accepted.
	if _, err := env.svc.SubmitWork(context.Background(), env.worker, c.ID, nil, nil); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition before acceptance", err)
	}

	if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}

	comment := "first draft"
	w, err := env.svc.SubmitWork(context.Background(), env.worker, c.ID, &comment, nil)
	if err != nil {
		t.Fatalf("SubmitWork: %v", err)
	}
	if w.ContractID != c.ID {
		t.Errorf("work contract = %s, want %s", w.ContractID, c.ID)
	}

	// Submissions are append-only; a second one is fine.
	if _, err := env.svc.SubmitWork(context.Background(), env.worker, c.ID, nil, nil); err != nil {
		t.Fatalf("second SubmitWork: %v", err)
	}
	if len(env.store.works) != 2 {
		t.Errorf("works = %d, want 2", len(env.store.works))
	}

	// Submitting does not move money or change status.
	if got := env.store.contracts[c.ID].Status; got != models.ContractStatusAccepted {
		t.Errorf("status = %s, want accepted", got)
	}

	// Only the worker may submit.
	if _, err := env.svc.SubmitWork(context.Background(), env.employer, c.ID, nil, nil); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCloseContract(t *testing.T) {
	env := newTestEnv(t, "100")
	c := env.createContract(t, "60")
	if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}
	before := env.store.totalMoney()

	if err := env.svc.CloseContract(context.Background(), env.employer, c.ID); err != nil {
		t.Fatalf("CloseContract: %v", err)
	}

	if got := env.store.contracts[c.ID].Status; got != models.ContractStatusFinished {
		t.Errorf("status = %s, want finished", got)
	}
	if got := env.balance(t, env.worker); !got.Equal(mustDec(t, "60")) {
		t.Errorf("worker balance = %s, want 60", got)
	}
	if got := env.balance(t, env.employer); !got.Equal(mustDec(t, "40")) {
		t.Errorf("employer balance = %s, want 40", got)
	}
	e := env.store.escrows[c.ID]
	if e.Status != models.EscrowStatusReleased || *e.DisposedTo != env.worker {
		t.Errorf("escrow not released to worker: %+v", e)
	}
	if !env.store.totalMoney().Equal(before) {
		t.Errorf("money not conserved: %s -> %s", before, env.store.totalMoney())
	}

	// Settlement is final: a second close conflicts.
	if err := env.svc.CloseContract(context.Background(), env.employer, c.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition on double close", err)
	}
	if got := env.balance(t, env.worker); !got.Equal(mustDec(t, "60")) {
		t.Errorf("worker balance after double close = %s, want 60 exactly once", got)
	}
}

func TestCloseContractGuards(t *testing.T) {
	env := newTestEnv(t, "100")
	c := env.createContract(t, "60")

	// Cannot close before acceptance.
	if err := env.svc.CloseContract(context.Background(), env.employer, c.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Only the job owner may close.
	if err := env.svc.CloseContract(context.Background(), env.worker, c.ID); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestExpireOverdueContracts(t *testing.T) {
	env := newTestEnv(t, "100")
	c := env.createContract(t, "60")
	if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// Push the deadline into the past.
	env.store.contracts[c.ID].Deadline = time.Now().Add(-time.Minute)

	n, err := env.svc.ExpireOverdueContracts(context.Background(), 100)
	if err != nil {
		t.Fatalf("ExpireOverdueContracts: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	if got := env.store.contracts[c.ID].Status; got != models.ContractStatusCancelled {
		t.Errorf("status = %s, want cancelled", got)
	}
	if got := env.balance(t, env.employer); !got.Equal(mustDec(t, "100")) {
		t.Errorf("employer balance = %s, want refund to 100", got)
	}
	if got := env.balance(t, env.worker); !got.IsZero() {
		t.Errorf("worker balance = %s, want 0", got)
	}

	// A second pass finds nothing.
	n, err = env.svc.ExpireOverdueContracts(context.Background(), 100)
	if err != nil || n != 0 {
		t.Fatalf("second pass = (%d, %v), want (0, nil)", n, err)
	}
}

func TestExpireSkipsFutureDeadlines(t *testing.T) {
	env := newTestEnv(t, "100")
	c := env.createContract(t, "60")
	if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}

	n, err := env.svc.ExpireOverdueContracts(context.Background(), 100)
	if err != nil || n != 0 {
		t.Fatalf("got (%d, %v), want (0, nil)", n, err)
	}
	if got := env.store.contracts[c.ID].Status; got != models.ContractStatusAccepted {
		t.Errorf("status = %s, want accepted untouched", got)
	}
}

// A close racing an expiry must settle the escrow exactly once, whichever
// side wins.
func TestConcurrentCloseAndExpire(t *testing.T) {
	env := newTestEnv(t, "100")
	c := env.createContract(t, "60")
	if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}
	env.store.contracts[c.ID].Deadline = time.Now().Add(-time.Minute)
	before := env.store.totalMoney()

	var wg sync.WaitGroup
	var closeErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		closeErr = env.svc.CloseContract(context.Background(), env.employer, c.ID)
	}()
	go func() {
		defer wg.Done()
		_, _ = env.svc.ExpireOverdueContracts(context.Background(), 100)
	}()
	wg.Wait()

	e := env.store.escrows[c.ID]
	status := env.store.contracts[c.ID].Status
	switch {
	case closeErr == nil:
		if status != models.ContractStatusFinished || e.Status != models.EscrowStatusReleased {
			t.Errorf("close won but state = %s / %s", status, e.Status)
		}
		if got := env.balance(t, env.worker); !got.Equal(mustDec(t, "60")) {
			t.Errorf("worker balance = %s, want 60", got)
		}
	case errors.Is(closeErr, models.ErrInvalidTransition):
		if status != models.ContractStatusCancelled || e.Status != models.EscrowStatusRefunded {
			t.Errorf("expiry won but state = %s / %s", status, e.Status)
		}
		if got := env.balance(t, env.employer); !got.Equal(mustDec(t, "100")) {
			t.Errorf("employer balance = %s, want 100", got)
		}
	default:
		t.Fatalf("unexpected close error: %v", closeErr)
	}

	if !env.store.totalMoney().Equal(before) {
		t.Errorf("money not conserved under race: %s -> %s", before, env.store.totalMoney())
	}
}

func TestConcurrentResponses(t *testing.T) {
	env := newTestEnv(t, "100")
	c := env.createContract(t, "60")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept)
	}()
	go func() {
		defer wg.Done()
		errs[1] = env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseReject)
	}()
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, models.ErrInvalidTransition):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("got %d successes and %d conflicts, want exactly 1 of each", ok, conflict)
	}

	// Whichever response won, the escrow is consistent with it.
	e := env.store.escrows[c.ID]
	switch env.store.contracts[c.ID].Status {
	case models.ContractStatusAccepted:
		if e.Status != models.EscrowStatusHeld {
			t.Errorf("accepted but escrow %s", e.Status)
		}
	case models.ContractStatusRejected:
		if e.Status != models.EscrowStatusRefunded {
			t.Errorf("rejected but escrow %s", e.Status)
		}
	default:
		t.Errorf("contract in unexpected status %s", env.store.contracts[c.ID].Status)
	}
}

// Full lifecycle: deposit-funded employer hires, worker delivers, employer
// settles. The ledger and balances must reconcile at every step.
func TestSettlementLifecycleConservation(t *testing.T) {
	env := newTestEnv(t, "250")
	initial := env.store.totalMoney()

	c := env.createContract(t, "200")
	if err := env.svc.RespondToContract(context.Background(), env.worker, c.ID, ResponseAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}
	comment := "done"
	if _, err := env.svc.SubmitWork(context.Background(), env.worker, c.ID, &comment, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.svc.CloseContract(context.Background(), env.employer, c.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !env.store.totalMoney().Equal(initial) {
		t.Errorf("money not conserved: %s -> %s", initial, env.store.totalMoney())
	}
	if got := env.balance(t, env.employer); !got.Equal(mustDec(t, "50")) {
		t.Errorf("employer = %s, want 50", got)
	}
	if got := env.balance(t, env.worker); !got.Equal(mustDec(t, "200")) {
		t.Errorf("worker = %s, want 200", got)
	}

	// Every movement hit the ledger: hold, release.
	var holds, releases int
	for _, entry := range env.store.ledger {
		switch entry.EntryType {
		case models.LedgerEntryEscrowHold:
			holds++
		case models.LedgerEntryEscrowRelease:
			releases++
		}
	}
	if holds != 1 || releases != 1 {
		t.Errorf("ledger: %d holds, %d releases, want 1 and 1", holds, releases)
	}
}
