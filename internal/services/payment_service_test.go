package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type memDeposits struct {
	s    *memStore
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Deposit
}

func newMemDeposits(s *memStore) *memDeposits {
	return &memDeposits{s: s, byID: make(map[uuid.UUID]*models.Deposit)}
}

func (m *memDeposits) Create(_ context.Context, d *models.Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	cp := *d
	m.byID[d.ID] = &cp
	return nil
}

func (m *memDeposits) GetByRef(_ context.Context, ref string) (*models.Deposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byID {
		if d.CheckoutRef == ref {
			cp := *d
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memDeposits) ListPending(_ context.Context, limit int) ([]models.Deposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Deposit
	for _, d := range m.byID {
		if d.Status == models.DepositStatusPending {
			out = append(out, *d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memDeposits) MarkSettledTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok || d.Status != models.DepositStatusPending {
		return false, nil
	}
	now := time.Now()
	d.Status = models.DepositStatusSettled
	d.SettledAt = &now
	return true, nil
}

func (m *memDeposits) MarkFailed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.byID[id]; ok && d.Status == models.DepositStatusPending {
		d.Status = models.DepositStatusFailed
	}
	return nil
}

type stubGateway struct {
	mu       sync.Mutex
	settled  map[string]decimal.Decimal
	verifies int
}

func (g *stubGateway) InitiateDeposit(_ context.Context, ref, _ string, _ decimal.Decimal, _ string) (string, error) {
	return "https://gateway.test/checkout/" + ref, nil
}

func (g *stubGateway) Verify(_ context.Context, ref string) (bool, decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies++
	amount, ok := g.settled[ref]
	return ok, amount, nil
}

func (g *stubGateway) settle(ref string, amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.settled == nil {
		g.settled = make(map[string]decimal.Decimal)
	}
	g.settled[ref] = amount
}

type memUserReader struct{ s *memStore }

func (m memUserReader) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m.s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func newPaymentEnv(t *testing.T) (*PaymentService, *memStore, *stubGateway, uuid.UUID) {
	t.Helper()
	store := newMemStore()
	userID := uuid.New()
	store.users[userID] = &models.User{ID: userID, Email: "dev@example.com", UserType: models.UserTypeEmployer, Balance: decimal.Zero}

	gateway := &stubGateway{}
	svc := NewPaymentService(
		&serialTxRunner{store: store},
		newMemDeposits(store),
		memUserReader{store},
		memLedger{store},
		gateway,
		"https://api.test/payments/verify",
		nil, zap.NewNop(),
	)
	return svc, store, gateway, userID
}

func TestInitiateDeposit(t *testing.T) {
	svc, _, _, userID := newPaymentEnv(t)

	url, ref, err := svc.InitiateDeposit(context.Background(), userID, mustDec(t, "100"))
	if err != nil {
		t.Fatalf("InitiateDeposit: %v", err)
	}
	if ref == "" || url == "" {
		t.Fatalf("empty ref or url: %q %q", ref, url)
	}

	// Initiation alone credits nothing.
	settled, err := svc.VerifyDeposit(context.Background(), ref)
	if err != nil || settled {
		t.Fatalf("VerifyDeposit before settlement = (%v, %v), want (false, nil)", settled, err)
	}
}

func TestInitiateDepositRejectsNonPositive(t *testing.T) {
	svc, _, _, userID := newPaymentEnv(t)
	if _, _, err := svc.InitiateDeposit(context.Background(), userID, decimal.Zero); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestVerifyDepositCreditsOnce(t *testing.T) {
	svc, store, gateway, userID := newPaymentEnv(t)

	_, ref, err := svc.InitiateDeposit(context.Background(), userID, mustDec(t, "100"))
	if err != nil {
		t.Fatalf("InitiateDeposit: %v", err)
	}
	gateway.settle(ref, mustDec(t, "100"))

	// Callback and poller race on the same reference.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.VerifyDeposit(context.Background(), ref); err != nil {
				t.Errorf("VerifyDeposit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := store.users[userID].Balance; !got.Equal(mustDec(t, "100")) {
		t.Errorf("balance = %s, want credited exactly once to 100", got)
	}
	var depositEntries int
	for _, e := range store.ledger {
		if e.EntryType == models.LedgerEntryDeposit {
			depositEntries++
		}
	}
	if depositEntries != 1 {
		t.Errorf("ledger deposit entries = %d, want 1", depositEntries)
	}
}

func TestVerifyPendingSettlesMissedCallbacks(t *testing.T) {
	svc, store, gateway, userID := newPaymentEnv(t)

	_, ref1, _ := svc.InitiateDeposit(context.Background(), userID, mustDec(t, "40"))
	_, ref2, _ := svc.InitiateDeposit(context.Background(), userID, mustDec(t, "60"))
	gateway.settle(ref1, mustDec(t, "40"))
	// ref2 stays unsettled at the gateway.

	svc.VerifyPending(context.Background(), 100)

	if got := store.users[userID].Balance; !got.Equal(mustDec(t, "40")) {
		t.Errorf("balance = %s, want 40", got)
	}

	// The unsettled deposit is picked up on a later pass once it clears.
	gateway.settle(ref2, mustDec(t, "60"))
	svc.VerifyPending(context.Background(), 100)

	if got := store.users[userID].Balance; !got.Equal(mustDec(t, "100")) {
		t.Errorf("balance = %s, want 100", got)
	}
}

func TestVerifyPendingWritesOffStaleDeposits(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	store.users[userID] = &models.User{ID: userID, Email: "dev@example.com", UserType: models.UserTypeEmployer, Balance: decimal.Zero}

	deposits := newMemDeposits(store)
	gateway := &stubGateway{}
	svc := NewPaymentService(
		&serialTxRunner{store: store},
		deposits,
		memUserReader{store},
		memLedger{store},
		gateway,
		"https://api.test/payments/verify",
		nil, zap.NewNop(),
	)

	_, staleRef, _ := svc.InitiateDeposit(context.Background(), userID, mustDec(t, "40"))
	_, freshRef, _ := svc.InitiateDeposit(context.Background(), userID, mustDec(t, "60"))

	// Backdate the first checkout past the write-off window.
	deposits.mu.Lock()
	for _, d := range deposits.byID {
		if d.CheckoutRef == staleRef {
			d.CreatedAt = time.Now().Add(-depositPendingTTL - time.Hour)
		}
	}
	deposits.mu.Unlock()

	svc.VerifyPending(context.Background(), 100)

	stale, err := deposits.GetByRef(context.Background(), staleRef)
	if err != nil {
		t.Fatalf("GetByRef(stale): %v", err)
	}
	if stale.Status != models.DepositStatusFailed {
		t.Errorf("stale deposit status = %s, want failed", stale.Status)
	}
	fresh, err := deposits.GetByRef(context.Background(), freshRef)
	if err != nil {
		t.Fatalf("GetByRef(fresh): %v", err)
	}
	if fresh.Status != models.DepositStatusPending {
		t.Errorf("fresh deposit status = %s, want pending", fresh.Status)
	}
	if got := store.users[userID].Balance; !got.IsZero() {
		t.Errorf("balance = %s, want 0 (nothing settled)", got)
	}

	// A written-off deposit leaves the pending sweep.
	pending, _ := deposits.ListPending(context.Background(), 100)
	if len(pending) != 1 || pending[0].CheckoutRef != freshRef {
		t.Errorf("pending sweep = %v, want only the fresh checkout", pending)
	}
}

func TestVerifyDepositUnknownRef(t *testing.T) {
	svc, _, _, _ := newPaymentEnv(t)
	if _, err := svc.VerifyDeposit(context.Background(), "TX-unknown"); err == nil {
		t.Fatal("expected error for unknown reference")
	}
}
