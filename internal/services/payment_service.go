package services

import (
	"context"
	"fmt"
	"time"

	"github.com/freelance-market/backend/internal/events"
	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentGateway is the external deposit collaborator.
type PaymentGateway interface {
	InitiateDeposit(ctx context.Context, ref, email string, amount decimal.Decimal, callbackURL string) (string, error)
	Verify(ctx context.Context, ref string) (bool, decimal.Decimal, error)
}

type DepositStore interface {
	Create(ctx context.Context, d *models.Deposit) error
	GetByRef(ctx context.Context, ref string) (*models.Deposit, error)
	ListPending(ctx context.Context, limit int) ([]models.Deposit, error)
	MarkSettledTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// Checkouts the gateway has not settled within this window are written off;
// the user can always initiate a fresh deposit.
const depositPendingTTL = 24 * time.Hour

type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// PaymentService moves verified gateway deposits onto the ledger, at most
// once per checkout reference.
type PaymentService struct {
	txr         TxRunner
	depositRepo DepositStore
	userRepo    UserReader
	ledger      Ledger
	gateway     PaymentGateway
	callbackURL string
	publisher   events.Publisher
	log         *zap.Logger
}

func NewPaymentService(
	txr TxRunner,
	depositRepo DepositStore,
	userRepo UserReader,
	ledger Ledger,
	gateway PaymentGateway,
	callbackURL string,
	publisher events.Publisher,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		txr:         txr,
		depositRepo: depositRepo,
		userRepo:    userRepo,
		ledger:      ledger,
		gateway:     gateway,
		callbackURL: callbackURL,
		publisher:   publisher,
		log:         log,
	}
}

// InitiateDeposit records a pending deposit and returns the gateway checkout URL.
func (s *PaymentService) InitiateDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (checkoutURL, ref string, err error) {
	if amount.Sign() <= 0 {
		return "", "", fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", "", err
	}

	ref = "TX-" + uuid.New().String()
	d := &models.Deposit{
		UserID:      userID,
		CheckoutRef: ref,
		Amount:      amount,
		Status:      models.DepositStatusPending,
	}
	if err := s.depositRepo.Create(ctx, d); err != nil {
		return "", "", err
	}

	checkoutURL, err = s.gateway.InitiateDeposit(ctx, ref, user.Email, amount, s.callbackURL)
	if err != nil {
		return "", "", err
	}
	return checkoutURL, ref, nil
}

// VerifyDeposit checks the reference with the gateway and, if settled,
// credits the user's ledger. The status-guarded settle makes the credit
// exactly-once even when the callback and the poller race.
func (s *PaymentService) VerifyDeposit(ctx context.Context, ref string) (bool, error) {
	d, err := s.depositRepo.GetByRef(ctx, ref)
	if err != nil {
		return false, err
	}
	if d.Status == models.DepositStatusSettled {
		return true, nil
	}

	settled, amount, err := s.gateway.Verify(ctx, ref)
	if err != nil {
		return false, err
	}
	if !settled {
		return false, nil
	}

	// The gateway's settled amount wins over what we asked for.
	if !amount.Equal(d.Amount) {
		s.log.Warn("deposit amount mismatch",
			zap.String("checkout_ref", ref),
			zap.String("expected", d.Amount.String()),
			zap.String("settled", amount.String()),
		)
	}

	credited := false
	err = s.txr.WithTx(ctx, func(tx pgx.Tx) error {
		ok, err := s.depositRepo.MarkSettledTx(ctx, tx, d.ID)
		if err != nil {
			return err
		}
		if !ok {
			// Another verification got there first.
			return nil
		}
		credited = true
		return s.ledger.CreditTx(ctx, tx, d.UserID, nil, models.LedgerEntryDeposit, amount)
	})
	if err != nil {
		return false, err
	}

	if credited && s.publisher != nil {
		_ = s.publisher.Publish(ctx, "events:contract", events.Event{
			Type: events.EventBalanceCredited,
			Payload: map[string]any{
				"user_id":      d.UserID.String(),
				"amount":       amount.String(),
				"checkout_ref": ref,
			},
		})
	}
	return true, nil
}

// VerifyPending walks pending deposits and settles any the gateway confirms.
// Called by the worker as a fallback when the callback never arrives.
func (s *PaymentService) VerifyPending(ctx context.Context, limit int) {
	deposits, err := s.depositRepo.ListPending(ctx, limit)
	if err != nil {
		s.log.Error("failed to list pending deposits", zap.Error(err))
		return
	}
	for _, d := range deposits {
		settled, err := s.VerifyDeposit(ctx, d.CheckoutRef)
		if err != nil {
			s.log.Warn("deposit verification failed",
				zap.String("checkout_ref", d.CheckoutRef),
				zap.Error(err),
			)
			continue
		}
		if settled || time.Since(d.CreatedAt) < depositPendingTTL {
			continue
		}
		if err := s.depositRepo.MarkFailed(ctx, d.ID); err != nil {
			s.log.Warn("failed to write off stale deposit",
				zap.String("checkout_ref", d.CheckoutRef),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("stale deposit written off", zap.String("checkout_ref", d.CheckoutRef))
	}
}
