package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
	"github.com/monitizeclub/monitize-backend/internal/repo"
)

// Balance summarizes a creator's earnings.
type Balance struct {
	Earnings  decimal.Decimal `json:"earnings"`
	Committed decimal.Decimal `json:"committed"`
	Available decimal.Decimal `json:"available"`
}

// WithdrawalOverview is what a creator sees before requesting a payout.
type WithdrawalOverview struct {
	Payout   repo.PayoutDetails         `json:"payout"`
	Balance  Balance                    `json:"balance"`
	Requests []domain.WithdrawalRequest `json:"requests"`
}

// WithdrawalService handles creator payout requests.
type WithdrawalService struct {
	DB     *gorm.DB
	Logger zerolog.Logger
}

// Overview returns the saved payout details, balance and past requests of
// creatorID.
func (s *WithdrawalService) Overview(ctx context.Context, creatorID string) (*WithdrawalOverview, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, ErrUnauthenticated
	}
	out := &WithdrawalOverview{}
	p, err := repo.GetProfile(ctx, s.DB, creatorID)
	switch {
	case err == nil:
		out.Payout = repo.PayoutDetails{
			UPIID:             p.UPIID,
			BankAccountName:   p.BankAccountName,
			BankAccountNumber: p.BankAccountNumber,
			BankIFSC:          p.BankIFSC,
		}
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	if out.Balance, err = balance(ctx, s.DB, creatorID); err != nil {
		return nil, err
	}
	if out.Requests, err = repo.ListWithdrawals(ctx, s.DB, creatorID); err != nil {
		return nil, err
	}
	if out.Requests == nil {
		out.Requests = []domain.WithdrawalRequest{}
	}
	return out, nil
}

// Request files a withdrawal of amount for creatorID and saves the payout
// details to the creator's profile. The creator's profile row is locked
// FOR UPDATE before the balance is read, so concurrent requests for the same
// creator check and insert one at a time.
func (s *WithdrawalService) Request(ctx context.Context, creatorID string, amount decimal.Decimal, d repo.PayoutDetails) (*domain.WithdrawalRequest, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, ErrUnauthenticated
	}
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount must be positive with at most two decimals", ErrInvalidInput)
	}
	d = trimPayout(d)
	if d.UPIID == "" && (d.BankAccountName == "" || d.BankAccountNumber == "" || d.BankIFSC == "") {
		return nil, ErrPayoutDetails
	}

	w := &domain.WithdrawalRequest{
		ID:                uuid.NewString(),
		CreatorID:         creatorID,
		Amount:            amount,
		Status:            domain.WithdrawalPending,
		UPIID:             d.UPIID,
		BankAccountName:   d.BankAccountName,
		BankAccountNumber: d.BankAccountNumber,
		BankIFSC:          d.BankIFSC,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.LockProfile(ctx, tx, creatorID); err != nil {
			return err
		}
		b, err := balance(ctx, tx, creatorID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(b.Available) {
			return ErrInsufficientBalance
		}
		if err := repo.SavePayoutDetails(ctx, tx, creatorID, d); err != nil {
			return err
		}
		return repo.CreateWithdrawal(ctx, tx, w)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info().Str("creator_id", creatorID).Str("amount", amount.StringFixed(2)).Msg("withdrawal requested")
	return w, nil
}

func balance(ctx context.Context, db *gorm.DB, creatorID string) (Balance, error) {
	earned, err := repo.CreatorEarnings(ctx, db, creatorID)
	if err != nil {
		return Balance{}, err
	}
	committed, err := repo.CommittedWithdrawals(ctx, db, creatorID)
	if err != nil {
		return Balance{}, err
	}
	avail := earned.Sub(committed)
	if avail.IsNegative() {
		avail = decimal.Zero
	}
	return Balance{Earnings: earned, Committed: committed, Available: avail}, nil
}

func trimPayout(d repo.PayoutDetails) repo.PayoutDetails {
	return repo.PayoutDetails{
		UPIID:             strings.TrimSpace(d.UPIID),
		BankAccountName:   strings.TrimSpace(d.BankAccountName),
		BankAccountNumber: strings.TrimSpace(d.BankAccountNumber),
		BankIFSC:          strings.ToUpper(strings.TrimSpace(d.BankIFSC)),
	}
}
