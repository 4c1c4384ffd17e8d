// Package budgets manages per-user spending budgets with encrypted fields.
package budgets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/accounts"
	"github.com/pennywise-dev/pennywise/internal/model"
	"github.com/pennywise-dev/pennywise/internal/records"
	"github.com/pennywise-dev/pennywise/internal/store"
)

var (
	ErrEmptyName      = errors.New("budget name is required")
	ErrNegativeAmount = errors.New("budget amount cannot be negative")
	ErrDateRange      = errors.New("budget end date is before its start date")
)

// Update is a partial budget edit. Nil fields are left unchanged. Contribute
// is added to Spent, and Spent never drops below zero.
type Update struct {
	AccountID    *uuid.UUID
	ClearAccount bool
	Name         *string
	Category     *string
	Amount       *decimal.Decimal
	StartDate    *time.Time
	EndDate      *time.Time
	Contribute   *decimal.Decimal
}

// Service manages budgets.
type Service struct {
	store    store.Store
	sealer   *records.Sealer
	accounts *accounts.Service
}

// NewService creates a Service over st.
func NewService(st store.Store, sealer *records.Sealer) *Service {
	return &Service{store: st, sealer: sealer, accounts: accounts.NewService(st, sealer)}
}

// Create validates and stores b for userID. Spent starts at b.Spent, which
// is normally zero.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, b model.Budget) (model.Budget, error) {
	b.UserID = userID
	b.Name = strings.TrimSpace(b.Name)
	b.Category = strings.TrimSpace(b.Category)
	if b.Spent.IsNegative() {
		b.Spent = decimal.Zero
	}
	if err := validate(b); err != nil {
		return model.Budget{}, err
	}
	if b.AccountID != nil {
		if err := s.checkAccount(ctx, userID, *b.AccountID); err != nil {
			return model.Budget{}, err
		}
	}

	rec, err := s.sealer.SealBudget(b)
	if err != nil {
		return model.Budget{}, err
	}
	if err := s.store.InsertBudget(ctx, rec); err != nil {
		return model.Budget{}, fmt.Errorf("creating budget: %w", err)
	}
	b.ID = rec.ID
	b.CreatedAt = rec.CreatedAt
	b.UpdatedAt = rec.UpdatedAt
	if b.Category == "" {
		b.Category = model.DefaultCategory
	}
	return b, nil
}

// Get returns one decrypted budget.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (model.Budget, error) {
	rec, err := s.store.GetBudget(ctx, userID, id)
	if err != nil {
		return model.Budget{}, err
	}
	return s.sealer.OpenBudget(rec)
}

// List returns the user's budgets, newest first. A non-nil accountID limits
// the result to that account.
func (s *Service) List(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID) ([]model.Budget, error) {
	recs, err := s.store.ListBudgets(ctx, userID, store.BudgetFilter{AccountID: accountID})
	if err != nil {
		return nil, err
	}
	out := make([]model.Budget, 0, len(recs))
	for i := range recs {
		b, err := s.sealer.OpenBudget(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Update applies u and returns the stored result.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, u Update) (model.Budget, error) {
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return model.Budget{}, err
	}

	next := current
	if u.ClearAccount {
		next.AccountID = nil
	} else if u.AccountID != nil {
		next.AccountID = u.AccountID
	}
	if u.Name != nil {
		next.Name = strings.TrimSpace(*u.Name)
	}
	if u.Category != nil {
		next.Category = strings.TrimSpace(*u.Category)
		if next.Category == "" {
			next.Category = model.DefaultCategory
		}
	}
	if u.Amount != nil {
		next.Amount = *u.Amount
	}
	if u.StartDate != nil {
		next.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		next.EndDate = *u.EndDate
	}
	if u.Contribute != nil {
		next.Spent = decimal.Max(current.Spent.Add(*u.Contribute), decimal.Zero)
	}
	if err := validate(next); err != nil {
		return model.Budget{}, err
	}
	if u.AccountID != nil && !u.ClearAccount {
		if err := s.checkAccount(ctx, userID, *u.AccountID); err != nil {
			return model.Budget{}, err
		}
	}

	patch, err := s.patch(u, next)
	if err != nil {
		return model.Budget{}, err
	}
	if err := s.store.UpdateBudget(ctx, userID, id, patch); err != nil {
		return model.Budget{}, err
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the budget.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.DeleteBudget(ctx, userID, id)
}

func validate(b model.Budget) error {
	if b.Name == "" {
		return ErrEmptyName
	}
	if b.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !b.StartDate.IsZero() && !b.EndDate.IsZero() && b.EndDate.Before(b.StartDate) {
		return ErrDateRange
	}
	return nil
}

func (s *Service) checkAccount(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.accounts.Exists(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("budget account: %w", err)
	}
	if !ok {
		return fmt.Errorf("budget account %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// patch seals the fields u touches, taking their values from next.
func (s *Service) patch(u Update, next model.Budget) (store.BudgetPatch, error) {
	p := store.BudgetPatch{AccountID: u.AccountID, ClearAccount: u.ClearAccount}
	seal := func(set bool, plain string, dst **string) error {
		if !set {
			return nil
		}
		tok, err := s.sealer.SealText(plain)
		if err != nil {
			return err
		}
		*dst = &tok
		return nil
	}
	if err := seal(u.Name != nil, next.Name, &p.Name); err != nil {
		return p, fmt.Errorf("encrypting budget name: %w", err)
	}
	if err := seal(u.Category != nil, next.Category, &p.Category); err != nil {
		return p, fmt.Errorf("encrypting budget category: %w", err)
	}
	if u.Amount != nil {
		tok, err := s.sealer.SealAmount(next.Amount)
		if err != nil {
			return p, err
		}
		p.Amount = &tok
	}
	if u.Contribute != nil {
		tok, err := s.sealer.SealAmount(next.Spent)
		if err != nil {
			return p, err
		}
		p.Spent = &tok
	}
	if u.StartDate != nil {
		d := model.FormatDate(next.StartDate)
		p.StartDate = &d
	}
	if u.EndDate != nil {
		d := model.FormatDate(next.EndDate)
		p.EndDate = &d
	}
	return p, nil
}
