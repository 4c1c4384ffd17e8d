package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/model"
	"github.com/pennywise-dev/pennywise/internal/records"
	"github.com/pennywise-dev/pennywise/internal/store"
)

var (
	ErrEmptyName      = errors.New("account name is required")
	ErrInvalidType    = errors.New("invalid account type")
	ErrPendingBalance = errors.New("account has transactions waiting for balance reconciliation")
)

// Update is a partial account edit. Nil fields are left unchanged.
type Update struct {
	Name    *string
	Type    *model.AccountType
	Balance *decimal.Decimal
}

// Service manages a user's encrypted accounts.
type Service struct {
	store  store.Store
	sealer *records.Sealer
}

// NewService creates a Service over st.
func NewService(st store.Store, sealer *records.Sealer) *Service {
	return &Service{store: st, sealer: sealer}
}

// WithStore returns a Service bound to st, typically a transaction handle.
func (s *Service) WithStore(st store.Store) *Service {
	return &Service{store: st, sealer: s.sealer}
}

// Create stores a new account with an opening balance.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string, typ model.AccountType, opening decimal.Decimal) (model.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Account{}, ErrEmptyName
	}
	if !typ.Valid() {
		return model.Account{}, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}

	acct := model.Account{UserID: userID, Name: name, Type: typ, Balance: opening}
	rec, err := s.sealer.SealAccount(acct)
	if err != nil {
		return model.Account{}, err
	}
	if err := s.store.InsertAccount(ctx, rec); err != nil {
		return model.Account{}, fmt.Errorf("creating account: %w", err)
	}
	acct.ID = rec.ID
	acct.CreatedAt = rec.CreatedAt
	acct.UpdatedAt = rec.UpdatedAt
	return acct, nil
}

// Get returns one decrypted account.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (model.Account, error) {
	rec, err := s.store.GetAccount(ctx, userID, id)
	if err != nil {
		return model.Account{}, err
	}
	return s.sealer.OpenAccount(rec)
}

// Exists reports whether the user owns an account with id.
func (s *Service) Exists(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	_, err := s.store.GetAccount(ctx, userID, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// All returns every account of the user, oldest first.
func (s *Service) All(ctx context.Context, userID uuid.UUID) ([]model.Account, error) {
	recs, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	accts := make([]model.Account, 0, len(recs))
	for i := range recs {
		a, err := s.sealer.OpenAccount(&recs[i])
		if err != nil {
			return nil, err
		}
		accts = append(accts, a)
	}
	return accts, nil
}

// ByType returns the user's accounts of the given type.
func (s *Service) ByType(ctx context.Context, userID uuid.UUID, accountType model.AccountType) ([]model.Account, error) {
	all, err := s.All(ctx, userID)
	if err != nil {
		return nil, err
	}
	var result []model.Account
	for _, a := range all {
		if a.Type == accountType {
			result = append(result, a)
		}
	}
	return result, nil
}

// Update applies u to the account and returns the result.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, u Update) (model.Account, error) {
	var patch store.AccountPatch
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return model.Account{}, ErrEmptyName
		}
		tok, err := s.sealer.SealText(name)
		if err != nil {
			return model.Account{}, fmt.Errorf("encrypting account name: %w", err)
		}
		patch.Name = &tok
	}
	if u.Type != nil {
		if !u.Type.Valid() {
			return model.Account{}, fmt.Errorf("%w: %q", ErrInvalidType, *u.Type)
		}
		tok, err := s.sealer.SealText(string(*u.Type))
		if err != nil {
			return model.Account{}, fmt.Errorf("encrypting account type: %w", err)
		}
		patch.Type = &tok
	}
	if u.Balance != nil {
		tok, err := s.sealer.SealAmount(*u.Balance)
		if err != nil {
			return model.Account{}, err
		}
		patch.Balance = &tok
	}

	if err := s.store.UpdateAccount(ctx, userID, id, patch); err != nil {
		return model.Account{}, err
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the account. Transactions keep their account ID. An account
// with pending balance updates is refused, since reconcile could no longer
// apply them.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.Exists(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	pending, err := s.store.ListTransactions(ctx, userID, store.TransactionFilter{AccountID: &id, BalanceStatus: store.BalancePending})
	if err != nil {
		return fmt.Errorf("checking pending balance: %w", err)
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w (%d)", ErrPendingBalance, len(pending))
	}
	return s.store.DeleteAccount(ctx, userID, id)
}

// AdjustBalance adds delta to the account balance and returns the new
// balance. It is a read-modify-write; run it inside store.Transactor.InTx
// when atomicity matters.
func (s *Service) AdjustBalance(ctx context.Context, userID, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	rec, err := s.store.GetAccount(ctx, userID, id)
	if err != nil {
		return decimal.Zero, err
	}
	current, err := s.sealer.OpenAmount(rec.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("account %s balance: %w", id, err)
	}

	next := current.Add(delta)
	tok, err := s.sealer.SealAmount(next)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.store.UpdateAccount(ctx, userID, id, store.AccountPatch{Balance: &tok}); err != nil {
		return decimal.Zero, fmt.Errorf("updating balance: %w", err)
	}
	return next, nil
}
