// Package records converts between decrypted model values and the token-only
// store records. It is the single place sensitive fields cross the cipher.
package records

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/fieldcrypt"
	"github.com/pennywise-dev/pennywise/internal/model"
	"github.com/pennywise-dev/pennywise/internal/store"
)

// ErrCorruptAmount means a token decrypted but did not hold a decimal.
var ErrCorruptAmount = errors.New("decrypted amount is not a decimal")

// Sealer encrypts and decrypts records with one cipher.
type Sealer struct {
	cipher *fieldcrypt.Cipher
}

// NewSealer returns a Sealer using c.
func NewSealer(c *fieldcrypt.Cipher) *Sealer {
	return &Sealer{cipher: c}
}

// DedupKey returns the blind index for t's duplicate tuple.
func (s *Sealer) DedupKey(t model.Transaction) string {
	return s.cipher.BlindIndex(t.Key().Parts()...)
}

// SealTransaction encrypts t's sensitive fields. Empty notes stay absent.
func (s *Sealer) SealTransaction(t model.Transaction) (*store.TransactionRecord, error) {
	desc, err := s.cipher.Encrypt(t.Description)
	if err != nil {
		return nil, fmt.Errorf("encrypting description: %w", err)
	}
	amount, err := s.cipher.Encrypt(t.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("encrypting amount: %w", err)
	}
	category := t.Category
	if category == "" {
		category = model.DefaultCategory
	}
	cat, err := s.cipher.Encrypt(category)
	if err != nil {
		return nil, fmt.Errorf("encrypting category: %w", err)
	}
	typ := t.Type
	if typ == "" {
		typ = model.TypeFor(t.Amount)
	}
	typTok, err := s.cipher.Encrypt(string(typ))
	if err != nil {
		return nil, fmt.Errorf("encrypting type: %w", err)
	}
	notes, err := s.cipher.EncryptOptional(t.Notes)
	if err != nil {
		return nil, fmt.Errorf("encrypting notes: %w", err)
	}

	return &store.TransactionRecord{
		ID:          t.ID,
		UserID:      t.UserID,
		AccountID:   t.AccountID,
		Date:        t.DateString(),
		Description: desc,
		Amount:      amount,
		Category:    cat,
		Type:        typTok,
		Notes:       notes,
		DedupKey:    s.DedupKey(t),
	}, nil
}

// OpenTransaction decrypts rec.
func (s *Sealer) OpenTransaction(rec *store.TransactionRecord) (model.Transaction, error) {
	date, err := parseDate(rec.Date)
	if err != nil {
		return model.Transaction{}, err
	}
	desc, err := s.cipher.Decrypt(rec.Description)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s description: %w", rec.ID, err)
	}
	amount, err := s.openAmount(rec.Amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", rec.ID, err)
	}
	cat, err := s.cipher.Decrypt(rec.Category)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s category: %w", rec.ID, err)
	}
	typ, err := s.cipher.Decrypt(rec.Type)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s type: %w", rec.ID, err)
	}
	notes, err := s.cipher.DecryptOptional(rec.Notes)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s notes: %w", rec.ID, err)
	}

	return model.Transaction{
		ID:          rec.ID,
		UserID:      rec.UserID,
		AccountID:   rec.AccountID,
		Date:        date,
		Description: desc,
		Amount:      amount,
		Category:    cat,
		Notes:       notes,
		Type:        model.TransactionType(typ),
	}, nil
}

// OpenAmount decrypts an amount token on its own, for balance updates.
func (s *Sealer) OpenAmount(token string) (decimal.Decimal, error) {
	return s.openAmount(token)
}

// SealAmount encrypts an amount as its decimal string.
func (s *Sealer) SealAmount(d decimal.Decimal) (string, error) {
	tok, err := s.cipher.Encrypt(d.String())
	if err != nil {
		return "", fmt.Errorf("encrypting amount: %w", err)
	}
	return tok, nil
}

// SealText encrypts a non-empty string, for partial updates.
func (s *Sealer) SealText(v string) (string, error) {
	return s.cipher.Encrypt(v)
}

// SealOptional encrypts v, returning nil when v is empty.
func (s *Sealer) SealOptional(v string) (*string, error) {
	return s.cipher.EncryptOptional(v)
}

func (s *Sealer) openAmount(token string) (decimal.Decimal, error) {
	plain, err := s.cipher.Decrypt(token)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount: %w", err)
	}
	d, err := decimal.NewFromString(plain)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrCorruptAmount, err)
	}
	return d, nil
}

// SealAccount encrypts a's name, type and balance.
func (s *Sealer) SealAccount(a model.Account) (*store.AccountRecord, error) {
	name, err := s.cipher.Encrypt(a.Name)
	if err != nil {
		return nil, fmt.Errorf("encrypting account name: %w", err)
	}
	typ, err := s.cipher.Encrypt(string(a.Type))
	if err != nil {
		return nil, fmt.Errorf("encrypting account type: %w", err)
	}
	bal, err := s.SealAmount(a.Balance)
	if err != nil {
		return nil, err
	}
	return &store.AccountRecord{
		ID:        a.ID,
		UserID:    a.UserID,
		Name:      name,
		Type:      typ,
		Balance:   bal,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}, nil
}

// OpenAccount decrypts rec.
func (s *Sealer) OpenAccount(rec *store.AccountRecord) (model.Account, error) {
	name, err := s.cipher.Decrypt(rec.Name)
	if err != nil {
		return model.Account{}, fmt.Errorf("account %s name: %w", rec.ID, err)
	}
	typ, err := s.cipher.Decrypt(rec.Type)
	if err != nil {
		return model.Account{}, fmt.Errorf("account %s type: %w", rec.ID, err)
	}
	bal, err := s.openAmount(rec.Balance)
	if err != nil {
		return model.Account{}, fmt.Errorf("account %s balance: %w", rec.ID, err)
	}
	return model.Account{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Name:      name,
		Type:      model.AccountType(typ),
		Balance:   bal,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// SealBudget encrypts b's name, category, amount and spent. Dates stay
// plaintext like transaction dates.
func (s *Sealer) SealBudget(b model.Budget) (*store.BudgetRecord, error) {
	name, err := s.cipher.Encrypt(b.Name)
	if err != nil {
		return nil, fmt.Errorf("encrypting budget name: %w", err)
	}
	category := b.Category
	if category == "" {
		category = model.DefaultCategory
	}
	cat, err := s.cipher.Encrypt(category)
	if err != nil {
		return nil, fmt.Errorf("encrypting budget category: %w", err)
	}
	amount, err := s.SealAmount(b.Amount)
	if err != nil {
		return nil, err
	}
	spent, err := s.SealAmount(b.Spent)
	if err != nil {
		return nil, err
	}
	return &store.BudgetRecord{
		ID:        b.ID,
		UserID:    b.UserID,
		AccountID: b.AccountID,
		Name:      name,
		Category:  cat,
		Amount:    amount,
		Spent:     spent,
		StartDate: model.FormatDate(b.StartDate),
		EndDate:   model.FormatDate(b.EndDate),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}, nil
}

// OpenBudget decrypts rec.
func (s *Sealer) OpenBudget(rec *store.BudgetRecord) (model.Budget, error) {
	name, err := s.cipher.Decrypt(rec.Name)
	if err != nil {
		return model.Budget{}, fmt.Errorf("budget %s name: %w", rec.ID, err)
	}
	cat, err := s.cipher.Decrypt(rec.Category)
	if err != nil {
		return model.Budget{}, fmt.Errorf("budget %s category: %w", rec.ID, err)
	}
	amount, err := s.openAmount(rec.Amount)
	if err != nil {
		return model.Budget{}, fmt.Errorf("budget %s amount: %w", rec.ID, err)
	}
	spent, err := s.openAmount(rec.Spent)
	if err != nil {
		return model.Budget{}, fmt.Errorf("budget %s spent: %w", rec.ID, err)
	}
	b := model.Budget{
		ID:        rec.ID,
		UserID:    rec.UserID,
		AccountID: rec.AccountID,
		Name:      name,
		Category:  cat,
		Amount:    amount,
		Spent:     spent,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.StartDate != "" {
		if b.StartDate, err = parseDate(rec.StartDate); err != nil {
			return model.Budget{}, err
		}
	}
	if rec.EndDate != "" {
		if b.EndDate, err = parseDate(rec.EndDate); err != nil {
			return model.Budget{}, err
		}
	}
	return b, nil
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored date %q: %w", s, err)
	}
	return d, nil
}
