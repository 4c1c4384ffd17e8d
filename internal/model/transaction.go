package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the ISO-8601 calendar date form used at every boundary.
const DateLayout = "2006-01-02"

// DefaultCategory is assigned when an import carries no category.
const DefaultCategory = "Uncategorized"

// TransactionType classifies a transaction by the sign of its amount.
type TransactionType string

const (
	TypeIncome  TransactionType = "INCOME"
	TypeExpense TransactionType = "EXPENSE"
)

// TypeFor returns INCOME for a positive amount and EXPENSE otherwise (zero included).
func TypeFor(amount decimal.Decimal) TransactionType {
	if amount.IsPositive() {
		return TypeIncome
	}
	return TypeExpense
}

// Transaction is a decrypted transaction, either a candidate built from an
// import row or a record read back from the store.
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	AccountID   *uuid.UUID
	Date        time.Time
	Description string
	Amount      decimal.Decimal // negative = expense, positive = income
	Category    string
	Notes       string // "" = absent, never stored encrypted
	Type        TransactionType
}

// NewCandidate builds an import candidate with Type derived from amount.
func NewCandidate(date time.Time, description string, amount decimal.Decimal, category string) Transaction {
	if category == "" {
		category = DefaultCategory
	}
	return Transaction{
		Date:        date,
		Description: description,
		Amount:      amount,
		Category:    category,
		Type:        TypeFor(amount),
	}
}

// DateString renders Date as YYYY-MM-DD.
func (t Transaction) DateString() string {
	return t.Date.Format(DateLayout)
}

// DuplicateKey is the tuple used to suppress re-imports of the same movement.
type DuplicateKey struct {
	Date        string
	Amount      string
	Description string
}

// Key returns the candidate's duplicate-suppression tuple. Amount uses the
// canonical decimal form so "12.50" and "12.5" collide.
func (t Transaction) Key() DuplicateKey {
	return DuplicateKey{
		Date:        t.DateString(),
		Amount:      t.Amount.String(),
		Description: t.Description,
	}
}

// Parts returns the key fields in fixed order.
func (k DuplicateKey) Parts() []string {
	return []string{k.Date, k.Amount, k.Description}
}
