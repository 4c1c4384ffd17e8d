package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Budget caps spending in a category over an optional date range.
type Budget struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	AccountID *uuid.UUID
	Name      string
	Category  string
	Amount    decimal.Decimal
	Spent     decimal.Decimal
	StartDate time.Time // zero = open
	EndDate   time.Time // zero = open
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining is Amount minus Spent, never below zero.
func (b Budget) Remaining() decimal.Decimal {
	r := b.Amount.Sub(b.Spent)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// FormatDate renders d as YYYY-MM-DD, or "" for the zero time.
func FormatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}
