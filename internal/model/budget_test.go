package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBudgetRemaining(t *testing.T) {
	b := Budget{Amount: decimal.RequireFromString("100"), Spent: decimal.RequireFromString("30.5")}
	assert.Equal(t, "69.5", b.Remaining().String())

	b.Spent = decimal.RequireFromString("150")
	assert.True(t, b.Remaining().IsZero())
}

func TestFormatDate(t *testing.T) {
	assert.Empty(t, FormatDate(time.Time{}))
	assert.Equal(t, "2024-03-09", FormatDate(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
}
