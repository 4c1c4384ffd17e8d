package accounts

import (
	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/model"
)

// DefaultAccounts returns the starter set offered to a new user. Balances
// start at zero.
func DefaultAccounts() []model.Account {
	return []model.Account{
		{Name: "Everyday Checking", Type: model.AccountTypeChecking, Balance: decimal.Zero},
		{Name: "Savings", Type: model.AccountTypeSavings, Balance: decimal.Zero},
		{Name: "Credit Card", Type: model.AccountTypeCreditCard, Balance: decimal.Zero},
		{Name: "Cash", Type: model.AccountTypeCash, Balance: decimal.Zero},
	}
}
