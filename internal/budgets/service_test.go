package budgets

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-dev/pennywise/internal/accounts"
	"github.com/pennywise-dev/pennywise/internal/fieldcrypt"
	"github.com/pennywise-dev/pennywise/internal/model"
	"github.com/pennywise-dev/pennywise/internal/records"
	"github.com/pennywise-dev/pennywise/internal/store"
	"github.com/pennywise-dev/pennywise/internal/store/memory"
)

type fixture struct {
	budgets  *Service
	accounts *accounts.Service
	store    *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hexKey, err := fieldcrypt.GenerateKey()
	require.NoError(t, err)
	key, err := fieldcrypt.ParseKey(hexKey)
	require.NoError(t, err)
	c, err := fieldcrypt.New(key)
	require.NoError(t, err)
	st := memory.New()
	sealer := records.NewSealer(c)
	return &fixture{budgets: NewService(st, sealer), accounts: accounts.NewService(st, sealer), store: st}
}

func day(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateGet(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	b, err := fx.budgets.Create(ctx, user, model.Budget{
		Name:      " Groceries ",
		Category:  "Food",
		Amount:    dec("400"),
		StartDate: day("2024-01-01"),
		EndDate:   day("2024-01-31"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, "Groceries", b.Name)
	assert.True(t, b.Spent.IsZero())

	rec, err := fx.store.GetBudget(ctx, user, b.ID)
	require.NoError(t, err)
	assert.NotContains(t, rec.Name, "Groceries")
	assert.NotContains(t, rec.Amount, "400")
	assert.Equal(t, "2024-01-31", rec.EndDate)

	got, err := fx.budgets.Get(ctx, user, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Name)
	assert.Equal(t, "Food", got.Category)
	assert.Equal(t, "400", got.Amount.String())
	assert.Equal(t, day("2024-01-01"), got.StartDate)

	_, err = fx.budgets.Get(ctx, uuid.New(), b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreate_Validation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	missing := uuid.New()

	tests := []struct {
		name   string
		budget model.Budget
		want   error
	}{
		{"empty name", model.Budget{Name: " ", Amount: dec("1")}, ErrEmptyName},
		{"negative amount", model.Budget{Name: "n", Amount: dec("-1")}, ErrNegativeAmount},
		{"end before start", model.Budget{Name: "n", StartDate: day("2024-02-01"), EndDate: day("2024-01-01")}, ErrDateRange},
		{"unknown account", model.Budget{Name: "n", AccountID: &missing}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.budgets.Create(ctx, uuid.New(), tt.budget)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestList_ByAccount(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	acct, err := fx.accounts.Create(ctx, user, "Checking", model.AccountTypeChecking, decimal.Zero)
	require.NoError(t, err)

	_, err = fx.budgets.Create(ctx, user, model.Budget{Name: "Loose", Amount: dec("50")})
	require.NoError(t, err)
	linked, err := fx.budgets.Create(ctx, user, model.Budget{Name: "Linked", Amount: dec("75"), AccountID: &acct.ID})
	require.NoError(t, err)
	_, err = fx.budgets.Create(ctx, uuid.New(), model.Budget{Name: "Other user", Amount: dec("1")})
	require.NoError(t, err)

	all, err := fx.budgets.List(ctx, user, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byAccount, err := fx.budgets.List(ctx, user, &acct.ID)
	require.NoError(t, err)
	require.Len(t, byAccount, 1)
	assert.Equal(t, linked.ID, byAccount[0].ID)
	assert.Equal(t, "Linked", byAccount[0].Name)
}

func TestUpdate_Contribute(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	b, err := fx.budgets.Create(ctx, user, model.Budget{Name: "Fun", Amount: dec("100")})
	require.NoError(t, err)

	add := dec("30.25")
	got, err := fx.budgets.Update(ctx, user, b.ID, Update{Contribute: &add})
	require.NoError(t, err)
	assert.Equal(t, "30.25", got.Spent.String())
	assert.Equal(t, "69.75", got.Remaining().String())

	refund := dec("-50")
	got, err = fx.budgets.Update(ctx, user, b.ID, Update{Contribute: &refund})
	require.NoError(t, err)
	assert.True(t, got.Spent.IsZero(), "spent never drops below zero, got %s", got.Spent)
	assert.Equal(t, "Fun", got.Name)
}

func TestUpdate_Fields(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	acct, err := fx.accounts.Create(ctx, user, "Savings", model.AccountTypeSavings, decimal.Zero)
	require.NoError(t, err)
	b, err := fx.budgets.Create(ctx, user, model.Budget{Name: "Trip", Amount: dec("500"), StartDate: day("2024-06-01")})
	require.NoError(t, err)

	name, cat, amount, end := "Summer trip", "Travel", dec("650"), day("2024-08-31")
	got, err := fx.budgets.Update(ctx, user, b.ID, Update{Name: &name, Category: &cat, Amount: &amount, EndDate: &end, AccountID: &acct.ID})
	require.NoError(t, err)
	assert.Equal(t, "Summer trip", got.Name)
	assert.Equal(t, "Travel", got.Category)
	assert.Equal(t, "650", got.Amount.String())
	assert.Equal(t, end, got.EndDate)
	require.NotNil(t, got.AccountID)
	assert.Equal(t, acct.ID, *got.AccountID)

	got, err = fx.budgets.Update(ctx, user, b.ID, Update{ClearAccount: true})
	require.NoError(t, err)
	assert.Nil(t, got.AccountID)

	early := day("2024-05-01")
	_, err = fx.budgets.Update(ctx, user, b.ID, Update{EndDate: &early})
	assert.ErrorIs(t, err, ErrDateRange)
	blank := ""
	_, err = fx.budgets.Update(ctx, user, b.ID, Update{Name: &blank})
	assert.ErrorIs(t, err, ErrEmptyName)
	missing := uuid.New()
	_, err = fx.budgets.Update(ctx, user, b.ID, Update{AccountID: &missing})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = fx.budgets.Update(ctx, uuid.New(), b.ID, Update{Name: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	b, err := fx.budgets.Create(ctx, user, model.Budget{Name: "Gone", Amount: dec("1")})
	require.NoError(t, err)

	assert.ErrorIs(t, fx.budgets.Delete(ctx, uuid.New(), b.ID), store.ErrNotFound)
	require.NoError(t, fx.budgets.Delete(ctx, user, b.ID))
	_, err = fx.budgets.Get(ctx, user, b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
