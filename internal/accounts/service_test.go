package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-dev/pennywise/internal/fieldcrypt"
	"github.com/pennywise-dev/pennywise/internal/model"
	"github.com/pennywise-dev/pennywise/internal/records"
	"github.com/pennywise-dev/pennywise/internal/store"
	"github.com/pennywise-dev/pennywise/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	hexKey, err := fieldcrypt.GenerateKey()
	require.NoError(t, err)
	key, err := fieldcrypt.ParseKey(hexKey)
	require.NoError(t, err)
	c, err := fieldcrypt.New(key)
	require.NoError(t, err)
	st := memory.New()
	return NewService(st, records.NewSealer(c)), st
}

func TestCreateGet(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	acct, err := svc.Create(ctx, user, "  Everyday  ", model.AccountTypeChecking, decimal.RequireFromString("100.50"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, acct.ID)
	assert.Equal(t, "Everyday", acct.Name)

	rec, err := st.GetAccount(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.NotContains(t, rec.Name, "Everyday")

	got, err := svc.Get(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "Everyday", got.Name)
	assert.Equal(t, "100.5", got.Balance.String())

	_, err = svc.Get(ctx, uuid.New(), acct.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.New(), " ", model.AccountTypeCash, decimal.Zero)
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = svc.Create(ctx, uuid.New(), "Broker", model.AccountType("crypto"), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestExists(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	acct, err := svc.Create(ctx, user, "Cash", model.AccountTypeCash, decimal.Zero)
	require.NoError(t, err)

	ok, err := svc.Exists(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, user, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllByType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	for _, a := range DefaultAccounts() {
		_, err := svc.Create(ctx, user, a.Name, a.Type, a.Balance)
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, uuid.New(), "Other user", model.AccountTypeCash, decimal.Zero)
	require.NoError(t, err)

	all, err := svc.All(ctx, user)
	require.NoError(t, err)
	assert.Len(t, all, len(DefaultAccounts()))

	cash, err := svc.ByType(ctx, user, model.AccountTypeCash)
	require.NoError(t, err)
	require.Len(t, cash, 1)
	assert.Equal(t, "Cash", cash[0].Name)
}

func TestAdjustBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	acct, err := svc.Create(ctx, user, "Checking", model.AccountTypeChecking, decimal.RequireFromString("100"))
	require.NoError(t, err)

	bal, err := svc.AdjustBalance(ctx, user, acct.ID, decimal.RequireFromString("-12.5"))
	require.NoError(t, err)
	assert.Equal(t, "87.5", bal.String())

	bal, err = svc.AdjustBalance(ctx, user, acct.ID, decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	assert.Equal(t, "90", bal.String())

	got, err := svc.Get(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "90", got.Balance.String())

	_, err = svc.AdjustBalance(ctx, user, uuid.New(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	acct, err := svc.Create(ctx, user, "Checking", model.AccountTypeChecking, decimal.RequireFromString("10"))
	require.NoError(t, err)

	name, typ, bal := " Joint ", model.AccountTypeSavings, decimal.RequireFromString("250.75")
	got, err := svc.Update(ctx, user, acct.ID, Update{Name: &name, Type: &typ, Balance: &bal})
	require.NoError(t, err)
	assert.Equal(t, "Joint", got.Name)
	assert.Equal(t, model.AccountTypeSavings, got.Type)
	assert.Equal(t, "250.75", got.Balance.String())

	rec, err := st.GetAccount(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.NotContains(t, rec.Name, "Joint")

	blank := "  "
	_, err = svc.Update(ctx, user, acct.ID, Update{Name: &blank})
	assert.ErrorIs(t, err, ErrEmptyName)
	bad := model.AccountType("crypto")
	_, err = svc.Update(ctx, user, acct.ID, Update{Type: &bad})
	assert.ErrorIs(t, err, ErrInvalidType)
	_, err = svc.Update(ctx, uuid.New(), acct.ID, Update{Name: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	acct, err := svc.Create(ctx, user, "Checking", model.AccountTypeChecking, decimal.Zero)
	require.NoError(t, err)

	pending := &store.TransactionRecord{UserID: user, AccountID: &acct.ID, Date: "2024-01-01", DedupKey: "k", BalanceStatus: store.BalancePending}
	require.NoError(t, st.InsertTransaction(ctx, pending))
	assert.ErrorIs(t, svc.Delete(ctx, user, acct.ID), ErrPendingBalance)

	applied := store.BalanceApplied
	require.NoError(t, st.UpdateTransaction(ctx, user, pending.ID, store.TransactionPatch{BalanceStatus: &applied}))
	require.NoError(t, svc.Delete(ctx, user, acct.ID))

	ok, err := svc.Exists(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, svc.Delete(ctx, user, acct.ID), store.ErrNotFound)
}

func TestDefaultAccounts(t *testing.T) {
	for _, a := range DefaultAccounts() {
		assert.True(t, a.Type.Valid(), a.Name)
		assert.True(t, a.Balance.IsZero())
	}
}
