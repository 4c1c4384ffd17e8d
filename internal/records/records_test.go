package records

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-dev/pennywise/internal/fieldcrypt"
	"github.com/pennywise-dev/pennywise/internal/model"
)

func newTestSealer(t *testing.T) (*Sealer, *fieldcrypt.Cipher) {
	t.Helper()
	hexKey, err := fieldcrypt.GenerateKey()
	require.NoError(t, err)
	key, err := fieldcrypt.ParseKey(hexKey)
	require.NoError(t, err)
	c, err := fieldcrypt.New(key)
	require.NoError(t, err)
	return NewSealer(c), c
}

func candidate() model.Transaction {
	acct := uuid.New()
	t := model.NewCandidate(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), "Coffee Shop", decimal.RequireFromString("-12.50"), "")
	t.UserID = uuid.New()
	t.AccountID = &acct
	return t
}

func TestTransactionRoundTrip(t *testing.T) {
	s, _ := newTestSealer(t)
	in := candidate()
	in.Notes = "team lunch"

	rec, err := s.SealTransaction(in)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05", rec.Date)
	assert.NotContains(t, rec.Description, "Coffee")
	assert.NotContains(t, rec.Amount, "12.5")
	require.NotNil(t, rec.Notes)
	assert.Len(t, rec.DedupKey, 64)

	out, err := s.OpenTransaction(rec)
	require.NoError(t, err)
	assert.Equal(t, "Coffee Shop", out.Description)
	assert.True(t, decimal.RequireFromString("-12.5").Equal(out.Amount))
	assert.Equal(t, model.DefaultCategory, out.Category)
	assert.Equal(t, model.TypeExpense, out.Type)
	assert.Equal(t, "team lunch", out.Notes)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, *in.AccountID, *out.AccountID)
	assert.Equal(t, "2024-01-05", out.DateString())
}

func TestSealTransaction_EmptyNotesStayAbsent(t *testing.T) {
	s, _ := newTestSealer(t)
	rec, err := s.SealTransaction(candidate())
	require.NoError(t, err)
	assert.Nil(t, rec.Notes)

	out, err := s.OpenTransaction(rec)
	require.NoError(t, err)
	assert.Equal(t, "", out.Notes)
}

func TestDedupKey_CanonicalAmount(t *testing.T) {
	s, _ := newTestSealer(t)
	a := candidate()
	b := candidate()
	b.Amount = decimal.RequireFromString("-12.5")
	assert.Equal(t, s.DedupKey(a), s.DedupKey(b))

	b.Description = "Coffee Shop #2"
	assert.NotEqual(t, s.DedupKey(a), s.DedupKey(b))
}

func TestOpenTransaction_CorruptAmount(t *testing.T) {
	s, c := newTestSealer(t)
	rec, err := s.SealTransaction(candidate())
	require.NoError(t, err)

	rec.Amount, err = c.Encrypt("twelve fifty")
	require.NoError(t, err)

	_, err = s.OpenTransaction(rec)
	assert.ErrorIs(t, err, ErrCorruptAmount)
	assert.NotErrorIs(t, err, fieldcrypt.ErrAuthentication)
}

func TestOpenTransaction_TamperedToken(t *testing.T) {
	s, _ := newTestSealer(t)
	rec, err := s.SealTransaction(candidate())
	require.NoError(t, err)

	other, _ := newTestSealer(t)
	foreign, err := other.SealTransaction(candidate())
	require.NoError(t, err)
	rec.Description = foreign.Description

	_, err = s.OpenTransaction(rec)
	assert.ErrorIs(t, err, fieldcrypt.ErrAuthentication)
}

func TestAccountRoundTrip(t *testing.T) {
	s, _ := newTestSealer(t)
	in := model.Account{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Name:    "Everyday",
		Type:    model.AccountTypeChecking,
		Balance: decimal.RequireFromString("1500.25"),
	}
	rec, err := s.SealAccount(in)
	require.NoError(t, err)
	assert.NotContains(t, rec.Name, "Everyday")

	out, err := s.OpenAccount(rec)
	require.NoError(t, err)
	assert.Equal(t, "Everyday", out.Name)
	assert.Equal(t, model.AccountTypeChecking, out.Type)
	assert.Equal(t, "1500.25", out.Balance.String())
}

func TestAmountHelpers(t *testing.T) {
	s, _ := newTestSealer(t)
	tok, err := s.SealAmount(decimal.RequireFromString("0"))
	require.NoError(t, err)
	d, err := s.OpenAmount(tok)
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = s.OpenAmount("not-a-token")
	assert.ErrorIs(t, err, fieldcrypt.ErrMalformedToken)
}

func TestBudgetRoundTrip(t *testing.T) {
	s, _ := newTestSealer(t)
	acct := uuid.New()
	in := model.Budget{
		UserID:    uuid.New(),
		AccountID: &acct,
		Name:      "Groceries",
		Category:  "Food",
		Amount:    decimal.RequireFromString("400"),
		Spent:     decimal.RequireFromString("125.40"),
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	rec, err := s.SealBudget(in)
	require.NoError(t, err)
	assert.NotContains(t, rec.Name, "Groceries")
	assert.NotContains(t, rec.Spent, "125.4")
	assert.Equal(t, "2024-01-01", rec.StartDate)
	assert.Empty(t, rec.EndDate)

	out, err := s.OpenBudget(rec)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", out.Name)
	assert.Equal(t, "Food", out.Category)
	assert.True(t, out.Amount.Equal(in.Amount))
	assert.True(t, out.Spent.Equal(in.Spent))
	assert.Equal(t, in.StartDate, out.StartDate)
	assert.True(t, out.EndDate.IsZero())
	assert.Equal(t, &acct, out.AccountID)
	assert.Equal(t, "274.6", out.Remaining().String())
}

func TestOpenBudget_CorruptSpent(t *testing.T) {
	s, c := newTestSealer(t)
	rec, err := s.SealBudget(model.Budget{UserID: uuid.New(), Name: "n", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	rec.Spent, err = c.Encrypt("lots")
	require.NoError(t, err)

	_, err = s.OpenBudget(rec)
	assert.ErrorIs(t, err, ErrCorruptAmount)
}
