// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-dev/pennywise/internal/store"
)

// Run exercises newStore against the store contract. newStore must return an
// empty store each call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("InsertAndFindDuplicate", func(t *testing.T) { testInsertAndFindDuplicate(t, newStore(t)) })
	t.Run("UserScoping", func(t *testing.T) { testUserScoping(t, newStore(t)) })
	t.Run("UpdateTransaction", func(t *testing.T) { testUpdateTransaction(t, newStore(t)) })
	t.Run("ListTransactions", func(t *testing.T) { testListTransactions(t, newStore(t)) })
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("Batches", func(t *testing.T) { testBatches(t, newStore(t)) })
	t.Run("GetDeleteTransaction", func(t *testing.T) { testGetDeleteTransaction(t, newStore(t)) })
	t.Run("DeleteAccount", func(t *testing.T) { testDeleteAccount(t, newStore(t)) })
	t.Run("Budgets", func(t *testing.T) { testBudgets(t, newStore(t)) })
	t.Run("BudgetScoping", func(t *testing.T) { testBudgetScoping(t, newStore(t)) })
}

func txn(userID uuid.UUID, date, dedup string) *store.TransactionRecord {
	return &store.TransactionRecord{
		UserID:      userID,
		Date:        date,
		Description: "desc-token",
		Amount:      "amount-token",
		Category:    "category-token",
		Type:        "type-token",
		DedupKey:    dedup,
	}
}

func testInsertAndFindDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()

	rec := txn(user, "2024-01-05", "k1")
	require.NoError(t, s.InsertTransaction(ctx, rec))
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, store.BalanceNone, rec.BalanceStatus)
	assert.False(t, rec.CreatedAt.IsZero())

	found, err := s.FindDuplicate(ctx, user, "k1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rec.ID, found.ID)
	assert.Nil(t, found.Notes)

	missing, err := s.FindDuplicate(ctx, user, "k2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testUserScoping(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	rec := txn(alice, "2024-01-05", "shared")
	require.NoError(t, s.InsertTransaction(ctx, rec))

	found, err := s.FindDuplicate(ctx, bob, "shared")
	require.NoError(t, err)
	assert.Nil(t, found)

	cat := "other"
	err = s.UpdateTransaction(ctx, bob, rec.ID, store.TransactionPatch{Category: &cat})
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListTransactions(ctx, bob, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	acct := &store.AccountRecord{UserID: alice, Name: "n", Type: "t", Balance: "b"}
	require.NoError(t, s.InsertAccount(ctx, acct))
	_, err = s.GetAccount(ctx, bob, acct.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateTransaction(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()
	rec := txn(user, "2024-01-05", "k1")
	require.NoError(t, s.InsertTransaction(ctx, rec))

	cat, notes := "new-category", "notes-token"
	pending := store.BalancePending
	require.NoError(t, s.UpdateTransaction(ctx, user, rec.ID, store.TransactionPatch{
		Category: &cat, Notes: &notes, BalanceStatus: &pending,
	}))

	got, err := s.FindDuplicate(ctx, user, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new-category", got.Category)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "notes-token", *got.Notes)
	assert.Equal(t, store.BalancePending, got.BalanceStatus)
	assert.Equal(t, "desc-token", got.Description)

	require.NoError(t, s.UpdateTransaction(ctx, user, rec.ID, store.TransactionPatch{ClearNotes: true}))
	got, err = s.FindDuplicate(ctx, user, "k1")
	require.NoError(t, err)
	assert.Nil(t, got.Notes)

	err = s.UpdateTransaction(ctx, user, uuid.New(), store.TransactionPatch{Category: &cat})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()
	acct := uuid.New()

	older := txn(user, "2024-01-01", "a")
	newer := txn(user, "2024-03-01", "b")
	newer.AccountID = &acct
	newer.BalanceStatus = store.BalancePending
	middle := txn(user, "2024-02-01", "c")
	for _, r := range []*store.TransactionRecord{older, newer, middle} {
		require.NoError(t, s.InsertTransaction(ctx, r))
	}

	all, err := s.ListTransactions(ctx, user, store.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"2024-03-01", "2024-02-01", "2024-01-01"}, []string{all[0].Date, all[1].Date, all[2].Date})

	byAccount, err := s.ListTransactions(ctx, user, store.TransactionFilter{AccountID: &acct})
	require.NoError(t, err)
	require.Len(t, byAccount, 1)
	assert.Equal(t, newer.ID, byAccount[0].ID)

	pending, err := s.ListTransactions(ctx, user, store.TransactionFilter{BalanceStatus: store.BalancePending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, newer.ID, pending[0].ID)
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()

	a := &store.AccountRecord{UserID: user, Name: "name-1", Type: "type-1", Balance: "bal-1"}
	require.NoError(t, s.InsertAccount(ctx, a))
	b := &store.AccountRecord{UserID: user, Name: "name-2", Type: "type-2", Balance: "bal-2"}
	require.NoError(t, s.InsertAccount(ctx, b))

	got, err := s.GetAccount(ctx, user, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "name-1", got.Name)

	bal := "bal-1b"
	require.NoError(t, s.UpdateAccount(ctx, user, a.ID, store.AccountPatch{Balance: &bal}))
	got, err = s.GetAccount(ctx, user, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "bal-1b", got.Balance)
	assert.Equal(t, "name-1", got.Name)

	list, err := s.ListAccounts(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = s.GetAccount(ctx, user, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	err = s.UpdateAccount(ctx, user, uuid.New(), store.AccountPatch{Balance: &bal})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testBatches(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()

	b := &store.BatchRecord{UserID: user, Filename: "bank.csv", Mode: "heuristic", TotalRows: 3}
	require.NoError(t, s.InsertBatch(ctx, b))
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, store.BatchProcessing, b.Status)

	b.Status = store.BatchCompleted
	b.InsertedCount = 3
	assert.NoError(t, s.UpdateBatch(ctx, b))

	unknown := &store.BatchRecord{ID: uuid.New(), UserID: user}
	assert.ErrorIs(t, s.UpdateBatch(ctx, unknown), store.ErrNotFound)
}

func testGetDeleteTransaction(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()
	rec := txn(user, "2024-01-05", "k1")
	require.NoError(t, s.InsertTransaction(ctx, rec))

	got, err := s.GetTransaction(ctx, user, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "desc-token", got.Description)
	assert.Equal(t, "2024-01-05", got.Date)

	_, err = s.GetTransaction(ctx, uuid.New(), rec.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTransaction(ctx, uuid.New(), rec.ID), store.ErrNotFound)

	require.NoError(t, s.DeleteTransaction(ctx, user, rec.ID))
	_, err = s.GetTransaction(ctx, user, rec.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	found, err := s.FindDuplicate(ctx, user, "k1")
	require.NoError(t, err)
	assert.Nil(t, found)

	assert.ErrorIs(t, s.DeleteTransaction(ctx, user, rec.ID), store.ErrNotFound)
}

func testDeleteAccount(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()
	a := &store.AccountRecord{UserID: user, Name: "n", Type: "t", Balance: "b"}
	require.NoError(t, s.InsertAccount(ctx, a))

	assert.ErrorIs(t, s.DeleteAccount(ctx, uuid.New(), a.ID), store.ErrNotFound)
	require.NoError(t, s.DeleteAccount(ctx, user, a.ID))

	_, err := s.GetAccount(ctx, user, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	list, err := s.ListAccounts(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.ErrorIs(t, s.DeleteAccount(ctx, user, a.ID), store.ErrNotFound)
}

func budget(userID uuid.UUID, name string, created time.Time) *store.BudgetRecord {
	return &store.BudgetRecord{
		UserID:    userID,
		Name:      name,
		Category:  "category-token",
		Amount:    "amount-token",
		Spent:     "spent-token",
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
		CreatedAt: created,
	}
}

func testBudgets(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := uuid.New()
	acct := uuid.New()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	older := budget(user, "name-1", base)
	newer := budget(user, "name-2", base.Add(time.Hour))
	newer.AccountID = &acct
	for _, b := range []*store.BudgetRecord{older, newer} {
		require.NoError(t, s.InsertBudget(ctx, b))
		assert.NotEqual(t, uuid.Nil, b.ID)
	}

	got, err := s.GetBudget(ctx, user, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "name-1", got.Name)
	assert.Equal(t, "2024-01-31", got.EndDate)
	assert.Nil(t, got.AccountID)

	all, err := s.ListBudgets(ctx, user, store.BudgetFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID, "newest first")

	byAccount, err := s.ListBudgets(ctx, user, store.BudgetFilter{AccountID: &acct})
	require.NoError(t, err)
	require.Len(t, byAccount, 1)
	assert.Equal(t, newer.ID, byAccount[0].ID)

	spent, end := "spent-2", "2024-02-29"
	require.NoError(t, s.UpdateBudget(ctx, user, older.ID, store.BudgetPatch{Spent: &spent, EndDate: &end, AccountID: &acct}))
	got, err = s.GetBudget(ctx, user, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "spent-2", got.Spent)
	assert.Equal(t, "2024-02-29", got.EndDate)
	assert.Equal(t, "name-1", got.Name)
	require.NotNil(t, got.AccountID)
	assert.Equal(t, acct, *got.AccountID)

	require.NoError(t, s.UpdateBudget(ctx, user, older.ID, store.BudgetPatch{ClearAccount: true}))
	got, err = s.GetBudget(ctx, user, older.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AccountID)

	require.NoError(t, s.DeleteBudget(ctx, user, older.ID))
	_, err = s.GetBudget(ctx, user, older.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	all, err = s.ListBudgets(ctx, user, store.BudgetFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, s.UpdateBudget(ctx, user, uuid.New(), store.BudgetPatch{Spent: &spent}), store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteBudget(ctx, user, older.ID), store.ErrNotFound)
}

func testBudgetScoping(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	b := budget(alice, "n", time.Now().UTC())
	require.NoError(t, s.InsertBudget(ctx, b))

	_, err := s.GetBudget(ctx, bob, b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	list, err := s.ListBudgets(ctx, bob, store.BudgetFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	name := "stolen"
	assert.ErrorIs(t, s.UpdateBudget(ctx, bob, b.ID, store.BudgetPatch{Name: &name}), store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteBudget(ctx, bob, b.ID), store.ErrNotFound)

	got, err := s.GetBudget(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "n", got.Name)
}
