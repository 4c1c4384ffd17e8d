package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-dev/pennywise/internal/store"
	"github.com/pennywise-dev/pennywise/internal/store/storetest"
)

// These tests need a disposable database; set PENNYWISE_TEST_DATABASE_URL
// to run them.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PENNYWISE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PENNYWISE_TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.Exec("TRUNCATE transactions, accounts, import_batches, budgets")
		s.Close()
	})
	require.NoError(t, s.db.Exec("TRUNCATE transactions, accounts, import_batches, budgets").Error)
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTestStore(t) })
}

func TestInTx_RollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := uuid.New()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Store) error {
		rec := &store.TransactionRecord{UserID: user, Date: "2024-01-01", DedupKey: "k"}
		require.NoError(t, tx.InsertTransaction(ctx, rec))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	found, err := s.FindDuplicate(ctx, user, "k")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestInTx_Commits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, s.InTx(ctx, func(tx store.Store) error {
		return tx.InsertTransaction(ctx, &store.TransactionRecord{UserID: user, Date: "2024-01-01", DedupKey: "k"})
	}))

	found, err := s.FindDuplicate(ctx, user, "k")
	require.NoError(t, err)
	assert.NotNil(t, found)
}
