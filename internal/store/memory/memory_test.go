package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-dev/pennywise/internal/store"
	"github.com/pennywise-dev/pennywise/internal/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	user := uuid.New()
	notes := "n"
	rec := &store.TransactionRecord{UserID: user, Date: "2024-01-01", DedupKey: "k", Notes: &notes}
	require.NoError(t, s.InsertTransaction(ctx, rec))

	rec.Category = "mutated after insert"
	*rec.Notes = "mutated"

	got, err := s.FindDuplicate(ctx, user, "k")
	require.NoError(t, err)
	assert.Empty(t, got.Category)
	assert.Equal(t, "n", *got.Notes)

	got.Category = "mutated after read"
	again, err := s.FindDuplicate(ctx, user, "k")
	require.NoError(t, err)
	assert.Empty(t, again.Category)
}

func TestInsertRequiresUser(t *testing.T) {
	s := New()
	assert.Error(t, s.InsertTransaction(context.Background(), &store.TransactionRecord{}))
	assert.Error(t, s.InsertAccount(context.Background(), &store.AccountRecord{}))
}

func TestConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	s := New()
	user := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InsertTransaction(ctx, &store.TransactionRecord{UserID: user, Date: "2024-01-01", DedupKey: uuid.NewString()})
		}()
	}
	wg.Wait()

	list, err := s.ListTransactions(ctx, user, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 50)
}

func TestBatchLookup(t *testing.T) {
	s := New()
	b := &store.BatchRecord{UserID: uuid.New(), Filename: "a.csv"}
	require.NoError(t, s.InsertBatch(context.Background(), b))

	got, ok := s.Batch(b.ID)
	require.True(t, ok)
	assert.Equal(t, "a.csv", got.Filename)

	_, ok = s.Batch(uuid.New())
	assert.False(t, ok)
}
