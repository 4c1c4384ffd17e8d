// Package memory is an in-process Store used for local runs and tests.
// Data is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pennywise-dev/pennywise/internal/store"
)

// Store keeps records in maps guarded by one RWMutex. Records are copied on
// the way in and out so callers never share memory with the store.
type Store struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*store.TransactionRecord
	accounts     map[uuid.UUID]*store.AccountRecord
	batches      map[uuid.UUID]*store.BatchRecord
	budgets      map[uuid.UUID]*store.BudgetRecord
	now          func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		transactions: make(map[uuid.UUID]*store.TransactionRecord),
		accounts:     make(map[uuid.UUID]*store.AccountRecord),
		batches:      make(map[uuid.UUID]*store.BatchRecord),
		budgets:      make(map[uuid.UUID]*store.BudgetRecord),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) InsertTransaction(ctx context.Context, rec *store.TransactionRecord) error {
	if rec.UserID == uuid.Nil {
		return fmt.Errorf("inserting transaction: user ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	store.PrepareTransaction(rec, s.now())
	if _, exists := s.transactions[rec.ID]; exists {
		return fmt.Errorf("inserting transaction %s: already exists", rec.ID)
	}
	s.transactions[rec.ID] = cloneTransaction(rec)
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, id uuid.UUID) (*store.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.transactions[id]
	if !ok || rec.UserID != userID {
		return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return cloneTransaction(rec), nil
}

func (s *Store) FindDuplicate(ctx context.Context, userID uuid.UUID, dedupKey string) (*store.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.transactions {
		if rec.UserID == userID && rec.DedupKey == dedupKey {
			return cloneTransaction(rec), nil
		}
	}
	return nil, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, userID, id uuid.UUID, patch store.TransactionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transactions[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("updating transaction %s: %w", id, store.ErrNotFound)
	}
	patch.Apply(rec, s.now())
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID uuid.UUID, filter store.TransactionFilter) ([]store.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.TransactionRecord
	for _, rec := range s.transactions {
		if rec.UserID != userID || !filter.Matches(rec) {
			continue
		}
		out = append(out, *cloneTransaction(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transactions[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("deleting transaction %s: %w", id, store.ErrNotFound)
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) InsertAccount(ctx context.Context, rec *store.AccountRecord) error {
	if rec.UserID == uuid.Nil {
		return fmt.Errorf("inserting account: user ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	store.PrepareAccount(rec, s.now())
	if _, exists := s.accounts[rec.ID]; exists {
		return fmt.Errorf("inserting account %s: already exists", rec.ID)
	}
	cp := *rec
	s.accounts[rec.ID] = &cp
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID, id uuid.UUID) (*store.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accounts[id]
	if !ok || rec.UserID != userID {
		return nil, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]store.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.AccountRecord
	for _, rec := range s.accounts {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateAccount(ctx context.Context, userID, id uuid.UUID, patch store.AccountPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("updating account %s: %w", id, store.ErrNotFound)
	}
	patch.Apply(rec, s.now())
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("deleting account %s: %w", id, store.ErrNotFound)
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) InsertBudget(ctx context.Context, rec *store.BudgetRecord) error {
	if rec.UserID == uuid.Nil {
		return fmt.Errorf("inserting budget: user ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	store.PrepareBudget(rec, s.now())
	if _, exists := s.budgets[rec.ID]; exists {
		return fmt.Errorf("inserting budget %s: already exists", rec.ID)
	}
	s.budgets[rec.ID] = cloneBudget(rec)
	return nil
}

func (s *Store) GetBudget(ctx context.Context, userID, id uuid.UUID) (*store.BudgetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.budgets[id]
	if !ok || rec.UserID != userID {
		return nil, fmt.Errorf("budget %s: %w", id, store.ErrNotFound)
	}
	return cloneBudget(rec), nil
}

func (s *Store) ListBudgets(ctx context.Context, userID uuid.UUID, filter store.BudgetFilter) ([]store.BudgetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.BudgetRecord
	for _, rec := range s.budgets {
		if rec.UserID == userID && filter.Matches(rec) {
			out = append(out, *cloneBudget(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateBudget(ctx context.Context, userID, id uuid.UUID, patch store.BudgetPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.budgets[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("updating budget %s: %w", id, store.ErrNotFound)
	}
	patch.Apply(rec, s.now())
	return nil
}

func (s *Store) DeleteBudget(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.budgets[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("deleting budget %s: %w", id, store.ErrNotFound)
	}
	delete(s.budgets, id)
	return nil
}

func (s *Store) InsertBatch(ctx context.Context, rec *store.BatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store.PrepareBatch(rec, s.now())
	s.batches[rec.ID] = cloneBatch(rec)
	return nil
}

func (s *Store) UpdateBatch(ctx context.Context, rec *store.BatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.batches[rec.ID]
	if !ok || existing.UserID != rec.UserID {
		return fmt.Errorf("updating batch %s: %w", rec.ID, store.ErrNotFound)
	}
	s.batches[rec.ID] = cloneBatch(rec)
	return nil
}

// Batch returns a copy of a stored batch.
func (s *Store) Batch(id uuid.UUID) (*store.BatchRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.batches[id]
	if !ok {
		return nil, false
	}
	return cloneBatch(rec), true
}

func cloneTransaction(rec *store.TransactionRecord) *store.TransactionRecord {
	cp := *rec
	if rec.AccountID != nil {
		id := *rec.AccountID
		cp.AccountID = &id
	}
	if rec.BatchID != nil {
		id := *rec.BatchID
		cp.BatchID = &id
	}
	if rec.Notes != nil {
		n := *rec.Notes
		cp.Notes = &n
	}
	return &cp
}

func cloneBudget(rec *store.BudgetRecord) *store.BudgetRecord {
	cp := *rec
	if rec.AccountID != nil {
		id := *rec.AccountID
		cp.AccountID = &id
	}
	return &cp
}

func cloneBatch(rec *store.BatchRecord) *store.BatchRecord {
	cp := *rec
	if rec.Anomalies != nil {
		cp.Anomalies = append([]byte(nil), rec.Anomalies...)
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

var _ store.Store = (*Store)(nil)
