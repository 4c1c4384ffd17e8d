// Package pgstore implements store.Store on PostgreSQL through gorm. It also
// implements store.Transactor so callers can group writes atomically.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pennywise-dev/pennywise/internal/store"
)

// Store wraps a *gorm.DB, which may be a transaction handle inside InTx.
type Store struct {
	db *gorm.DB
}

// New wraps an existing connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the tables for every record type.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&store.TransactionRecord{},
		&store.AccountRecord{},
		&store.BatchRecord{},
		&store.BudgetRecord{},
	); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InTx runs fn inside a database transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) InsertTransaction(ctx context.Context, rec *store.TransactionRecord) error {
	store.PrepareTransaction(rec, time.Now().UTC())
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, id uuid.UUID) (*store.TransactionRecord, error) {
	var recs []store.TransactionRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return &recs[0], nil
}

func (s *Store) FindDuplicate(ctx context.Context, userID uuid.UUID, dedupKey string) (*store.TransactionRecord, error) {
	var recs []store.TransactionRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND dedup_key = ?", userID, dedupKey).
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("finding duplicate: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func (s *Store) UpdateTransaction(ctx context.Context, userID, id uuid.UUID, patch store.TransactionPatch) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Category != nil {
		updates["category"] = *patch.Category
	}
	if patch.ClearNotes {
		updates["notes"] = nil
	} else if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if patch.BalanceStatus != nil {
		updates["balance_status"] = string(*patch.BalanceStatus)
	}

	res := s.db.WithContext(ctx).
		Model(&store.TransactionRecord{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating transaction %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("updating transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID uuid.UUID, filter store.TransactionFilter) ([]store.TransactionRecord, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.AccountID != nil {
		q = q.Where("account_id = ?", *filter.AccountID)
	}
	if filter.BalanceStatus != "" {
		q = q.Where("balance_status = ?", string(filter.BalanceStatus))
	}

	var recs []store.TransactionRecord
	if err := q.Order("date DESC").Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return recs, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	return s.deleteOwned(ctx, &store.TransactionRecord{}, "transaction", userID, id)
}

func (s *Store) InsertAccount(ctx context.Context, rec *store.AccountRecord) error {
	store.PrepareAccount(rec, time.Now().UTC())
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID, id uuid.UUID) (*store.AccountRecord, error) {
	var recs []store.AccountRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	return &recs[0], nil
}

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]store.AccountRecord, error) {
	var recs []store.AccountRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return recs, nil
}

func (s *Store) UpdateAccount(ctx context.Context, userID, id uuid.UUID, patch store.AccountPatch) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Type != nil {
		updates["type"] = *patch.Type
	}
	if patch.Balance != nil {
		updates["balance"] = *patch.Balance
	}

	res := s.db.WithContext(ctx).
		Model(&store.AccountRecord{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating account %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("updating account %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, userID, id uuid.UUID) error {
	return s.deleteOwned(ctx, &store.AccountRecord{}, "account", userID, id)
}

func (s *Store) InsertBudget(ctx context.Context, rec *store.BudgetRecord) error {
	store.PrepareBudget(rec, time.Now().UTC())
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("inserting budget: %w", err)
	}
	return nil
}

func (s *Store) GetBudget(ctx context.Context, userID, id uuid.UUID) (*store.BudgetRecord, error) {
	var recs []store.BudgetRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("getting budget %s: %w", id, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("budget %s: %w", id, store.ErrNotFound)
	}
	return &recs[0], nil
}

func (s *Store) ListBudgets(ctx context.Context, userID uuid.UUID, filter store.BudgetFilter) ([]store.BudgetRecord, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.AccountID != nil {
		q = q.Where("account_id = ?", *filter.AccountID)
	}
	var recs []store.BudgetRecord
	if err := q.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing budgets: %w", err)
	}
	return recs, nil
}

func (s *Store) UpdateBudget(ctx context.Context, userID, id uuid.UUID, patch store.BudgetPatch) error {
	updates := patch.Columns()
	updates["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).
		Model(&store.BudgetRecord{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating budget %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("updating budget %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteBudget(ctx context.Context, userID, id uuid.UUID) error {
	return s.deleteOwned(ctx, &store.BudgetRecord{}, "budget", userID, id)
}

// deleteOwned removes the row of model's table with id and userID.
func (s *Store) deleteOwned(ctx context.Context, model any, kind string, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(model)
	if res.Error != nil {
		return fmt.Errorf("deleting %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("deleting %s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) InsertBatch(ctx context.Context, rec *store.BatchRecord) error {
	store.PrepareBatch(rec, time.Now().UTC())
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}
	return nil
}

func (s *Store) UpdateBatch(ctx context.Context, rec *store.BatchRecord) error {
	res := s.db.WithContext(ctx).
		Model(&store.BatchRecord{}).
		Where("id = ? AND user_id = ?", rec.ID, rec.UserID).
		Select("status", "total_rows", "inserted_count", "duplicate_count", "failed_count",
			"dropped_count", "anomalies", "completed_at").
		Updates(rec)
	if res.Error != nil {
		return fmt.Errorf("updating batch %s: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("updating batch %s: %w", rec.ID, store.ErrNotFound)
	}
	return nil
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)
