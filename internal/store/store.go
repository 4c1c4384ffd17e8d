// Package store defines the persisted record shapes and the user-scoped
// store contract shared by the memory, postgres and mongo backends.
//
// Records hold sensitive fields as cipher tokens. Only identifiers, calendar
// dates, the duplicate index, status columns and timestamps are plaintext.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ErrNotFound is returned when a user-scoped lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// BalanceStatus tracks whether a transaction's amount has been applied to
// its account balance.
type BalanceStatus string

const (
	BalanceNone    BalanceStatus = "none"
	BalancePending BalanceStatus = "pending"
	BalanceApplied BalanceStatus = "applied"
)

// BatchStatus is the lifecycle state of an upload batch.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchPartial    BatchStatus = "partial"
	BatchCancelled  BatchStatus = "cancelled"
)

// TransactionRecord is a persisted transaction. Description, Amount,
// Category, Type and Notes are cipher tokens; Notes is nil when absent.
type TransactionRecord struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" bson:"_id"`
	UserID        uuid.UUID     `gorm:"type:uuid;not null;index:idx_transactions_user_dedup,priority:1" bson:"user_id"`
	AccountID     *uuid.UUID    `gorm:"type:uuid;index" bson:"account_id,omitempty"`
	BatchID       *uuid.UUID    `gorm:"type:uuid;index" bson:"batch_id,omitempty"`
	Date          string        `gorm:"size:10;not null;index" bson:"date"`
	Description   string        `gorm:"not null" bson:"description"`
	Amount        string        `gorm:"not null" bson:"amount"`
	Category      string        `gorm:"not null" bson:"category"`
	Type          string        `gorm:"not null" bson:"type"`
	Notes         *string       `bson:"notes,omitempty"`
	DedupKey      string        `gorm:"size:64;not null;index:idx_transactions_user_dedup,priority:2" bson:"dedup_key"`
	BalanceStatus BalanceStatus `gorm:"size:16;not null;default:'none';index" bson:"balance_status"`
	CreatedAt     time.Time     `bson:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at"`
}

func (TransactionRecord) TableName() string { return "transactions" }

// AccountRecord is a persisted account with Name, Type and Balance as tokens.
type AccountRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" bson:"_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" bson:"user_id"`
	Name      string    `gorm:"not null" bson:"name"`
	Type      string    `gorm:"not null" bson:"type"`
	Balance   string    `gorm:"not null" bson:"balance"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (AccountRecord) TableName() string { return "accounts" }

// BudgetRecord is a persisted spending budget. Name, Category, Amount and
// Spent are tokens; StartDate and EndDate are YYYY-MM-DD or empty.
type BudgetRecord struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" bson:"_id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" bson:"user_id"`
	AccountID *uuid.UUID `gorm:"type:uuid;index" bson:"account_id,omitempty"`
	Name      string     `gorm:"not null" bson:"name"`
	Category  string     `gorm:"not null" bson:"category"`
	Amount    string     `gorm:"not null" bson:"amount"`
	Spent     string     `gorm:"not null" bson:"spent"`
	StartDate string     `gorm:"size:10" bson:"start_date,omitempty"`
	EndDate   string     `gorm:"size:10" bson:"end_date,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func (BudgetRecord) TableName() string { return "budgets" }

// BatchRecord summarises one upload.
type BatchRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" bson:"_id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" bson:"user_id"`
	AccountID      *uuid.UUID     `gorm:"type:uuid" bson:"account_id,omitempty"`
	Filename       string         `bson:"filename"`
	Mode           string         `gorm:"size:32" bson:"mode"`
	Status         BatchStatus    `gorm:"size:16;index" bson:"status"`
	TotalRows      int            `bson:"total_rows"`
	InsertedCount  int            `bson:"inserted_count"`
	DuplicateCount int            `bson:"duplicate_count"`
	FailedCount    int            `bson:"failed_count"`
	DroppedCount   int            `bson:"dropped_count"`
	Anomalies      datatypes.JSON `bson:"anomalies,omitempty"`
	StartedAt      time.Time      `bson:"started_at"`
	CompletedAt    *time.Time     `bson:"completed_at,omitempty"`
	CreatedAt      time.Time      `bson:"created_at"`
}

func (BatchRecord) TableName() string { return "import_batches" }

// TransactionPatch is a partial update. Nil fields are left unchanged;
// ClearNotes removes the notes token.
type TransactionPatch struct {
	Category      *string
	Notes         *string
	ClearNotes    bool
	BalanceStatus *BalanceStatus
}

// AccountPatch is a partial update of account tokens.
type AccountPatch struct {
	Name    *string
	Type    *string
	Balance *string
}

// BudgetPatch is a partial update of a budget. Nil fields are left
// unchanged; ClearAccount detaches the budget from its account.
type BudgetPatch struct {
	AccountID    *uuid.UUID
	ClearAccount bool
	Name         *string
	Category     *string
	Amount       *string
	Spent        *string
	StartDate    *string
	EndDate      *string
}

// BudgetFilter narrows ListBudgets. Zero values match everything.
type BudgetFilter struct {
	AccountID *uuid.UUID
}

// Matches reports whether rec passes the filter.
func (f BudgetFilter) Matches(rec *BudgetRecord) bool {
	return f.AccountID == nil || (rec.AccountID != nil && *rec.AccountID == *f.AccountID)
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	AccountID     *uuid.UUID
	BalanceStatus BalanceStatus
}

// Matches reports whether rec passes the filter.
func (f TransactionFilter) Matches(rec *TransactionRecord) bool {
	if f.AccountID != nil && (rec.AccountID == nil || *rec.AccountID != *f.AccountID) {
		return false
	}
	if f.BalanceStatus != "" && rec.BalanceStatus != f.BalanceStatus {
		return false
	}
	return true
}

// Store is the persistence contract. Every method is scoped to userID; a
// record owned by another user behaves as if it did not exist.
type Store interface {
	InsertTransaction(ctx context.Context, rec *TransactionRecord) error
	GetTransaction(ctx context.Context, userID, id uuid.UUID) (*TransactionRecord, error)
	// FindDuplicate returns the user's transaction with dedupKey, or nil
	// with no error when there is none.
	FindDuplicate(ctx context.Context, userID uuid.UUID, dedupKey string) (*TransactionRecord, error)
	UpdateTransaction(ctx context.Context, userID, id uuid.UUID, patch TransactionPatch) error
	// ListTransactions returns matches ordered by date, newest first.
	ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]TransactionRecord, error)
	DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error

	InsertAccount(ctx context.Context, rec *AccountRecord) error
	GetAccount(ctx context.Context, userID, id uuid.UUID) (*AccountRecord, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]AccountRecord, error)
	UpdateAccount(ctx context.Context, userID, id uuid.UUID, patch AccountPatch) error
	DeleteAccount(ctx context.Context, userID, id uuid.UUID) error

	InsertBudget(ctx context.Context, rec *BudgetRecord) error
	GetBudget(ctx context.Context, userID, id uuid.UUID) (*BudgetRecord, error)
	// ListBudgets returns matches ordered newest first.
	ListBudgets(ctx context.Context, userID uuid.UUID, filter BudgetFilter) ([]BudgetRecord, error)
	UpdateBudget(ctx context.Context, userID, id uuid.UUID, patch BudgetPatch) error
	DeleteBudget(ctx context.Context, userID, id uuid.UUID) error

	InsertBatch(ctx context.Context, rec *BatchRecord) error
	UpdateBatch(ctx context.Context, rec *BatchRecord) error
}

// Transactor is implemented by stores that can run several operations as
// one atomic unit. fn receives a Store bound to the transaction; returning
// an error rolls everything back.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// PrepareTransaction fills the ID, default status and timestamps of a new
// record.
func PrepareTransaction(rec *TransactionRecord, now time.Time) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.BalanceStatus == "" {
		rec.BalanceStatus = BalanceNone
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}

// PrepareAccount fills the ID and timestamps of a new account record.
func PrepareAccount(rec *AccountRecord, now time.Time) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}

// PrepareBudget fills the ID and timestamps of a new budget record.
func PrepareBudget(rec *BudgetRecord, now time.Time) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}

// PrepareBatch fills the ID, status and timestamps of a new batch record.
func PrepareBatch(rec *BatchRecord, now time.Time) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = BatchProcessing
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
}

// Apply copies the non-nil fields of p onto rec.
func (p TransactionPatch) Apply(rec *TransactionRecord, now time.Time) {
	if p.Category != nil {
		rec.Category = *p.Category
	}
	if p.ClearNotes {
		rec.Notes = nil
	} else if p.Notes != nil {
		n := *p.Notes
		rec.Notes = &n
	}
	if p.BalanceStatus != nil {
		rec.BalanceStatus = *p.BalanceStatus
	}
	rec.UpdatedAt = now
}

// Apply copies the non-nil fields of p onto rec.
func (p AccountPatch) Apply(rec *AccountRecord, now time.Time) {
	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.Type != nil {
		rec.Type = *p.Type
	}
	if p.Balance != nil {
		rec.Balance = *p.Balance
	}
	rec.UpdatedAt = now
}

// Apply copies the non-nil fields of p onto rec.
func (p BudgetPatch) Apply(rec *BudgetRecord, now time.Time) {
	if p.ClearAccount {
		rec.AccountID = nil
	} else if p.AccountID != nil {
		id := *p.AccountID
		rec.AccountID = &id
	}
	for dst, src := range map[*string]*string{
		&rec.Name:      p.Name,
		&rec.Category:  p.Category,
		&rec.Amount:    p.Amount,
		&rec.Spent:     p.Spent,
		&rec.StartDate: p.StartDate,
		&rec.EndDate:   p.EndDate,
	} {
		if src != nil {
			*dst = *src
		}
	}
	rec.UpdatedAt = now
}

// Columns returns the column/field updates p describes, keyed by the
// snake_case names both SQL and document backends use. A nil value means
// the column is cleared.
func (p BudgetPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.ClearAccount {
		cols["account_id"] = nil
	} else if p.AccountID != nil {
		cols["account_id"] = *p.AccountID
	}
	for name, v := range map[string]*string{
		"name":       p.Name,
		"category":   p.Category,
		"amount":     p.Amount,
		"spent":      p.Spent,
		"start_date": p.StartDate,
		"end_date":   p.EndDate,
	} {
		if v != nil {
			cols[name] = *v
		}
	}
	return cols
}
