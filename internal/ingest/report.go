package ingest

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pennywise-dev/pennywise/internal/importer"
	"github.com/pennywise-dev/pennywise/internal/store"
)

// Outcome is the fate of one candidate row.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// PersistenceError reports a store or cipher failure for one row. The
// ingest loop records it and moves on to the next row.
type PersistenceError struct {
	Row int
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("row %d: %s: %v", e.Row, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RowResult is the per-row entry of a Report. Row is the 1-based position
// among the parsed candidates.
type RowResult struct {
	Row           int
	Date          string
	Outcome       Outcome
	TransactionID uuid.UUID
	Balance       store.BalanceStatus
	Err           error
}

// Report summarises one upload. A report with failures is still a normal
// result; callers decide how to surface it.
type Report struct {
	BatchID        uuid.UUID
	Format         string
	Rows           []RowResult
	Inserted       int
	Duplicates     int
	Failed         int
	Dropped        int
	Anomalies      []importer.RowParseAnomaly
	BalanceApplied int
	BalancePending int
	Cancelled      bool
}

func (r *Report) add(rr RowResult) {
	r.Rows = append(r.Rows, rr)
	switch rr.Outcome {
	case OutcomeInserted:
		r.Inserted++
		switch rr.Balance {
		case store.BalanceApplied:
			r.BalanceApplied++
		case store.BalancePending:
			r.BalancePending++
		}
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeFailed:
		r.Failed++
	}
}

// Status maps the report onto a batch status.
func (r *Report) Status() store.BatchStatus {
	switch {
	case r.Cancelled:
		return store.BatchCancelled
	case r.Failed > 0:
		return store.BatchPartial
	default:
		return store.BatchCompleted
	}
}

// Summary renders the counts on one line.
func (r *Report) Summary() string {
	s := fmt.Sprintf("%d inserted, %d duplicates skipped, %d failed, %d dropped, %d anomalies",
		r.Inserted, r.Duplicates, r.Failed, r.Dropped, len(r.Anomalies))
	if r.BalanceApplied > 0 || r.BalancePending > 0 {
		s += fmt.Sprintf(" (balance: %d applied, %d pending)", r.BalanceApplied, r.BalancePending)
	}
	if r.Cancelled {
		s += " [cancelled]"
	}
	return s
}
