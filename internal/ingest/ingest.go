// Package ingest persists parsed bank rows: duplicate check, encryption,
// insert and optional account balance compensation, one row at a time.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/pennywise-dev/pennywise/internal/accounts"
	"github.com/pennywise-dev/pennywise/internal/importer"
	"github.com/pennywise-dev/pennywise/internal/model"
	"github.com/pennywise-dev/pennywise/internal/records"
	"github.com/pennywise-dev/pennywise/internal/store"
)

var (
	ErrNoUser         = errors.New("upload has no user")
	ErrNoParser       = errors.New("upload has no parser")
	ErrBalanceAccount = errors.New("balance compensation needs a destination account")
)

// Upload is one file to ingest for one user.
type Upload struct {
	UserID   uuid.UUID
	Filename string
	Source   io.Reader
	Parser   importer.Parser
	// AccountID, when set, is stamped on every row.
	AccountID *uuid.UUID
	// ApplyBalance adds each inserted amount to AccountID's balance.
	ApplyBalance bool
}

// Ingestor runs uploads against a store.
type Ingestor struct {
	store    store.Store
	sealer   *records.Sealer
	accounts *accounts.Service
	log      zerolog.Logger
	now      func() time.Time
}

// New returns an Ingestor. When st also implements store.Transactor, balance
// compensation runs inside one store transaction per row.
func New(st store.Store, sealer *records.Sealer, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:    st,
		sealer:   sealer,
		accounts: accounts.NewService(st, sealer),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ingest parses u and persists every candidate in order. Per-row failures are
// recorded in the report and do not stop the loop. If ctx is cancelled the
// remaining rows are skipped; rows already written stay written, and the
// partial report is returned together with ctx.Err().
func (i *Ingestor) Ingest(ctx context.Context, u Upload) (*Report, error) {
	if u.UserID == uuid.Nil {
		return nil, ErrNoUser
	}
	if u.Parser == nil {
		return nil, ErrNoParser
	}
	if u.ApplyBalance && u.AccountID == nil {
		return nil, ErrBalanceAccount
	}
	if u.AccountID != nil {
		ok, err := i.accounts.Exists(ctx, u.UserID, *u.AccountID)
		if err != nil {
			return nil, fmt.Errorf("destination account: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("destination account %s: %w", *u.AccountID, store.ErrNotFound)
		}
	}

	res, err := u.Parser.Parse(u.Source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", u.Filename, err)
	}

	log := i.log.With().Str("user_id", u.UserID.String()).Str("format", res.Format).Logger()
	for _, a := range res.Anomalies {
		log.Warn().Int("line", a.Line).Str("field", string(a.Field)).Bool("skipped", a.Skipped).Err(a.Err).Msg("row anomaly")
	}

	batch := &store.BatchRecord{
		UserID:       u.UserID,
		AccountID:    u.AccountID,
		Filename:     u.Filename,
		Mode:         res.Format,
		TotalRows:    len(res.Candidates),
		DroppedCount: res.Dropped,
	}
	if err := i.store.InsertBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("recording batch: %w", err)
	}
	log = log.With().Str("batch_id", batch.ID.String()).Logger()

	report := &Report{
		BatchID:   batch.ID,
		Format:    res.Format,
		Dropped:   res.Dropped,
		Anomalies: res.Anomalies,
	}

	for n, cand := range res.Candidates {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		cand.UserID = u.UserID
		cand.AccountID = u.AccountID
		report.add(i.ingestRow(ctx, log, n+1, cand, batch.ID, u.ApplyBalance))
	}

	i.finishBatch(context.WithoutCancel(ctx), log, batch, report)
	log.Info().
		Int("inserted", report.Inserted).
		Int("duplicates", report.Duplicates).
		Int("failed", report.Failed).
		Int("dropped", report.Dropped).
		Bool("cancelled", report.Cancelled).
		Msg("upload processed")

	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

func (i *Ingestor) ingestRow(ctx context.Context, log zerolog.Logger, row int, cand model.Transaction, batchID uuid.UUID, applyBalance bool) RowResult {
	rr := RowResult{Row: row, Date: cand.DateString()}
	fail := func(op string, err error) RowResult {
		rr.Outcome = OutcomeFailed
		rr.TransactionID = uuid.Nil
		rr.Balance = ""
		rr.Err = &PersistenceError{Row: row, Op: op, Err: err}
		log.Error().Int("row", row).Str("op", op).Err(err).Msg("row not persisted")
		return rr
	}

	existing, err := i.store.FindDuplicate(ctx, cand.UserID, i.sealer.DedupKey(cand))
	if err != nil {
		return fail("duplicate check", err)
	}
	if existing != nil {
		log.Debug().Int("row", row).Str("existing_id", existing.ID.String()).Msg("duplicate skipped")
		rr.Outcome = OutcomeDuplicate
		rr.TransactionID = existing.ID
		return rr
	}

	rec, err := i.sealer.SealTransaction(cand)
	if err != nil {
		return fail("encrypt", err)
	}
	rec.BatchID = &batchID

	if !applyBalance {
		if err := i.store.InsertTransaction(ctx, rec); err != nil {
			return fail("insert", err)
		}
		rr.Outcome = OutcomeInserted
		rr.TransactionID = rec.ID
		rr.Balance = store.BalanceNone
		return rr
	}

	rec.BalanceStatus = store.BalancePending

	if tr, ok := i.store.(store.Transactor); ok {
		err := tr.InTx(ctx, func(tx store.Store) error {
			if err := tx.InsertTransaction(ctx, rec); err != nil {
				return &PersistenceError{Row: row, Op: "insert", Err: err}
			}
			if err := i.applyBalance(ctx, tx, rec); err != nil {
				return &PersistenceError{Row: row, Op: "balance", Err: err}
			}
			return nil
		})
		if err != nil {
			var pe *PersistenceError
			if errors.As(err, &pe) {
				return fail(pe.Op, pe.Err)
			}
			return fail("transaction", err)
		}
		rr.Outcome = OutcomeInserted
		rr.TransactionID = rec.ID
		rr.Balance = store.BalanceApplied
		return rr
	}

	if err := i.store.InsertTransaction(ctx, rec); err != nil {
		return fail("insert", err)
	}
	rr.Outcome = OutcomeInserted
	rr.TransactionID = rec.ID
	rr.Balance = store.BalancePending
	if err := i.applyBalance(ctx, i.store, rec); err != nil {
		log.Error().Int("row", row).Str("transaction_id", rec.ID.String()).Err(err).Msg("balance left pending")
		rr.Err = &PersistenceError{Row: row, Op: "balance", Err: err}
		return rr
	}
	rr.Balance = store.BalanceApplied
	return rr
}

// applyBalance adds rec's amount to its account and marks it applied.
func (i *Ingestor) applyBalance(ctx context.Context, st store.Store, rec *store.TransactionRecord) error {
	if rec.AccountID == nil {
		return ErrBalanceAccount
	}
	amount, err := i.sealer.OpenAmount(rec.Amount)
	if err != nil {
		return err
	}
	if _, err := i.accounts.WithStore(st).AdjustBalance(ctx, rec.UserID, *rec.AccountID, amount); err != nil {
		return err
	}
	applied := store.BalanceApplied
	if err := st.UpdateTransaction(ctx, rec.UserID, rec.ID, store.TransactionPatch{BalanceStatus: &applied}); err != nil {
		return fmt.Errorf("marking balance applied: %w", err)
	}
	return nil
}

// anomalyDetail is the persisted form of a RowParseAnomaly. Raw cell values
// are never persisted in plaintext.
type anomalyDetail struct {
	Line    int    `json:"line"`
	Field   string `json:"field"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
}

func (i *Ingestor) finishBatch(ctx context.Context, log zerolog.Logger, batch *store.BatchRecord, report *Report) {
	batch.Status = report.Status()
	batch.InsertedCount = report.Inserted
	batch.DuplicateCount = report.Duplicates
	batch.FailedCount = report.Failed
	done := i.now()
	batch.CompletedAt = &done

	if len(report.Anomalies) > 0 {
		details := make([]anomalyDetail, len(report.Anomalies))
		for n, a := range report.Anomalies {
			details[n] = anomalyDetail{Line: a.Line, Field: string(a.Field), Skipped: a.Skipped}
			if a.Err != nil {
				details[n].Reason = a.Err.Error()
			}
		}
		if raw, err := json.Marshal(details); err == nil {
			batch.Anomalies = datatypes.JSON(raw)
		}
	}

	if err := i.store.UpdateBatch(ctx, batch); err != nil {
		log.Error().Err(err).Msg("updating batch record")
	}
}
