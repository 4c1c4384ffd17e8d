package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-dev/pennywise/internal/accounts"
	"github.com/pennywise-dev/pennywise/internal/fieldcrypt"
	"github.com/pennywise-dev/pennywise/internal/importer"
	"github.com/pennywise-dev/pennywise/internal/logger"
	"github.com/pennywise-dev/pennywise/internal/model"
	"github.com/pennywise-dev/pennywise/internal/records"
	"github.com/pennywise-dev/pennywise/internal/store"
	"github.com/pennywise-dev/pennywise/internal/store/memory"
)

// faultyStore injects failures into a memory store.
type faultyStore struct {
	*memory.Store
	inserts           int
	failInsertOn      int
	failUpdateAccount bool
	afterInsert       func()
}

func (f *faultyStore) InsertTransaction(ctx context.Context, rec *store.TransactionRecord) error {
	f.inserts++
	if f.inserts == f.failInsertOn {
		return errors.New("connection reset")
	}
	if err := f.Store.InsertTransaction(ctx, rec); err != nil {
		return err
	}
	if f.afterInsert != nil {
		f.afterInsert()
	}
	return nil
}

func (f *faultyStore) UpdateAccount(ctx context.Context, userID, id uuid.UUID, patch store.AccountPatch) error {
	if f.failUpdateAccount {
		return errors.New("lock timeout")
	}
	return f.Store.UpdateAccount(ctx, userID, id, patch)
}

// txStore runs InTx callbacks directly on the wrapped store.
type txStore struct {
	store.Store
	calls int
}

func (s *txStore) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	s.calls++
	return fn(s.Store)
}

type fixture struct {
	ingestor *Ingestor
	sealer   *records.Sealer
	accounts *accounts.Service
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	hexKey, err := fieldcrypt.GenerateKey()
	require.NoError(t, err)
	key, err := fieldcrypt.ParseKey(hexKey)
	require.NoError(t, err)
	c, err := fieldcrypt.New(key)
	require.NoError(t, err)

	sealer := records.NewSealer(c)
	buf := &bytes.Buffer{}
	return &fixture{
		ingestor: New(st, sealer, logger.NewWithWriter(buf)),
		sealer:   sealer,
		accounts: accounts.NewService(st, sealer),
		logs:     buf,
	}
}

func openTestdata(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func listOpened(t *testing.T, st store.Store, sealer *records.Sealer, user uuid.UUID) []model.Transaction {
	t.Helper()
	recs, err := st.ListTransactions(context.Background(), user, store.TransactionFilter{})
	require.NoError(t, err)
	out := make([]model.Transaction, len(recs))
	for i := range recs {
		out[i], err = sealer.OpenTransaction(&recs[i])
		require.NoError(t, err)
	}
	return out
}

func TestIngest_Heuristic(t *testing.T) {
	st := memory.New()
	fx := newFixture(t, st)
	user := uuid.New()

	rep, err := fx.ingestor.Ingest(context.Background(), Upload{
		UserID:   user,
		Filename: "heuristic_statement.csv",
		Source:   openTestdata(t, "heuristic_statement.csv"),
		Parser:   &importer.HeuristicParser{},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Inserted)
	assert.Equal(t, 3, rep.Dropped)
	assert.Zero(t, rep.Duplicates)
	assert.Equal(t, "heuristic", rep.Format)
	require.Len(t, rep.Rows, 3)
	for _, rr := range rep.Rows {
		assert.Equal(t, OutcomeInserted, rr.Outcome)
		assert.Equal(t, store.BalanceNone, rr.Balance)
		assert.NotEqual(t, uuid.Nil, rr.TransactionID)
	}

	txns := listOpened(t, st, fx.sealer, user)
	require.Len(t, txns, 3)
	assert.Equal(t, "Bookshop", txns[0].Description)
	assert.Equal(t, "19.99", txns[0].Amount.String())
	assert.Equal(t, "Coffee Shop", txns[2].Description)
	assert.Equal(t, model.TypeIncome, txns[2].Type)

	batch, ok := st.Batch(rep.BatchID)
	require.True(t, ok)
	assert.Equal(t, store.BatchCompleted, batch.Status)
	assert.Equal(t, 3, batch.InsertedCount)
	assert.Equal(t, 3, batch.DroppedCount)
	assert.NotNil(t, batch.CompletedAt)
}

func TestIngest_DuplicateWithinUpload(t *testing.T) {
	st := memory.New()
	fx := newFixture(t, st)
	user := uuid.New()

	csv := "Date,Description,Amount,Balance\n" +
		"2024-01-05,Coffee Shop,12.50,987.65\n" +
		"2024-01-05,Coffee Shop,12.5,975.15\n"
	rep, err := fx.ingestor.Ingest(context.Background(), Upload{
		UserID: user,
		Source: strings.NewReader(csv),
		Parser: &importer.HeuristicParser{},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, 1, rep.Duplicates)
	assert.Equal(t, OutcomeDuplicate, rep.Rows[1].Outcome)
	assert.Equal(t, rep.Rows[0].TransactionID, rep.Rows[1].TransactionID)
	assert.Len(t, listOpened(t, st, fx.sealer, user), 1)
	assert.Contains(t, fx.logs.String(), "duplicate skipped")
}

func TestIngest_ReuploadIsAllDuplicates(t *testing.T) {
	st := memory.New()
	fx := newFixture(t, st)
	user := uuid.New()
	up := func() *Report {
		rep, err := fx.ingestor.Ingest(context.Background(), Upload{
			UserID: user,
			Source: openTestdata(t, "heuristic_statement.csv"),
			Parser: &importer.HeuristicParser{},
		})
		require.NoError(t, err)
		return rep
	}

	first := up()
	second := up()
	assert.Equal(t, 3, first.Inserted)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 3, second.Duplicates)
	assert.Len(t, listOpened(t, st, fx.sealer, user), 3)

	// A different user importing the same file is not a duplicate.
	rep, err := fx.ingestor.Ingest(context.Background(), Upload{
		UserID: uuid.New(),
		Source: openTestdata(t, "heuristic_statement.csv"),
		Parser: &importer.HeuristicParser{},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Inserted)
}

func TestIngest_PersistenceFailureContinues(t *testing.T) {
	st := &faultyStore{Store: memory.New(), failInsertOn: 2}
	fx := newFixture(t, st)
	user := uuid.New()

	rep, err := fx.ingestor.Ingest(context.Background(), Upload{
		UserID: user,
		Source: openTestdata(t, "heuristic_statement.csv"),
		Parser: &importer.HeuristicParser{},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Inserted)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []Outcome{OutcomeInserted, OutcomeFailed, OutcomeInserted},
		[]Outcome{rep.Rows[0].Outcome, rep.Rows[1].Outcome, rep.Rows[2].Outcome})

	var pe *PersistenceError
	require.ErrorAs(t, rep.Rows[1].Err, &pe)
	assert.Equal(t, 2, pe.Row)
	assert.Equal(t, "insert", pe.Op)
	assert.Contains(t, pe.Error(), "connection reset")

	batch, ok := st.Batch(rep.BatchID)
	require.True(t, ok)
	assert.Equal(t, store.BatchPartial, batch.Status)
	assert.Equal(t, 1, batch.FailedCount)
	assert.Contains(t, fx.logs.String(), "row not persisted")
}

func TestIngest_MappedWithTwoPhaseBalance(t *testing.T) {
	st := memory.New()
	fx := newFixture(t, st)
	ctx := context.Background()
	user := uuid.New()
	acct, err := fx.accounts.Create(ctx, user, "Checking", model.AccountTypeChecking, decimal.NewFromInt(100))
	require.NoError(t, err)

	rep, err := fx.ingestor.Ingest(ctx, Upload{
		UserID:       user,
		Source:       openTestdata(t, "mapped_income_expense.csv"),
		Parser:       &importer.MappedParser{Mapping: importer.ColumnMapping{importer.FieldDate: 0, importer.FieldDescription: 1, importer.FieldIncome: 2, importer.FieldExpense: 3}},
		AccountID:    &acct.ID,
		ApplyBalance: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Inserted)
	assert.Equal(t, 3, rep.BalanceApplied)
	assert.Zero(t, rep.BalancePending)

	got, err := fx.accounts.Get(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "40", got.Balance.String())

	txns := listOpened(t, st, fx.sealer, user)
	require.Len(t, txns, 3)
	for _, txn := range txns {
		require.NotNil(t, txn.AccountID)
		assert.Equal(t, acct.ID, *txn.AccountID)
	}
	pending, err := st.ListTransactions(ctx, user, store.TransactionFilter{BalanceStatus: store.BalancePending})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIngest_BalanceFailureLeavesPendingThenReconcile(t *testing.T) {
	st := &faultyStore{Store: memory.New()}
	fx := newFixture(t, st)
	ctx := context.Background()
	user := uuid.New()
	acct, err := fx.accounts.Create(ctx, user, "Checking", model.AccountTypeChecking, decimal.NewFromInt(100))
	require.NoError(t, err)

	st.failUpdateAccount = true
	rep, err := fx.ingestor.Ingest(ctx, Upload{
		UserID:       user,
		Source:       openTestdata(t, "mapped_income_expense.csv"),
		Parser:       &importer.MappedParser{Mapping: importer.ColumnMapping{importer.FieldDate: 0, importer.FieldDescription: 1, importer.FieldIncome: 2, importer.FieldExpense: 3}},
		AccountID:    &acct.ID,
		ApplyBalance: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Inserted)
	assert.Equal(t, 3, rep.BalancePending)
	assert.Zero(t, rep.Failed)
	assert.Contains(t, fx.logs.String(), "balance left pending")

	got, err := fx.accounts.Get(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", got.Balance.String())

	st.failUpdateAccount = false
	rr, err := fx.ingestor.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 3, rr.Pending)
	assert.Equal(t, 3, rr.Applied)
	assert.Zero(t, rr.Failed)

	got, err = fx.accounts.Get(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "40", got.Balance.String())

	again, err := fx.ingestor.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, again.Pending)
}

func TestReconcile_RecordsFailures(t *testing.T) {
	st := &faultyStore{Store: memory.New()}
	fx := newFixture(t, st)
	ctx := context.Background()
	user := uuid.New()
	acct, err := fx.accounts.Create(ctx, user, "Cash", model.AccountTypeCash, decimal.Zero)
	require.NoError(t, err)

	st.failUpdateAccount = true
	_, err = fx.ingestor.Ingest(ctx, Upload{
		UserID:       user,
		Source:       strings.NewReader("2024-01-05,Coffee,-3\n"),
		Parser:       &importer.MappedParser{Mapping: importer.ColumnMapping{importer.FieldDate: 0, importer.FieldDescription: 1, importer.FieldAmount: 2}},
		AccountID:    &acct.ID,
		ApplyBalance: true,
	})
	require.NoError(t, err)

	rr, err := fx.ingestor.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, rr.Failed)
	require.Len(t, rr.Errors, 1)
	assert.Contains(t, rr.Errors[0].Error(), "lock timeout")
}

func TestIngest_TransactionalBalance(t *testing.T) {
	st := &txStore{Store: memory.New()}
	fx := newFixture(t, st)
	ctx := context.Background()
	user := uuid.New()
	acct, err := fx.accounts.Create(ctx, user, "Checking", model.AccountTypeChecking, decimal.Zero)
	require.NoError(t, err)

	rep, err := fx.ingestor.Ingest(ctx, Upload{
		UserID:       user,
		Source:       openTestdata(t, "mapped_income_expense.csv"),
		Parser:       &importer.MappedParser{Mapping: importer.ColumnMapping{importer.FieldDate: 0, importer.FieldDescription: 1, importer.FieldIncome: 2, importer.FieldExpense: 3}},
		AccountID:    &acct.ID,
		ApplyBalance: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, st.calls)
	assert.Equal(t, 3, rep.BalanceApplied)

	got, err := fx.accounts.Get(ctx, user, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "-60", got.Balance.String())
}

func TestIngest_TransactionalFailureReportsRow(t *testing.T) {
	inner := &faultyStore{Store: memory.New()}
	st := &txStore{Store: inner}
	fx := newFixture(t, st)
	ctx := context.Background()
	user := uuid.New()
	acct, err := fx.accounts.Create(ctx, user, "Checking", model.AccountTypeChecking, decimal.Zero)
	require.NoError(t, err)

	inner.failUpdateAccount = true
	rep, err := fx.ingestor.Ingest(ctx, Upload{
		UserID:       user,
		Source:       strings.NewReader("2024-01-05,Coffee,-3\n"),
		Parser:       &importer.MappedParser{Mapping: importer.ColumnMapping{importer.FieldDate: 0, importer.FieldDescription: 1, importer.FieldAmount: 2}},
		AccountID:    &acct.ID,
		ApplyBalance: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Zero(t, rep.Inserted)

	var pe *PersistenceError
	require.ErrorAs(t, rep.Rows[0].Err, &pe)
	assert.Equal(t, "balance", pe.Op)
}

func TestIngest_CancelledMidUpload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &faultyStore{Store: memory.New(), afterInsert: cancel}
	fx := newFixture(t, st)

	rep, err := fx.ingestor.Ingest(ctx, Upload{
		UserID: uuid.New(),
		Source: openTestdata(t, "heuristic_statement.csv"),
		Parser: &importer.HeuristicParser{},
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.True(t, rep.Cancelled)
	assert.Equal(t, 1, rep.Inserted)
	assert.Len(t, rep.Rows, 1)

	batch, ok := st.Batch(rep.BatchID)
	require.True(t, ok)
	assert.Equal(t, store.BatchCancelled, batch.Status)
}

func TestIngest_AnomaliesRecordedOnBatch(t *testing.T) {
	st := memory.New()
	fx := newFixture(t, st)

	rep, err := fx.ingestor.Ingest(context.Background(), Upload{
		UserID: uuid.New(),
		Source: strings.NewReader("2024-01-05,Coffee,n/a\nyesterday,Tea,-2\n"),
		Parser: &importer.MappedParser{Mapping: importer.ColumnMapping{importer.FieldDate: 0, importer.FieldDescription: 1, importer.FieldAmount: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)
	assert.Len(t, rep.Anomalies, 2)

	batch, ok := st.Batch(rep.BatchID)
	require.True(t, ok)
	assert.Contains(t, string(batch.Anomalies), "invalid amount")
	assert.Contains(t, string(batch.Anomalies), `"skipped":true`)
	assert.NotContains(t, string(batch.Anomalies), "n/a")
	assert.Contains(t, fx.logs.String(), "row anomaly")
}

func TestIngest_Validation(t *testing.T) {
	fx := newFixture(t, memory.New())
	ctx := context.Background()
	parser := &importer.HeuristicParser{}

	_, err := fx.ingestor.Ingest(ctx, Upload{Parser: parser, Source: strings.NewReader("")})
	assert.ErrorIs(t, err, ErrNoUser)

	_, err = fx.ingestor.Ingest(ctx, Upload{UserID: uuid.New(), Source: strings.NewReader("")})
	assert.ErrorIs(t, err, ErrNoParser)

	_, err = fx.ingestor.Ingest(ctx, Upload{UserID: uuid.New(), Parser: parser, ApplyBalance: true})
	assert.ErrorIs(t, err, ErrBalanceAccount)

	missing := uuid.New()
	_, err = fx.ingestor.Ingest(ctx, Upload{UserID: uuid.New(), Parser: parser, AccountID: &missing, Source: strings.NewReader("")})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = fx.ingestor.Ingest(ctx, Upload{
		UserID: uuid.New(),
		Parser: &importer.MappedParser{Mapping: importer.ColumnMapping{importer.FieldDate: 0}},
		Source: strings.NewReader("2024-01-05,x,1\n"),
	})
	assert.ErrorIs(t, err, importer.ErrIncompleteMapping)
}

type accountLookupFailure struct {
	store.Store
}

func (accountLookupFailure) GetAccount(ctx context.Context, userID, id uuid.UUID) (*store.AccountRecord, error) {
	return nil, errors.New("connection reset")
}

func TestIngest_AccountLookupError(t *testing.T) {
	fx := newFixture(t, accountLookupFailure{memory.New()})
	acct := uuid.New()

	_, err := fx.ingestor.Ingest(context.Background(), Upload{
		UserID:    uuid.New(),
		Parser:    &importer.HeuristicParser{},
		AccountID: &acct,
		Source:    strings.NewReader(""),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestReport_Summary(t *testing.T) {
	r := &Report{}
	r.add(RowResult{Outcome: OutcomeInserted, Balance: store.BalanceApplied})
	r.add(RowResult{Outcome: OutcomeInserted, Balance: store.BalancePending})
	r.add(RowResult{Outcome: OutcomeDuplicate})
	r.add(RowResult{Outcome: OutcomeFailed})
	r.Dropped = 2

	assert.Equal(t, "2 inserted, 1 duplicates skipped, 1 failed, 2 dropped, 0 anomalies (balance: 1 applied, 1 pending)", r.Summary())
	assert.Equal(t, store.BatchPartial, r.Status())

	r.Cancelled = true
	assert.Equal(t, store.BatchCancelled, r.Status())
}
