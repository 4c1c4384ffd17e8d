package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pennywise-dev/pennywise/internal/store"
)

// ReconcileReport counts the pending rows Reconcile visited.
type ReconcileReport struct {
	Pending int
	Applied int
	Failed  int
	Errors  []error
}

// Reconcile applies the balance of every transaction the user still has in
// the pending state, marking each applied. Rows are handled one at a time;
// a failure is recorded and the next row is tried.
func (i *Ingestor) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconcileReport, error) {
	pending, err := i.store.ListTransactions(ctx, userID, store.TransactionFilter{BalanceStatus: store.BalancePending})
	if err != nil {
		return nil, fmt.Errorf("listing pending transactions: %w", err)
	}

	log := i.log.With().Str("user_id", userID.String()).Logger()
	rep := &ReconcileReport{Pending: len(pending)}
	for n := range pending {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rec := &pending[n]
		if err := i.reconcileOne(ctx, rec); err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, &PersistenceError{Row: n + 1, Op: "reconcile", Err: err})
			log.Error().Str("transaction_id", rec.ID.String()).Err(err).Msg("reconcile failed")
			continue
		}
		rep.Applied++
	}
	log.Info().Int("pending", rep.Pending).Int("applied", rep.Applied).Int("failed", rep.Failed).Msg("reconcile finished")
	return rep, nil
}

func (i *Ingestor) reconcileOne(ctx context.Context, rec *store.TransactionRecord) error {
	if tr, ok := i.store.(store.Transactor); ok {
		return tr.InTx(ctx, func(tx store.Store) error {
			return i.applyBalance(ctx, tx, rec)
		})
	}
	return i.applyBalance(ctx, i.store, rec)
}
