package saga

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"civicpulse/logging"
	"civicpulse/models"
	"civicpulse/reports"
	"civicpulse/rewards"
)

// ReconcileStats counts what a reconciliation pass did.
type ReconcileStats struct {
	Scanned int64
	Applied int64
	Failed  int64
}

// Reconciler re-applies every credit a report implies. Credits are keyed by
// report id, so entries already in the ledger are no-ops; only credits lost
// to a ledger failure or a crash between persist and credit are applied.
type Reconciler struct {
	reports  reports.Repository
	ledger   rewards.Ledger
	parallel int
	log      *slog.Logger
}

func NewReconciler(repo reports.Repository, ledger rewards.Ledger, parallel int) *Reconciler {
	return &Reconciler{
		reports:  repo,
		ledger:   ledger,
		parallel: max(parallel, 1),
		log:      logging.New("reconcile"),
	}
}

func (rc *Reconciler) Run(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.parallel)

	err := reports.Each(gctx, rc.reports, reports.Query{}, func(r models.Report) error {
		atomic.AddInt64(&stats.Scanned, 1)
		g.Go(func() error {
			rc.settle(gctx, r, &stats)
			return nil
		})
		return gctx.Err()
	})
	_ = g.Wait()
	if err != nil {
		return stats, fmt.Errorf("reconcile: %w", err)
	}

	rc.log.Info("reconcile finished", "scanned", stats.Scanned, "applied", stats.Applied, "failed", stats.Failed)
	if stats.Failed > 0 {
		return stats, fmt.Errorf("reconcile: %d credit(s) could not be applied", stats.Failed)
	}
	return stats, nil
}

func (rc *Reconciler) settle(ctx context.Context, r models.Report, stats *ReconcileStats) {
	entries := []rewards.Entry{rewards.SubmissionEntry(r.OwnerID, r.ID)}
	if r.Status == models.StatusResolved {
		entries = append(entries, rewards.ResolutionEntry(r.OwnerID, r.ID))
	}
	for _, e := range entries {
		acct, applied, err := rc.ledger.Credit(ctx, e)
		switch {
		case err != nil:
			atomic.AddInt64(&stats.Failed, 1)
			rc.log.Warn("credit still pending", "owner_id", r.OwnerID, "key", e.Key, "error", err)
		case applied:
			atomic.AddInt64(&stats.Applied, 1)
			rc.log.Info("credit repaired", "owner_id", r.OwnerID, "key", e.Key, "reason", string(e.Reason))
		}
		if err == nil && acct.Credits != rewards.ExpectedCredits(acct) {
			rc.log.Error("ledger drift", "owner_id", r.OwnerID, "credits", acct.Credits,
				"expected", rewards.ExpectedCredits(acct))
		}
	}
}
