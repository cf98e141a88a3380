package saga

import (
	"context"
	"fmt"

	"civicpulse/models"
	"civicpulse/rewards"
)

// StatusOutcome is the result of a status change. Account is only set when
// the change resolved the report and the credit went through.
type StatusOutcome struct {
	Report        models.Report
	Account       *models.RewardAccount
	CreditApplied bool
}

// UpdateStatus moves a report forward. Reaching resolved credits the owner
// under the key "resolve:<id>", so repeating the credit never pays twice. A
// ledger failure leaves the status change in place and returns *LedgerError.
func (s *Saga) UpdateStatus(ctx context.Context, id string, to models.Status) (StatusOutcome, error) {
	if !to.Valid() {
		return StatusOutcome{}, &PreconditionError{Field: "status", Err: fmt.Errorf("unknown status %q", to)}
	}
	report, err := s.deps.Reports.UpdateStatus(ctx, id, to)
	if err != nil {
		return StatusOutcome{}, err
	}
	out := StatusOutcome{Report: report}
	if to != models.StatusResolved {
		return out, nil
	}

	acct, applied, err := s.applyCredit(context.WithoutCancel(ctx), rewards.ResolutionEntry(report.OwnerID, report.ID))
	if err != nil {
		s.log.Error("resolution credit pending", "owner_id", report.OwnerID, "report_id", report.ID, "error", err)
		return out, &LedgerError{ReportID: report.ID, Err: err}
	}
	out.Account = &acct
	out.CreditApplied = applied
	return out, nil
}
