package finance

import (
	"context"
	"fmt"
)

// RunReconciliationSweep asks the trust-accounting collaborator to process
// every due reconciliation and folds the per-account outcomes into a
// summary. Per-account failures are data, not errors; only a collaborator
// that cannot sweep at all fails the call.
func RunReconciliationSweep(ctx context.Context, rec Reconciliations) (*ReconciliationSummary, error) {
	outcomes, err := rec.ProcessDue(ctx)
	if err != nil {
		return nil, fmt.Errorf("process due reconciliations: %w", err)
	}

	sum := &ReconciliationSummary{Processed: len(outcomes), Accounts: outcomes}
	for _, o := range outcomes {
		if o.Status == "completed" {
			sum.Completed++
		} else {
			sum.Failed++
		}
	}
	return sum, nil
}

// NopReconciliations reports no due reconciliations. Used when the host
// deployment has no trust-accounting backend wired.
type NopReconciliations struct{}

func (NopReconciliations) ProcessDue(context.Context) ([]AccountOutcome, error) {
	return nil, nil
}
