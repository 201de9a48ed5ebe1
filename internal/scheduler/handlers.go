package scheduler

import (
	"context"
	"fmt"

	"lexflow/internal/finance"
	"lexflow/internal/store"
	"lexflow/internal/tools"
	"lexflow/internal/workflow"
)

// ToolJobResult is the recorded outcome of a scheduled tool invocation.
type ToolJobResult struct {
	RunID      string  `json:"runId,omitempty"`
	Output     any     `json:"output"`
	TokensUsed int     `json:"tokensUsed"`
	Cost       float64 `json:"cost"`
}

// WorkflowJobResult is the recorded outcome of a scheduled workflow run.
type WorkflowJobResult struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
	Steps  int    `json:"steps"`
}

// Handlers binds each job type to its executor. Execute returns the
// handler's result payload for auditing and email, or an error when the
// job failed or its type is unknown.
type Handlers struct {
	Tools          tools.Runner
	Workflows      *workflow.Engine
	Reconciliation finance.Reconciliations
	Reminders      *finance.ReminderSweep
	VendorPayments *finance.VendorPaymentSweep
}

func (h *Handlers) Execute(ctx context.Context, job store.ScheduledJob) (any, error) {
	switch job.Type {
	case store.JobTool:
		return h.runTool(ctx, job)
	case store.JobWorkflow:
		return h.runWorkflow(ctx, job)
	case store.JobTrustReconciliation:
		return finance.RunReconciliationSweep(ctx, h.Reconciliation)
	case store.JobPaymentReminders:
		return h.Reminders.Run(ctx)
	case store.JobScheduledVendorPayments:
		return h.VendorPayments.Run(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, job.Type)
	}
}

func (h *Handlers) runTool(ctx context.Context, job store.ScheduledJob) (*ToolJobResult, error) {
	if job.ToolID == "" {
		return nil, ErrMissingToolID
	}
	res, err := h.Tools.Run(ctx, job.ToolID, job.InputFromConfig(), job.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("run tool %s: %w", job.ToolID, err)
	}
	return &ToolJobResult{
		RunID:      res.RunID,
		Output:     res.Output,
		TokensUsed: res.TokensUsed,
		Cost:       res.Cost,
	}, nil
}

func (h *Handlers) runWorkflow(ctx context.Context, job store.ScheduledJob) (*WorkflowJobResult, error) {
	if job.WorkflowID == "" {
		return nil, ErrMissingWorkflowID
	}
	run, err := h.Workflows.RunWorkflow(ctx, job.WorkflowID, job.CreatedBy, job.InputFromConfig())
	if err != nil {
		if run != nil {
			// The run exists and holds the step-level detail; surface its
			// identity alongside the failure.
			return nil, fmt.Errorf("workflow run %s: %w", run.ID, err)
		}
		return nil, err
	}
	return &WorkflowJobResult{RunID: run.ID, Status: run.Status, Steps: len(run.Results)}, nil
}
