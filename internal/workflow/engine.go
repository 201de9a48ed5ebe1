// Package workflow executes one workflow run at a time: ordered steps, each
// bound to a tool invocation, with skip-on-dependency-failure and
// continue-on-error policies and a durable run record.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lexflow/internal/store"
	"lexflow/internal/tools"
	"lexflow/pkg/logx"
)

type Engine struct {
	store store.Workflows
	tools tools.Runner
	log   logx.Logger

	now   func() time.Time
	newID func() string
}

func NewEngine(st store.Workflows, runner tools.Runner, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store: st,
		tools: runner,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// RunWorkflow executes one run of the given workflow and returns the run
// record in its terminal state. The terminal state is set exactly once,
// whether the run completed or aborted.
//
// The returned error is non-nil when sequencing stopped early; the run
// record is still returned with status "failed", its partial results, and
// the error message, so callers always have the durable view.
func (e *Engine) RunWorkflow(ctx context.Context, workflowID, userID, initialInput string) (*store.WorkflowRun, error) {
	wf, err := e.store.GetWithSteps(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != store.WorkflowActive {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotActive)
	}

	run := &store.WorkflowRun{
		ID:         e.newID(),
		WorkflowID: workflowID,
		UserID:     userID,
		Status:     store.StatusRunning,
		StartedAt:  e.now(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create workflow run: %w", err)
	}

	wctx := NewContext(workflowID, run.ID, userID, initialInput)
	e.log.Info("workflow run started",
		logx.String("workflow", workflowID),
		logx.String("run", run.ID),
		logx.Int("steps", len(wf.Steps)))

	if seqErr := e.executeSteps(ctx, wf.Steps, wctx); seqErr != nil {
		run.Status = store.StatusFailed
		run.CompletedAt = e.now()
		run.ErrorMsg = seqErr.Error()
		run.Results = wctx.Collect()
		if uerr := e.store.UpdateRun(ctx, run.ID, store.RunPatch{
			Status:      run.Status,
			CompletedAt: run.CompletedAt,
			ErrorMsg:    run.ErrorMsg,
			Results:     run.Results,
		}); uerr != nil {
			e.log.Error("workflow run not persisted as failed", logx.String("run", run.ID), logx.Err(uerr))
		}
		e.log.Warn("workflow run failed", logx.String("run", run.ID), logx.Err(seqErr))
		return run, seqErr
	}

	run.Status = store.StatusCompleted
	run.CompletedAt = e.now()
	run.Results = wctx.Collect()
	if err := e.store.UpdateRun(ctx, run.ID, store.RunPatch{
		Status:      run.Status,
		CompletedAt: run.CompletedAt,
		Results:     run.Results,
	}); err != nil {
		return run, fmt.Errorf("persist workflow run: %w", err)
	}
	e.log.Info("workflow run completed", logx.String("run", run.ID))
	return run, nil
}

// executeSteps walks the steps in ascending order. Steps are assumed
// pre-sorted by the store.
func (e *Engine) executeSteps(ctx context.Context, steps []store.WorkflowStep, wctx *Context) error {
	for _, step := range steps {
		if step.WaitForPrevious && step.Order > 1 {
			prev, ok := wctx.Result(step.Order - 1)
			if ok && prev.Status == store.StepFailed && !step.ContinueOnError {
				wctx.Record(store.StepResult{
					StepID: step.ID,
					Order:  step.Order,
					Status: store.StepSkipped,
					Error:  "Previous step failed",
				})
				continue
			}
		}

		res := e.executeStep(ctx, step, wctx)
		wctx.Record(res)

		if res.Status == store.StepFailed && !step.ContinueOnError {
			return &StepError{Order: step.Order, Name: step.Name, Err: errors.New(res.Error)}
		}
	}
	return nil
}

// executeStep runs one step and normalizes every outcome, including a
// panicking tool backend, into a StepResult. It never returns an error.
func (e *Engine) executeStep(ctx context.Context, step store.WorkflowStep, wctx *Context) (res store.StepResult) {
	start := e.now()
	res = store.StepResult{StepID: step.ID, Order: step.Order}

	defer func() {
		if r := recover(); r != nil {
			res.Status = store.StepFailed
			res.Error = fmt.Sprintf("tool panicked: %v", r)
			res.Duration = e.now().Sub(start)
		}
	}()

	input := ResolvePlaceholders(step.Input, wctx)

	out, err := e.tools.Run(ctx, step.ToolID, input, wctx.UserID)
	res.Duration = e.now().Sub(start)
	if err != nil {
		res.Status = store.StepFailed
		res.Error = err.Error()
		return res
	}

	res.Status = store.StepCompleted
	res.Output = out.Output
	res.TokensUsed = out.TokensUsed
	res.Cost = out.Cost
	return res
}
