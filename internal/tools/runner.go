// Package tools abstracts the AI tool-execution backend. The scheduler and
// the workflow engine only ever see the Runner interface; the real backend
// lives in the host product.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lexflow/internal/store"
	"lexflow/pkg/logx"
)

// Result is the outcome of one tool invocation.
type Result struct {
	RunID      string
	Output     any
	TokensUsed int
	Cost       float64
}

// Runner executes one tool call. Implementations may block on network I/O
// and must honor ctx cancellation.
type Runner interface {
	Run(ctx context.Context, toolID, input, userID string) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, toolID, input, userID string) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, toolID, input, userID string) (Result, error) {
	return f(ctx, toolID, input, userID)
}

// Recorded wraps a Runner and persists every invocation as a ToolRun row.
// A failed record write is logged, never surfaced: the run already happened.
type Recorded struct {
	Inner Runner
	Runs  store.ToolRuns
	Log   logx.Logger
}

func NewRecorded(inner Runner, runs store.ToolRuns, log logx.Logger) *Recorded {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorded{Inner: inner, Runs: runs, Log: log}
}

func (r *Recorded) Run(ctx context.Context, toolID, input, userID string) (Result, error) {
	res, err := r.Inner.Run(ctx, toolID, input, userID)

	run := store.ToolRun{
		ID:          uuid.NewString(),
		UserID:      userID,
		ToolID:      toolID,
		Input:       input,
		TokensUsed:  res.TokensUsed,
		Cost:        res.Cost,
		Status:      store.StatusCompleted,
		CompletedAt: time.Now(),
	}
	if err != nil {
		run.Status = store.StatusFailed
		run.Output = err.Error()
	} else {
		run.Output = fmt.Sprint(res.Output)
		res.RunID = run.ID
	}

	if r.Runs != nil {
		if rerr := r.Runs.AppendToolRun(ctx, run); rerr != nil {
			r.Log.Warn("tool run not recorded", logx.String("tool", toolID), logx.Err(rerr))
		}
	}
	return res, err
}
