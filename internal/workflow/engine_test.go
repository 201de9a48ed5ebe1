package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"lexflow/internal/store"
	"lexflow/internal/tools"
	"lexflow/pkg/logx"
)

// spyRunner counts invocations per tool and returns canned results.
type spyRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	inputs  map[string][]string
	outputs map[string]any
	fail    map[string]error
}

func newSpyRunner() *spyRunner {
	return &spyRunner{
		calls:   map[string]int{},
		inputs:  map[string][]string{},
		outputs: map[string]any{},
		fail:    map[string]error{},
	}
}

func (s *spyRunner) Run(_ context.Context, toolID, input, _ string) (tools.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[toolID]++
	s.inputs[toolID] = append(s.inputs[toolID], input)
	if err := s.fail[toolID]; err != nil {
		return tools.Result{}, err
	}
	out := s.outputs[toolID]
	if out == nil {
		out = "ok"
	}
	return tools.Result{Output: out, TokensUsed: 10, Cost: 0.001}, nil
}

func (s *spyRunner) count(toolID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[toolID]
}

func (s *spyRunner) lastInput(toolID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ins := s.inputs[toolID]
	if len(ins) == 0 {
		return ""
	}
	return ins[len(ins)-1]
}

func activeWorkflow(id string, steps ...store.WorkflowStep) store.Workflow {
	return store.Workflow{ID: id, Name: "wf " + id, Status: store.WorkflowActive, Steps: steps}
}

func step(order int, toolID, input string, wait, cont bool) store.WorkflowStep {
	return store.WorkflowStep{
		ID:              fmt.Sprintf("step-%d", order),
		Order:           order,
		ToolID:          toolID,
		Name:            fmt.Sprintf("step %d", order),
		Input:           input,
		WaitForPrevious: wait,
		ContinueOnError: cont,
	}
}

func TestRunWorkflowChainsStepOutput(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	mem.PutWorkflow(activeWorkflow("wf-1",
		step(1, "tool-a", "{{initial_input}}", false, false),
		step(2, "tool-b", "{{step1.output}} processed", true, false),
	))
	runner := newSpyRunner()
	runner.outputs["tool-a"] = "hello"

	eng := NewEngine(mem, runner, logx.Nop())
	run, err := eng.RunWorkflow(context.Background(), "wf-1", "u-1", "go")
	if err != nil {
		t.Fatalf("RunWorkflow error: %v", err)
	}
	if run.Status != store.StatusCompleted {
		t.Fatalf("run status = %s, want completed", run.Status)
	}
	if got := runner.lastInput("tool-b"); got != "hello processed" {
		t.Fatalf("step 2 input = %q, want %q", got, "hello processed")
	}
	if len(run.Results) != 2 {
		t.Fatalf("results = %d entries, want 2", len(run.Results))
	}

	persisted, ok := mem.Run(run.ID)
	if !ok {
		t.Fatal("run not persisted")
	}
	if persisted.Status != store.StatusCompleted || persisted.CompletedAt.IsZero() {
		t.Fatalf("persisted run = %+v, want completed with CompletedAt set", persisted)
	}
}

func TestRunWorkflowSkipsAfterDependencyFailure(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	mem.PutWorkflow(activeWorkflow("wf-1",
		step(1, "tool-a", "x", false, true), // failure tolerated, pipeline continues
		step(2, "tool-b", "y", true, false), // but this step depends on step 1
	))
	runner := newSpyRunner()
	runner.fail["tool-a"] = errors.New("model unavailable")

	eng := NewEngine(mem, runner, logx.Nop())
	run, err := eng.RunWorkflow(context.Background(), "wf-1", "u-1", "")
	if err != nil {
		t.Fatalf("RunWorkflow error: %v", err)
	}

	if runner.count("tool-b") != 0 {
		t.Fatalf("tool-b invoked %d times, want 0", runner.count("tool-b"))
	}
	res, ok := run.Results["step-2"]
	if !ok {
		t.Fatal("step-2 missing from results")
	}
	if res.Status != store.StepSkipped || res.Error != "Previous step failed" {
		t.Fatalf("step-2 result = %+v, want skipped with dependency error", res)
	}
}

func TestRunWorkflowContinueOnErrorStillExecutes(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	mem.PutWorkflow(activeWorkflow("wf-1",
		step(1, "tool-a", "x", false, true),
		// waitForPrevious is set but continueOnError overrides the skip.
		store.WorkflowStep{ID: "step-2", Order: 2, ToolID: "tool-b", Name: "step 2",
			Input: "y", WaitForPrevious: true, ContinueOnError: true},
	))
	runner := newSpyRunner()
	runner.fail["tool-a"] = errors.New("boom")

	eng := NewEngine(mem, runner, logx.Nop())
	run, err := eng.RunWorkflow(context.Background(), "wf-1", "u-1", "")
	if err != nil {
		t.Fatalf("RunWorkflow error: %v", err)
	}
	if runner.count("tool-b") != 1 {
		t.Fatalf("tool-b invoked %d times, want 1", runner.count("tool-b"))
	}
	if run.Status != store.StatusCompleted {
		t.Fatalf("run status = %s, want completed", run.Status)
	}
}

func TestRunWorkflowAbortsOnStepFailure(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	mem.PutWorkflow(activeWorkflow("wf-1",
		step(1, "tool-a", "x", false, false),
		step(2, "tool-b", "y", false, false),
	))
	runner := newSpyRunner()
	runner.fail["tool-a"] = errors.New("quota exhausted")

	eng := NewEngine(mem, runner, logx.Nop())
	run, err := eng.RunWorkflow(context.Background(), "wf-1", "u-1", "")
	if err == nil {
		t.Fatal("expected sequencing error")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error %T, want *StepError", err)
	}
	if stepErr.Order != 1 {
		t.Fatalf("StepError.Order = %d, want 1", stepErr.Order)
	}

	if runner.count("tool-b") != 0 {
		t.Fatalf("tool-b invoked after abort")
	}
	if run == nil || run.Status != store.StatusFailed || run.ErrorMsg == "" {
		t.Fatalf("run = %+v, want failed with error message", run)
	}
	// Partial results are persisted before the error propagates.
	persisted, _ := mem.Run(run.ID)
	if persisted.Status != store.StatusFailed {
		t.Fatalf("persisted status = %s, want failed", persisted.Status)
	}
	if _, ok := persisted.Results["step-1"]; !ok {
		t.Fatal("step-1 result missing from persisted run")
	}
}

func TestRunWorkflowInactive(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	mem.PutWorkflow(store.Workflow{ID: "wf-1", Name: "draft", Status: "paused"})

	eng := NewEngine(mem, newSpyRunner(), logx.Nop())
	_, err := eng.RunWorkflow(context.Background(), "wf-1", "u-1", "")
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("error = %v, want ErrNotActive", err)
	}
	if mem.RunCount() != 0 {
		t.Fatalf("run record created for inactive workflow")
	}
}

func TestRunWorkflowNotFound(t *testing.T) {
	t.Parallel()

	eng := NewEngine(store.NewMemory(), newSpyRunner(), logx.Nop())
	_, err := eng.RunWorkflow(context.Background(), "missing", "u-1", "")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestRunWorkflowEveryStepAccountedFor(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	mem.PutWorkflow(activeWorkflow("wf-1",
		step(1, "tool-a", "a", false, true),
		step(2, "tool-b", "b", true, false),
		step(3, "tool-c", "c", false, false),
	))
	runner := newSpyRunner()
	runner.fail["tool-a"] = errors.New("boom")

	eng := NewEngine(mem, runner, logx.Nop())
	run, err := eng.RunWorkflow(context.Background(), "wf-1", "u-1", "")
	if err != nil {
		t.Fatalf("RunWorkflow error: %v", err)
	}

	// No step is silently missing: failed, skipped, completed.
	want := map[string]string{
		"step-1": store.StepFailed,
		"step-2": store.StepSkipped,
		"step-3": store.StepCompleted,
	}
	for id, status := range want {
		res, ok := run.Results[id]
		if !ok {
			t.Fatalf("%s missing from results", id)
		}
		if res.Status != status {
			t.Fatalf("%s status = %s, want %s", id, res.Status, status)
		}
	}
}

func TestRunWorkflowToolPanicBecomesFailedStep(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	mem.PutWorkflow(activeWorkflow("wf-1", step(1, "tool-a", "x", false, true)))

	panicky := tools.RunnerFunc(func(context.Context, string, string, string) (tools.Result, error) {
		panic("nil deref in backend")
	})
	eng := NewEngine(mem, panicky, logx.Nop())
	run, err := eng.RunWorkflow(context.Background(), "wf-1", "u-1", "")
	if err != nil {
		t.Fatalf("RunWorkflow error: %v", err)
	}
	res := run.Results["step-1"]
	if res.Status != store.StepFailed || res.Error == "" {
		t.Fatalf("step result = %+v, want failed with panic message", res)
	}
}
