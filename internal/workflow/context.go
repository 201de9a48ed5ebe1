package workflow

import "lexflow/internal/store"

// Context is the transient per-run memory: step results keyed by their
// 1-based order, plus the run identity and initial input. It is built
// incrementally while a run executes and discarded afterwards; its durable
// projection is WorkflowRun.Results.
//
// Lookup is by explicit order, never by pattern-matching step IDs.
type Context struct {
	WorkflowID   string
	RunID        string
	UserID       string
	InitialInput string

	results map[int]store.StepResult
}

func NewContext(workflowID, runID, userID, initialInput string) *Context {
	return &Context{
		WorkflowID:   workflowID,
		RunID:        runID,
		UserID:       userID,
		InitialInput: initialInput,
		results:      map[int]store.StepResult{},
	}
}

// Record stores the outcome for one step order, overwriting any earlier
// entry for the same order.
func (c *Context) Record(r store.StepResult) {
	c.results[r.Order] = r
}

// Result returns the recorded outcome for the step at the given order.
func (c *Context) Result(order int) (store.StepResult, bool) {
	r, ok := c.results[order]
	return r, ok
}

// Collect aggregates every recorded result keyed by step ID, the shape
// persisted on the run record.
func (c *Context) Collect() map[string]store.StepResult {
	out := make(map[string]store.StepResult, len(c.results))
	for _, r := range c.results {
		out[r.StepID] = r
	}
	return out
}
