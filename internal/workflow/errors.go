package workflow

import (
	"errors"
	"fmt"
)

// ErrNotActive is returned when a workflow exists but its status is not
// "active". No run record is created in that case.
var ErrNotActive = errors.New("workflow is not active")

// StepError aborts a run when a step fails and ContinueOnError is not set.
// It carries the step identity so callers can branch on it instead of
// parsing the message.
type StepError struct {
	Order int
	Name  string
	Err   error
}

func (e *StepError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("step %d", e.Order)
	}
	return fmt.Sprintf("step %q (order %d) failed: %v", name, e.Order, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
