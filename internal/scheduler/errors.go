package scheduler

import "errors"

var (
	// ErrUnknownJobType is returned when a job's type has no handler.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrMissingToolID is returned for a tool job without a tool binding.
	ErrMissingToolID = errors.New("tool job has no tool id")

	// ErrMissingWorkflowID is returned for a workflow job without a
	// workflow binding.
	ErrMissingWorkflowID = errors.New("workflow job has no workflow id")
)
