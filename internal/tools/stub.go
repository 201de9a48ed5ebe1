package tools

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Stub is a deterministic placeholder backend used when no tool-execution
// service is configured. Output echoes the tool and input; token and cost
// figures are derived from the input so repeated runs are stable.
type Stub struct{}

func (Stub) Run(_ context.Context, toolID, input, _ string) (Result, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(toolID))
	_, _ = h.Write([]byte(input))
	tokens := 50 + int(h.Sum32()%200)
	return Result{
		Output:     fmt.Sprintf("Output from %s with input: %s", toolID, input),
		TokensUsed: tokens,
		Cost:       float64(tokens) * 0.00005,
	}, nil
}
