package workflow

import (
	"testing"

	"lexflow/internal/store"
)

func TestResolvePlaceholders(t *testing.T) {
	t.Parallel()

	ctx := NewContext("wf-1", "run-1", "u-1", "draft the brief")
	ctx.Record(store.StepResult{StepID: "s1", Order: 1, Status: store.StepCompleted, Output: "hello"})
	ctx.Record(store.StepResult{StepID: "s2", Order: 2, Status: store.StepCompleted, Output: map[string]any{
		"summary": "two pages",
		"count":   3,
	}})
	ctx.Record(store.StepResult{StepID: "s3", Order: 3, Status: store.StepFailed, Error: "boom"})

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "no placeholders", template: "plain text", want: "plain text"},
		{name: "initial input", template: "start: {{initial_input}}", want: "start: draft the brief"},
		{name: "step output", template: "{{step1.output}} processed", want: "hello processed"},
		{name: "object field", template: "summary={{step2.summary}}", want: "summary=two pages"},
		{name: "numeric field", template: "n={{step2.count}}", want: "n=3"},
		{name: "missing step", template: "x{{step9.output}}y", want: "xy"},
		{name: "missing field", template: "[{{step2.missing}}]", want: "[]"},
		{name: "field on string output", template: "[{{step1.summary}}]", want: "[]"},
		{name: "failed step without output", template: "[{{step3.output}}]", want: "[]"},
		{name: "multiple forms", template: "{{initial_input}}/{{step1.output}}/{{step2.summary}}", want: "draft the brief/hello/two pages"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ResolvePlaceholders(tt.template, ctx); got != tt.want {
				t.Fatalf("ResolvePlaceholders(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestResolvePlaceholdersWithoutInitialInput(t *testing.T) {
	t.Parallel()

	// An unset initial input leaves the token untouched rather than
	// substituting empty.
	ctx := NewContext("wf-1", "run-1", "u-1", "")
	got := ResolvePlaceholders("{{initial_input}} tail", ctx)
	if got != "{{initial_input}} tail" {
		t.Fatalf("got %q, want token preserved", got)
	}
}

func TestResolvePlaceholdersNotRecursive(t *testing.T) {
	t.Parallel()

	// A resolved value is not fed back through earlier passes: step output
	// containing the initial-input token stays literal because that pass
	// already ran.
	ctx := NewContext("wf-1", "run-1", "u-1", "secret")
	ctx.Record(store.StepResult{StepID: "s1", Order: 1, Status: store.StepCompleted, Output: "{{initial_input}}"})

	if got := ResolvePlaceholders("{{step1.output}}", ctx); got != "{{initial_input}}" {
		t.Fatalf("got %q, want literal token from step 1 output", got)
	}
}
