package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder forms recognized in step input templates. Each is a literal
// textual replacement, evaluated once; a substituted value is never
// re-scanned for further placeholders.
var (
	reStepOutput = regexp.MustCompile(`\{\{step(\d+)\.output\}\}`)
	reStepField  = regexp.MustCompile(`\{\{step(\d+)\.(\w+)\}\}`)
)

const initialInputToken = "{{initial_input}}"

// ResolvePlaceholders substitutes the three placeholder forms against the
// run's accumulated context:
//
//	{{initial_input}}  -> the run's initial input, only when one was set
//	{{stepN.output}}   -> output of the step with order N
//	{{stepN.<field>}}  -> named field of step N's output, when the output
//	                      is a structured object
//
// Unresolved placeholders become the empty string rather than an error;
// pipelines stay resilient at the cost of possible silent data loss, and
// the tests pin that trade-off down.
func ResolvePlaceholders(template string, ctx *Context) string {
	if template == "" {
		return template
	}
	resolved := template

	// An unset initial input leaves the token as-is.
	if ctx.InitialInput != "" {
		resolved = strings.ReplaceAll(resolved, initialInputToken, ctx.InitialInput)
	}

	resolved = reStepOutput.ReplaceAllStringFunc(resolved, func(m string) string {
		order := placeholderOrder(reStepOutput, m)
		r, ok := ctx.Result(order)
		if !ok || r.Output == nil {
			return ""
		}
		return stringify(r.Output)
	})

	resolved = reStepField.ReplaceAllStringFunc(resolved, func(m string) string {
		sub := reStepField.FindStringSubmatch(m)
		if len(sub) != 3 {
			return ""
		}
		order, _ := strconv.Atoi(sub[1])
		r, ok := ctx.Result(order)
		if !ok {
			return ""
		}
		obj, ok := r.Output.(map[string]any)
		if !ok {
			return ""
		}
		v, ok := obj[sub[2]]
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})

	return resolved
}

func placeholderOrder(re *regexp.Regexp, match string) int {
	sub := re.FindStringSubmatch(match)
	if len(sub) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(sub[1])
	return n
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
