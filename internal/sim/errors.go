// Package sim is the deterministic core of the gateway: it matches
// conversations against fixture scenarios, synthesizes canonical responses,
// and plans timed chunk sequences for the protocol adapters to render.
package sim

import "fmt"

// NoScenarioMatchedError reports a conversation that no scenario covered.
// It carries the unmatched input so tests can assert exactly which probe
// fell through.
type NoScenarioMatchedError struct {
	Model string
	Role  string
	Text  string
}

func (e *NoScenarioMatchedError) Error() string {
	return fmt.Sprintf("no scenario matched for model %q (role %q, text %q)", e.Model, e.Role, preview(e.Text))
}

// InvalidStreamingConfigError reports resolved stream settings the planner
// cannot honor without dividing by zero or producing negative delays.
type InvalidStreamingConfigError struct {
	Field string
	Value float64
}

func (e *InvalidStreamingConfigError) Error() string {
	return fmt.Sprintf("invalid streaming config: %s = %v", e.Field, e.Value)
}

func preview(s string) string {
	const max = 80
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
