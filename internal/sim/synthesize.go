package sim

import (
	"github.com/yungtweek/inference-mock/internal/fixture"
)

// CanonicalResponse is the protocol-neutral response a content scenario
// synthesizes to. Adapters frame it for their wire; nothing downstream
// mutates it.
type CanonicalResponse struct {
	Message      string
	Think        string
	ToolCalls    []fixture.ToolCall
	Attachments  []any
	Usage        Usage
	FinishReason string
}

// Usage totals are declared by the scenario author. Total is always
// Prompt+Completion, never an authored input.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// Synthesize builds the canonical response for a content scenario. Pure:
// usage comes from the scenario, the finish reason from the resolved
// settings, and nothing reads the clock or measures the content.
func Synthesize(sc *fixture.Scenario, cfg StreamConfig) CanonicalResponse {
	resp := sc.Response
	return CanonicalResponse{
		Message:     resp.Message,
		Think:       resp.Think,
		ToolCalls:   resp.ToolCalls,
		Attachments: resp.Attachments,
		Usage: Usage{
			Prompt:     sc.Usage.Prompt,
			Completion: sc.Usage.Completion,
			Total:      sc.Usage.Total(),
		},
		FinishReason: cfg.FinishReason,
	}
}
