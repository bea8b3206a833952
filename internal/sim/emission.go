package sim

import (
	"net/http"

	"github.com/yungtweek/inference-mock/internal/fixture"
)

// EmissionPlan is the unit a transport renders: either a successful
// response with its timed chunk schedule, or a scripted failure with an
// optional partial prefix.
type EmissionPlan struct {
	Model    string
	Scenario string

	// Success branch.
	Response *CanonicalResponse
	Plan     Plan

	// Failure branch; nil means success.
	Failure *Failure
}

// Failure mirrors the scenario's error payload with its partial prefix
// already planned. Adapters must surface RetryAfter as a protocol retry
// hint and emit exactly the planned partial chunks before aborting.
// FinalDelay holds any pause scheduled between the last partial chunk and
// the abort.
type Failure struct {
	StatusCode    int
	Type          string
	Message       string
	RetryAfter    int
	PartialChunks []Chunk
	FinalDelay    float64
}

// BuildEmission resolves stream settings for the matched scenario, then
// synthesizes and plans the outcome. The returned plan is owned exclusively
// by the calling request.
func BuildEmission(fx *fixture.Fixture, sc *fixture.Scenario, base Defaults) (*EmissionPlan, error) {
	cfg, err := Resolve(sc, fx, base)
	if err != nil {
		return nil, err
	}

	ep := &EmissionPlan{Model: fx.Model, Scenario: sc.Name}

	if sc.Error != nil {
		f := &Failure{
			StatusCode: sc.Error.StatusCode,
			Type:       sc.Error.Type,
			Message:    sc.Error.Message,
			RetryAfter: sc.Error.RetryAfter,
		}
		if f.StatusCode == 0 {
			f.StatusCode = http.StatusInternalServerError
		}
		if sc.Error.PartialMessage != "" {
			// Same planner, same pacing rules: the prefix streams exactly
			// like content until the failure point.
			partial := PlanChunks(sc.Error.PartialMessage, cfg)
			f.PartialChunks = partial.Chunks
			f.FinalDelay = partial.FinalDelay
		}
		ep.Failure = f
		return ep, nil
	}

	resp := Synthesize(sc, cfg)
	ep.Response = &resp
	ep.Plan = PlanChunks(resp.Message, cfg)
	return ep, nil
}
