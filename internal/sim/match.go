package sim

import (
	"github.com/yungtweek/inference-mock/internal/fixture"
)

// Turn is one conversation message as the adapters hand it to the engine.
type Turn struct {
	Role    string
	Content string
}

// Match selects the scenario for the conversation's most recent turn. It
// walks scenarios in declaration order and returns the first whose rule
// matches; earlier turns are not consulted. When nothing matches it returns
// NoScenarioMatchedError rather than any silent default.
func Match(fx *fixture.Fixture, conversation []Turn) (*fixture.Scenario, error) {
	var last Turn
	if len(conversation) > 0 {
		last = conversation[len(conversation)-1]
	}

	for i := range fx.Scenarios {
		sc := &fx.Scenarios[i]
		if sc.Match.Matches(last.Role, last.Content) {
			return sc, nil
		}
	}

	return nil, &NoScenarioMatchedError{Model: fx.Model, Role: last.Role, Text: last.Content}
}
