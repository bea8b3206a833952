package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungtweek/inference-mock/internal/fixture"
)

func mustFixture(t *testing.T, doc string) *fixture.Fixture {
	t.Helper()
	fx, err := fixture.Parse("test.yaml", []byte(doc))
	require.NoError(t, err)
	return fx
}

const matchDoc = `
model: mock-match
scenarios:
  - name: first-colour
    match: {type: regex, role: user, text: "colou?r"}
    response: {message: "first"}
  - name: second-colour
    match: {type: regex, role: user, text: "colour"}
    response: {message: "second"}
  - name: assistant-echo
    match: {type: exact, role: assistant, text: "echo"}
    response: {message: "assistant echo"}
`

func TestMatchFirstMatchWins(t *testing.T) {
	fx := mustFixture(t, matchDoc)

	// Both colour scenarios match this input; declaration order decides.
	sc, err := Match(fx, []Turn{{Role: "user", Content: "what colour is it"}})
	require.NoError(t, err)
	assert.Equal(t, "first-colour", sc.Name)
}

func TestMatchConsidersLastTurnOnly(t *testing.T) {
	fx := mustFixture(t, matchDoc)

	// The matching turn is buried in history; only the final turn counts.
	_, err := Match(fx, []Turn{
		{Role: "user", Content: "what colour is it"},
		{Role: "assistant", Content: "no idea"},
	})
	var nome *NoScenarioMatchedError
	require.ErrorAs(t, err, &nome)

	// Same history with a matching final turn selects normally.
	sc, err := Match(fx, []Turn{
		{Role: "assistant", Content: "gibberish history"},
		{Role: "user", Content: "pick a colour already"},
	})
	require.NoError(t, err)
	assert.Equal(t, "first-colour", sc.Name)
}

func TestMatchRoleConstraint(t *testing.T) {
	fx := mustFixture(t, matchDoc)

	sc, err := Match(fx, []Turn{{Role: "assistant", Content: "echo"}})
	require.NoError(t, err)
	assert.Equal(t, "assistant-echo", sc.Name)

	_, err = Match(fx, []Turn{{Role: "user", Content: "echo"}})
	var nome *NoScenarioMatchedError
	require.ErrorAs(t, err, &nome)
}

func TestMatchNoScenarioError(t *testing.T) {
	fx := mustFixture(t, matchDoc)

	_, err := Match(fx, []Turn{{Role: "user", Content: "completely unhandled probe"}})

	var nome *NoScenarioMatchedError
	require.ErrorAs(t, err, &nome)
	assert.Equal(t, "mock-match", nome.Model)
	assert.Equal(t, "user", nome.Role)
	assert.Equal(t, "completely unhandled probe", nome.Text)
	assert.Contains(t, nome.Error(), "unhandled probe")
}

func TestMatchAnyFallback(t *testing.T) {
	fx := mustFixture(t, matchDoc+`
  - name: fallback
    match: {type: any}
    response: {message: "fallback"}
`)

	sc, err := Match(fx, []Turn{{Role: "tool", Content: "zzzz"}})
	require.NoError(t, err)
	assert.Equal(t, "fallback", sc.Name)

	// Scenarios before the fallback still shadow it.
	sc, err = Match(fx, []Turn{{Role: "user", Content: "colour"}})
	require.NoError(t, err)
	assert.Equal(t, "first-colour", sc.Name)
}

func TestMatchEmptyConversation(t *testing.T) {
	fx := mustFixture(t, matchDoc)

	_, err := Match(fx, nil)
	var nome *NoScenarioMatchedError
	require.ErrorAs(t, err, &nome)
	assert.Empty(t, nome.Role)
	assert.Empty(t, nome.Text)
}
