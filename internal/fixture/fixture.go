// Package fixture defines the scripted-scenario documents the gateway serves
// from: one fixture per mock-model, each holding an ordered scenario list
// with match rules, canned responses or failures, and streaming settings.
package fixture

import (
	"fmt"
	"regexp"
)

// Match rule types. Unknown types are rejected at load time.
const (
	MatchExact = "exact"
	MatchRegex = "regex"
	MatchAny   = "any"
)

// Finish reasons accepted in stream settings.
var finishReasons = map[string]bool{
	"stop":           true,
	"length":         true,
	"content_filter": true,
	"tool_calls":     true,
}

// Fixture is the scripted behavior for one mock-model identifier. It is
// immutable once loaded; reloads replace the whole object.
type Fixture struct {
	Model     string          `yaml:"model" json:"model"`
	Defaults  *StreamSettings `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Scenarios []Scenario      `yaml:"scenarios" json:"scenarios"`
}

// Scenario maps one matched input to one deterministic outcome. Exactly one
// of Response or Error is set.
type Scenario struct {
	Name      string           `yaml:"name" json:"name"`
	Match     MatchRule        `yaml:"match" json:"match"`
	Response  *ResponsePayload `yaml:"response,omitempty" json:"response,omitempty"`
	Error     *ErrorPayload    `yaml:"error,omitempty" json:"error,omitempty"`
	Usage     TokenUsage       `yaml:"usage,omitempty" json:"usage,omitempty"`
	Streaming *StreamSettings  `yaml:"streaming,omitempty" json:"streaming,omitempty"`
	Metadata  map[string]any   `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Kind reports whether the scenario scripts content or a failure.
func (s *Scenario) Kind() string {
	if s.Error != nil {
		return "error"
	}
	return "response"
}

// MatchRule decides whether a scenario applies to the latest conversation
// turn. Text comparison is case-sensitive; Role is an exact-equality
// constraint with empty meaning any role.
type MatchRule struct {
	Type string `yaml:"type" json:"type"`
	Role string `yaml:"role,omitempty" json:"role,omitempty"`
	Text string `yaml:"text,omitempty" json:"text,omitempty"`

	re *regexp.Regexp
}

// Matches reports whether the rule applies to a turn. Regex rules search
// unanchored; authors anchor with ^$ when they mean the whole string.
func (m *MatchRule) Matches(role, text string) bool {
	if m.Role != "" && m.Role != role {
		return false
	}
	switch m.Type {
	case MatchExact:
		return m.Text == text
	case MatchRegex:
		return m.re != nil && m.re.MatchString(text)
	case MatchAny:
		return true
	}
	return false
}

func (m *MatchRule) compile() error {
	switch m.Type {
	case MatchExact, MatchAny:
		return nil
	case MatchRegex:
		re, err := regexp.Compile(m.Text)
		if err != nil {
			return fmt.Errorf("compile match pattern %q: %w", m.Text, err)
		}
		m.re = re
		return nil
	default:
		return fmt.Errorf("unknown match type %q", m.Type)
	}
}

// ResponsePayload is the scripted content of a successful scenario. Think
// carries reasoning text; ToolCalls and Attachments pass through to the wire
// without interpretation.
type ResponsePayload struct {
	Message     string     `yaml:"message" json:"message"`
	Think       string     `yaml:"think,omitempty" json:"think,omitempty"`
	ToolCalls   []ToolCall `yaml:"tool_calls,omitempty" json:"tool_calls,omitempty"`
	Attachments []any      `yaml:"attachments,omitempty" json:"attachments,omitempty"`
}

// ToolCall is the protocol-neutral authored shape. Adapters frame it per
// wire; the engine never reads Arguments.
type ToolCall struct {
	ID        string         `yaml:"id,omitempty" json:"id,omitempty"`
	Name      string         `yaml:"name" json:"name"`
	Arguments map[string]any `yaml:"arguments,omitempty" json:"arguments,omitempty"`
}

// ErrorPayload scripts a deterministic failure. PartialMessage, when set,
// streams as planned chunks before the failure terminates the stream.
type ErrorPayload struct {
	StatusCode     int    `yaml:"status_code" json:"status_code"`
	Type           string `yaml:"type,omitempty" json:"type,omitempty"`
	Message        string `yaml:"message" json:"message"`
	RetryAfter     int    `yaml:"retry_after,omitempty" json:"retry_after,omitempty"`
	PartialMessage string `yaml:"partial_message,omitempty" json:"partial_message,omitempty"`
}

// TokenUsage is declared by the scenario author, never computed from
// content.
type TokenUsage struct {
	Prompt     int `yaml:"prompt" json:"prompt"`
	Completion int `yaml:"completion" json:"completion"`
}

func (u TokenUsage) Total() int { return u.Prompt + u.Completion }

// StreamSettings configure chunking and pacing. Numeric fields are pointers
// so per-scenario overrides can be told apart from "inherit". Range checks
// happen when a request resolves its effective settings, not at load.
type StreamSettings struct {
	Profile            string        `yaml:"profile,omitempty" json:"profile,omitempty"`
	CharsPerToken      *int          `yaml:"chars_per_token,omitempty" json:"chars_per_token,omitempty"`
	ChunkBatchSize     *int          `yaml:"chunk_batch_size,omitempty" json:"chunk_batch_size,omitempty"`
	TargetTokensPerSec *float64      `yaml:"target_tokens_per_second,omitempty" json:"target_tokens_per_second,omitempty"`
	FinishReason       string        `yaml:"finish_reason,omitempty" json:"finish_reason,omitempty"`
	Pauses             *PauseProfile `yaml:"pause_profile,omitempty" json:"pause_profile,omitempty"`
}
