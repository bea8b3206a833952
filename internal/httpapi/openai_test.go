package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseResult struct {
	chunks []chatChunk
	errors []openaiErrorBody
	done   bool
}

func parseSSE(t *testing.T, body string) sseResult {
	t.Helper()
	var result sseResult
	for _, evt := range strings.Split(strings.TrimSpace(body), "\n\n") {
		evt = strings.TrimSpace(evt)
		if !strings.HasPrefix(evt, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(evt, "data: ")
		if payload == "[DONE]" {
			result.done = true
			continue
		}
		if strings.HasPrefix(payload, `{"error"`) {
			var env openaiErrorEnvelope
			require.NoError(t, json.Unmarshal([]byte(payload), &env))
			result.errors = append(result.errors, env.Error)
			continue
		}
		var ch chatChunk
		require.NoError(t, json.Unmarshal([]byte(payload), &ch))
		result.chunks = append(result.chunks, ch)
	}
	return result
}

func contentOf(chunks []chatChunk) string {
	var sb strings.Builder
	for _, ch := range chunks {
		for _, c := range ch.Choices {
			sb.WriteString(c.Delta.Content)
		}
	}
	return sb.String()
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	body := `{"model":"mock-mini","messages":[{"role":"user","content":"hello"}]}`
	rr := doRequest(t, h, http.MethodPost, "/v1/chat/completions", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp chatCompletion
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, mockCreated, resp.Created)
	assert.Equal(t, "mock-mini", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "Hello from the mock gateway.", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, usagePayload{PromptTokens: 2, CompletionTokens: 6, TotalTokens: 8}, resp.Usage)

	// Same request again must produce byte-identical output.
	rr2 := doRequest(t, h, http.MethodPost, "/v1/chat/completions", body)
	assert.Equal(t, rr.Body.String(), rr2.Body.String())
}

func TestChatCompletionsStreaming(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	body := `{"model":"mock-mini","stream":true,"messages":[{"role":"user","content":"hello"}]}`
	rr := doRequest(t, h, http.MethodPost, "/v1/chat/completions", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/event-stream")

	result := parseSSE(t, rr.Body.String())
	require.True(t, result.done, "missing [DONE] marker")
	require.NotEmpty(t, result.chunks)

	first := result.chunks[0]
	require.Len(t, first.Choices, 1)
	assert.Equal(t, "assistant", first.Choices[0].Delta.Role)

	last := result.chunks[len(result.chunks)-1]
	require.Len(t, last.Choices, 1)
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, usagePayload{PromptTokens: 2, CompletionTokens: 6, TotalTokens: 8}, *last.Usage)

	// 28 chars at 4 chars per chunk.
	assert.Equal(t, "Hello from the mock gateway.", contentOf(result.chunks))
	var deltas int
	for _, ch := range result.chunks {
		if len(ch.Choices) == 1 && ch.Choices[0].Delta.Content != "" {
			deltas++
			assert.LessOrEqual(t, len(ch.Choices[0].Delta.Content), 4)
		}
	}
	assert.Equal(t, 7, deltas)

	// Stream replays are byte-identical too.
	rr2 := doRequest(t, h, http.MethodPost, "/v1/chat/completions", body)
	assert.Equal(t, rr.Body.String(), rr2.Body.String())
}

func TestChatCompletionsReasoningAndToolCalls(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	body := `{"model":"mock-mini","stream":true,"messages":[{"role":"user","content":"plan the trip"}]}`
	rr := doRequest(t, h, http.MethodPost, "/v1/chat/completions", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	result := parseSSE(t, rr.Body.String())
	require.True(t, result.done)

	var reasoning string
	var calls []openaiToolCall
	for _, ch := range result.chunks {
		for _, c := range ch.Choices {
			reasoning += c.Delta.ReasoningContent
			calls = append(calls, c.Delta.ToolCalls...)
		}
	}
	assert.Equal(t, "outline first", reasoning)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_0", calls[0].ID)
	assert.Equal(t, "function", calls[0].Type)
	assert.Equal(t, "get_weather", calls[0].Function.Name)
	assert.JSONEq(t, `{"city":"Oslo","units":"metric"}`, calls[0].Function.Arguments)

	last := result.chunks[len(result.chunks)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "tool_calls", *last.Choices[0].FinishReason)

	assert.Equal(t, "Step one.", contentOf(result.chunks))
}

func TestChatCompletionsCleanFailure(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	for _, stream := range []bool{false, true} {
		body := `{"model":"mock-mini","stream":` + strconv.FormatBool(stream) +
			`,"messages":[{"role":"user","content":"overload"}]}`
		rr := doRequest(t, h, http.MethodPost, "/v1/chat/completions", body)

		// No partial content declared, so even a stream request fails with a
		// plain HTTP error.
		require.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "7", rr.Header().Get("Retry-After"))

		var env openaiErrorEnvelope
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
		assert.Equal(t, "rate_limit_exceeded", env.Error.Type)
		assert.Equal(t, "rate limited", env.Error.Message)
	}
}

func TestChatCompletionsMidStreamFailure(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	body := `{"model":"mock-mini","stream":true,"messages":[{"role":"user","content":"flaky"}]}`
	rr := doRequest(t, h, http.MethodPost, "/v1/chat/completions", body)

	// Streaming already started, so the HTTP status stays 200 and the failure
	// arrives as an error frame.
	require.Equal(t, http.StatusOK, rr.Code)

	result := parseSSE(t, rr.Body.String())
	assert.False(t, result.done, "failed stream must not end with [DONE]")
	assert.Equal(t, "Partial an", contentOf(result.chunks))

	require.Len(t, result.errors, 1)
	assert.Equal(t, "backend fell over", result.errors[0].Message)
	assert.Equal(t, float64(503), result.errors[0].Code)
}

func TestChatCompletionsContentParts(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	body := `{"model":"mock-mini","messages":[{"role":"user","content":[{"type":"text","text":"hel"},{"type":"text","text":"lo"}]}]}`
	rr := doRequest(t, h, http.MethodPost, "/v1/chat/completions", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp chatCompletion
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Hello from the mock gateway.", resp.Choices[0].Message.Content)
}

func TestChatCompletionsUnknownModel(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	rr := doRequest(t, h, http.MethodPost, "/v1/chat/completions",
		`{"model":"nope","messages":[{"role":"user","content":"hello"}]}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	var env openaiErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "invalid_request_error", env.Error.Type)
	assert.Equal(t, "model_not_found", env.Error.Code)
	assert.Contains(t, env.Error.Message, "'nope'")
}

func TestChatCompletionsNoScenarioMatched(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	rr := doRequest(t, h, http.MethodPost, "/v1/chat/completions",
		`{"model":"mock-mini","messages":[{"role":"user","content":"xyzzy"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var env openaiErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "no_scenario_matched", env.Error.Type)
	assert.Contains(t, env.Error.Message, "xyzzy")
}

func TestChatCompletionsRequestValidation(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	rr := doRequest(t, h, http.MethodPost, "/v1/chat/completions", "{not json")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"hello"}]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListModels(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	rr := doRequest(t, h, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var list modelList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "mock-mini", list.Data[0].ID)
	assert.Equal(t, "model", list.Data[0].Object)
}
