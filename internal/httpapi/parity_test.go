package httpapi

import (
	"net/http"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both surfaces resolve the same scenario through the same planner, so the
// text, chunk boundaries, finish reason, and usage must line up exactly.
func TestProtocolParityStreaming(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	oai := doRequest(t, h, http.MethodPost, "/v1/chat/completions",
		`{"model":"mock-mini","stream":true,"messages":[{"role":"user","content":"hello"}]}`)
	require.Equal(t, http.StatusOK, oai.Code)
	sse := parseSSE(t, oai.Body.String())
	require.True(t, sse.done)

	oll := doRequest(t, h, http.MethodPost, "/api/chat",
		`{"model":"mock-mini","messages":[{"role":"user","content":"hello"}]}`)
	require.Equal(t, http.StatusOK, oll.Code)
	frames, errLine := parseChatNDJSON(t, oll.Body.String())
	require.Nil(t, errLine)

	var oaiChunks, ollChunks []string
	for _, ch := range sse.chunks {
		for _, c := range ch.Choices {
			if c.Delta.Content != "" {
				oaiChunks = append(oaiChunks, c.Delta.Content)
			}
		}
	}
	for _, f := range frames {
		if !f.Done && f.Message.Content != "" {
			ollChunks = append(ollChunks, f.Message.Content)
		}
	}
	assert.Equal(t, oaiChunks, ollChunks)

	last := sse.chunks[len(sse.chunks)-1]
	terminal := frames[len(frames)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, *last.Choices[0].FinishReason, terminal.DoneReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, last.Usage.PromptTokens, terminal.PromptEvalCount)
	assert.Equal(t, last.Usage.CompletionTokens, terminal.EvalCount)
}

func TestProtocolParityNonStreaming(t *testing.T) {
	_, h := newTestServer(t, testDoc)

	oai := doRequest(t, h, http.MethodPost, "/v1/chat/completions",
		`{"model":"mock-mini","messages":[{"role":"user","content":"hello"}]}`)
	require.Equal(t, http.StatusOK, oai.Code)
	var completion chatCompletion
	require.NoError(t, json.Unmarshal(oai.Body.Bytes(), &completion))

	oll := doRequest(t, h, http.MethodPost, "/api/chat",
		`{"model":"mock-mini","stream":false,"messages":[{"role":"user","content":"hello"}]}`)
	require.Equal(t, http.StatusOK, oll.Code)
	var frame ollamaChatFrame
	require.NoError(t, json.Unmarshal(oll.Body.Bytes(), &frame))

	assert.Equal(t, completion.Choices[0].Message.Content, frame.Message.Content)
	assert.Equal(t, completion.Choices[0].FinishReason, frame.DoneReason)
	assert.Equal(t, completion.Usage.PromptTokens, frame.PromptEvalCount)
	assert.Equal(t, completion.Usage.CompletionTokens, frame.EvalCount)
}
