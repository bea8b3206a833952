package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/yungtweek/inference-mock/internal/fixture"
	"github.com/yungtweek/inference-mock/internal/logger"
	"github.com/yungtweek/inference-mock/internal/sim"
)

// Fixed creation timestamp so repeated runs emit identical payloads.
const mockCreated int64 = 1700000000

// completionID derives a stable completion id from model and scenario.
func completionID(model, scenario string) string {
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte("inference-mock/"+model+"/"+scenario))
	return "chatcmpl-" + strings.ReplaceAll(u.String(), "-", "")
}

type chatCompletionsRequest struct {
	Model    string               `json:"model"`
	Messages []chatRequestMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

type chatRequestMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// text flattens the content field, which clients send either as a plain
// string or as an array of typed parts.
func (m chatRequestMessage) text() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case []any:
		var sb strings.Builder
		for _, part := range c {
			obj, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := obj["text"].(string); ok {
				sb.WriteString(s)
			}
		}
		return sb.String()
	default:
		return ""
	}
}

type chatCompletion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   usagePayload       `json:"usage"`
}

type completionChoice struct {
	Index        int              `json:"index"`
	Message      assistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

type assistantMessage struct {
	Role             string           `json:"role"`
	Content          string           `json:"content"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCalls        []openaiToolCall `json:"tool_calls,omitempty"`
	Attachments      []any            `json:"attachments,omitempty"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   *usagePayload `json:"usage,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Role             string           `json:"role,omitempty"`
	Content          string           `json:"content,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCalls        []openaiToolCall `json:"tool_calls,omitempty"`
	Attachments      []any            `json:"attachments,omitempty"`
}

type openaiToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiErrorEnvelope struct {
	Error openaiErrorBody `json:"error"`
}

type openaiErrorBody struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Param      any    `json:"param"`
	Code       any    `json:"code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// openaiToolCalls renders fixture tool calls with their arguments re-encoded
// as a JSON string, the way the chat completions API carries them.
func openaiToolCalls(calls []fixture.ToolCall) []openaiToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]openaiToolCall, 0, len(calls))
	for i, c := range calls {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := "{}"
		if len(c.Arguments) > 0 {
			if b, err := json.Marshal(c.Arguments); err == nil {
				args = string(b)
			}
		}
		out = append(out, openaiToolCall{
			ID:       id,
			Type:     "function",
			Function: openaiFunction{Name: c.Name, Arguments: args},
		})
	}
	return out
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		openaiError(w, http.StatusBadRequest, openaiErrorBody{
			Message: "could not read request body",
			Type:    "invalid_request_error",
		}, 0)
		return
	}
	var req chatCompletionsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		openaiError(w, http.StatusBadRequest, openaiErrorBody{
			Message: "request body is not valid JSON",
			Type:    "invalid_request_error",
		}, 0)
		return
	}
	if req.Model == "" {
		openaiError(w, http.StatusBadRequest, openaiErrorBody{
			Message: "you must provide a model parameter",
			Type:    "invalid_request_error",
		}, 0)
		return
	}
	s.capture(req.Model, protocolOpenAI, body)

	fx, err := s.store.Get(req.Model)
	if err != nil {
		openaiFromError(w, err)
		return
	}

	conv := make([]sim.Turn, 0, len(req.Messages))
	for _, m := range req.Messages {
		conv = append(conv, sim.Turn{Role: m.Role, Content: m.text()})
	}
	sc, err := sim.Match(fx, conv)
	if err != nil {
		openaiFromError(w, err)
		return
	}

	ep, err := sim.BuildEmission(fx, sc, s.defaults)
	if err != nil {
		openaiFromError(w, err)
		return
	}

	logger.Log.Infow("[openai][chat] matched",
		"model", ep.Model, "scenario", ep.Scenario, "stream", req.Stream)

	if req.Stream {
		s.streamChatCompletion(w, r, ep)
		return
	}
	s.respondChatCompletion(w, r, ep)
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	models := s.store.Models()
	data := make([]modelInfo, 0, len(models))
	for _, m := range models {
		data = append(data, modelInfo{ID: m, Object: "model", Created: mockCreated, OwnedBy: "inference-mock"})
	}
	writeJSON(w, http.StatusOK, modelList{Object: "list", Data: data})
}

func (s *Server) respondChatCompletion(w http.ResponseWriter, r *http.Request, ep *sim.EmissionPlan) {
	if ep.Failure != nil {
		openaiFailure(w, ep.Failure)
		return
	}
	// The whole stream schedule collapses into one pre-response delay.
	if err := s.pace(r.Context(), ep.Plan.TotalSeconds()); err != nil {
		return
	}
	resp := ep.Response
	writeJSON(w, http.StatusOK, chatCompletion{
		ID:      completionID(ep.Model, ep.Scenario),
		Object:  "chat.completion",
		Created: mockCreated,
		Model:   ep.Model,
		Choices: []completionChoice{{
			Index: 0,
			Message: assistantMessage{
				Role:             "assistant",
				Content:          resp.Message,
				ReasoningContent: resp.Think,
				ToolCalls:        openaiToolCalls(resp.ToolCalls),
				Attachments:      resp.Attachments,
			},
			FinishReason: resp.FinishReason,
		}},
		Usage: usagePayload{
			PromptTokens:     resp.Usage.Prompt,
			CompletionTokens: resp.Usage.Completion,
			TotalTokens:      resp.Usage.Total,
		},
	})
}

func (s *Server) streamChatCompletion(w http.ResponseWriter, r *http.Request, ep *sim.EmissionPlan) {
	f := ep.Failure
	if f != nil && len(f.PartialChunks) == 0 {
		// Failing before the first byte is a plain HTTP error even when the
		// client asked for a stream.
		openaiFailure(w, f)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	activeStreams.Inc()
	defer activeStreams.Dec()

	ctx := r.Context()
	sw := newSSEWriter(w, flusher)
	id := completionID(ep.Model, ep.Scenario)

	// Role-first frame, then content deltas in plan order.
	if err := sw.send(openaiChunk(id, ep.Model, chunkChoice{Delta: chunkDelta{Role: "assistant"}})); err != nil {
		return
	}

	if f != nil {
		for _, c := range f.PartialChunks {
			if err := s.pace(ctx, c.Delay); err != nil {
				return
			}
			if err := sw.send(openaiChunk(id, ep.Model, chunkChoice{Delta: chunkDelta{Content: c.Text}})); err != nil {
				return
			}
			chunksEmitted.WithLabelValues(protocolOpenAI).Inc()
		}
		if err := s.pace(ctx, f.FinalDelay); err != nil {
			return
		}
		// The 200 is already on the wire, so the declared status code rides
		// inside the error frame instead.
		typ := f.Type
		if typ == "" {
			typ = "api_error"
		}
		_ = sw.send(openaiErrorEnvelope{Error: openaiErrorBody{
			Message:    f.Message,
			Type:       typ,
			Code:       f.StatusCode,
			RetryAfter: f.RetryAfter,
		}})
		return
	}

	resp := ep.Response
	if resp.Think != "" {
		if err := sw.send(openaiChunk(id, ep.Model, chunkChoice{Delta: chunkDelta{ReasoningContent: resp.Think}})); err != nil {
			return
		}
	}
	for _, c := range ep.Plan.Chunks {
		if err := s.pace(ctx, c.Delay); err != nil {
			return
		}
		if err := sw.send(openaiChunk(id, ep.Model, chunkChoice{Delta: chunkDelta{Content: c.Text}})); err != nil {
			return
		}
		chunksEmitted.WithLabelValues(protocolOpenAI).Inc()
	}
	if calls := openaiToolCalls(resp.ToolCalls); len(calls) > 0 || len(resp.Attachments) > 0 {
		if err := sw.send(openaiChunk(id, ep.Model, chunkChoice{Delta: chunkDelta{ToolCalls: calls, Attachments: resp.Attachments}})); err != nil {
			return
		}
	}
	if err := s.pace(ctx, ep.Plan.FinalDelay); err != nil {
		return
	}

	finish := resp.FinishReason
	terminal := openaiChunk(id, ep.Model, chunkChoice{Delta: chunkDelta{}, FinishReason: &finish})
	terminal.Usage = &usagePayload{
		PromptTokens:     resp.Usage.Prompt,
		CompletionTokens: resp.Usage.Completion,
		TotalTokens:      resp.Usage.Total,
	}
	if err := sw.send(terminal); err != nil {
		return
	}
	_ = sw.done()
}

func openaiChunk(id, model string, choice chunkChoice) chatChunk {
	return chatChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: mockCreated,
		Model:   model,
		Choices: []chunkChoice{choice},
	}
}

// openaiFromError maps gateway errors onto OpenAI-style error envelopes.
func openaiFromError(w http.ResponseWriter, err error) {
	var unknownModel *fixture.UnknownModelError
	var unmatched *sim.NoScenarioMatchedError
	var badConfig *sim.InvalidStreamingConfigError
	switch {
	case errors.As(err, &unknownModel):
		openaiError(w, http.StatusNotFound, openaiErrorBody{
			Message: fmt.Sprintf("The model '%s' does not exist", unknownModel.Model),
			Type:    "invalid_request_error",
			Code:    "model_not_found",
		}, 0)
	case errors.As(err, &unmatched):
		openaiError(w, http.StatusUnprocessableEntity, openaiErrorBody{
			Message: err.Error(),
			Type:    "no_scenario_matched",
		}, 0)
	case errors.As(err, &badConfig):
		openaiError(w, http.StatusInternalServerError, openaiErrorBody{
			Message: err.Error(),
			Type:    "invalid_streaming_config",
		}, 0)
	default:
		openaiError(w, http.StatusInternalServerError, openaiErrorBody{
			Message: err.Error(),
			Type:    "api_error",
		}, 0)
	}
}

func openaiFailure(w http.ResponseWriter, f *sim.Failure) {
	typ := f.Type
	if typ == "" {
		typ = "api_error"
	}
	openaiError(w, f.StatusCode, openaiErrorBody{Message: f.Message, Type: typ}, f.RetryAfter)
}

func openaiError(w http.ResponseWriter, status int, body openaiErrorBody, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeJSON(w, status, openaiErrorEnvelope{Error: body})
}
