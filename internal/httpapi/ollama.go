package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/ollama/ollama/api"

	"github.com/yungtweek/inference-mock/internal/fixture"
	"github.com/yungtweek/inference-mock/internal/logger"
	"github.com/yungtweek/inference-mock/internal/sim"
)

// Every timestamp the Ollama surface reports is pinned to the same instant
// the OpenAI surface uses for created.
var mockTimestamp = time.Unix(mockCreated, 0).UTC()

// ollamaChatFrame is one NDJSON frame for /api/chat. The message rides on the
// upstream api types so tool calls serialize exactly like a real server;
// attachments are a mock extension real clients ignore.
type ollamaChatFrame struct {
	Model       string      `json:"model"`
	CreatedAt   time.Time   `json:"created_at"`
	Message     api.Message `json:"message"`
	Done        bool        `json:"done"`
	DoneReason  string      `json:"done_reason,omitempty"`
	Attachments []any       `json:"attachments,omitempty"`
	ollamaMetrics
}

type ollamaGenerateFrame struct {
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
	Response    string    `json:"response"`
	Thinking    string    `json:"thinking,omitempty"`
	Done        bool      `json:"done"`
	DoneReason  string    `json:"done_reason,omitempty"`
	Attachments []any     `json:"attachments,omitempty"`
	ollamaMetrics
}

type ollamaMetrics struct {
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

type ollamaErrorBody struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system"`
	Stream *bool  `json:"stream"`
}

type ollamaTagsResponse struct {
	Models []ollamaModelSummary `json:"models"`
}

type ollamaModelSummary struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

// planMetrics derives the counters a real server would measure from the plan
// itself, keeping reruns byte-identical.
func planMetrics(ep *sim.EmissionPlan) ollamaMetrics {
	total := ep.Plan.TotalSeconds()
	eval := total - ep.Plan.FinalDelay
	return ollamaMetrics{
		TotalDuration:   int64(total * float64(time.Second)),
		EvalDuration:    int64(eval * float64(time.Second)),
		PromptEvalCount: ep.Response.Usage.Prompt,
		EvalCount:       ep.Response.Usage.Completion,
	}
}

// ollamaToolCalls rebuilds fixture tool calls on the upstream types.
// Arguments go in sorted so the rendered frame never depends on map order.
func ollamaToolCalls(calls []fixture.ToolCall) []api.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]api.ToolCall, 0, len(calls))
	for i, c := range calls {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := api.NewToolCallFunctionArguments()
		keys := make([]string, 0, len(c.Arguments))
		for k := range c.Arguments {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args.Set(k, c.Arguments[k])
		}
		out = append(out, api.ToolCall{
			ID:       id,
			Function: api.ToolCallFunction{Name: c.Name, Arguments: args},
		})
	}
	return out
}

func (s *Server) handleOllamaChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		ollamaError(w, http.StatusBadRequest, "could not read request body", 0)
		return
	}
	var req api.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		ollamaError(w, http.StatusBadRequest, "invalid request", 0)
		return
	}
	if req.Model == "" {
		ollamaError(w, http.StatusBadRequest, "model is required", 0)
		return
	}
	s.capture(req.Model, protocolOllama, body)

	fx, err := s.store.Get(req.Model)
	if err != nil {
		ollamaFromError(w, err)
		return
	}

	conv := make([]sim.Turn, 0, len(req.Messages))
	for _, m := range req.Messages {
		conv = append(conv, sim.Turn{Role: m.Role, Content: m.Content})
	}
	sc, err := sim.Match(fx, conv)
	if err != nil {
		ollamaFromError(w, err)
		return
	}

	ep, err := sim.BuildEmission(fx, sc, s.defaults)
	if err != nil {
		ollamaFromError(w, err)
		return
	}

	// Ollama streams unless the client explicitly opts out.
	stream := req.Stream == nil || *req.Stream
	logger.Log.Infow("[ollama][chat] matched",
		"model", ep.Model, "scenario", ep.Scenario, "stream", stream)

	if stream {
		s.streamOllamaChat(w, r, ep)
		return
	}
	s.respondOllamaChat(w, r, ep)
}

func (s *Server) handleOllamaGenerate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		ollamaError(w, http.StatusBadRequest, "could not read request body", 0)
		return
	}
	var req ollamaGenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		ollamaError(w, http.StatusBadRequest, "invalid request", 0)
		return
	}
	if req.Model == "" {
		ollamaError(w, http.StatusBadRequest, "model is required", 0)
		return
	}
	s.capture(req.Model, protocolOllama, body)

	fx, err := s.store.Get(req.Model)
	if err != nil {
		ollamaFromError(w, err)
		return
	}

	// A generate call is a one-shot conversation: optional system turn, then
	// the prompt as the user turn.
	conv := make([]sim.Turn, 0, 2)
	if req.System != "" {
		conv = append(conv, sim.Turn{Role: "system", Content: req.System})
	}
	conv = append(conv, sim.Turn{Role: "user", Content: req.Prompt})

	sc, err := sim.Match(fx, conv)
	if err != nil {
		ollamaFromError(w, err)
		return
	}

	ep, err := sim.BuildEmission(fx, sc, s.defaults)
	if err != nil {
		ollamaFromError(w, err)
		return
	}

	stream := req.Stream == nil || *req.Stream
	logger.Log.Infow("[ollama][generate] matched",
		"model", ep.Model, "scenario", ep.Scenario, "stream", stream)

	if stream {
		s.streamOllamaGenerate(w, r, ep)
		return
	}
	s.respondOllamaGenerate(w, r, ep)
}

func (s *Server) respondOllamaChat(w http.ResponseWriter, r *http.Request, ep *sim.EmissionPlan) {
	if ep.Failure != nil {
		ollamaFailure(w, ep.Failure)
		return
	}
	if err := s.pace(r.Context(), ep.Plan.TotalSeconds()); err != nil {
		return
	}
	resp := ep.Response
	writeJSON(w, http.StatusOK, ollamaChatFrame{
		Model:     ep.Model,
		CreatedAt: mockTimestamp,
		Message: api.Message{
			Role:      "assistant",
			Content:   resp.Message,
			Thinking:  resp.Think,
			ToolCalls: ollamaToolCalls(resp.ToolCalls),
		},
		Done:          true,
		DoneReason:    resp.FinishReason,
		Attachments:   resp.Attachments,
		ollamaMetrics: planMetrics(ep),
	})
}

func (s *Server) respondOllamaGenerate(w http.ResponseWriter, r *http.Request, ep *sim.EmissionPlan) {
	if ep.Failure != nil {
		ollamaFailure(w, ep.Failure)
		return
	}
	if err := s.pace(r.Context(), ep.Plan.TotalSeconds()); err != nil {
		return
	}
	resp := ep.Response
	writeJSON(w, http.StatusOK, ollamaGenerateFrame{
		Model:         ep.Model,
		CreatedAt:     mockTimestamp,
		Response:      resp.Message,
		Thinking:      resp.Think,
		Done:          true,
		DoneReason:    resp.FinishReason,
		Attachments:   resp.Attachments,
		ollamaMetrics: planMetrics(ep),
	})
}

func (s *Server) streamOllamaChat(w http.ResponseWriter, r *http.Request, ep *sim.EmissionPlan) {
	f := ep.Failure
	if f != nil && len(f.PartialChunks) == 0 {
		ollamaFailure(w, f)
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
	nw := newNDJSONWriter(w, flusher)

	frame := func(msg api.Message) ollamaChatFrame {
		return ollamaChatFrame{Model: ep.Model, CreatedAt: mockTimestamp, Message: msg}
	}

	if f != nil {
		for _, c := range f.PartialChunks {
			if err := s.pace(ctx, c.Delay); err != nil {
				return
			}
			if err := nw.send(frame(api.Message{Role: "assistant", Content: c.Text})); err != nil {
				return
			}
			chunksEmitted.WithLabelValues(protocolOllama).Inc()
		}
		if err := s.pace(ctx, f.FinalDelay); err != nil {
			return
		}
		// The 200 is already on the wire, so the declared status rides in the
		// error line.
		_ = nw.send(ollamaErrorBody{Error: f.Message, StatusCode: f.StatusCode, RetryAfter: f.RetryAfter})
		return
	}

	resp := ep.Response
	if resp.Think != "" {
		if err := nw.send(frame(api.Message{Role: "assistant", Thinking: resp.Think})); err != nil {
			return
		}
	}
	for _, c := range ep.Plan.Chunks {
		if err := s.pace(ctx, c.Delay); err != nil {
			return
		}
		if err := nw.send(frame(api.Message{Role: "assistant", Content: c.Text})); err != nil {
			return
		}
		chunksEmitted.WithLabelValues(protocolOllama).Inc()
	}
	if err := s.pace(ctx, ep.Plan.FinalDelay); err != nil {
		return
	}

	terminal := frame(api.Message{Role: "assistant", ToolCalls: ollamaToolCalls(resp.ToolCalls)})
	terminal.Done = true
	terminal.DoneReason = resp.FinishReason
	terminal.Attachments = resp.Attachments
	terminal.ollamaMetrics = planMetrics(ep)
	_ = nw.send(terminal)
}

func (s *Server) streamOllamaGenerate(w http.ResponseWriter, r *http.Request, ep *sim.EmissionPlan) {
	f := ep.Failure
	if f != nil && len(f.PartialChunks) == 0 {
		ollamaFailure(w, f)
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
	nw := newNDJSONWriter(w, flusher)

	frame := func(text string) ollamaGenerateFrame {
		return ollamaGenerateFrame{Model: ep.Model, CreatedAt: mockTimestamp, Response: text}
	}

	if f != nil {
		for _, c := range f.PartialChunks {
			if err := s.pace(ctx, c.Delay); err != nil {
				return
			}
			if err := nw.send(frame(c.Text)); err != nil {
				return
			}
			chunksEmitted.WithLabelValues(protocolOllama).Inc()
		}
		if err := s.pace(ctx, f.FinalDelay); err != nil {
			return
		}
		_ = nw.send(ollamaErrorBody{Error: f.Message, StatusCode: f.StatusCode, RetryAfter: f.RetryAfter})
		return
	}

	resp := ep.Response
	if resp.Think != "" {
		first := frame("")
		first.Thinking = resp.Think
		if err := nw.send(first); err != nil {
			return
		}
	}
	for _, c := range ep.Plan.Chunks {
		if err := s.pace(ctx, c.Delay); err != nil {
			return
		}
		if err := nw.send(frame(c.Text)); err != nil {
			return
		}
		chunksEmitted.WithLabelValues(protocolOllama).Inc()
	}
	if err := s.pace(ctx, ep.Plan.FinalDelay); err != nil {
		return
	}

	terminal := frame("")
	terminal.Done = true
	terminal.DoneReason = resp.FinishReason
	terminal.Attachments = resp.Attachments
	terminal.ollamaMetrics = planMetrics(ep)
	_ = nw.send(terminal)
}

func (s *Server) handleOllamaTags(w http.ResponseWriter, _ *http.Request) {
	models := s.store.Models()
	out := ollamaTagsResponse{Models: make([]ollamaModelSummary, 0, len(models))}
	for _, m := range models {
		out.Models = append(out.Models, ollamaModelSummary{
			Name:       m,
			Model:      m,
			ModifiedAt: mockTimestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOllamaVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": "0.0.0"})
}

// handleRoot mimics the Ollama heartbeat probe.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ollama is running"))
}

// ollamaFromError maps gateway errors onto the flat Ollama error body.
func ollamaFromError(w http.ResponseWriter, err error) {
	var unknownModel *fixture.UnknownModelError
	var unmatched *sim.NoScenarioMatchedError
	switch {
	case errors.As(err, &unknownModel):
		ollamaError(w, http.StatusNotFound, fmt.Sprintf("model '%s' not found", unknownModel.Model), 0)
	case errors.As(err, &unmatched):
		ollamaError(w, http.StatusUnprocessableEntity, err.Error(), 0)
	default:
		ollamaError(w, http.StatusInternalServerError, err.Error(), 0)
	}
}

func ollamaFailure(w http.ResponseWriter, f *sim.Failure) {
	ollamaError(w, f.StatusCode, f.Message, f.RetryAfter)
}

func ollamaError(w http.ResponseWriter, status int, msg string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeJSON(w, status, ollamaErrorBody{Error: msg})
}
