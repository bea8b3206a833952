package httpapi

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/yungtweek/inference-mock/internal/logger"
)

type fixtureSummary struct {
	Model     string            `json:"model"`
	Scenarios []scenarioSummary `json:"scenarios"`
}

type scenarioSummary struct {
	Name     string         `json:"name"`
	Kind     string         `json:"kind"`
	Match    string         `json:"match"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// handleReload re-reads the fixtures directory. On failure the previous
// snapshot keeps serving and the error is reported to the caller.
func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Reload(); err != nil {
		logger.Log.Errorw("[admin] reload failed", "err", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	models := s.store.Models()
	logger.Log.Infow("[admin] fixtures reloaded", "models", len(models))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"models": models,
	})
}

func (s *Server) handleAdminFixtures(w http.ResponseWriter, _ *http.Request) {
	fixtures := s.store.Fixtures()
	models := make([]string, 0, len(fixtures))
	for m := range fixtures {
		models = append(models, m)
	}
	sort.Strings(models)

	out := make([]fixtureSummary, 0, len(models))
	for _, m := range models {
		fx := fixtures[m]
		fs := fixtureSummary{Model: fx.Model, Scenarios: make([]scenarioSummary, 0, len(fx.Scenarios))}
		for i := range fx.Scenarios {
			sc := &fx.Scenarios[i]
			fs.Scenarios = append(fs.Scenarios, scenarioSummary{
				Name:     sc.Name,
				Kind:     sc.Kind(),
				Match:    sc.Match.Type,
				Metadata: sc.Metadata,
			})
		}
		out = append(out, fs)
	}
	writeJSON(w, http.StatusOK, map[string]any{"fixtures": out})
}

func (s *Server) handleAdminLastRequest(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	s.mu.RLock()
	req, ok := s.captured[model]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": fmt.Sprintf("no request captured for model '%s'", model),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":    model,
		"protocol": req.Protocol,
		"body":     req.Body,
	})
}

func (s *Server) handleAdminClearRequests(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.captured = make(map[string]capturedRequest)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}
