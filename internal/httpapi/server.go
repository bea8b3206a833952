// Package httpapi mounts the provider-impersonating HTTP surfaces: the
// OpenAI-style SSE endpoints, the Ollama-style NDJSON endpoints, and the
// admin plane test harnesses drive between cases.
package httpapi

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/yungtweek/inference-mock/internal/config"
	"github.com/yungtweek/inference-mock/internal/fixture"
	"github.com/yungtweek/inference-mock/internal/sim"
)

const (
	protocolOpenAI = "openai"
	protocolOllama = "ollama"
)

// Server binds the fixture store and the configured stream defaults to the
// HTTP surface.
type Server struct {
	cfg      config.Config
	store    *fixture.Store
	defaults sim.Defaults

	mu       sync.RWMutex
	captured map[string]capturedRequest
}

type capturedRequest struct {
	Protocol string          `json:"protocol"`
	Body     json.RawMessage `json:"body"`
}

func NewServer(cfg config.Config, store *fixture.Store) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		defaults: sim.Defaults{
			Profile:            cfg.StreamProfile,
			CharsPerToken:      cfg.CharsPerToken,
			ChunkBatchSize:     cfg.ChunkBatchSize,
			TargetTokensPerSec: cfg.TargetTokensPerSec,
			FinishReason:       cfg.FinishReason,
		},
		captured: make(map[string]capturedRequest),
	}
}

// Handler assembles the router with both provider surfaces mounted side by
// side, the way gateway consumers expect to hit them.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	// OpenAI-style surface.
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Get("/v1/models", s.handleListModels)

	// Ollama-style surface.
	r.Post("/api/chat", s.handleOllamaChat)
	r.Post("/api/generate", s.handleOllamaGenerate)
	r.Get("/api/tags", s.handleOllamaTags)
	r.Get("/api/version", s.handleOllamaVersion)
	r.Get("/", s.handleRoot)
	r.Head("/", s.handleRoot)

	// Admin plane.
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reload", s.handleReload)
		r.Get("/fixtures", s.handleAdminFixtures)
		r.Get("/requests/{model}", s.handleAdminLastRequest)
		r.Delete("/requests", s.handleAdminClearRequests)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"models": len(s.store.Models()),
	})
}

// capture keeps the most recent raw request body per model so harnesses can
// assert on what their code actually sent.
func (s *Server) capture(model, protocol string, body []byte) {
	if !s.cfg.CaptureRequests {
		return
	}
	s.mu.Lock()
	s.captured[model] = capturedRequest{Protocol: protocol, Body: body}
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
