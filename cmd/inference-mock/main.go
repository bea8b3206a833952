package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungtweek/inference-mock/internal/config"
	"github.com/yungtweek/inference-mock/internal/fixture"
	"github.com/yungtweek/inference-mock/internal/httpapi"
	"github.com/yungtweek/inference-mock/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadConfig()
	config.ApplyPresetOverrides(&cfg)

	logger.Init(cfg.Env)
	defer logger.Sync()

	store := fixture.NewStore()
	if cfg.FixturesDir != "" {
		if err := store.LoadDir(cfg.FixturesDir); err != nil {
			logger.Log.Fatalw("[inference-mock] fixture load failed", "dir", cfg.FixturesDir, "err", err)
		}
	} else {
		if err := store.LoadEmbedded(); err != nil {
			logger.Log.Fatalw("[inference-mock] embedded fixture load failed", "err", err)
		}
		logger.Log.Warn("[inference-mock] FIXTURES_DIR not set, serving the built-in fixture")
	}

	srv := httpapi.NewServer(cfg, store)
	addr := fmt.Sprintf(":%d", cfg.Port)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	logger.Log.Infow(
		"starting inference mock",
		"addr", addr,
		"models", store.Models(),
		"preset", cfg.Preset,
		"profile", cfg.StreamProfile,
		"charsPerToken", cfg.CharsPerToken,
		"chunkBatchSize", cfg.ChunkBatchSize,
		"targetTokensPerSec", cfg.TargetTokensPerSec,
		"finishReason", cfg.FinishReason,
		"timeScale", cfg.TimeScale,
		"captureRequests", cfg.CaptureRequests,
	)

	// Handle SIGINT/SIGTERM for a clean shutdown in local dev / docker.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Log.Info("[inference-mock] shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Log.Warnw("[inference-mock] shutdown error", "err", err)
		}
	}()

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatalw("[inference-mock] server error", "err", err)
	}
}
