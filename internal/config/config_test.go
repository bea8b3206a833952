package config

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	envs := []string{
		"PORT",
		"ENV",
		"FIXTURES_DIR",
		"PRESET",
		"STREAM_PROFILE",
		"CHARS_PER_TOKEN",
		"CHUNK_BATCH_SIZE",
		"TARGET_TOKENS_PER_SEC",
		"FINISH_REASON",
		"TIME_SCALE",
		"CORS_ORIGINS",
		"CAPTURE_REQUESTS",
	}
	for _, k := range envs {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()

	if cfg.Port != 8787 || cfg.Env != "dev" || cfg.FixturesDir != "" {
		t.Fatalf("unexpected base config: %+v", cfg)
	}
	if cfg.Preset != "" || cfg.StreamProfile != "" || cfg.CharsPerToken != 0 || cfg.ChunkBatchSize != 0 {
		t.Fatalf("unexpected stream defaults: %+v", cfg)
	}
	if cfg.TargetTokensPerSec != 0 || cfg.TimeScale != 1.0 {
		t.Fatalf("unexpected pacing defaults: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected CORS defaults: %+v", cfg.CORSOrigins)
	}
	if !cfg.CaptureRequests {
		t.Fatalf("request capture should default on: %+v", cfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("ENV", "PROD")
	t.Setenv("FIXTURES_DIR", "/tmp/fx")
	t.Setenv("PRESET", "vLLM")
	t.Setenv("STREAM_PROFILE", "chunky")
	t.Setenv("CHARS_PER_TOKEN", "3")
	t.Setenv("CHUNK_BATCH_SIZE", "8")
	t.Setenv("TARGET_TOKENS_PER_SEC", "42.5")
	t.Setenv("FINISH_REASON", "length")
	t.Setenv("TIME_SCALE", "0.25")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("CAPTURE_REQUESTS", "off")

	cfg := LoadConfig()

	if cfg.Port != 9999 || cfg.Env != "prod" || cfg.FixturesDir != "/tmp/fx" || cfg.Preset != "vllm" {
		t.Fatalf("overrides not applied to base config: %+v", cfg)
	}
	if cfg.StreamProfile != "chunky" || cfg.CharsPerToken != 3 || cfg.ChunkBatchSize != 8 {
		t.Fatalf("overrides not applied to stream defaults: %+v", cfg)
	}
	if cfg.TargetTokensPerSec != 42.5 || cfg.FinishReason != "length" || cfg.TimeScale != 0.25 {
		t.Fatalf("overrides not applied to pacing: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "http://a.test" || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("CORS origins not split: %+v", cfg.CORSOrigins)
	}
	if cfg.CaptureRequests {
		t.Fatalf("capture override not applied: %+v", cfg)
	}
}

func TestApplyPresetOverrides(t *testing.T) {
	cfg := Config{Preset: "openai", TargetTokensPerSec: 5}
	ApplyPresetOverrides(&cfg)
	if cfg.StreamProfile != "token" || cfg.CharsPerToken != 4 || cfg.TargetTokensPerSec != 35 {
		t.Fatalf("openai preset not applied: %+v", cfg)
	}

	cfg = Config{Preset: "vllm"}
	ApplyPresetOverrides(&cfg)
	if cfg.StreamProfile != "chunky" || cfg.ChunkBatchSize != 12 || cfg.TargetTokensPerSec != 90 {
		t.Fatalf("vllm preset not applied: %+v", cfg)
	}

	cfg = Config{Preset: "", StreamProfile: "token"}
	ApplyPresetOverrides(&cfg)
	if cfg.StreamProfile != "token" || cfg.CharsPerToken != 0 {
		t.Fatalf("empty preset must not touch config: %+v", cfg)
	}
}
