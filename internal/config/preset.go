package config

import "github.com/yungtweek/inference-mock/internal/logger"

// ApplyPresetOverrides replaces the default pacing with a named provider
// profile. Presets only shape pacing defaults; fixture-level and
// scenario-level settings always win over them.
func ApplyPresetOverrides(cfg *Config) {
	if cfg.Preset == "" {
		return
	}
	logger.Log.Infow("[config] apply preset overrides", "preset", cfg.Preset)
	switch cfg.Preset {
	case "openai":
		// OpenAI-like: token-at-a-time deltas, moderate throughput
		cfg.StreamProfile = "token"
		cfg.CharsPerToken = 4
		cfg.TargetTokensPerSec = 35

	case "vllm":
		// vLLM-like: chunky batches, high throughput
		cfg.StreamProfile = "chunky"
		cfg.ChunkBatchSize = 12
		cfg.TargetTokensPerSec = 90

	default:
		logger.Log.Warnw("[config] unknown preset, keeping configured defaults", "preset", cfg.Preset)
	}
}
