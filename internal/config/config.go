package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        int
	Env         string // dev|prod (logger mode)
	FixturesDir string // empty = serve the embedded demo fixture
	Preset      string // openai|vllm (pacing presets for unset fixture defaults)

	// Default stream settings used when neither the scenario nor the fixture
	// declares one. Zero values fall through to the engine defaults.
	StreamProfile      string
	CharsPerToken      int
	ChunkBatchSize     int
	TargetTokensPerSec float64
	FinishReason       string

	// TimeScale multiplies sleeps at emission time only. Planned durations
	// are never scaled, so payloads stay identical across scales.
	TimeScale float64

	CORSOrigins     []string
	CaptureRequests bool
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
func getEnvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
func getEnvStr(k string, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getEnvList(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func LoadConfig() Config {
	return Config{
		Port:        getEnvInt("PORT", 8787),
		Env:         strings.ToLower(getEnvStr("ENV", "dev")),
		FixturesDir: getEnvStr("FIXTURES_DIR", ""),
		Preset:      strings.ToLower(getEnvStr("PRESET", "")),

		StreamProfile:      strings.ToLower(getEnvStr("STREAM_PROFILE", "")),
		CharsPerToken:      getEnvInt("CHARS_PER_TOKEN", 0),
		ChunkBatchSize:     getEnvInt("CHUNK_BATCH_SIZE", 0),
		TargetTokensPerSec: getEnvFloat("TARGET_TOKENS_PER_SEC", 0),
		FinishReason:       strings.ToLower(getEnvStr("FINISH_REASON", "")),

		TimeScale: getEnvFloat("TIME_SCALE", 1.0),

		CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"*"}),
		CaptureRequests: getBool("CAPTURE_REQUESTS", true),
	}
}
