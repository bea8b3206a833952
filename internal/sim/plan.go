package sim

import (
	"strings"

	"github.com/yungtweek/inference-mock/internal/fixture"
	"github.com/yungtweek/inference-mock/internal/logger"
)

// Engine defaults, the last layer of stream-setting resolution.
const (
	DefaultProfile        = "token"
	DefaultCharsPerToken  = 4
	DefaultChunkBatchSize = 10
	DefaultFinishReason   = "stop"
)

// Defaults is the configured default layer (env/preset). Zero values fall
// through to the engine defaults above.
type Defaults struct {
	Profile            string
	CharsPerToken      int
	ChunkBatchSize     int
	TargetTokensPerSec float64
	FinishReason       string
}

// StreamConfig is the fully resolved, validated configuration one request
// plans with.
type StreamConfig struct {
	Profile            string
	TokensPerChunk     int
	CharsPerToken      int
	TargetTokensPerSec float64 // 0 = unpaced
	FinishReason       string
	Pauses             *fixture.PauseProfile
}

// Resolve merges scenario overrides over fixture defaults over configured
// defaults over engine defaults, first non-null winning per field, and
// validates the result. Numeric settings an author forced out of range
// surface here as InvalidStreamingConfigError, not at load time.
func Resolve(sc *fixture.Scenario, fx *fixture.Fixture, base Defaults) (StreamConfig, error) {
	var over, def *fixture.StreamSettings
	if sc != nil {
		over = sc.Streaming
	}
	if fx != nil {
		def = fx.Defaults
	}

	cpt := resolveCharsPerToken(over, def, base)
	if cpt <= 0 {
		return StreamConfig{}, &InvalidStreamingConfigError{Field: "chars_per_token", Value: float64(cpt)}
	}

	batch := resolveChunkBatchSize(over, def, base)
	if batch <= 0 {
		return StreamConfig{}, &InvalidStreamingConfigError{Field: "chunk_batch_size", Value: float64(batch)}
	}

	target, targetSet := resolveTarget(over, def, base)
	if targetSet && target <= 0 {
		return StreamConfig{}, &InvalidStreamingConfigError{Field: "target_tokens_per_second", Value: target}
	}

	profile := resolveProfile(over, def, base)
	tokensPerChunk := 1
	switch profile {
	case "token":
	case "chunky":
		tokensPerChunk = batch
	default:
		// Unknown profiles never fail; they chunk by the generic batch size.
		logger.Log.Warnw("[sim] unknown streaming profile, batch fallback", "profile", profile, "batch", batch)
		tokensPerChunk = batch
	}

	return StreamConfig{
		Profile:            profile,
		TokensPerChunk:     tokensPerChunk,
		CharsPerToken:      cpt,
		TargetTokensPerSec: target,
		FinishReason:       resolveFinishReason(over, def, base),
		Pauses:             resolvePauses(over, def),
	}, nil
}

func resolveProfile(over, def *fixture.StreamSettings, base Defaults) string {
	if over != nil && over.Profile != "" {
		return over.Profile
	}
	if def != nil && def.Profile != "" {
		return def.Profile
	}
	if base.Profile != "" {
		return base.Profile
	}
	return DefaultProfile
}

func resolveCharsPerToken(over, def *fixture.StreamSettings, base Defaults) int {
	if over != nil && over.CharsPerToken != nil {
		return *over.CharsPerToken
	}
	if def != nil && def.CharsPerToken != nil {
		return *def.CharsPerToken
	}
	if base.CharsPerToken != 0 {
		return base.CharsPerToken
	}
	return DefaultCharsPerToken
}

func resolveChunkBatchSize(over, def *fixture.StreamSettings, base Defaults) int {
	if over != nil && over.ChunkBatchSize != nil {
		return *over.ChunkBatchSize
	}
	if def != nil && def.ChunkBatchSize != nil {
		return *def.ChunkBatchSize
	}
	if base.ChunkBatchSize != 0 {
		return base.ChunkBatchSize
	}
	return DefaultChunkBatchSize
}

func resolveTarget(over, def *fixture.StreamSettings, base Defaults) (float64, bool) {
	if over != nil && over.TargetTokensPerSec != nil {
		return *over.TargetTokensPerSec, true
	}
	if def != nil && def.TargetTokensPerSec != nil {
		return *def.TargetTokensPerSec, true
	}
	if base.TargetTokensPerSec != 0 {
		return base.TargetTokensPerSec, true
	}
	return 0, false
}

func resolveFinishReason(over, def *fixture.StreamSettings, base Defaults) string {
	if over != nil && over.FinishReason != "" {
		return over.FinishReason
	}
	if def != nil && def.FinishReason != "" {
		return def.FinishReason
	}
	if base.FinishReason != "" {
		return base.FinishReason
	}
	return DefaultFinishReason
}

func resolvePauses(over, def *fixture.StreamSettings) *fixture.PauseProfile {
	if over != nil && over.Pauses != nil {
		return over.Pauses
	}
	if def != nil && def.Pauses != nil {
		return def.Pauses
	}
	return nil
}

// Chunk is one planned emission unit. Delay is the suspension in seconds
// before this chunk is emitted, relative to the previous emission.
type Chunk struct {
	Index int
	Text  string
	Delay float64
}

// Plan is the timed chunk schedule for one response. FinalDelay is honored
// after the last chunk, before the terminal frame. Plans are created fresh
// per request and owned exclusively by it.
type Plan struct {
	Chunks     []Chunk
	FinalDelay float64
}

// TotalSeconds sums every planned delay, including the terminal one.
func (p *Plan) TotalSeconds() float64 {
	total := p.FinalDelay
	for _, c := range p.Chunks {
		total += c.Delay
	}
	return total
}

// Reassemble concatenates chunk text in index order.
func (p *Plan) Reassemble() string {
	var b strings.Builder
	for _, c := range p.Chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}

// PlanChunks slices message into a timed chunk sequence. Slicing is
// rune-based so multi-byte text reassembles byte-identically. With a target
// rate the total duration (message tokens / rate) spreads evenly across
// chunks; pauses then add onto the chunk at their insertion point. The
// planner does no I/O and never sleeps; identical inputs yield identical
// plans.
func PlanChunks(message string, cfg StreamConfig) Plan {
	runes := []rune(message)

	charsPerChunk := cfg.CharsPerToken * cfg.TokensPerChunk
	if charsPerChunk < 1 {
		charsPerChunk = 1
	}

	var chunks []Chunk
	for i := 0; i < len(runes); i += charsPerChunk {
		end := i + charsPerChunk
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[i:end])})
	}

	if cfg.TargetTokensPerSec > 0 && len(chunks) > 0 {
		totalSeconds := (float64(len(runes)) / float64(cfg.CharsPerToken)) / cfg.TargetTokensPerSec
		base := totalSeconds / float64(len(chunks))
		for i := range chunks {
			chunks[i].Delay = base
		}
	}

	plan := Plan{Chunks: chunks}
	applyPauses(&plan, cfg.Pauses)
	return plan
}

// applyPauses adds normalized (insertion point, duration) pairs onto the
// plan: point 0 delays the first chunk, point k delays chunk k, and points
// at or past len(chunks) accumulate into FinalDelay. An empty message keeps
// a before-first pause this way: zero chunks, pause honored before the
// terminal frame.
func applyPauses(plan *Plan, pauses *fixture.PauseProfile) {
	if pauses.Empty() {
		return
	}

	n := len(plan.Chunks)
	add := func(point int, seconds float64) {
		if seconds <= 0 {
			return
		}
		if point < 0 {
			point = 0
		}
		if point >= n {
			plan.FinalDelay += seconds
			return
		}
		plan.Chunks[point].Delay += seconds
	}

	add(0, pauses.BeforeFirstChunk)
	for _, pt := range pauses.MidStream {
		add(pt.AfterChunk+1, pt.Seconds)
	}
	add(n, pauses.AfterFinalChunk)
}
