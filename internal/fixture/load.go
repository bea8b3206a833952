package fixture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/yungtweek/inference-mock/internal/logger"
)

// LoadError reports a fixture document that failed to read, parse, or
// validate.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load fixture %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// UnknownModelError reports a lookup for a model no fixture covers.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Model)
}

// Parse decodes and validates one fixture document. Documents named *.json
// parse as JSON; everything else parses as YAML.
func Parse(source string, data []byte) (*Fixture, error) {
	var fx Fixture
	var err error
	if strings.HasSuffix(source, ".json") {
		err = json.Unmarshal(data, &fx)
	} else {
		err = yaml.Unmarshal(data, &fx)
	}
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	if err := fx.validate(); err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	return &fx, nil
}

func (f *Fixture) validate() error {
	if f.Model == "" {
		return fmt.Errorf("missing model")
	}
	if err := validateSettings(f.Defaults); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	seen := make(map[string]bool, len(f.Scenarios))
	for i := range f.Scenarios {
		sc := &f.Scenarios[i]
		if sc.Name == "" {
			return fmt.Errorf("scenario %d: missing name", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("duplicate scenario name %q", sc.Name)
		}
		seen[sc.Name] = true
		if (sc.Response == nil) == (sc.Error == nil) {
			return fmt.Errorf("scenario %q: exactly one of response or error is required", sc.Name)
		}
		if err := sc.Match.compile(); err != nil {
			return fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
		if err := validateSettings(sc.Streaming); err != nil {
			return fmt.Errorf("scenario %q: %w", sc.Name, err)
		}
	}
	return nil
}

func validateSettings(s *StreamSettings) error {
	if s == nil {
		return nil
	}
	if s.FinishReason != "" && !finishReasons[s.FinishReason] {
		return fmt.Errorf("unknown finish_reason %q", s.FinishReason)
	}
	if s.Pauses != nil {
		return s.Pauses.validate()
	}
	return nil
}

// LoadDir loads every fixture document (*.yaml, *.yml, *.json) in dir.
// Duplicate model identifiers across documents are rejected, and a directory
// with no fixture documents is an error rather than an empty gateway.
func LoadDir(dir string) (map[string]*Fixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Source: dir, Err: err}
	}

	fixtures := make(map[string]*Fixture)
	sources := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		switch filepath.Ext(name) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Source: path, Err: err}
		}
		fx, err := Parse(path, data)
		if err != nil {
			return nil, err
		}
		if prev, ok := sources[fx.Model]; ok {
			return nil, &LoadError{Source: path, Err: fmt.Errorf("model %q already defined in %s", fx.Model, prev)}
		}
		sources[fx.Model] = path
		fixtures[fx.Model] = fx
		logger.Log.Infow("[fixture] loaded", "source", path, "model", fx.Model, "scenarios", len(fx.Scenarios))
	}

	if len(fixtures) == 0 {
		return nil, &LoadError{Source: dir, Err: fmt.Errorf("no fixture documents found")}
	}
	return fixtures, nil
}
