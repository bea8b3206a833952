package fixture

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// PauseProfile injects deterministic stalls into a planned stream. Authors
// write either the structured form
//
//	pause_profile:
//	  before_first_chunk: 0.5
//	  mid_stream:
//	    - {after_chunk: 3, seconds: 1.0}
//	  after_final_chunk: 0.2
//
// or a flat list of {after_chunk, seconds} entries, where after_chunk -1
// pauses before the first chunk. Both shapes decode into this one struct;
// nothing past load sees the union.
type PauseProfile struct {
	BeforeFirstChunk float64      `yaml:"before_first_chunk,omitempty" json:"before_first_chunk,omitempty"`
	MidStream        []PausePoint `yaml:"mid_stream,omitempty" json:"mid_stream,omitempty"`
	AfterFinalChunk  float64      `yaml:"after_final_chunk,omitempty" json:"after_final_chunk,omitempty"`
}

// PausePoint stalls the stream for Seconds after the 0-based chunk index
// AfterChunk.
type PausePoint struct {
	AfterChunk int     `yaml:"after_chunk" json:"after_chunk"`
	Seconds    float64 `yaml:"seconds" json:"seconds"`
}

type pauseProfileAlias PauseProfile

func (p *PauseProfile) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var pts []PausePoint
		if err := value.Decode(&pts); err != nil {
			return err
		}
		*p = PauseProfile{MidStream: pts}
		return nil
	case yaml.MappingNode:
		var alias pauseProfileAlias
		if err := value.Decode(&alias); err != nil {
			return err
		}
		*p = PauseProfile(alias)
		return nil
	default:
		return fmt.Errorf("pause_profile must be a list or a mapping")
	}
}

func (p *PauseProfile) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var pts []PausePoint
		if err := json.Unmarshal(data, &pts); err != nil {
			return err
		}
		*p = PauseProfile{MidStream: pts}
		return nil
	}
	var alias pauseProfileAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = PauseProfile(alias)
	return nil
}

func (p *PauseProfile) validate() error {
	if p.BeforeFirstChunk < 0 || p.AfterFinalChunk < 0 {
		return fmt.Errorf("pause seconds must be >= 0")
	}
	for _, pt := range p.MidStream {
		if pt.Seconds < 0 {
			return fmt.Errorf("pause seconds must be >= 0 (after_chunk %d)", pt.AfterChunk)
		}
	}
	return nil
}

// Empty reports whether the profile injects no pauses.
func (p *PauseProfile) Empty() bool {
	return p == nil || (p.BeforeFirstChunk == 0 && p.AfterFinalChunk == 0 && len(p.MidStream) == 0)
}
