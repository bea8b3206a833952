package fixture

import (
	"sort"
	"sync/atomic"

	"github.com/yungtweek/inference-mock/internal/logger"
)

type snapshot struct {
	fixtures map[string]*Fixture
	models   []string
}

// Store holds the active fixture set behind an atomically swapped snapshot.
// Reads never lock; a reload either installs a complete new set or leaves
// the old one serving, so in-flight requests always see a consistent view.
type Store struct {
	dir string
	cur atomic.Pointer[snapshot]
}

// NewStore returns an empty store; every Get fails until a load succeeds.
func NewStore() *Store {
	s := &Store{}
	s.cur.Store(&snapshot{fixtures: map[string]*Fixture{}})
	return s
}

func newSnapshot(fixtures map[string]*Fixture) *snapshot {
	models := make([]string, 0, len(fixtures))
	for m := range fixtures {
		models = append(models, m)
	}
	sort.Strings(models)
	return &snapshot{fixtures: fixtures, models: models}
}

// LoadDir loads dir and installs the result as the active snapshot. The
// directory is remembered as the Reload source.
func (s *Store) LoadDir(dir string) error {
	fixtures, err := LoadDir(dir)
	if err != nil {
		return err
	}
	s.dir = dir
	s.cur.Store(newSnapshot(fixtures))
	return nil
}

// LoadEmbedded installs the built-in demo fixture.
func (s *Store) LoadEmbedded() error {
	fx, err := Parse("embedded/default.yaml", defaultFixtureYAML)
	if err != nil {
		return err
	}
	s.dir = ""
	s.cur.Store(newSnapshot(map[string]*Fixture{fx.Model: fx}))
	return nil
}

// Reload re-reads the load source and swaps the snapshot. On failure the
// active snapshot keeps serving.
func (s *Store) Reload() error {
	if s.dir == "" {
		return s.LoadEmbedded()
	}
	fixtures, err := LoadDir(s.dir)
	if err != nil {
		return err
	}
	s.cur.Store(newSnapshot(fixtures))
	logger.Log.Infow("[fixture] reloaded", "dir", s.dir, "models", len(fixtures))
	return nil
}

// Get returns the fixture registered for model.
func (s *Store) Get(model string) (*Fixture, error) {
	fx, ok := s.cur.Load().fixtures[model]
	if !ok {
		return nil, &UnknownModelError{Model: model}
	}
	return fx, nil
}

// Models lists the loaded model identifiers, sorted.
func (s *Store) Models() []string {
	return s.cur.Load().models
}

// Fixtures returns the active snapshot's fixtures keyed by model. Callers
// must treat the map as read-only.
func (s *Store) Fixtures() map[string]*Fixture {
	return s.cur.Load().fixtures
}
