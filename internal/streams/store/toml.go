// Package store persists stream definitions in a TOML file.
package store

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/audionode/internal/streams"
)

const currentVersion = 1

// file is the on-disk layout.
type file struct {
	Version int                           `toml:"version"`
	Streams map[string]streams.StreamSpec `toml:"streams"`
}

// tomlStore implements streams.Store on a TOML file.
type tomlStore struct {
	path string

	mu   sync.RWMutex
	data file
}

// NewTOML creates a store backed by path (streams.toml when empty). It does
// not read the file until Load.
func NewTOML(path string) streams.Store {
	if path == "" {
		path = "streams.toml"
	}
	return &tomlStore{
		path: path,
		data: file{Version: currentVersion, Streams: make(map[string]streams.StreamSpec)},
	}
}

// Load reads the file. A missing file leaves the store empty.
func (s *tomlStore) Load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read streams file: %w", err)
	}

	var data file
	if err := toml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse streams file %s: %w", s.path, err)
	}
	if data.Version == 0 {
		data.Version = currentVersion
	}
	if data.Version > currentVersion {
		return fmt.Errorf("streams file %s has version %d, newest supported is %d", s.path, data.Version, currentVersion)
	}
	if data.Streams == nil {
		data.Streams = make(map[string]streams.StreamSpec)
	}
	for id, spec := range data.Streams {
		if spec.ID == "" {
			spec.ID = id
			data.Streams[id] = spec
		}
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Save writes the file through a temporary file and a rename so readers
// never see a partial write.
func (s *tomlStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *tomlStore) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create streams directory: %w", err)
	}

	raw, err := toml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("marshal streams: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp streams file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write streams file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write streams file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod streams file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace streams file: %w", err)
	}
	return nil
}

// AddStream adds or replaces a definition and saves.
func (s *tomlStore) AddStream(spec streams.StreamSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Streams[spec.ID] = spec
	return s.saveLocked()
}

// UpdateStream replaces an existing definition and saves.
func (s *tomlStore) UpdateStream(id string, spec streams.StreamSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Streams[id]; !ok {
		return streams.ErrStreamNotFound
	}
	s.data.Streams[id] = spec
	return s.saveLocked()
}

// RemoveStream deletes a definition and saves.
func (s *tomlStore) RemoveStream(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Streams, id)
	return s.saveLocked()
}

// GetStream returns one definition.
func (s *tomlStore) GetStream(id string) (streams.StreamSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.data.Streams[id]
	return spec, ok
}

// GetAllStreams returns a copy of every definition.
func (s *tomlStore) GetAllStreams() map[string]streams.StreamSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data.Streams)
}
