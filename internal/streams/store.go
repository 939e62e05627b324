package streams

import (
	"maps"
	"sync"
)

// Store persists stream definitions.
type Store interface {
	// Load reads the definitions from storage. A missing file is empty.
	Load() error

	// Save writes the definitions to storage.
	Save() error

	AddStream(spec StreamSpec) error
	UpdateStream(id string, spec StreamSpec) error
	RemoveStream(id string) error
	GetStream(id string) (StreamSpec, bool)

	// GetAllStreams returns a copy of every definition keyed by ID.
	GetAllStreams() map[string]StreamSpec
}

// memoryStore keeps definitions only for the life of the process.
type memoryStore struct {
	mu    sync.RWMutex
	specs map[string]StreamSpec
}

// NewMemoryStore returns a Store that never touches disk.
func NewMemoryStore() Store {
	return &memoryStore{specs: make(map[string]StreamSpec)}
}

func (m *memoryStore) Load() error { return nil }
func (m *memoryStore) Save() error { return nil }

func (m *memoryStore) AddStream(spec StreamSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs[spec.ID] = spec
	return nil
}

func (m *memoryStore) UpdateStream(id string, spec StreamSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.specs[id]; !ok {
		return ErrStreamNotFound
	}
	m.specs[id] = spec
	return nil
}

func (m *memoryStore) RemoveStream(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.specs, id)
	return nil
}

func (m *memoryStore) GetStream(id string) (StreamSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.specs[id]
	return spec, ok
}

func (m *memoryStore) GetAllStreams() map[string]StreamSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.specs)
}
