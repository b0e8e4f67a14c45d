package settings

import (
	"sort"
	"sync"
)

// MemoryStore keeps settings for the process lifetime only.
// Used when no database is configured or it cannot be opened.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]float64

	// SaveError, if set, is returned by Save without storing.
	SaveError error
	// LoadError, if set, is returned by Load and All.
	LoadError error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]float64)}
}

func (m *MemoryStore) Load(key string, def float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return def, m.LoadError
	}
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *MemoryStore) Save(key string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStore) All() ([]Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	out := make([]Setting, 0, len(m.values))
	for k, v := range m.values {
		out = append(out, Setting{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
