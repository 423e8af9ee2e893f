package constraint

import "sync"

// Settings is the mutable part of a constraint definition.
type Settings struct {
	Enabled    bool       `json:"enabled"`
	Parameters Parameters `json:"parameters"`
}

// SettingsStore keeps the current settings of each registered constraint.
type SettingsStore interface {
	Get(id string) (Settings, bool)
	Put(id string, settings Settings)
	Delete(id string)
}

// MemorySettingsStore is a concurrency-safe in-process SettingsStore.
type MemorySettingsStore struct {
	mu    sync.RWMutex
	items map[string]Settings
}

// NewMemorySettingsStore builds an empty store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{items: make(map[string]Settings)}
}

// Get returns a copy of the stored settings.
func (s *MemorySettingsStore) Get(id string) (Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return Settings{}, false
	}
	item.Parameters = item.Parameters.Clone()
	return item, true
}

// Put stores a copy of the settings.
func (s *MemorySettingsStore) Put(id string, settings Settings) {
	settings.Parameters = settings.Parameters.Clone()
	s.mu.Lock()
	s.items[id] = settings
	s.mu.Unlock()
}

// Delete removes the settings for id.
func (s *MemorySettingsStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
