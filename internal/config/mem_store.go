package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// MemStore is an in-memory Store for tests that never writes to disk.
type MemStore struct {
	mu       sync.Mutex
	settings *models.Settings
	saves    int
	failWith error
}

// NewMemStore returns a new in-memory store with nil settings (defaults to
// DefaultSettings on Load).
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load returns a copy of the stored settings, or DefaultSettings if none
// have been saved yet.
func (m *MemStore) Load() (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		def := models.DefaultSettings()
		return &def, nil
	}
	cp := *m.settings
	return &cp, nil
}

// LoadStrict returns a copy of the stored settings, or an error wrapping
// os.ErrNotExist if none have been saved yet.
func (m *MemStore) LoadStrict() (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, fmt.Errorf("memory store: %w", os.ErrNotExist)
	}
	cp := *m.settings
	return &cp, nil
}

// Save stores a copy of the given settings, or returns the error set by
// FailWith.
func (m *MemStore) Save(s *models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failWith != nil {
		return m.failWith
	}
	cp := *s
	m.settings = &cp
	return nil
}

// FailWith makes subsequent saves fail with err. Pass nil to recover.
func (m *MemStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Saves returns how many times Save has been called.
func (m *MemStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Path returns ":memory:" to indicate this is an in-memory store.
func (m *MemStore) Path() string { return ":memory:" }

// Ensure MemStore implements config.Store
var _ Store = (*MemStore)(nil)
