package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// FileName is the settings file name inside the config directory.
const FileName = "settings.json"

// JSONStore is an atomic JSON file store. Every Save is written through;
// there is no debounce window in which a change can be lost.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

// NewJSONStore creates a new JSON store in the given config directory.
func NewJSONStore(configDir string) *JSONStore {
	return &JSONStore{
		path: filepath.Join(configDir, FileName),
	}
}

// Path returns the file path used by this store.
func (s *JSONStore) Path() string { return s.path }

// Load reads the settings from disk. Returns DefaultSettings on ENOENT or
// parse errors.
func (s *JSONStore) Load() (*models.Settings, error) {
	settings, err := s.LoadStrict()
	switch {
	case errors.Is(err, os.ErrNotExist):
		def := models.DefaultSettings()
		return &def, nil
	case errors.Is(err, ErrCorrupt):
		slog.Warn("config: corrupt settings file, using defaults", "path", s.path, "err", err)
		def := models.DefaultSettings()
		return &def, nil
	}
	return settings, err
}

// LoadStrict reads the settings from disk without falling back to
// defaults. A missing file wraps os.ErrNotExist and an unparsable one wraps
// ErrCorrupt.
func (s *JSONStore) LoadStrict() (*models.Settings, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	settings := models.DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	migrateSettings(&settings)
	return &settings, nil
}

// Save writes the settings to disk atomically. A snapshot identical to the
// file's current contents is not rewritten.
func (s *JSONStore) Save(settings *models.Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, err := os.ReadFile(s.path); err == nil && bytes.Equal(cur, data) {
		return nil
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Write to temp file, fsync, then rename (atomic on the same filesystem)
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
