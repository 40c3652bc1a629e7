// Package auth guards the local control API with optional access keys.
// With no keys file the API is open, which is the normal setup when it
// only listens on localhost.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Planetworks/DarkMultiPlayer/internal/config"
)

// KeysFileName is the access key file inside the config directory.
const KeysFileName = "api_keys.json"

// Key is one named access key, e.g. one per external UI.
type Key struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Created string `json:"created,omitempty"`
}

// Service holds the current access keys and reloads them when the file
// changes.
type Service struct {
	mu      sync.RWMutex
	path    string
	keys    []Key
	watcher *config.Watcher
}

// NewService loads keys from configDir and watches the keys file. An empty
// configDir gives a service that is always open.
func NewService(configDir string) (*Service, error) {
	s := &Service{}
	if configDir == "" {
		return s, nil
	}
	s.path = filepath.Join(configDir, KeysFileName)

	if err := s.Reload(); err != nil {
		return nil, err
	}

	w, err := config.Watch(s.path, func() {
		if err := s.Reload(); err != nil {
			slog.Warn("auth: failed to reload keys", "path", s.path, "err", err)
		}
	})
	if err != nil {
		slog.Warn("auth: could not watch keys file", "path", s.path, "err", err)
		return s, nil
	}
	s.watcher = w
	return s, nil
}

// Reload re-reads the keys file. A missing file means open mode.
func (s *Service) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.keys = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}

	var keys []Key
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	slog.Debug("auth: reloaded keys", "count", len(keys))
	return nil
}

// IsOpenMode returns true if no usable key is configured.
func (s *Service) IsOpenMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Key != "" {
			return false
		}
	}
	return true
}

// VerifyKey reports whether key matches a configured key. The comparison
// is constant-time.
func (s *Service) VerifyKey(key string) bool {
	if key == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(k.Key)) == 1 {
			return true
		}
	}
	return false
}

// Close stops the file watcher.
func (s *Service) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}
