// Package settings owns the client's single settings instance. Every change
// goes through Set, which clamps, commits and persists in one place.
package settings

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Planetworks/DarkMultiPlayer/internal/config"
	"github.com/Planetworks/DarkMultiPlayer/internal/events"
	"github.com/Planetworks/DarkMultiPlayer/internal/locale"
	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// Store is the settings source of truth. Get returns copies (value
// semantics); every copy is taken from the same in-memory instance.
//
// A mutation is committed in memory first and then saved. If the save
// fails the in-memory value stays the value of record, the store is marked
// dirty and the next Save writes it again.
type Store struct {
	mu       sync.RWMutex
	settings models.Settings
	store    config.Store
	bus      *events.Bus
	dirty    bool
}

// New loads the settings from store. bus may be nil.
func New(store config.Store, bus *events.Bus) (*Store, error) {
	s, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return &Store{
		settings: *s,
		store:    store,
		bus:      bus,
	}, nil
}

// Get returns a snapshot of the current settings.
func (s *Store) Get() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Path returns where the settings are persisted.
func (s *Store) Path() string { return s.store.Path() }

// Dirty reports whether the in-memory settings differ from the last
// successful save.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Set applies an update and persists the result. Numeric values are
// clamped, never rejected. An invalid enum value is rejected with a
// validation error and nothing changes. On a persistence error the returned
// settings are the committed in-memory value.
func (s *Store) Set(upd models.SettingsUpdate) (models.Settings, error) {
	if err := validate(upd); err != nil {
		return s.Get(), err
	}
	return s.apply(func(st *models.Settings) {
		applyUpdate(st, upd)
	})
}

// Save writes the current settings. It is synchronous and idempotent.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// Close retries a save that failed earlier. Call it at shutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	slog.Info("settings: flushing unsaved settings", "path", s.store.Path())
	return s.saveLocked()
}

// Reload adopts the persisted settings after an external edit. Unsaved
// local changes win: while the store is dirty the file is ignored. A
// missing or unparsable file is never adopted; the in-memory value stays
// and the error is returned.
//
// The lock is held across the load so a commit cannot land between reading
// the file and adopting it.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		slog.Warn("settings: ignoring external edit, local changes are unsaved", "path", s.store.Path())
		return nil
	}

	loaded, err := s.store.LoadStrict()
	if err != nil {
		return fmt.Errorf("reloading settings: %w", err)
	}
	if *loaded == s.settings {
		return nil
	}
	prev := s.settings
	s.settings = *loaded
	slog.Info("settings: reloaded from disk", "path", s.store.Path())
	s.afterCommit(prev)
	return nil
}

// apply is the core mutation primitive. It:
//  1. Acquires the write lock
//  2. Copies the current settings and lets fn modify the copy
//  3. Commits the copy as the value of record
//  4. Saves synchronously and publishes the new snapshot
func (s *Store) apply(fn func(*models.Settings)) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.settings
	next := s.settings
	fn(&next)
	s.settings = next

	err := s.saveLocked()
	s.afterCommit(prev)
	return s.settings, err
}

func (s *Store) saveLocked() error {
	snapshot := s.settings
	if err := s.store.Save(&snapshot); err != nil {
		s.dirty = true
		slog.Error("settings: save failed, keeping in-memory value", "path", s.store.Path(), "err", err)
		return models.NewPersistenceError(s.store.Path(), err)
	}
	s.dirty = false
	return nil
}

// afterCommit publishes the snapshot and logs changes other components
// react to.
func (s *Store) afterCommit(prev models.Settings) {
	cur := s.settings
	if cur.Language != prev.Language {
		slog.Debug("settings: changed language", "language", locale.DisplayName(cur.Language), "tag", locale.Tag(cur.Language).String())
	}
	if cur.ToolbarType != prev.ToolbarType {
		slog.Debug("settings: changed toolbar", "toolbar", cur.ToolbarType.Label())
	}
	if s.bus != nil {
		s.bus.PublishSettings(cur)
	}
}

func validate(upd models.SettingsUpdate) error {
	if upd.ToolbarType != nil && !upd.ToolbarType.Valid() {
		return models.NewValidationError("toolbar_type", fmt.Sprintf("unknown toolbar type %d", int(*upd.ToolbarType)))
	}
	if upd.Language != nil && !upd.Language.Valid() {
		return models.NewValidationError("language", fmt.Sprintf("unknown language %d", int(*upd.Language)))
	}
	return nil
}

func applyUpdate(st *models.Settings, upd models.SettingsUpdate) {
	if upd.PlayerColor != nil {
		st.PlayerColor = models.ClampColor(*upd.PlayerColor)
	}
	if upd.CacheSizeMB != nil {
		st.CacheSizeMB = models.ClampCacheSize(*upd.CacheSizeMB)
	}
	if bindable(upd.ChatKey) {
		st.ChatKey = *upd.ChatKey
	}
	if bindable(upd.ScreenshotKey) {
		st.ScreenshotKey = *upd.ScreenshotKey
	}
	if upd.ToolbarType != nil {
		st.ToolbarType = *upd.ToolbarType
	}
	if upd.Language != nil {
		st.Language = *upd.Language
	}
	if upd.CompressionEnabled != nil {
		st.CompressionEnabled = *upd.CompressionEnabled
	}
	if upd.RevertEnabled != nil {
		st.RevertEnabled = *upd.RevertEnabled
	}
	if upd.DisclaimerAccepted != nil {
		v := *upd.DisclaimerAccepted
		if v < 0 {
			v = 0
		}
		st.DisclaimerAccepted = v
	}
}

// bindable reports whether k may be bound. Escape cancels a capture and an
// empty key means no key was pressed.
func bindable(k *models.KeyCode) bool {
	return k != nil && *k != "" && *k != models.KeyEscape
}
