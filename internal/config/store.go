// Package config handles loading and saving the client settings file.
package config

import (
	"errors"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// ErrCorrupt is returned by LoadStrict when the persisted settings cannot
// be parsed, e.g. while an editor is part way through writing the file.
var ErrCorrupt = errors.New("config: settings file is corrupt")

// Store is the persistence boundary for settings.
type Store interface {
	// Load loads the last saved settings. Returns DefaultSettings if nothing
	// has been saved yet.
	Load() (*models.Settings, error)

	// LoadStrict loads the last saved settings without substituting
	// defaults. It fails with an error wrapping os.ErrNotExist when nothing
	// is saved and with ErrCorrupt when the saved data is unreadable.
	LoadStrict() (*models.Settings, error)

	// Save writes a complete snapshot. It returns only after the snapshot is
	// durable or the write has failed.
	Save(s *models.Settings) error

	// Path returns the file path used by this store.
	Path() string
}
