// Package api implements the local HTTP control surface the options UI
// talks to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Planetworks/DarkMultiPlayer/internal/events"
	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	settings Settings
	cache    Cache
	prefs    Preferences
	conn     Connection
	backups  Backups
	events   EventBus
	info     func() models.Info
}

// Settings is the settings store as the handlers use it.
type Settings interface {
	Get() models.Settings
	Set(upd models.SettingsUpdate) (models.Settings, error)
	SetCacheSizeInput(text string) (string, models.Settings, error)
	SetChatKey(k models.KeyCode) (bool, models.Settings, error)
	SetScreenshotKey(k models.KeyCode) (bool, models.Settings, error)
	CycleToolbar() (models.Settings, error)
	CycleLanguage() (models.Settings, error)
	ResetDisclaimer() (models.Settings, error)
}

// Cache is the cache controller as the handlers use it.
type Cache interface {
	Info() models.CacheInfo
	Refresh() error
	Keys() ([]string, error)
	ExpireCache(ctx context.Context) (models.ExpireReport, error)
	DeleteCache(ctx context.Context) error
}

// Preferences commits and pushes remotely visible settings.
type Preferences interface {
	SetPlayerColor(ctx context.Context, c models.Color) models.PushResult
	Resync(ctx context.Context) models.PushResult
}

// Connection reports the session state.
type Connection interface {
	State() models.ConnectionState
}

// Backups creates and lists settings backups.
type Backups interface {
	RunBackupNow() (string, error)
	ListBackups() ([]string, error)
}

// EventBus is the interface for subscribing to change events.
type EventBus interface {
	Subscribe(id string) <-chan events.Event
	Unsubscribe(id string)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, err error) {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, appErr)
		return
	}
	writeJSON(w, http.StatusInternalServerError, models.ErrInternal(err.Error()))
}

// settingsError is the body for a failed save: the error plus the settings
// that are still in effect in memory.
type settingsError struct {
	*models.AppError
	Settings models.Settings `json:"settings"`
}

// writeSettings writes st, or the error with st attached when the mutation
// was committed but not saved.
func writeSettings(w http.ResponseWriter, st models.Settings, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, st)
		return
	}
	var appErr *models.AppError
	if errors.Is(err, models.ErrPersistence) && errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, settingsError{AppError: appErr, Settings: st})
		return
	}
	writeError(w, err)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.ErrBadRequest("invalid JSON: " + err.Error())
	}
	return nil
}
