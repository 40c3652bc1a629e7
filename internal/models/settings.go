// Package models defines the data structures shared by the DarkMultiPlayer
// client options core. JSON field names are the on-disk settings format.
package models

import "fmt"

// Color is a player name colour. Channels are in [0, 1].
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
}

// KeyCode identifies an input binding, e.g. "BackQuote" or "F8".
type KeyCode string

// KeyEscape cancels a key binding capture instead of being bound.
const KeyEscape KeyCode = "Escape"

// ToolbarType selects which toolbar integration the client uses.
type ToolbarType int

const (
	ToolbarDisabled ToolbarType = iota
	ToolbarForceStock
	ToolbarBlizzyIfInstalled
	ToolbarBothIfInstalled
)

var toolbarNames = [...]string{"disabled", "force_stock", "blizzy_if_installed", "both_if_installed"}

// toolbarLabels are the button captions shown by the options window.
var toolbarLabels = [...]string{"Disabled", "Stock", "Blizzy if installed", "Both if installed"}

func (t ToolbarType) Valid() bool { return t >= ToolbarDisabled && t <= ToolbarBothIfInstalled }

func (t ToolbarType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("toolbar(%d)", int(t))
	}
	return toolbarNames[t]
}

// Label returns the human readable caption for the toolbar mode.
func (t ToolbarType) Label() string {
	if !t.Valid() {
		return t.String()
	}
	return toolbarLabels[t]
}

// Next returns the following toolbar mode, wrapping to the first one.
func (t ToolbarType) Next() ToolbarType {
	n := t + 1
	if !n.Valid() {
		return ToolbarDisabled
	}
	return n
}

func (t ToolbarType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid toolbar type %d", int(t))
	}
	return []byte(toolbarNames[t]), nil
}

func (t *ToolbarType) UnmarshalText(b []byte) error {
	for i, name := range toolbarNames {
		if name == string(b) {
			*t = ToolbarType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown toolbar type %q", b)
}

// Language is the UI language selection.
type Language int

const (
	LanguageAutomatic Language = iota
	LanguageEnglish
)

var languageNames = [...]string{"automatic", "english"}

func (l Language) Valid() bool { return l >= LanguageAutomatic && l <= LanguageEnglish }

func (l Language) String() string {
	if !l.Valid() {
		return fmt.Sprintf("language(%d)", int(l))
	}
	return languageNames[l]
}

// Next returns the following language, wrapping to Automatic.
func (l Language) Next() Language {
	n := l + 1
	if !n.Valid() {
		return LanguageAutomatic
	}
	return n
}

func (l Language) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid language %d", int(l))
	}
	return []byte(languageNames[l]), nil
}

func (l *Language) UnmarshalText(b []byte) error {
	for i, name := range languageNames {
		if name == string(b) {
			*l = Language(i)
			return nil
		}
	}
	return fmt.Errorf("unknown language %q", b)
}

// Settings holds every user-configurable client value.
// It contains no reference types, so plain assignment is a full copy.
type Settings struct {
	PlayerName         string      `json:"player_name"`
	PlayerColor        Color       `json:"player_color"`
	CacheSizeMB        int         `json:"cache_size_mb"`
	ChatKey            KeyCode     `json:"chat_key"`
	ScreenshotKey      KeyCode     `json:"screenshot_key"`
	ToolbarType        ToolbarType `json:"toolbar_type"`
	Language           Language    `json:"language"`
	CompressionEnabled bool        `json:"compression_enabled"`
	RevertEnabled      bool        `json:"revert_enabled"`
	DisclaimerAccepted int         `json:"disclaimer_accepted"`
}

// CacheBudgetBytes returns the configured cache budget in bytes.
func (s Settings) CacheBudgetBytes() int64 {
	return int64(s.CacheSizeMB) * 1024 * 1024
}

// ConnectionState is the lifecycle of the remote session. It is owned by the
// networking subsystem; the options core only reads it.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Handshaking
	Syncing
	Running
)

var connectionStateNames = [...]string{"disconnected", "connecting", "connected", "handshaking", "syncing", "running"}

func (c ConnectionState) String() string {
	if c < Disconnected || c > Running {
		return fmt.Sprintf("state(%d)", int(c))
	}
	return connectionStateNames[c]
}

func (c ConnectionState) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ConnectionState) UnmarshalText(b []byte) error {
	for i, name := range connectionStateNames {
		if name == string(b) {
			*c = ConnectionState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", b)
}
