package models

// SettingsUpdate is a mutation request. Nil fields are left unchanged.
type SettingsUpdate struct {
	PlayerColor        *Color       `json:"player_color,omitempty"`
	CacheSizeMB        *int         `json:"cache_size_mb,omitempty"`
	ChatKey            *KeyCode     `json:"chat_key,omitempty"`
	ScreenshotKey      *KeyCode     `json:"screenshot_key,omitempty"`
	ToolbarType        *ToolbarType `json:"toolbar_type,omitempty"`
	Language           *Language    `json:"language,omitempty"`
	CompressionEnabled *bool        `json:"compression_enabled,omitempty"`
	RevertEnabled      *bool        `json:"revert_enabled,omitempty"`
	DisclaimerAccepted *int         `json:"disclaimer_accepted,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u SettingsUpdate) Empty() bool {
	return u == SettingsUpdate{}
}

// CacheSizeInput is the POST body for the free-text cache size field.
type CacheSizeInput struct {
	Input string `json:"input"`
}

// CacheSizeResult echoes the text the input field should show afterwards.
type CacheSizeResult struct {
	Echo     string   `json:"echo"`
	Settings Settings `json:"settings"`
}

// KeyBindingRequest is the PUT body for a key binding.
type KeyBindingRequest struct {
	Key KeyCode `json:"key"`
}

// PushState is the outcome of one attempt to commit and mirror a setting.
type PushState string

const (
	PushPending   PushState = "pending"
	PushCommitted PushState = "committed"
	PushSkipped   PushState = "skipped"
	PushPushed    PushState = "pushed"
	PushFailed    PushState = "push_failed"
)

// Terminal reports whether no further transition can happen.
func (s PushState) Terminal() bool {
	return s == PushSkipped || s == PushPushed || s == PushFailed
}

// PushResult describes a finished push attempt. Err is set when the
// attempt stopped at Pending (persistence failed) or ended in PushFailed.
type PushResult struct {
	ID       string    `json:"id"`
	State    PushState `json:"state"`
	Settings Settings  `json:"settings"`
	Err      error     `json:"-"`
	Error    string    `json:"error,omitempty"`
}

// CacheInfo is the occupancy report shown next to the budget.
type CacheInfo struct {
	CurrentBytes int64   `json:"current_bytes"`
	CurrentMB    float64 `json:"current_mb"`
	BudgetMB     int     `json:"budget_mb"`
	Entries      int     `json:"entries"`
	Busy         bool    `json:"busy"`
}

// ExpireReport summarises one ExpireCache run.
type ExpireReport struct {
	Removed      int   `json:"removed"`
	FreedBytes   int64 `json:"freed_bytes"`
	Skipped      int   `json:"skipped_in_use"`
	CurrentBytes int64 `json:"current_bytes"`
	BudgetBytes  int64 `json:"budget_bytes"`
}

// Info holds client identity information.
type Info struct {
	Version    string          `json:"version"`
	ConfigPath string          `json:"config_path"`
	CacheDir   string          `json:"cache_dir"`
	Connection ConnectionState `json:"connection"`
}
