package settings

import (
	"strconv"
	"strings"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// SetPlayerColor stores c with each channel clamped to [0, 1].
func (s *Store) SetPlayerColor(c models.Color) (models.Settings, error) {
	return s.Set(models.SettingsUpdate{PlayerColor: &c})
}

// SetCacheSizeInput handles the free-text cache size field. If text parses
// as an integer the clamped value is stored and echoed back. Otherwise the
// stored value is left alone and echoed back so the field shows the last
// good value. Only a failed save is reported as an error.
func (s *Store) SetCacheSizeInput(text string) (string, models.Settings, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		cur := s.Get()
		return strconv.Itoa(cur.CacheSizeMB), cur, nil
	}
	n = models.ClampCacheSize(n)
	st, err := s.Set(models.SettingsUpdate{CacheSizeMB: &n})
	return strconv.Itoa(st.CacheSizeMB), st, err
}

// SetChatKey binds the chat key. Escape or an empty key cancels the
// capture and reports bound == false.
func (s *Store) SetChatKey(k models.KeyCode) (bound bool, st models.Settings, err error) {
	if !bindable(&k) {
		return false, s.Get(), nil
	}
	st, err = s.Set(models.SettingsUpdate{ChatKey: &k})
	return true, st, err
}

// SetScreenshotKey binds the screenshot key with the same rules as
// SetChatKey.
func (s *Store) SetScreenshotKey(k models.KeyCode) (bound bool, st models.Settings, err error) {
	if !bindable(&k) {
		return false, s.Get(), nil
	}
	st, err = s.Set(models.SettingsUpdate{ScreenshotKey: &k})
	return true, st, err
}

// CycleToolbar advances to the next toolbar mode, wrapping to Disabled.
func (s *Store) CycleToolbar() (models.Settings, error) {
	return s.apply(func(st *models.Settings) {
		st.ToolbarType = st.ToolbarType.Next()
	})
}

// CycleLanguage advances to the next language, wrapping to Automatic.
func (s *Store) CycleLanguage() (models.Settings, error) {
	return s.apply(func(st *models.Settings) {
		st.Language = st.Language.Next()
	})
}

// ResetDisclaimer clears the accepted flag so the disclaimer shows again.
func (s *Store) ResetDisclaimer() (models.Settings, error) {
	zero := 0
	return s.Set(models.SettingsUpdate{DisclaimerAccepted: &zero})
}

// SetCompression toggles compression. Nothing is saved when the value is
// already set.
func (s *Store) SetCompression(on bool) (models.Settings, error) {
	if cur := s.Get(); cur.CompressionEnabled == on {
		return cur, nil
	}
	return s.Set(models.SettingsUpdate{CompressionEnabled: &on})
}

// SetRevert toggles revert support. Nothing is saved when the value is
// already set.
func (s *Store) SetRevert(on bool) (models.Settings, error) {
	if cur := s.Get(); cur.RevertEnabled == on {
		return cur, nil
	}
	return s.Set(models.SettingsUpdate{RevertEnabled: &on})
}
