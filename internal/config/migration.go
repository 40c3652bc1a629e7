package config

import (
	"log/slog"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// migrateSettings fixes values that are out of range in hand-edited or
// older settings files. Nothing is ever kept unclamped.
func migrateSettings(s *models.Settings) {
	def := models.DefaultSettings()

	if c := models.ClampCacheSize(s.CacheSizeMB); c != s.CacheSizeMB {
		slog.Warn("config: cache size out of range, clamping", "value", s.CacheSizeMB, "clamped", c)
		s.CacheSizeMB = c
	}

	if c := models.ClampColor(s.PlayerColor); c != s.PlayerColor {
		slog.Warn("config: player color out of range, clamping", "value", s.PlayerColor, "clamped", c)
		s.PlayerColor = c
	}

	if s.ChatKey == "" {
		s.ChatKey = def.ChatKey
	}
	if s.ScreenshotKey == "" {
		s.ScreenshotKey = def.ScreenshotKey
	}
	if s.PlayerName == "" {
		s.PlayerName = def.PlayerName
	}
	if s.DisclaimerAccepted < 0 {
		s.DisclaimerAccepted = 0
	}
}
