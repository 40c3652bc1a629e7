package models

import (
	"math"
	"math/rand"
)

// Cache budget limits in megabytes.
const (
	MinCacheSizeMB     = 1
	MaxCacheSizeMB     = 1000
	DefaultCacheSizeMB = 100
)

// DefaultSettings returns the settings used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		PlayerName:         "Player",
		PlayerColor:        Color{R: 1, G: 1, B: 1},
		CacheSizeMB:        DefaultCacheSizeMB,
		ChatKey:            "BackQuote",
		ScreenshotKey:      "F8",
		ToolbarType:        ToolbarBlizzyIfInstalled,
		Language:           LanguageAutomatic,
		CompressionEnabled: true,
		RevertEnabled:      true,
		DisclaimerAccepted: 0,
	}
}

// ClampCacheSize limits a cache budget to [MinCacheSizeMB, MaxCacheSizeMB].
func ClampCacheSize(mb int) int {
	if mb < MinCacheSizeMB {
		return MinCacheSizeMB
	}
	if mb > MaxCacheSizeMB {
		return MaxCacheSizeMB
	}
	return mb
}

// ClampColor limits each channel to [0, 1]. NaN channels become 0.
func ClampColor(c Color) Color {
	return Color{R: clampUnit(c.R), G: clampUnit(c.G), B: clampUnit(c.B)}
}

func clampUnit(v float32) float32 {
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RandomColor returns a bright random colour. One channel is always at
// full intensity so the name stays readable on a dark background.
func RandomColor() Color {
	c := Color{R: rand.Float32(), G: rand.Float32(), B: rand.Float32()}
	switch rand.Intn(3) {
	case 0:
		c.R = 1
	case 1:
		c.G = 1
	default:
		c.B = 1
	}
	return c
}
