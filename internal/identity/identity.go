// Package identity provides identity information for the DMP client
// daemon: its version, host name and default directories.
package identity

import (
	"os"
	"path/filepath"
	"runtime/debug"
)

// AppName names the client's config and cache directories.
const AppName = "dmpclient"

// DefaultVersion is the fallback version string when neither the linker
// nor the build info provides one.
const DefaultVersion = "0.0.0-dev"

// Version is set at build time with
// -ldflags "-X github.com/Planetworks/DarkMultiPlayer/internal/identity.Version=...".
var Version string

// GetHostname returns the system hostname.
func GetHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return AppName
	}
	return h
}

// GetVersion returns the linker-provided version, then the module version
// from the build info, then DefaultVersion.
func GetVersion() string {
	if Version != "" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return DefaultVersion
}

// DefaultConfigDir returns the per-user settings directory, e.g.
// ~/.config/dmpclient.
func DefaultConfigDir() string {
	return userDir(os.UserConfigDir, ".config")
}

// DefaultCacheDir returns the per-user universe cache directory, e.g.
// ~/.cache/dmpclient.
func DefaultCacheDir() string {
	return userDir(os.UserCacheDir, ".cache")
}

// DefaultBackupDir returns where settings backups are kept.
func DefaultBackupDir() string {
	return filepath.Join(DefaultConfigDir(), "backups")
}

func userDir(base func() (string, error), fallback string) string {
	if dir, err := base(); err == nil {
		return filepath.Join(dir, AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, fallback, AppName)
	}
	return filepath.Join(os.TempDir(), AppName)
}
