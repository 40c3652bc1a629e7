// Package maintenance runs the client's background housekeeping: cache
// expiry at startup and on an interval, and daily settings backups.
package maintenance

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

const (
	backupPrefix     = "dmpclient-config-"
	backupSuffix     = ".tar.gz"
	defaultKeepFor   = 90 * 24 * time.Hour
	defaultBackupAt  = 2 // hour of day
	defaultExpireGap = time.Hour
)

// Expirer is the cache operation run on a schedule.
type Expirer interface {
	ExpireCache(ctx context.Context) (models.ExpireReport, error)
}

// Options configures a Service. Zero values use defaults.
type Options struct {
	// ExpireInterval is the time between cache expiry runs. Negative
	// disables the periodic run; expiry at startup still happens.
	ExpireInterval time.Duration
	// KeepBackupsFor prunes backups older than this.
	KeepBackupsFor time.Duration
}

// Service manages background maintenance goroutines.
type Service struct {
	configDir string
	backupDir string
	cache     Expirer
	opts      Options
	now       func() time.Time
}

// New creates a maintenance Service. Backups of configDir are written to
// backupDir. cache may be nil to skip expiry.
func New(configDir, backupDir string, cache Expirer, opts Options) *Service {
	if opts.ExpireInterval == 0 {
		opts.ExpireInterval = defaultExpireGap
	}
	if opts.KeepBackupsFor <= 0 {
		opts.KeepBackupsFor = defaultKeepFor
	}
	return &Service{
		configDir: configDir,
		backupDir: backupDir,
		cache:     cache,
		opts:      opts,
		now:       time.Now,
	}
}

// Start launches all background maintenance goroutines.
// Blocks until ctx is cancelled; all goroutines respect the context.
func (s *Service) Start(ctx context.Context) {
	if s.cache != nil {
		go s.runExpire(ctx)
	}
	go s.runBackup(ctx)

	// Block until cancelled
	<-ctx.Done()
}

// ExpireNow runs one cache expiry. A busy cache is not an error: the user
// started an expire or delete and the next tick will catch up.
func (s *Service) ExpireNow(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	rep, err := s.cache.ExpireCache(ctx)
	if errors.Is(err, models.ErrCacheBusy) {
		slog.Debug("maintenance: cache busy, skipping expiry")
		return nil
	}
	if err != nil {
		return err
	}
	if rep.Removed > 0 {
		slog.Info("maintenance: expired cache objects", "removed", rep.Removed, "freed_bytes", rep.FreedBytes)
	}
	return nil
}

// runExpire expires the cache once at startup and then on every tick.
func (s *Service) runExpire(ctx context.Context) {
	if err := s.ExpireNow(ctx); err != nil {
		slog.Warn("maintenance: cache expiry failed", "err", err)
	}
	if s.opts.ExpireInterval < 0 {
		return
	}

	ticker := time.NewTicker(s.opts.ExpireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ExpireNow(ctx); err != nil {
				slog.Warn("maintenance: cache expiry failed", "err", err)
			}
		}
	}
}

// runBackup performs daily backups at 2am.
func (s *Service) runBackup(ctx context.Context) {
	for {
		now := s.now()
		next := time.Date(now.Year(), now.Month(), now.Day(), defaultBackupAt, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			path, err := s.RunBackupNow()
			if err != nil {
				slog.Error("maintenance: backup failed", "err", err)
			} else {
				slog.Info("maintenance: backup created", "file", path)
			}
		}
	}
}

// RunBackupNow archives the regular files of the config directory into a
// dated tar.gz and prunes old backups. It returns the archive path.
func (s *Service) RunBackupNow() (string, error) {
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	date := s.now().Format("2006-01-02")
	dest := filepath.Join(s.backupDir, backupPrefix+date+backupSuffix)
	tmp := dest + ".tmp"
	if err := writeArchive(tmp, s.configDir); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename backup: %w", err)
	}

	pruneOldBackups(s.backupDir, s.now().Add(-s.opts.KeepBackupsFor))
	return dest, nil
}

// ListBackups returns available backup files sorted by name (newest last).
func (s *Service) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(s.backupDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	files := []string{}
	for _, e := range entries {
		if isBackup(e) {
			files = append(files, filepath.Join(s.backupDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func isBackup(e os.DirEntry) bool {
	return !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), backupSuffix)
}

// writeArchive tars the regular files directly inside srcDir. Temp files
// from in-progress atomic writes are skipped.
func writeArchive(path, srcDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("read config dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		if err := addFile(tw, filepath.Join(srcDir, e.Name())); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	return f.Sync()
}

func addFile(tw *tar.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar: %w", err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("tar %s: %w", filepath.Base(path), err)
	}
	return nil
}

// pruneOldBackups deletes backup files last modified before cutoff.
func pruneOldBackups(backupDir string, cutoff time.Time) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return
	}

	for _, e := range entries {
		if !isBackup(e) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(backupDir, e.Name())
			if err := os.Remove(path); err != nil {
				slog.Warn("maintenance: failed to prune old backup", "file", path, "err", err)
			} else {
				slog.Info("maintenance: pruned old backup", "file", path)
			}
		}
	}
}
