package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when a key is not in the cache.
var ErrNotFound = errors.New("cache: object not found")

// Entry is one cached object as seen by the eviction policy.
type Entry struct {
	Key      string
	Size     int64
	LastUsed time.Time
}

// Storage is the cache storage boundary: an enumerable set of sized,
// age-stamped objects.
type Storage interface {
	Entries() ([]Entry, error)
	// Remove deletes an entry. Removing a missing entry is not an error.
	Remove(e Entry) error
	Put(key string, data []byte) error
	Read(key string) ([]byte, error)
	// Touch records a use of key at t.
	Touch(key string, t time.Time) error
}

// DirStorage keeps one file per object in a directory. LastUsed is the
// file modification time, which Touch refreshes.
type DirStorage struct {
	dir string
}

// NewDirStorage returns a storage rooted at dir. The directory is created
// on first Put.
func NewDirStorage(dir string) *DirStorage {
	return &DirStorage{dir: dir}
}

// Dir returns the storage directory.
func (d *DirStorage) Dir() string { return d.dir }

func (d *DirStorage) path(key string) string {
	return filepath.Join(d.dir, key)
}

// Entries lists regular files in the directory. A missing directory is an
// empty cache.
func (d *DirStorage) Entries() ([]Entry, error) {
	des, err := os.ReadDir(d.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}

	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		if !de.Type().IsRegular() || strings.HasSuffix(de.Name(), ".tmp") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, Entry{
			Key:      de.Name(),
			Size:     info.Size(),
			LastUsed: info.ModTime(),
		})
	}
	return entries, nil
}

func (d *DirStorage) Remove(e Entry) error {
	if err := os.Remove(d.path(e.Key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *DirStorage) Put(key string, data []byte) error {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return err
	}
	tmp := d.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, d.path(key))
}

func (d *DirStorage) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (d *DirStorage) Touch(key string, t time.Time) error {
	err := os.Chtimes(d.path(key), t, t)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

var _ Storage = (*DirStorage)(nil)
