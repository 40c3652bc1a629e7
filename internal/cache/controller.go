// Package cache manages the local universe-data cache: a content-addressed
// set of objects kept under a size budget taken from the settings.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Planetworks/DarkMultiPlayer/internal/events"
	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// DefaultMaxAge is how long an object may go unused before ExpireCache
// removes it regardless of the budget.
const DefaultMaxAge = 24 * time.Hour

// Settings is the part of the settings store the cache reads its budget from.
type Settings interface {
	Get() models.Settings
}

// Options tunes a Controller. The zero value is usable.
type Options struct {
	// MaxAge removes objects unused for longer than this. Negative disables
	// age-based expiry; zero means DefaultMaxAge.
	MaxAge time.Duration
	// RemoveRate limits removals per second during ExpireCache. Zero means
	// unlimited.
	RemoveRate rate.Limit
	// Now is the clock, for tests.
	Now func() time.Time
}

// Result is delivered by the asynchronous variants.
type Result struct {
	Report models.ExpireReport
	Err    error
}

// Controller tracks cache occupancy against the budget and performs
// eviction. Only one of ExpireCache and DeleteCache runs at a time; a
// second request is rejected, not queued. CurrentSize is always safe to
// call.
type Controller struct {
	storage  Storage
	settings Settings
	bus      *events.Bus
	maxAge   time.Duration
	now      func() time.Time
	limiter  *rate.Limiter

	size    atomic.Int64
	entries atomic.Int64
	busy    atomic.Bool

	// mu guards leases and serialises individual removals against new reads.
	mu     sync.Mutex
	leases map[string]int
}

// New creates a controller and measures the current occupancy. bus may be nil.
func New(storage Storage, settings Settings, bus *events.Bus, opts Options) (*Controller, error) {
	c := &Controller{
		storage:  storage,
		settings: settings,
		bus:      bus,
		maxAge:   opts.MaxAge,
		now:      opts.Now,
		leases:   make(map[string]int),
	}
	if c.maxAge == 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.now == nil {
		c.now = time.Now
	}
	limit := opts.RemoveRate
	if limit <= 0 {
		limit = rate.Inf
	}
	c.limiter = rate.NewLimiter(limit, 1)

	if err := c.measure(); err != nil {
		return nil, err
	}
	return c, nil
}

// CurrentSize returns the last measured occupancy in bytes.
func (c *Controller) CurrentSize() int64 { return c.size.Load() }

// Busy reports whether an expire or delete is in flight.
func (c *Controller) Busy() bool { return c.busy.Load() }

// Info returns the occupancy report shown next to the budget.
func (c *Controller) Info() models.CacheInfo {
	return models.CacheInfo{
		CurrentBytes: c.size.Load(),
		CurrentMB:    RoundMB(c.size.Load()),
		BudgetMB:     c.settings.Get().CacheSizeMB,
		Entries:      int(c.entries.Load()),
		Busy:         c.busy.Load(),
	}
}

// RoundMB converts bytes to megabytes rounded to three decimals.
func RoundMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*1000) / 1000
}

// Refresh re-measures the occupancy from storage.
func (c *Controller) Refresh() error {
	return c.measure()
}

// ExpireCache evicts objects until the cache fits the budget. Objects
// unused for longer than MaxAge go first; then the least recently used
// objects are removed (oldest LastUsed first, ties by key) until the
// occupancy is at or under the budget or nothing removable remains.
// Objects with an active read lease are skipped.
//
// ctx is only checked before the first removal; an eviction that has
// started runs to completion so the cache is never left half-measured.
func (c *Controller) ExpireCache(ctx context.Context) (models.ExpireReport, error) {
	if err := c.begin("expire"); err != nil {
		return models.ExpireReport{}, err
	}
	defer c.end()
	return c.expire(ctx)
}

// DeleteCache removes every object. It fails with a cache busy error if
// any object is being read or another cache mutation is in flight.
func (c *Controller) DeleteCache(ctx context.Context) error {
	if err := c.begin("delete"); err != nil {
		return err
	}
	defer c.end()
	return c.deleteAll(ctx)
}

// ExpireAsync runs ExpireCache on a worker goroutine. The busy check is
// made before returning, so a concurrent request fails immediately.
func (c *Controller) ExpireAsync(ctx context.Context) (<-chan Result, error) {
	if err := c.begin("expire"); err != nil {
		return nil, err
	}
	ch := make(chan Result, 1)
	go func() {
		defer c.end()
		rep, err := c.expire(ctx)
		ch <- Result{Report: rep, Err: err}
	}()
	return ch, nil
}

// DeleteAsync runs DeleteCache on a worker goroutine, with the same busy
// semantics as ExpireAsync.
func (c *Controller) DeleteAsync(ctx context.Context) (<-chan Result, error) {
	if err := c.begin("delete"); err != nil {
		return nil, err
	}
	ch := make(chan Result, 1)
	go func() {
		defer c.end()
		err := c.deleteAll(ctx)
		ch <- Result{Report: models.ExpireReport{CurrentBytes: c.size.Load()}, Err: err}
	}()
	return ch, nil
}

// Put stores data and returns its key, the hex SHA-256 of the content.
func (c *Controller) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])

	c.mu.Lock()
	err := c.storage.Put(key, data)
	c.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("caching object: %w", err)
	}
	if err := c.measure(); err != nil {
		slog.Warn("cache: measuring after put failed", "err", err)
	}
	return key, nil
}

// Get reads an object and marks it as used. The object cannot be evicted
// while it is being read.
func (c *Controller) Get(key string) ([]byte, error) {
	if !validKey(key) {
		return nil, ErrNotFound
	}
	release := c.Acquire(key)
	defer release()

	data, err := c.storage.Read(key)
	if err != nil {
		return nil, err
	}
	if err := c.storage.Touch(key, c.now()); err != nil {
		slog.Debug("cache: touch failed", "key", key, "err", err)
	}
	return data, nil
}

// Keys lists the cached object keys in ascending order.
func (c *Controller) Keys() ([]string, error) {
	entries, err := c.storage.Entries()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Acquire takes a read lease on key. While any lease is held the object is
// skipped by ExpireCache and DeleteCache is refused. The returned release
// func is safe to call more than once.
func (c *Controller) Acquire(key string) (release func()) {
	c.mu.Lock()
	c.leases[key]++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.leases[key] <= 1 {
				delete(c.leases, key)
				return
			}
			c.leases[key]--
		})
	}
}

func (c *Controller) begin(op string) error {
	if !c.busy.CompareAndSwap(false, true) {
		slog.Warn("cache: rejected, another operation is in flight", "op", op)
		return models.NewCacheBusyError("cache " + op + " rejected: another cache operation is in progress")
	}
	return nil
}

func (c *Controller) end() {
	c.busy.Store(false)
}

func (c *Controller) expire(ctx context.Context) (models.ExpireReport, error) {
	if err := ctx.Err(); err != nil {
		return models.ExpireReport{CurrentBytes: c.size.Load()}, err
	}
	// Once started, run to completion.
	ctx = context.WithoutCancel(ctx)

	entries, err := c.storage.Entries()
	if err != nil {
		return models.ExpireReport{CurrentBytes: c.size.Load()}, fmt.Errorf("expire: %w", err)
	}
	sortOldestFirst(entries)

	budget := c.settings.Get().CacheBudgetBytes()
	rep := models.ExpireReport{BudgetBytes: budget}
	var total int64
	for _, e := range entries {
		total += e.Size
	}

	removed := make([]bool, len(entries))
	var errs []error
	evict := func(i int) {
		e := entries[i]
		if err := c.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			return
		}
		ok, err := c.removeUnleased(e)
		switch {
		case err != nil:
			slog.Warn("cache: failed to remove object", "key", e.Key, "err", err)
			errs = append(errs, err)
		case !ok:
			rep.Skipped++
		default:
			removed[i] = true
			total -= e.Size
			rep.Removed++
			rep.FreedBytes += e.Size
		}
	}

	if c.maxAge > 0 {
		cutoff := c.now().Add(-c.maxAge)
		for i, e := range entries {
			if e.LastUsed.Before(cutoff) {
				evict(i)
			}
		}
	}
	for i := range entries {
		if total <= budget {
			break
		}
		if !removed[i] {
			evict(i)
		}
	}

	if err := c.measure(); err != nil {
		errs = append(errs, err)
	}
	rep.CurrentBytes = c.size.Load()
	slog.Info("cache: expired",
		"removed", rep.Removed,
		"freed_bytes", rep.FreedBytes,
		"skipped_in_use", rep.Skipped,
		"size_bytes", rep.CurrentBytes,
		"budget_bytes", budget,
	)
	return rep, errors.Join(errs...)
}

// removeUnleased removes e unless it is leased. It reports whether the
// entry was removed.
func (c *Controller) removeUnleased(e Entry) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leases[e.Key] > 0 {
		return false, nil
	}
	if err := c.storage.Remove(e); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Controller) deleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Holding mu for the whole wipe keeps new reads out until it is done.
	c.mu.Lock()
	if n := len(c.leases); n > 0 {
		c.mu.Unlock()
		slog.Warn("cache: delete refused, objects are being read", "leased", n)
		return models.NewCacheBusyError(fmt.Sprintf("cache delete rejected: %d object(s) are being read", n))
	}
	entries, err := c.storage.Entries()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("delete: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if err := c.storage.Remove(e); err != nil {
			slog.Warn("cache: failed to remove object", "key", e.Key, "err", err)
			errs = append(errs, err)
		}
	}
	c.mu.Unlock()

	if err := c.measure(); err != nil {
		errs = append(errs, err)
	}
	slog.Info("cache: deleted", "removed", len(entries)-len(errs), "size_bytes", c.size.Load())
	return errors.Join(errs...)
}

// measure recomputes occupancy from storage and publishes it.
func (c *Controller) measure() error {
	entries, err := c.storage.Entries()
	if err != nil {
		return fmt.Errorf("measuring cache: %w", err)
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	c.size.Store(total)
	c.entries.Store(int64(len(entries)))
	if c.bus != nil {
		c.bus.PublishCache(c.Info())
	}
	return nil
}

func sortOldestFirst(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastUsed.Equal(entries[j].LastUsed) {
			return entries[i].LastUsed.Before(entries[j].LastUsed)
		}
		return entries[i].Key < entries[j].Key
	})
}

func validKey(key string) bool {
	if len(key) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}
