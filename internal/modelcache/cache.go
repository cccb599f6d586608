package modelcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"Nowcast/internal/domain/models"
	"Nowcast/internal/domain/repository"
	"Nowcast/pkg/logger"
	"Nowcast/pkg/util"
)

// ComputeFunc produces the entry of a missing key.
type ComputeFunc func() (models.CacheEntry, error)

// ComputeAllFunc produces the entries of one SpecSearch, one per criterion.
type ComputeAllFunc func() (map[models.Criterion]models.CacheEntry, error)

// ModelCache memoizes SpecSearch results of one run identity. An entry, once
// present, is never recomputed or replaced. Load and Flush move the cache and
// the error history between memory and the store.
type ModelCache struct {
	mu      sync.Mutex
	runID   string
	store   repository.CacheStore
	metrics repository.Metrics
	l       *logger.Logger

	entries map[string]models.CacheEntry
	pending map[string]models.CacheEntry
	history *ErrorHistory
}

func New(runID string, store repository.CacheStore, metrics repository.Metrics, l *logger.Logger) *ModelCache {
	return &ModelCache{
		runID:   runID,
		store:   store,
		metrics: metrics,
		l:       l,
		entries: make(map[string]models.CacheEntry),
		pending: make(map[string]models.CacheEntry),
		history: NewErrorHistory(),
	}
}

// RunID derives the run identity from the target, lag depth and date range.
// A zero end means "up to the last quarter".
func RunID(target string, lagDepth int, start, end time.Time) string {
	e := "open"
	if !end.IsZero() {
		e = util.NormalizeDate(end).Format("20060102")
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, target)
	return fmt.Sprintf("%s_lag%d_%s_%s", name, lagDepth, util.NormalizeDate(start).Format("20060102"), e)
}

func (c *ModelCache) RunID() string { return c.runID }

// History exposes the error history fed by this cache.
func (c *ModelCache) History() *ErrorHistory { return c.history }

// Load reads the stored entries and history of the run. The history is rebuilt
// from the entries and merged with what was persisted, so a lost history file
// costs nothing.
func (c *ModelCache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	entries, err := c.store.LoadEntries(ctx, c.runID)
	if err != nil {
		return fmt.Errorf("load cache %s: %w", c.runID, err)
	}
	stored, err := c.store.LoadHistory(ctx, c.runID)
	if err != nil {
		return fmt.Errorf("load error history %s: %w", c.runID, err)
	}
	rebuilt, err := RebuildHistory(entries)
	if err != nil {
		return fmt.Errorf("rebuild error history %s: %w", c.runID, err)
	}

	c.mu.Lock()
	for k, e := range entries {
		if _, ok := c.entries[k]; !ok {
			c.entries[k] = e
		}
	}
	c.mu.Unlock()
	c.history.merge(rebuilt.Snapshot())
	c.history.merge(stored)

	if c.l != nil {
		c.l.Info("model cache loaded",
			logger.String("run_id", c.runID),
			logger.Int("entries", len(entries)),
			logger.Int("series", len(c.history.Stems())))
	}
	return nil
}

// Flush writes entries computed since the last flush and the full error history.
func (c *ModelCache) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]models.CacheEntry)
	c.mu.Unlock()

	written, err := c.store.SaveEntries(ctx, c.runID, pending)
	if err != nil {
		c.mu.Lock()
		for k, e := range pending {
			c.pending[k] = e
		}
		c.mu.Unlock()
		return fmt.Errorf("flush cache %s: %w", c.runID, err)
	}
	if err := c.store.SaveHistory(ctx, c.runID, c.history.Snapshot()); err != nil {
		return fmt.Errorf("flush error history %s: %w", c.runID, err)
	}
	if c.l != nil {
		c.l.Info("model cache flushed",
			logger.String("run_id", c.runID),
			logger.Int("pending", len(pending)),
			logger.Int("written", written))
	}
	return nil
}

func (c *ModelCache) lookup(key models.CacheKey) (models.CacheEntry, error) {
	e, ok := c.entries[key.String()]
	if !ok {
		return models.CacheEntry{}, models.ErrCacheMiss
	}
	return e, nil
}

// Get returns a stored entry.
func (c *ModelCache) Get(key models.CacheKey) (models.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookup(key)
	return e, err == nil
}

// Len returns the number of entries held.
func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// put stores e under key unless the key is taken. Callers hold mu.
func (c *ModelCache) put(key models.CacheKey, e models.CacheEntry) models.CacheEntry {
	if old, err := c.lookup(key); err == nil {
		return old
	}
	s := key.String()
	c.entries[s] = e
	c.pending[s] = e
	if e.HasActual {
		c.history.Append(key.Stem(), models.ErrorPoint{Fold: key.Fold, SquaredError: e.SquaredError})
	}
	return e
}

// GetOrCompute returns the entry of key, running fn only when it is missing.
// A failing fn leaves the key absent.
func (c *ModelCache) GetOrCompute(key models.CacheKey, fn ComputeFunc) (models.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, err := c.lookup(key); err == nil {
		c.record(true)
		return e, nil
	}
	c.record(false)
	e, err := fn()
	if err != nil {
		return models.CacheEntry{}, err
	}
	return c.put(key, e), nil
}

// GetOrComputeAll resolves keys that differ only in criterion with at most one
// call to fn. Keys already present keep their entries; criteria fn does not
// return stay absent. When fn fails the entries found so far are returned with its error.
func (c *ModelCache) GetOrComputeAll(keys []models.CacheKey, fn ComputeAllFunc) (map[models.Criterion]models.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[models.Criterion]models.CacheEntry, len(keys))
	var missing []models.CacheKey
	for _, k := range keys {
		if e, err := c.lookup(k); err == nil {
			out[k.Criterion] = e
			c.record(true)
			continue
		}
		c.record(false)
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return out, nil
	}

	computed, err := fn()
	if err != nil {
		return out, err
	}
	for _, k := range missing {
		if e, ok := computed[k.Criterion]; ok {
			out[k.Criterion] = c.put(k, e)
		}
	}
	return out, nil
}

// Missing returns the keys without an entry, sorted by their encoding.
func (c *ModelCache) Missing(keys []models.CacheKey) []models.CacheKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.CacheKey
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		s := k.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		if _, err := c.lookup(k); err != nil {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (c *ModelCache) record(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(hit)
	}
}
