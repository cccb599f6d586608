package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/cache"
	applogger "Nowcast/pkg/logger"
)

const kvBatch = 500

// KVStore keeps the model cache in a key-value backend (memory or Redis), one
// key per entry. Entries are written with SETNX, so concurrent runs sharing the
// backend never replace an entry another writer stored first.
type KVStore struct {
	c cache.Service
	l *applogger.Logger
}

func NewKVStore(c cache.Service, l *applogger.Logger) *KVStore {
	return &KVStore{c: c, l: l}
}

func entryPrefix(runID string) string {
	return cache.GenerateKeyWithParams("entry", runID) + ":"
}

func historyKey(runID string) string {
	return cache.GenerateKeyWithParams("history", runID)
}

func (s *KVStore) LoadEntries(ctx context.Context, runID string) (map[string]models.CacheEntry, error) {
	prefix := entryPrefix(runID)
	keys, err := s.c.Keys(ctx, cache.BuildPattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("list cache entries %s: %w", runID, err)
	}

	out := make(map[string]models.CacheEntry, len(keys))
	for start := 0; start < len(keys); start += kvBatch {
		end := start + kvBatch
		if end > len(keys) {
			end = len(keys)
		}
		got, err := cache.MGetTyped[models.CacheEntry](ctx, s.c, keys[start:end]...)
		if err != nil {
			return nil, fmt.Errorf("read cache entries %s: %w", runID, err)
		}
		for k, e := range got {
			out[strings.TrimPrefix(k, prefix)] = e
		}
	}
	return out, nil
}

func (s *KVStore) SaveEntries(ctx context.Context, runID string, entries map[string]models.CacheEntry) (int, error) {
	prefix := entryPrefix(runID)
	added, kept := 0, 0
	for k, e := range entries {
		ok, err := s.c.SetNX(ctx, prefix+k, e, 0)
		if err != nil {
			return added, fmt.Errorf("store cache entry %s: %w", k, err)
		}
		if ok {
			added++
		} else {
			kept++
		}
	}
	if kept > 0 && s.l != nil {
		s.l.Info("cache entries already stored by another writer",
			applogger.String("run_id", runID),
			applogger.Int("kept", kept))
	}
	return added, nil
}

func (s *KVStore) LoadHistory(ctx context.Context, runID string) (map[string][]models.ErrorPoint, error) {
	var h map[string][]models.ErrorPoint
	err := s.c.Get(ctx, historyKey(runID), &h)
	if errors.Is(err, cache.ErrCacheMiss) || (err == nil && h == nil) {
		return map[string][]models.ErrorPoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read error history %s: %w", runID, err)
	}
	return h, nil
}

func (s *KVStore) SaveHistory(ctx context.Context, runID string, history map[string][]models.ErrorPoint) error {
	if err := s.c.Set(ctx, historyKey(runID), history, 0); err != nil {
		return fmt.Errorf("store error history %s: %w", runID, err)
	}
	return nil
}
