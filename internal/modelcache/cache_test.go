package modelcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Nowcast/internal/domain/models"
)

type memStore struct {
	entries map[string]map[string]models.CacheEntry
	history map[string]map[string][]models.ErrorPoint
	fail    error
}

func newMemStore() *memStore {
	return &memStore{
		entries: map[string]map[string]models.CacheEntry{},
		history: map[string]map[string][]models.ErrorPoint{},
	}
}

func (s *memStore) LoadEntries(_ context.Context, runID string) (map[string]models.CacheEntry, error) {
	out := map[string]models.CacheEntry{}
	for k, v := range s.entries[runID] {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) SaveEntries(_ context.Context, runID string, entries map[string]models.CacheEntry) (int, error) {
	if s.fail != nil {
		return 0, s.fail
	}
	if s.entries[runID] == nil {
		s.entries[runID] = map[string]models.CacheEntry{}
	}
	n := 0
	for k, v := range entries {
		if _, ok := s.entries[runID][k]; ok {
			continue
		}
		s.entries[runID][k] = v
		n++
	}
	return n, nil
}

func (s *memStore) LoadHistory(_ context.Context, runID string) (map[string][]models.ErrorPoint, error) {
	return s.history[runID], nil
}

func (s *memStore) SaveHistory(_ context.Context, runID string, h map[string][]models.ErrorPoint) error {
	s.history[runID] = h
	return nil
}

type countMetrics struct{ hits, misses int }

func (m *countMetrics) RecordCacheLookup(hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}
func (m *countMetrics) RecordSpecFit(string, bool)    {}
func (m *countMetrics) RecordPoolingError(string)     {}
func (m *countMetrics) RecordFold()                   {}
func (m *countMetrics) RecordLatency(string, float64) {}

func quarter(year, q int) time.Time {
	return time.Date(year, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC)
}

func key(fold time.Time, crit models.Criterion) models.CacheKey {
	return models.NewCacheKey("gdp_lag4_20000101_open", fold, models.FreqMonthly, "ip", 2, crit, "none")
}

func TestGetOrComputeIsIdempotent(t *testing.T) {
	m := &countMetrics{}
	c := New("run", nil, m, nil)
	k := key(quarter(2015, 1), models.CritBIC)

	first, err := c.GetOrCompute(k, func() (models.CacheEntry, error) {
		return models.CacheEntry{Predicted: 1.5}, nil
	})
	require.NoError(t, err)

	calls := 0
	second, err := c.GetOrCompute(k, func() (models.CacheEntry, error) {
		calls++
		return models.CacheEntry{Predicted: 99}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Zero(t, calls)
	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)
}

func TestFoldTimeOfDayDoesNotSplitKeys(t *testing.T) {
	c := New("run", nil, nil, nil)
	fold := quarter(2015, 1)
	_, err := c.GetOrCompute(key(fold, models.CritAIC), func() (models.CacheEntry, error) {
		return models.CacheEntry{Predicted: 2}, nil
	})
	require.NoError(t, err)

	got, ok := c.Get(key(fold.Add(13*time.Hour), models.CritAIC))
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Predicted)
}

func TestFailedComputeLeavesKeyAbsent(t *testing.T) {
	c := New("run", nil, nil, nil)
	k := key(quarter(2015, 1), models.CritBIC)
	_, err := c.GetOrCompute(k, func() (models.CacheEntry, error) {
		return models.CacheEntry{}, models.ErrNoFit
	})
	assert.ErrorIs(t, err, models.ErrNoFit)
	_, ok := c.Get(k)
	assert.False(t, ok)
	assert.Equal(t, []models.CacheKey{k}, c.Missing([]models.CacheKey{k, k}))
}

func TestGetOrComputeAll(t *testing.T) {
	c := New("run", nil, nil, nil)
	fold := quarter(2015, 1)
	keys := []models.CacheKey{key(fold, models.CritBIC), key(fold, models.CritAIC), key(fold, models.CritAdjR2)}

	_, err := c.GetOrCompute(keys[0], func() (models.CacheEntry, error) {
		return models.CacheEntry{Predicted: 1}, nil
	})
	require.NoError(t, err)

	calls := 0
	got, err := c.GetOrComputeAll(keys, func() (map[models.Criterion]models.CacheEntry, error) {
		calls++
		return map[models.Criterion]models.CacheEntry{
			models.CritBIC:   {Predicted: 7},
			models.CritAIC:   {Predicted: 2},
			models.CritAdjR2: {Predicted: 3},
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1.0, got[models.CritBIC].Predicted, "existing entry is never replaced")
	assert.Equal(t, 2.0, got[models.CritAIC].Predicted)
	assert.Empty(t, c.Missing(keys))

	_, err = c.GetOrComputeAll(keys, func() (map[models.Criterion]models.CacheEntry, error) {
		calls++
		return nil, errors.New("unreachable")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestFlushAndReload(t *testing.T) {
	store := newMemStore()
	c := New("run", store, nil, nil)
	for i, q := range []time.Time{quarter(2015, 1), quarter(2015, 2)} {
		e := models.CacheEntry{Predicted: float64(i), Actual: 1, HasActual: true, SquaredError: float64(i + 1)}
		_, err := c.GetOrCompute(key(q, models.CritBIC), func() (models.CacheEntry, error) { return e, nil })
		require.NoError(t, err)
	}
	require.NoError(t, c.Flush(context.Background()))

	reloaded := New("run", store, nil, nil)
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, 2, reloaded.Len())
	assert.Equal(t, c.History().Snapshot(), reloaded.History().Snapshot())

	// a second flush has nothing new to write
	require.NoError(t, reloaded.Flush(context.Background()))
	assert.Len(t, store.entries["run"], 2)
}

func TestFlushFailureKeepsPending(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("disk full")
	c := New("run", store, nil, nil)
	_, err := c.GetOrCompute(key(quarter(2015, 1), models.CritBIC), func() (models.CacheEntry, error) {
		return models.CacheEntry{}, nil
	})
	require.NoError(t, err)

	require.Error(t, c.Flush(context.Background()))
	store.fail = nil
	require.NoError(t, c.Flush(context.Background()))
	assert.Len(t, store.entries["run"], 1)
}

func TestHistoryFromCacheIsStrictlyBefore(t *testing.T) {
	c := New("run", nil, nil, nil)
	for i := 1; i <= 4; i++ {
		q := quarter(2015, i)
		e := models.CacheEntry{HasActual: true, SquaredError: float64(i)}
		_, err := c.GetOrCompute(key(q, models.CritBIC), func() (models.CacheEntry, error) { return e, nil })
		require.NoError(t, err)
	}
	stem := key(quarter(2015, 1), models.CritBIC).Stem()

	pts := c.History().Trailing(stem, quarter(2015, 3), 8)
	require.Len(t, pts, 2)
	assert.Equal(t, 2.0, pts[1].SquaredError)

	pts = c.History().Trailing(stem, quarter(2016, 1), 2)
	require.Len(t, pts, 2)
	assert.Equal(t, 3.0, pts[0].SquaredError)

	assert.Empty(t, c.History().Trailing(stem, quarter(2015, 1), 8))
}

func TestRunID(t *testing.T) {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "gdp-growth_lag4_20000101_open", RunID("gdp growth", 4, start, time.Time{}))
	assert.Equal(t, "gdp_lag2_20000101_20191001", RunID("gdp", 2, start, time.Date(2019, 10, 1, 0, 0, 0, 0, time.UTC)))
}
