package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Nowcast/internal/domain/models"
	"Nowcast/internal/domain/repository"
	"Nowcast/pkg/cache"
)

const runID = "gdp_lag4_20000101_open"

func sampleEntries() map[string]models.CacheEntry {
	out := map[string]models.CacheEntry{}
	for i, crit := range models.Criteria {
		fold := time.Date(2015, time.Month(3*i+1), 1, 0, 0, 0, 0, time.UTC)
		k := models.NewCacheKey(runID, fold, models.FreqMonthly, "ip", 2, crit, "none")
		out[k.String()] = models.CacheEntry{
			Spec:         models.ModelSpec{TargetLags: 1, IndicatorLags: []int{0, 1}},
			Columns:      []string{"gdp_lag1", "ip_m2", "ip_m1"},
			Params:       []float64{0.1, 0.5, -0.25},
			Score:        -12.5,
			Predicted:    0.4,
			Lower:        -0.2,
			Upper:        1.0,
			Actual:       0.3,
			HasActual:    true,
			SquaredError: 0.01,
		}
	}
	return out
}

func sampleHistory() map[string][]models.ErrorPoint {
	return map[string][]models.ErrorPoint{
		"stem-a": {
			{Fold: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), SquaredError: 0.5},
			{Fold: time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC), SquaredError: 0.25},
		},
	}
}

func exerciseStore(t *testing.T, s repository.CacheStore) {
	ctx := context.Background()

	empty, err := s.LoadEntries(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, empty)
	h, err := s.LoadHistory(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, h)

	entries := sampleEntries()
	n, err := s.SaveEntries(ctx, runID, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, s.SaveHistory(ctx, runID, sampleHistory()))

	got, err := s.LoadEntries(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
	gotH, err := s.LoadHistory(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, sampleHistory(), gotH)

	// existing keys are never overwritten
	changed := map[string]models.CacheEntry{}
	for k, e := range entries {
		e.Predicted = 99
		changed[k] = e
	}
	n, err = s.SaveEntries(ctx, runID, changed)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err = s.LoadEntries(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	other, err := s.LoadEntries(ctx, "other-run")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStoreRoundTripIsByteStable(t *testing.T) {
	ctx := context.Background()
	dirA, dirB := t.TempDir(), t.TempDir()
	a, err := NewFileStore(dirA, nil)
	require.NoError(t, err)
	b, err := NewFileStore(dirB, nil)
	require.NoError(t, err)

	_, err = a.SaveEntries(ctx, runID, sampleEntries())
	require.NoError(t, err)
	require.NoError(t, a.SaveHistory(ctx, runID, sampleHistory()))

	entries, err := a.LoadEntries(ctx, runID)
	require.NoError(t, err)
	history, err := a.LoadHistory(ctx, runID)
	require.NoError(t, err)
	_, err = b.SaveEntries(ctx, runID, entries)
	require.NoError(t, err)
	require.NoError(t, b.SaveHistory(ctx, runID, history))

	for _, name := range []string{runID + ".cache.json", runID + ".history.json"} {
		wa, err := os.ReadFile(filepath.Join(dirA, name))
		require.NoError(t, err)
		wb, err := os.ReadFile(filepath.Join(dirB, name))
		require.NoError(t, err)
		assert.Equal(t, string(wa), string(wb), name)
	}

	leftovers, err := filepath.Glob(filepath.Join(dirA, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, runID+".cache.json"), []byte("{"), 0o644))
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	_, err = s.LoadEntries(context.Background(), runID)
	assert.Error(t, err)
}

func TestKVStoreOverMemory(t *testing.T) {
	exerciseStore(t, NewKVStore(cache.NewMemoryCache(), nil))
}

func TestKVStoreSharedBackendKeepsFirstWriter(t *testing.T) {
	ctx := context.Background()
	backend := cache.NewMemoryCache()
	first, second := NewKVStore(backend, nil), NewKVStore(backend, nil)

	entries := sampleEntries()
	_, err := first.SaveEntries(ctx, runID, entries)
	require.NoError(t, err)

	late := map[string]models.CacheEntry{}
	for k, e := range entries {
		e.Score = 0
		late[k] = e
	}
	n, err := second.SaveEntries(ctx, runID, late)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := second.LoadEntries(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}
