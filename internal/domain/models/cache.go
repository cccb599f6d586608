package models

import (
	"fmt"
	"strings"
	"time"

	"Nowcast/pkg/util"
)

// BenchmarkIndicator is the indicator slot under which the autoregressive
// benchmark forecast of the target is cached.
const BenchmarkIndicator = "_ar_benchmark"

const keySep = "|"

// CacheKey identifies one SpecSearch result. Build it with NewCacheKey so that
// the fold identifier is always a canonical civil date.
type CacheKey struct {
	RunID      string
	Fold       time.Time
	Frequency  Frequency
	Indicator  string
	Checkpoint Checkpoint
	Criterion  Criterion
	Transform  string
}

// NewCacheKey is the only constructor of cache keys.
func NewCacheKey(runID string, fold time.Time, freq Frequency, indicator string, cp Checkpoint, crit Criterion, transform string) CacheKey {
	return CacheKey{
		RunID:      runID,
		Fold:       util.NormalizeDate(fold),
		Frequency:  freq,
		Indicator:  indicator,
		Checkpoint: cp,
		Criterion:  crit,
		Transform:  transform,
	}
}

// String is the canonical storage encoding of the key.
func (k CacheKey) String() string {
	return strings.Join([]string{
		k.RunID,
		k.Fold.Format(util.DateLayout),
		string(k.Frequency),
		k.Indicator,
		k.Checkpoint.String(),
		string(k.Criterion),
		k.Transform,
	}, keySep)
}

// Stem identifies the error-history series the key belongs to: every field but the fold.
func (k CacheKey) Stem() string {
	return strings.Join([]string{
		k.RunID,
		string(k.Frequency),
		k.Indicator,
		k.Checkpoint.String(),
		string(k.Criterion),
		k.Transform,
	}, keySep)
}

// ParseCacheKey decodes the output of CacheKey.String.
func ParseCacheKey(s string) (CacheKey, error) {
	parts := strings.Split(s, keySep)
	if len(parts) != 7 {
		return CacheKey{}, fmt.Errorf("cache key %q: want 7 fields, got %d", s, len(parts))
	}
	fold, err := time.Parse(util.DateLayout, parts[1])
	if err != nil {
		return CacheKey{}, fmt.Errorf("cache key %q: fold: %w", s, err)
	}
	cp, err := ParseCheckpoint(parts[4])
	if err != nil {
		return CacheKey{}, fmt.Errorf("cache key %q: %w", s, err)
	}
	return NewCacheKey(parts[0], fold, Frequency(parts[2]), parts[3], cp, Criterion(parts[5]), parts[6]), nil
}

// CacheEntry is one memoized SpecSearch result. It is never mutated once stored.
type CacheEntry struct {
	Spec         ModelSpec `json:"spec"`
	Columns      []string  `json:"columns"`
	Params       []float64 `json:"params"`
	Score        float64   `json:"score"`
	Predicted    float64   `json:"predicted"`
	Lower        float64   `json:"lower"`
	Upper        float64   `json:"upper"`
	Actual       float64   `json:"actual"`
	HasActual    bool      `json:"has_actual"`
	SquaredError float64   `json:"squared_error"`
}

// ErrorPoint is one past squared forecast error of an error-history series.
type ErrorPoint struct {
	Fold         time.Time `json:"fold"`
	SquaredError float64   `json:"squared_error"`
}
