package modelcache

import (
	"sort"
	"sync"
	"time"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/util"
)

// ErrorHistory holds, per cache-key stem, the squared errors of past folds in
// fold order. It is append-only and can always be rebuilt from cache entries.
type ErrorHistory struct {
	mu     sync.RWMutex
	series map[string][]models.ErrorPoint
}

func NewErrorHistory() *ErrorHistory {
	return &ErrorHistory{series: make(map[string][]models.ErrorPoint)}
}

// RebuildHistory derives the history from stored entries. Entries without an
// actual value carry no error and are skipped.
func RebuildHistory(entries map[string]models.CacheEntry) (*ErrorHistory, error) {
	h := NewErrorHistory()
	for raw, e := range entries {
		if !e.HasActual {
			continue
		}
		key, err := models.ParseCacheKey(raw)
		if err != nil {
			return nil, err
		}
		h.Append(key.Stem(), models.ErrorPoint{Fold: key.Fold, SquaredError: e.SquaredError})
	}
	return h, nil
}

// Append adds a point to a series. A point for a fold already present is ignored.
func (h *ErrorHistory) Append(stem string, p models.ErrorPoint) {
	p.Fold = util.NormalizeDate(p.Fold)
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.series[stem]
	i := sort.Search(len(s), func(i int) bool { return !s[i].Fold.Before(p.Fold) })
	if i < len(s) && s[i].Fold.Equal(p.Fold) {
		return
	}
	s = append(s, models.ErrorPoint{})
	copy(s[i+1:], s[i:])
	s[i] = p
	h.series[stem] = s
}

// Series returns a copy of one series.
func (h *ErrorHistory) Series(stem string) []models.ErrorPoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.ErrorPoint(nil), h.series[stem]...)
}

// Trailing returns at most window points dated strictly before the given fold.
func (h *ErrorHistory) Trailing(stem string, before time.Time, window int) []models.ErrorPoint {
	cut := util.NormalizeDate(before)
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := h.series[stem]
	end := sort.Search(len(s), func(i int) bool { return !s[i].Fold.Before(cut) })
	start := 0
	if window > 0 && end > window {
		start = end - window
	}
	return append([]models.ErrorPoint(nil), s[start:end]...)
}

// Stems lists the series names, sorted.
func (h *ErrorHistory) Stems() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.series))
	for s := range h.series {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a deep copy suitable for persisting.
func (h *ErrorHistory) Snapshot() map[string][]models.ErrorPoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string][]models.ErrorPoint, len(h.series))
	for k, v := range h.series {
		out[k] = append([]models.ErrorPoint(nil), v...)
	}
	return out
}

func (h *ErrorHistory) merge(series map[string][]models.ErrorPoint) {
	for stem, pts := range series {
		for _, p := range pts {
			h.Append(stem, p)
		}
	}
}
