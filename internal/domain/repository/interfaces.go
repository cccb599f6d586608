package repository

import (
	"context"

	"Nowcast/internal/domain/models"
)

// PanelSource provides the prepared panel and the historical release dates.
type PanelSource interface {
	LoadPanel(ctx context.Context) (*models.Panel, error)
	LoadReleases(ctx context.Context) ([]models.ReleaseRecord, error)
}

// CacheStore persists model-cache entries and error histories per run identity.
// SaveEntries must never overwrite an entry that already exists in the store.
type CacheStore interface {
	LoadEntries(ctx context.Context, runID string) (map[string]models.CacheEntry, error)
	SaveEntries(ctx context.Context, runID string, entries map[string]models.CacheEntry) (int, error)
	LoadHistory(ctx context.Context, runID string) (map[string][]models.ErrorPoint, error)
	SaveHistory(ctx context.Context, runID string, history map[string][]models.ErrorPoint) error
}

// ResultPublisher ships pooled nowcasts to downstream reporting collaborators.
type ResultPublisher interface {
	Publish(ctx context.Context, runID string, points []models.PublishedPoint) error
	Close() error
}

// Metrics records backtest telemetry.
type Metrics interface {
	RecordCacheLookup(hit bool)
	RecordSpecFit(indicator string, ok bool)
	RecordPoolingError(strategy string)
	RecordFold()
	RecordLatency(op string, seconds float64)
}
