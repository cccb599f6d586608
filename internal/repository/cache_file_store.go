package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"Nowcast/internal/domain/models"
	applogger "Nowcast/pkg/logger"
)

const fileStoreVersion = 1

type entriesFile struct {
	Version int                          `json:"version"`
	RunID   string                       `json:"run_id"`
	Entries map[string]models.CacheEntry `json:"entries"`
}

type historyFile struct {
	Version int                            `json:"version"`
	RunID   string                         `json:"run_id"`
	Series  map[string][]models.ErrorPoint `json:"series"`
}

// FileStore keeps one cache file and one error-history file per run identity
// in a directory. Writes go to a temp file renamed over the target, and JSON
// object keys are sorted, so a save of loaded content is byte-identical.
type FileStore struct {
	mu  sync.Mutex
	dir string
	l   *applogger.Logger
}

func NewFileStore(dir string, l *applogger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, l: l}, nil
}

func (s *FileStore) entriesPath(runID string) string {
	return filepath.Join(s.dir, runID+".cache.json")
}

func (s *FileStore) historyPath(runID string) string {
	return filepath.Join(s.dir, runID+".history.json")
}

func (s *FileStore) LoadEntries(_ context.Context, runID string) (map[string]models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadEntries(runID)
}

func (s *FileStore) loadEntries(runID string) (map[string]models.CacheEntry, error) {
	var f entriesFile
	ok, err := readJSON(s.entriesPath(runID), &f)
	if err != nil || !ok {
		return map[string]models.CacheEntry{}, err
	}
	if f.Entries == nil {
		f.Entries = map[string]models.CacheEntry{}
	}
	return f.Entries, nil
}

// SaveEntries adds the entries whose keys are not stored yet and reports how many were added.
func (s *FileStore) SaveEntries(_ context.Context, runID string, entries map[string]models.CacheEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.loadEntries(runID)
	if err != nil {
		return 0, err
	}
	added := 0
	for k, e := range entries {
		if _, ok := stored[k]; ok {
			continue
		}
		stored[k] = e
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := writeJSON(s.entriesPath(runID), entriesFile{Version: fileStoreVersion, RunID: runID, Entries: stored}); err != nil {
		return 0, err
	}
	if s.l != nil {
		s.l.Debug("cache file written",
			applogger.String("path", s.entriesPath(runID)),
			applogger.Int("added", added),
			applogger.Int("total", len(stored)))
	}
	return added, nil
}

func (s *FileStore) LoadHistory(_ context.Context, runID string) (map[string][]models.ErrorPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var f historyFile
	ok, err := readJSON(s.historyPath(runID), &f)
	if err != nil || !ok || f.Series == nil {
		return map[string][]models.ErrorPoint{}, err
	}
	return f.Series, nil
}

// SaveHistory replaces the stored history. It is derived data and always rebuildable from the entries.
func (s *FileStore) SaveHistory(_ context.Context, runID string, history map[string][]models.ErrorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.historyPath(runID), historyFile{Version: fileStoreVersion, RunID: runID, Series: history})
}

func readJSON(path string, v interface{}) (bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
