package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	CountThreshold int       // max unique entries kept before an automatic flush (0 = never)
	Topic          string    // topic to send the digest to
	Publisher      Publisher // optional; without it Flush only resets the digest
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector aggregates repeated warnings and errors of a run into a digest.
// A backtest runs on one goroutine; the mutex only guards the optional metrics server.
type LogCollector struct {
	config  *CollectionConfig
	logMap  map[string]*AggregatedLogEntry
	flushed []AggregatedLogEntry
	mutex   sync.Mutex
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config == nil {
		config = &CollectionConfig{}
	}
	return &LogCollector{
		config: config,
		logMap: make(map[string]*AggregatedLogEntry),
	}
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := d.generateKey(level, message, fields)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if entry, exists := d.logMap[key]; exists {
		entry.Count++
		entry.LastSeen = now
	} else {
		d.logMap[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if d.config.CountThreshold > 0 && len(d.logMap) >= d.config.CountThreshold {
		d.flushed = append(d.flushed, d.drain()...)
	}
}

// caller is left out of the key so the same warning raised from one call site
// with the same fields collapses into one entry.
func (d *LogCollector) generateKey(level, message string, fields map[string]interface{}) string {
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	}{
		Level:   level,
		Message: message,
		Fields:  fields,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

// Summary returns the current digest, most frequent first.
func (d *LogCollector) Summary() []AggregatedLogEntry {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	out := append([]AggregatedLogEntry(nil), d.flushed...)
	for _, e := range d.logMap {
		out = append(out, *e)
	}
	sortEntries(out)
	return out
}

// Flush publishes the digest (when a publisher is configured) and resets it.
func (d *LogCollector) Flush(ctx context.Context) error {
	d.mutex.Lock()
	logs := append(d.flushed, d.drain()...)
	d.flushed = nil
	d.mutex.Unlock()

	if len(logs) == 0 || d.config.Publisher == nil {
		return nil
	}
	sortEntries(logs)
	if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, logs); err != nil {
		return fmt.Errorf("publish log digest: %w", err)
	}
	return nil
}

func (d *LogCollector) drain() []AggregatedLogEntry {
	if len(d.logMap) == 0 {
		return nil
	}
	logs := make([]AggregatedLogEntry, 0, len(d.logMap))
	for _, entry := range d.logMap {
		logs = append(logs, *entry)
	}
	d.logMap = make(map[string]*AggregatedLogEntry)
	return logs
}

func (d *LogCollector) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.Flush(ctx); err != nil {
		fmt.Printf("Failed to send aggregated logs: %v\n", err)
	}
}

func sortEntries(logs []AggregatedLogEntry) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].Count != logs[j].Count {
			return logs[i].Count > logs[j].Count
		}
		return logs[i].Message < logs[j].Message
	})
}
