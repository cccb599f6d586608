package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	topic   string
	payload interface{}
}

func (c *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	c.topic = topic
	c.payload = payload
	return nil
}

func TestCollectorAggregatesWarnings(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{Topic: "nowcast.warnings", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Warn("dropping constant column", String("column", "pmi_m1"))
	}
	l.Warn("dropping constant column", String("column", "ip_m2"))
	l.Info("not collected")

	summary := l.Collector().Summary()
	require.Len(t, summary, 2)
	assert.Equal(t, 3, summary[0].Count)
	assert.Equal(t, "pmi_m1", summary[0].Fields["column"])

	require.NoError(t, l.Collector().Flush(context.Background()))
	assert.Equal(t, "nowcast.warnings", pub.topic)
	logs, ok := pub.payload.([]AggregatedLogEntry)
	require.True(t, ok)
	assert.Len(t, logs, 2)
	assert.Empty(t, l.Collector().Summary())
}

func TestCollectorThresholdKeepsEntries(t *testing.T) {
	c := NewLogCollector(&CollectionConfig{CountThreshold: 2})
	c.AddLog("warn", "a", nil, "")
	c.AddLog("warn", "b", nil, "")
	c.AddLog("warn", "c", nil, "")

	assert.Len(t, c.Summary(), 3)
	require.NoError(t, c.Flush(context.Background()))
	assert.Empty(t, c.Summary())
}
