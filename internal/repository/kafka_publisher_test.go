package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Nowcast/internal/domain/models"
	pkgkafka "Nowcast/pkg/kafka"
)

type fakeProducer struct {
	topics []string
	batch  [][]pkgkafka.Message
	err    error
	closed bool
}

func (f *fakeProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.batch = append(f.batch, msgs)
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaResultPublisher(t *testing.T) {
	fp := &fakeProducer{}
	pub := &KafkaResultPublisher{p: fp, topic: "results", warningsTopic: "warnings"}

	points := make([]models.PublishedPoint, 501)
	for i := range points {
		points[i] = models.PublishedPoint{
			Pool: models.PoolMSFE, Branch: "enet", Criterion: models.CritBIC, Checkpoint: 2,
			ResultPoint: models.ResultPoint{Date: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), Predicted: float64(i)},
		}
	}
	require.NoError(t, pub.Publish(context.Background(), "run", points))
	require.Len(t, fp.batch, 2)
	assert.Len(t, fp.batch[0], 500)
	assert.Equal(t, "run|msfe|enet|bic|p2", string(fp.batch[1][0].Key))
	msg, ok := fp.batch[1][0].Value.(ResultMessage)
	require.True(t, ok)
	assert.Equal(t, 500.0, msg.Predicted)

	require.NoError(t, pub.PublishMessage(context.Background(), "", map[string]int{"n": 1}))
	assert.Equal(t, "warnings", fp.topics[2])

	require.NoError(t, pub.Close())
	assert.True(t, fp.closed)
}

func TestKafkaResultPublisherError(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	pub := &KafkaResultPublisher{p: fp, topic: "results"}
	err := pub.Publish(context.Background(), "run", []models.PublishedPoint{{}})
	assert.ErrorContains(t, err, "broker down")
}
