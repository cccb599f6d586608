package repository

import (
	"context"
	"fmt"

	"Nowcast/internal/domain/models"
	pkgkafka "Nowcast/pkg/kafka"
	applogger "Nowcast/pkg/logger"
)

const publishChunk = 500

type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// ResultMessage is the value of one published nowcast point.
type ResultMessage struct {
	RunID string `json:"run_id"`
	models.PublishedPoint
}

// KafkaResultPublisher ships pooled points to the results topic, keyed by
// series so that a partition sees each series in fold order. It also carries
// the warning digest of the log collector to the warnings topic.
type KafkaResultPublisher struct {
	p             batchProducer
	topic         string
	warningsTopic string
	l             *applogger.Logger
}

func NewKafkaResultPublisher(p *pkgkafka.Producer, topic, warningsTopic string, l *applogger.Logger) *KafkaResultPublisher {
	return &KafkaResultPublisher{p: p, topic: topic, warningsTopic: warningsTopic, l: l}
}

func seriesKey(runID string, p models.PublishedPoint) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%s|%s", runID, p.Pool, p.Branch, p.Criterion, p.Checkpoint))
}

func (k *KafkaResultPublisher) Publish(ctx context.Context, runID string, points []models.PublishedPoint) error {
	for start := 0; start < len(points); start += publishChunk {
		end := start + publishChunk
		if end > len(points) {
			end = len(points)
		}
		msgs := make([]pkgkafka.Message, 0, end-start)
		for _, p := range points[start:end] {
			msgs = append(msgs, pkgkafka.Message{Key: seriesKey(runID, p), Value: ResultMessage{RunID: runID, PublishedPoint: p}})
		}
		if err := k.p.PublishBatch(ctx, k.topic, msgs); err != nil {
			return fmt.Errorf("publish results %s: %w", runID, err)
		}
	}
	if k.l != nil {
		k.l.Info("results published",
			applogger.String("topic", k.topic),
			applogger.String("run_id", runID),
			applogger.Int("points", len(points)))
	}
	return nil
}

// PublishMessage sends one payload; an empty topic means the warnings topic.
func (k *KafkaResultPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	if topic == "" {
		topic = k.warningsTopic
	}
	return k.p.PublishBatch(ctx, topic, []pkgkafka.Message{{Value: payload}})
}

func (k *KafkaResultPublisher) Close() error {
	return k.p.Close()
}
