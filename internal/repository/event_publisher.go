package repository

import (
	"context"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
	pkgkafka "ChainPulse/pkg/kafka"
)

// Topics names the broker destinations for pipeline events.
type Topics struct {
	Snapshots string
	Anomalies string
	Signals   string
}

// KafkaEventPublisher implements Publisher on Kafka, one topic per
// event family. Messages are keyed by asset so per-asset ordering is
// preserved within a partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topics   Topics
}

// NewKafkaEventPublisher creates a Kafka-backed event publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, topics Topics) repository.Publisher {
	return &KafkaEventPublisher{producer: producer, topics: topics}
}

func (p *KafkaEventPublisher) PublishSnapshot(ctx context.Context, s *models.MetricSnapshot) error {
	return p.producer.Publish(ctx, p.topics.Snapshots, []byte(s.Asset), s)
}

func (p *KafkaEventPublisher) PublishAnomaly(ctx context.Context, r *models.SystemicAnomalyResult) error {
	return p.producer.Publish(ctx, p.topics.Anomalies, []byte(r.Asset), r)
}

func (p *KafkaEventPublisher) PublishSignal(ctx context.Context, sig *models.TradingSignal) error {
	return p.producer.Publish(ctx, p.topics.Signals, []byte(sig.Asset), sig)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
