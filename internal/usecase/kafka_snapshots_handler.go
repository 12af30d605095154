package usecase

import (
	"context"
	"encoding/json"
	"time"

	"ChainPulse/internal/domain/models"
	domrepo "ChainPulse/internal/domain/repository"
	pkgkafka "ChainPulse/pkg/kafka"
)

// KafkaSnapshotsHandler consumes published snapshots and writes them to
// storage. Runs in the ingest deployment when backend=kafka splits
// collection and persistence into separate processes.
type KafkaSnapshotsHandler struct {
	topic   string
	store   domrepo.MetricStore
	metrics domrepo.Metrics
}

func NewKafkaSnapshotsHandler(topic string, store domrepo.MetricStore, metrics domrepo.Metrics) *KafkaSnapshotsHandler {
	return &KafkaSnapshotsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaSnapshotsHandler) Topic() string { return h.topic }

func (h *KafkaSnapshotsHandler) Handle(ctx context.Context, b []byte) error {
	var s models.MetricSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	// E2E latency from collection time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(s.Timestamp).Seconds())

	start := time.Now()
	err := h.store.Save(ctx, &s)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSnapshotsHandler)(nil)
