package usecase

import (
	"context"
	"fmt"
	"time"

	"ChainPulse/internal/domain/models"
	drepo "ChainPulse/internal/domain/repository"
)

// SnapshotProcessor routes validated snapshots to the configured backend.
type SnapshotProcessor struct {
	pub     drepo.Publisher
	store   drepo.MetricStore
	metrics drepo.Metrics
	backend string
}

// NewSnapshotProcessor creates a new SnapshotProcessor instance.
func NewSnapshotProcessor(pub drepo.Publisher, store drepo.MetricStore, metrics drepo.Metrics, backend string) *SnapshotProcessor {
	return &SnapshotProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Process routes a single snapshot to the configured backend.
func (p *SnapshotProcessor) Process(ctx context.Context, s *models.MetricSnapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishSnapshot(ctx, s)
	case "clickhouse":
		err = p.store.Save(ctx, s)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process snapshot: %w", err)
	}

	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes multiple snapshots in one backend call.
func (p *SnapshotProcessor) ProcessBatch(ctx context.Context, snaps []*models.MetricSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		for _, s := range snaps {
			if perr := p.pub.PublishSnapshot(ctx, s); perr != nil {
				err = perr
				break
			}
		}
	case "clickhouse":
		err = p.store.SaveBatch(ctx, snaps)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

// PublishAnomaly forwards a systemic verdict to the broker when one is
// configured. Storage-only deployments drop the event silently.
func (p *SnapshotProcessor) PublishAnomaly(ctx context.Context, r *models.SystemicAnomalyResult) error {
	if p.backend != "kafka" || p.pub == nil {
		return nil
	}
	if err := p.pub.PublishAnomaly(ctx, r); err != nil {
		p.metrics.RecordError("publish_anomaly")
		return fmt.Errorf("publish anomaly: %w", err)
	}
	return nil
}

// PublishSignal forwards a trading signal to the broker when one is
// configured.
func (p *SnapshotProcessor) PublishSignal(ctx context.Context, sig *models.TradingSignal) error {
	if p.backend != "kafka" || p.pub == nil {
		return nil
	}
	if err := p.pub.PublishSignal(ctx, sig); err != nil {
		p.metrics.RecordError("publish_signal")
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}

// Close closes underlying resources if available.
func (p *SnapshotProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
