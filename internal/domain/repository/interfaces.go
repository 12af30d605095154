package repository

import (
	"context"
	"time"

	"ChainPulse/internal/domain/models"
)

// MetricStore persists validated snapshots and serves rolling-history seeds.
type MetricStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Save(ctx context.Context, s *models.MetricSnapshot) error
	SaveBatch(ctx context.Context, snaps []*models.MetricSnapshot) error
	QueryLatest(ctx context.Context, category models.MetricCategory, asset string) (*models.MetricSnapshot, error)
	QueryRange(ctx context.Context, category models.MetricCategory, asset string, from, to time.Time, limit int) ([]*models.MetricSnapshot, error)
	Health(ctx context.Context) error
	Close() error
}

// Publisher emits validated snapshots and detection events to a broker.
type Publisher interface {
	PublishSnapshot(ctx context.Context, s *models.MetricSnapshot) error
	PublishAnomaly(ctx context.Context, r *models.SystemicAnomalyResult) error
	PublishSignal(ctx context.Context, sig *models.TradingSignal) error
	Close() error
}

// AssetRegistry tracks which cryptocurrencies the pipeline collects for.
type AssetRegistry interface {
	List(ctx context.Context) ([]*models.Asset, error)
	Seed(ctx context.Context, assets []*models.Asset) error
	UpdateMarket(ctx context.Context, symbol string, price, marketCap float64) error
	Get(ctx context.Context, symbol string) (*models.Asset, error)
}

// TickerStream is a live exchange price feed.
type TickerStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Ticker, <-chan error)
	Reconnect(ctx context.Context) error
	IsConnected() bool
	Close() error
}

// Metrics records operational telemetry for the pipeline.
type Metrics interface {
	RecordCollection(category, result string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordQuotaRemaining(provider string, day, minute int)
}
