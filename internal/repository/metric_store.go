package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
)

// ClickHouseMetricStore implements MetricStore on ClickHouse. Values
// are stored as a JSON column so new sub-metrics never need a schema
// migration.
type ClickHouseMetricStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseMetricStore creates ClickHouse-backed snapshot storage.
func NewClickHouseMetricStore(db *sql.DB, table string) repository.MetricStore {
	return &ClickHouseMetricStore{db: db, table: table}
}

// Init ensures the snapshot table exists. Unreachable storage is a
// startup-fatal condition for callers.
func (s *ClickHouseMetricStore) Init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("clickhouse ping: %w", err)
	}
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts DateTime64(3),
		asset LowCardinality(String),
		category LowCardinality(String),
		data String,
		quality Float64,
		confidence Float64,
		source LowCardinality(String),
		cached UInt8
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(ts)
	ORDER BY (asset, category, ts)
	TTL toDateTime(ts) + INTERVAL 180 DAY`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create snapshot table: %w", err)
	}
	return nil
}

func (s *ClickHouseMetricStore) Save(ctx context.Context, snap *models.MetricSnapshot) error {
	if snap == nil || snap.Asset == "" {
		return fmt.Errorf("invalid snapshot")
	}
	data, err := json.Marshal(snap.Values)
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, asset, category, data, quality, confidence, source, cached) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err = s.db.ExecContext(ctx, q,
		snap.Timestamp,
		snap.Asset,
		string(snap.Category),
		string(data),
		snap.Quality,
		snap.Confidence,
		string(snap.Source),
		boolToUint8(snap.Cached),
	)
	return err
}

func (s *ClickHouseMetricStore) SaveBatch(ctx context.Context, snaps []*models.MetricSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	const chunkSize = 1000
	for start := 0; start < len(snaps); start += chunkSize {
		end := start + chunkSize
		if end > len(snaps) {
			end = len(snaps)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, snap := range snaps[start:end] {
			if snap == nil || snap.Asset == "" {
				continue
			}
			data, err := json.Marshal(snap.Values)
			if err != nil {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				snap.Timestamp,
				snap.Asset,
				string(snap.Category),
				string(data),
				snap.Quality,
				snap.Confidence,
				string(snap.Source),
				boolToUint8(snap.Cached),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, asset, category, data, quality, confidence, source, cached) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseMetricStore) QueryLatest(ctx context.Context, category models.MetricCategory, asset string) (*models.MetricSnapshot, error) {
	q := fmt.Sprintf("SELECT ts, asset, category, data, quality, confidence, source, cached FROM %s WHERE asset = ? AND category = ? ORDER BY ts DESC LIMIT 1", s.table)
	row := s.db.QueryRowContext(ctx, q, asset, string(category))
	snap, err := scanSnapshot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return snap, err
}

func (s *ClickHouseMetricStore) QueryRange(ctx context.Context, category models.MetricCategory, asset string, from, to time.Time, limit int) ([]*models.MetricSnapshot, error) {
	q := fmt.Sprintf("SELECT ts, asset, category, data, quality, confidence, source, cached FROM %s WHERE asset = ? AND category = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, asset, string(category), from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*models.MetricSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func scanSnapshot(scan func(dest ...interface{}) error) (*models.MetricSnapshot, error) {
	var (
		snap     models.MetricSnapshot
		category string
		data     string
		source   string
		cached   uint8
	)
	if err := scan(&snap.Timestamp, &snap.Asset, &category, &data, &snap.Quality, &snap.Confidence, &source, &cached); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &snap.Values); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	snap.Category = models.MetricCategory(category)
	snap.Source = models.Source(source)
	snap.Cached = cached != 0
	return &snap, nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (s *ClickHouseMetricStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseMetricStore) Close() error {
	return nil // connection managed by pkg/clickhouse
}
