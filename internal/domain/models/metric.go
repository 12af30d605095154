package models

import "time"

// MetricCategory identifies one collection job family.
type MetricCategory string

const (
	CategoryPrice       MetricCategory = "price"
	CategoryTechnical   MetricCategory = "technical"
	CategoryOnChain     MetricCategory = "onchain"
	CategorySentiment   MetricCategory = "sentiment"
	CategoryDerivatives MetricCategory = "derivatives"
	CategoryVolume      MetricCategory = "volume"
	CategoryAnomaly     MetricCategory = "anomaly"
	CategorySignal      MetricCategory = "signal"
)

// Source identifies the provenance of a metric snapshot.
type Source string

const (
	SourceAPI        Source = "api"
	SourceFallback   Source = "fallback"
	SourceCalculated Source = "calculated"
)

// Asset is a tracked cryptocurrency.
type Asset struct {
	Symbol     string  `json:"symbol"`
	ExternalID string  `json:"external_id"` // provider-side id, e.g. "bitcoin"
	Rank       int     `json:"rank"`
	Price      float64 `json:"price,omitempty"`
	MarketCap  float64 `json:"market_cap,omitempty"`
}

// RawMetric is an unvalidated payload returned by a provider adapter.
type RawMetric struct {
	Provider  string             `json:"provider"`
	Asset     string             `json:"asset"`
	Category  MetricCategory     `json:"category"`
	Values    map[string]float64 `json:"values"`
	Meta      map[string]string  `json:"meta,omitempty"` // provider identifiers, series names
	Source    Source             `json:"source"`
	Cached    bool               `json:"cached"`
	Timestamp time.Time          `json:"timestamp"`
}

// MetricSnapshot is a validated, scored metric set for one (asset, category).
type MetricSnapshot struct {
	Asset      string             `json:"asset"`
	Category   MetricCategory     `json:"category"`
	Values     map[string]float64 `json:"values"`
	Quality    float64            `json:"quality"`    // 0..100
	Confidence float64            `json:"confidence"` // 0..1
	Source     Source             `json:"source"`
	Cached     bool               `json:"cached"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Value returns a named sub-metric and whether it is present.
func (s *MetricSnapshot) Value(name string) (float64, bool) {
	if s == nil || s.Values == nil {
		return 0, false
	}
	v, ok := s.Values[name]
	return v, ok
}
