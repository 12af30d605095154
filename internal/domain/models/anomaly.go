package models

import "time"

// AnomalyType classifies what kind of detector flagged the point.
type AnomalyType string

const (
	AnomalyStatistical AnomalyType = "statistical"
	AnomalyPattern     AnomalyType = "pattern"
	AnomalyCorrelation AnomalyType = "correlation"
	AnomalyVolume      AnomalyType = "volume"
	AnomalyPrice       AnomalyType = "price"
)

// Severity buckets an anomaly score.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyDetectionResult is the ensemble verdict for one metric value.
type AnomalyDetectionResult struct {
	Asset      string             `json:"asset"`
	Metric     string             `json:"metric"`
	IsAnomaly  bool               `json:"is_anomaly"`
	Score      float64            `json:"anomaly_score"` // 0..1
	Type       AnomalyType        `json:"anomaly_type"`
	Confidence float64            `json:"confidence"` // 0..1
	Severity   Severity           `json:"severity"`
	Timestamp  time.Time          `json:"timestamp"`
	Metrics    map[string]float64 `json:"metrics,omitempty"` // detector diagnostics
}

// SystemicAnomalyResult is the per-asset verdict across all tracked metrics.
type SystemicAnomalyResult struct {
	Asset      string                   `json:"asset"`
	Score      float64                  `json:"score"` // 0..1
	IsAnomaly  bool                     `json:"is_anomaly"`
	Severity   Severity                 `json:"severity"`
	Issues     []string                 `json:"issues,omitempty"`
	PerMetric  []AnomalyDetectionResult `json:"per_metric"`
	Timestamp  time.Time                `json:"timestamp"`
}

// AnomalySummary aggregates detections over a window for the read API.
type AnomalySummary struct {
	Asset          string               `json:"asset"`
	TotalAnomalies int                  `json:"total_anomalies"`
	BySeverity     map[Severity]int     `json:"by_severity"`
	ByType         map[AnomalyType]int  `json:"by_type"`
	From           time.Time            `json:"from"`
	To             time.Time            `json:"to"`
}
