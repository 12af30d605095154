package models

import "time"

// CollectionJobConfig configures one periodic collection job.
type CollectionJobConfig struct {
	Category        MetricCategory `json:"category"`
	Enabled         bool           `json:"enabled"`
	IntervalMinutes uint           `json:"interval_minutes"`
}

// CollectionStats tracks per-category progress. Mutated only by the
// orchestrator; counters survive until process restart.
type CollectionStats struct {
	TotalCollections  int64                        `json:"total_collections"`
	FailedCollections int64                        `json:"failed_collections"`
	LastCollection    map[MetricCategory]time.Time `json:"last_collection"`
}

// ProviderStats is the per-provider view exposed to the dashboard.
type ProviderStats struct {
	Provider        string `json:"provider"`
	RemainingDay    int    `json:"remaining_day"`
	RemainingMinute int    `json:"remaining_minute"`
	CacheSize       int    `json:"cache_size"`
	EstimateOnly    bool   `json:"estimate_only"`
}

// PipelineStatus is the aggregate view returned by the status endpoint.
type PipelineStatus struct {
	IsRunning bool                  `json:"is_running"`
	Stats     CollectionStats       `json:"stats"`
	Config    []CollectionJobConfig `json:"config"`
	Health    int                   `json:"health"` // 0..100, derived on demand
}
