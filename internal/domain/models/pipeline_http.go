package models

// SignalRequest is the read request for the latest trading signal.
type SignalRequest struct {
	Asset string `param:"asset" validate:"required,min=2,max=64"`
}

// AnomalySummaryRequest aggregates detections over a lookback window.
type AnomalySummaryRequest struct {
	Asset  string `param:"asset" validate:"required,min=2,max=64"`
	Window string `query:"window" default:"24h" validate:"oneof=24h 7d 30d"`
}

// ProviderStatsRequest is the read request for one provider's quota and
// cache state.
type ProviderStatsRequest struct {
	Name string `param:"name" validate:"required,min=2,max=64"`
}
