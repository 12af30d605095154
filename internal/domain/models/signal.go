package models

import "time"

// SignalAction is the recommendation emitted by the rule engine.
type SignalAction string

const (
	SignalStrongBuy  SignalAction = "STRONG_BUY"
	SignalBuy        SignalAction = "BUY"
	SignalHold       SignalAction = "HOLD"
	SignalSell       SignalAction = "SELL"
	SignalStrongSell SignalAction = "STRONG_SELL"
)

// RiskLevel qualifies how much trust to put in an action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// VolumeTrend describes the recent direction of on-chain volume.
type VolumeTrend string

const (
	VolumeIncreasing VolumeTrend = "increasing"
	VolumeDecreasing VolumeTrend = "decreasing"
	VolumeFlat       VolumeTrend = "flat"
)

// SignalConditions is the validated metric snapshot the rule engine reads.
// Missing metrics are carried as nil so a rule can skip rather than misfire.
type SignalConditions struct {
	Asset           string      `json:"asset"`
	MVRV            *float64    `json:"mvrv,omitempty"`
	NUPL            *float64    `json:"nupl,omitempty"`
	SOPR            *float64    `json:"sopr,omitempty"`
	RSI             *float64    `json:"rsi,omitempty"`
	FearGreed       *float64    `json:"fear_greed,omitempty"`
	FundingRate     *float64    `json:"funding_rate,omitempty"`
	SocialSentiment *float64    `json:"social_sentiment,omitempty"`
	VolumeTrend     VolumeTrend `json:"volume_trend,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// TradingSignal is recomputed fresh on each evaluation.
type TradingSignal struct {
	Asset      string            `json:"asset"`
	Signal     SignalAction      `json:"signal"`
	Confidence float64           `json:"confidence"` // 0..100
	Reasoning  string            `json:"reasoning"`
	RiskLevel  RiskLevel         `json:"risk_level"`
	Conditions *SignalConditions `json:"conditions"`
	Triggers   []string          `json:"triggers,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
