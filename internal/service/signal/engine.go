package signal

import (
	"fmt"
	"math"
	"strings"
	"time"

	"ChainPulse/internal/domain/models"
)

// Rule thresholds. A rule set's score is the sum of weights of its
// matched conditions; scores map to actions at fixed cut-offs.
const (
	strongThreshold = 0.95
	actThreshold    = 0.8
	holdThreshold   = 0.7
)

type condition struct {
	name   string
	weight float64
	match  func(c *models.SignalConditions) (bool, bool) // (matched, known)
}

var buyRules = []condition{
	{"MVRV < 1", 0.3, func(c *models.SignalConditions) (bool, bool) {
		if c.MVRV == nil {
			return false, false
		}
		return *c.MVRV < 1, true
	}},
	{"Fear & Greed < 20", 0.25, func(c *models.SignalConditions) (bool, bool) {
		if c.FearGreed == nil {
			return false, false
		}
		return *c.FearGreed < 20, true
	}},
	{"Funding Rate âm", 0.25, func(c *models.SignalConditions) (bool, bool) {
		if c.FundingRate == nil {
			return false, false
		}
		return *c.FundingRate < 0, true
	}},
	{"SOPR quanh 1", 0.2, func(c *models.SignalConditions) (bool, bool) {
		if c.SOPR == nil {
			return false, false
		}
		return math.Abs(*c.SOPR-1) < 0.1, true
	}},
}

var sellRules = []condition{
	{"MVRV > 2", 0.3, func(c *models.SignalConditions) (bool, bool) {
		if c.MVRV == nil {
			return false, false
		}
		return *c.MVRV > 2, true
	}},
	{"Fear & Greed > 80", 0.25, func(c *models.SignalConditions) (bool, bool) {
		if c.FearGreed == nil {
			return false, false
		}
		return *c.FearGreed > 80, true
	}},
	{"Funding Rate dương cao", 0.25, func(c *models.SignalConditions) (bool, bool) {
		if c.FundingRate == nil {
			return false, false
		}
		return *c.FundingRate > 0.01, true
	}},
	{"RSI > 70", 0.2, func(c *models.SignalConditions) (bool, bool) {
		if c.RSI == nil {
			return false, false
		}
		return *c.RSI > 70, true
	}},
}

// Engine turns the latest validated snapshot into a recommendation.
// Evaluate is pure and side-effect free; a fresh TradingSignal is built
// on every call.
type Engine struct{}

// NewEngine creates a signal engine.
func NewEngine() *Engine { return &Engine{} }

// Evaluate applies the BUY, SELL and HOLD rule sets to the snapshot.
func (e *Engine) Evaluate(c *models.SignalConditions) *models.TradingSignal {
	now := time.Now()
	if c == nil {
		return &models.TradingSignal{
			Signal:     models.SignalHold,
			Confidence: 0,
			Reasoning:  "no snapshot available",
			RiskLevel:  models.RiskMedium,
			Timestamp:  now,
		}
	}

	extreme, extremeWhy := extremeConditions(c)

	buyScore, buyTriggers := score(buyRules, c)
	sellScore, sellTriggers := score(sellRules, c)
	holdScore, holdTriggers := holdScoreFor(c, extreme)

	sig := &models.TradingSignal{
		Asset:      c.Asset,
		Conditions: c,
		Timestamp:  now,
	}

	switch {
	case buyScore >= actThreshold && buyScore >= sellScore:
		sig.Signal = models.SignalBuy
		if buyScore >= strongThreshold {
			sig.Signal = models.SignalStrongBuy
		}
		sig.Confidence = math.Round(buyScore * 100)
		sig.Triggers = buyTriggers
		sig.RiskLevel = models.RiskMedium
		sig.Reasoning = fmt.Sprintf("accumulation conditions met: %s", strings.Join(buyTriggers, ", "))
	case sellScore >= actThreshold:
		sig.Signal = models.SignalSell
		if sellScore >= strongThreshold {
			sig.Signal = models.SignalStrongSell
		}
		sig.Confidence = math.Round(sellScore * 100)
		sig.Triggers = sellTriggers
		sig.RiskLevel = models.RiskMedium
		sig.Reasoning = fmt.Sprintf("distribution conditions met: %s", strings.Join(sellTriggers, ", "))
	case holdScore >= holdThreshold:
		sig.Signal = models.SignalHold
		sig.Confidence = math.Round(holdScore * 100)
		sig.Triggers = holdTriggers
		sig.RiskLevel = models.RiskLow
		sig.Reasoning = "valuation and holder metrics in equilibrium range"
	default:
		sig.Signal = models.SignalHold
		sig.Confidence = 50
		sig.RiskLevel = models.RiskMedium
		sig.Reasoning = "neutral: no rule set cleared its threshold"
	}

	if extreme {
		sig.RiskLevel = models.RiskHigh
		sig.Reasoning += "; extreme market conditions: " + strings.Join(extremeWhy, ", ")
	}
	return sig
}

func score(rules []condition, c *models.SignalConditions) (float64, []string) {
	var total float64
	var triggers []string
	for _, r := range rules {
		matched, known := r.match(c)
		if known && matched {
			total += r.weight
			triggers = append(triggers, r.name)
		}
	}
	return total, triggers
}

func holdScoreFor(c *models.SignalConditions, extreme bool) (float64, []string) {
	var total float64
	var triggers []string
	if c.MVRV != nil && *c.MVRV >= 1 && *c.MVRV <= 1.5 {
		total += 0.4
		triggers = append(triggers, "MVRV 1-1.5")
	}
	if c.NUPL != nil && *c.NUPL >= 0.3 && *c.NUPL <= 0.7 {
		total += 0.3
		triggers = append(triggers, "NUPL 0.3-0.7")
	}
	if c.VolumeTrend == models.VolumeIncreasing {
		total += 0.2
		triggers = append(triggers, "on-chain volume tăng")
	}
	if !extreme {
		total += 0.1
		triggers = append(triggers, "no extreme condition")
	}
	return total, triggers
}

// extremeConditions pre-checks for any panic/euphoria reading; it raises
// the risk level and blocks the HOLD stability bonus.
func extremeConditions(c *models.SignalConditions) (bool, []string) {
	var why []string
	if c.FearGreed != nil && (*c.FearGreed <= 10 || *c.FearGreed >= 90) {
		why = append(why, fmt.Sprintf("Fear & Greed %.0f", *c.FearGreed))
	}
	if c.FundingRate != nil && math.Abs(*c.FundingRate) > 0.05 {
		why = append(why, fmt.Sprintf("funding rate %.4f", *c.FundingRate))
	}
	if c.RSI != nil && (*c.RSI >= 80 || *c.RSI <= 20) {
		why = append(why, fmt.Sprintf("RSI %.0f", *c.RSI))
	}
	if c.SocialSentiment != nil && (*c.SocialSentiment >= 0.9 || *c.SocialSentiment <= 0.1) {
		why = append(why, fmt.Sprintf("sentiment %.2f", *c.SocialSentiment))
	}
	return len(why) > 0, why
}
