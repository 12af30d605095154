package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"ChainPulse/internal/domain/models"
)

// Kind selects which validation rule set applies to a payload.
type Kind string

const (
	KindPrice      Kind = "price"
	KindOnChain    Kind = "onchain"
	KindTechnical  Kind = "technical"
	KindDerivative Kind = "derivative"
	KindSentiment  Kind = "sentiment"
)

// Base confidences per kind. Price feeds drive signal math directly and
// get the strictest treatment; on-chain data is noisier and partial
// trust is still useful.
const (
	confPrice      = 0.95
	confOnChain    = 0.85
	confTechnical  = 0.90
	confDerivative = 0.80
	confSentiment  = 0.85

	// confidence assigned to surprising-but-plausible on-chain values
	confDownWeighted = 0.3
)

// PriceBand is the expected USD range for one asset. Bands are product
// policy and come from config, never hardcoded per asset.
type PriceBand struct {
	Min float64
	Max float64
}

var mockMarkers = []string{"test", "mock", "demo", "sample", "fake", "synthetic"}

// requiredFields lists numeric fields that must be present per kind.
var requiredFields = map[Kind][]string{
	KindPrice:      {"price"},
	KindTechnical:  {"rsi"},
	KindDerivative: {"funding_rate"},
	KindSentiment:  {"fear_greed"},
}

// oscillators are bounded [0,100] by construction; values outside are a
// hard reject for any kind.
var oscillators = map[string]struct{}{
	"rsi":        {},
	"fear_greed": {},
	"stoch_rsi":  {},
}

// onChainBounds are plausibility ranges for on-chain fields. A value
// outside its band is down-weighted, not discarded.
var onChainBounds = map[string][2]float64{
	"mvrv": {0, 10},
	"nupl": {-1, 1},
	"sopr": {0.5, 2},
}

// Gate inspects raw metric payloads and decides accept/down-weight/reject.
type Gate struct {
	bands map[string]PriceBand
}

// NewGate creates a validation gate with per-asset price bands.
func NewGate(bands map[string]PriceBand) *Gate {
	if bands == nil {
		bands = make(map[string]PriceBand)
	}
	return &Gate{bands: bands}
}

// Validate applies the rule set for kind to raw. Rules run in order and
// the first failing rule wins. The result is never mutated afterwards;
// re-validation produces a new result.
func (g *Gate) Validate(kind Kind, raw *models.RawMetric) models.ValidationResult {
	now := time.Now()
	if raw == nil {
		return reject(now, models.SourceAPI, "empty payload")
	}

	if marker := findMockMarker(raw); marker != "" {
		return reject(now, raw.Source, "Mock data detected")
	}

	for _, f := range requiredFields[kind] {
		v, ok := raw.Values[f]
		if !ok {
			return reject(now, raw.Source, fmt.Sprintf("missing field %q", f))
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return reject(now, raw.Source, fmt.Sprintf("field %q is not a finite number", f))
		}
	}
	if len(raw.Values) == 0 {
		return reject(now, raw.Source, "no numeric fields")
	}

	for name, v := range raw.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return reject(now, raw.Source, fmt.Sprintf("field %q is not a finite number", name))
		}
		if _, ok := oscillators[name]; ok && (v < 0 || v > 100) {
			return reject(now, raw.Source, fmt.Sprintf("%s=%.2f outside [0,100]", name, v))
		}
	}

	confidence := baseConfidence(kind)
	switch kind {
	case KindPrice:
		p := raw.Values["price"]
		if p <= 0 {
			return reject(now, raw.Source, "non-positive price")
		}
		if band, ok := g.bands[raw.Asset]; ok && (p < band.Min || p > band.Max) {
			return reject(now, raw.Source, fmt.Sprintf("price %.2f outside expected band [%.0f, %.0f]", p, band.Min, band.Max))
		}
	case KindOnChain:
		for name, bounds := range onChainBounds {
			if v, ok := raw.Values[name]; ok && (v < bounds[0] || v > bounds[1]) {
				confidence = confDownWeighted
				break
			}
		}
	}

	return models.ValidationResult{
		IsValid:    true,
		Values:     raw.Values,
		Confidence: confidence,
		Source:     raw.Source,
		Timestamp:  now,
	}
}

// QualityScore rates a validated value set in [0,100]. Live data starts
// at 100 and loses fixed penalties per missing or implausible sub-metric;
// low score data is still returned, tagged with its score.
func QualityScore(kind Kind, values map[string]float64) float64 {
	score := 100.0
	for _, f := range expectedFields(kind) {
		v, ok := values[f]
		if !ok {
			score -= 5
			continue
		}
		if v == 0 {
			score -= 2.5
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func expectedFields(kind Kind) []string {
	switch kind {
	case KindPrice:
		return []string{"price", "market_cap", "volume"}
	case KindOnChain:
		return []string{"mvrv", "nupl", "sopr", "active_addresses"}
	case KindTechnical:
		return []string{"rsi", "macd", "bb_width"}
	case KindDerivative:
		return []string{"funding_rate", "open_interest"}
	case KindSentiment:
		return []string{"fear_greed", "social_sentiment"}
	default:
		return nil
	}
}

// KindForCategory maps a collection category to its validation kind.
func KindForCategory(c models.MetricCategory) Kind {
	switch c {
	case models.CategoryPrice, models.CategoryVolume:
		return KindPrice
	case models.CategoryOnChain:
		return KindOnChain
	case models.CategoryTechnical:
		return KindTechnical
	case models.CategoryDerivatives:
		return KindDerivative
	case models.CategorySentiment:
		return KindSentiment
	default:
		return KindOnChain
	}
}

func baseConfidence(kind Kind) float64 {
	switch kind {
	case KindPrice:
		return confPrice
	case KindTechnical:
		return confTechnical
	case KindDerivative:
		return confDerivative
	case KindSentiment:
		return confSentiment
	default:
		return confOnChain
	}
}

func findMockMarker(raw *models.RawMetric) string {
	check := func(s string) string {
		ls := strings.ToLower(s)
		for _, m := range mockMarkers {
			if strings.Contains(ls, m) {
				return m
			}
		}
		return ""
	}
	for _, v := range raw.Meta {
		if m := check(v); m != "" {
			return m
		}
	}
	if m := check(raw.Asset); m != "" {
		return m
	}
	return ""
}

func reject(ts time.Time, src models.Source, msg string) models.ValidationResult {
	return models.ValidationResult{
		IsValid:    false,
		Confidence: 0,
		Source:     src,
		Timestamp:  ts,
		Error:      msg,
	}
}
