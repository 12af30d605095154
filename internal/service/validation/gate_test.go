package validation

import (
	"testing"

	"ChainPulse/internal/domain/models"
)

func raw(kind models.MetricCategory, asset string, values map[string]float64) *models.RawMetric {
	return &models.RawMetric{
		Provider: "glassnode",
		Asset:    asset,
		Category: kind,
		Values:   values,
		Source:   models.SourceAPI,
	}
}

func TestTechnicalRejectsOutOfRangeRSI(t *testing.T) {
	g := NewGate(nil)
	res := g.Validate(KindTechnical, raw(models.CategoryTechnical, "bitcoin", map[string]float64{"rsi": 150}))
	if res.IsValid {
		t.Fatalf("rsi=150 must be rejected")
	}
	if res.Confidence != 0 {
		t.Fatalf("rejected payload must carry confidence 0, got %v", res.Confidence)
	}
}

func TestTechnicalAcceptsPlausibleRSI(t *testing.T) {
	g := NewGate(nil)
	res := g.Validate(KindTechnical, raw(models.CategoryTechnical, "bitcoin", map[string]float64{"rsi": 55}))
	if !res.IsValid {
		t.Fatalf("rsi=55 must be accepted: %s", res.Error)
	}
	if res.Confidence != 0.90 {
		t.Fatalf("technical base confidence = %v, want 0.90", res.Confidence)
	}
}

func TestMockDataDetected(t *testing.T) {
	g := NewGate(nil)
	r := raw(models.CategoryOnChain, "bitcoin", map[string]float64{"mvrv": 1.2})
	r.Meta = map[string]string{"series_id": "mock-mvrv-v2"}
	res := g.Validate(KindOnChain, r)
	if res.IsValid {
		t.Fatalf("mock-marked payload must be rejected")
	}
	if res.Error != "Mock data detected" {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestPriceBandRejection(t *testing.T) {
	g := NewGate(map[string]PriceBand{"bitcoin": {Min: 1000, Max: 200000}})

	res := g.Validate(KindPrice, raw(models.CategoryPrice, "bitcoin", map[string]float64{"price": 500}))
	if res.IsValid {
		t.Fatalf("out-of-band price must be rejected")
	}

	res = g.Validate(KindPrice, raw(models.CategoryPrice, "bitcoin", map[string]float64{"price": 64000}))
	if !res.IsValid || res.Confidence != 0.95 {
		t.Fatalf("in-band price must be accepted at 0.95, got valid=%v conf=%v", res.IsValid, res.Confidence)
	}
}

func TestPriceRejectsNonPositive(t *testing.T) {
	g := NewGate(nil)
	if res := g.Validate(KindPrice, raw(models.CategoryPrice, "bitcoin", map[string]float64{"price": 0})); res.IsValid {
		t.Fatalf("zero price must be rejected")
	}
}

func TestOnChainDownWeightNotReject(t *testing.T) {
	g := NewGate(nil)
	// mvrv=12 is surprising but not discarded outright
	res := g.Validate(KindOnChain, raw(models.CategoryOnChain, "bitcoin", map[string]float64{"mvrv": 12}))
	if !res.IsValid {
		t.Fatalf("surprising on-chain value must be down-weighted, not rejected")
	}
	if res.Confidence != 0.3 {
		t.Fatalf("down-weighted confidence = %v, want 0.3", res.Confidence)
	}

	res = g.Validate(KindOnChain, raw(models.CategoryOnChain, "bitcoin", map[string]float64{"mvrv": 1.4, "nupl": 0.5}))
	if !res.IsValid || res.Confidence != 0.85 {
		t.Fatalf("plausible on-chain must carry 0.85, got valid=%v conf=%v", res.IsValid, res.Confidence)
	}
}

func TestMissingRequiredField(t *testing.T) {
	g := NewGate(nil)
	if res := g.Validate(KindDerivative, raw(models.CategoryDerivatives, "bitcoin", map[string]float64{"open_interest": 5e9})); res.IsValid {
		t.Fatalf("derivative payload without funding_rate must be rejected")
	}
}

func TestQualityScorePenalties(t *testing.T) {
	full := QualityScore(KindOnChain, map[string]float64{"mvrv": 1.2, "nupl": 0.4, "sopr": 1.01, "active_addresses": 900000})
	if full != 100 {
		t.Fatalf("complete payload quality = %v, want 100", full)
	}
	partial := QualityScore(KindOnChain, map[string]float64{"mvrv": 1.2})
	if partial != 85 {
		t.Fatalf("payload missing 3 fields quality = %v, want 85", partial)
	}
}

func TestSentimentAcceptsFearGreedWithoutRSI(t *testing.T) {
	g := NewGate(nil)
	if KindForCategory(models.CategorySentiment) != KindSentiment {
		t.Fatalf("sentiment category must map to the sentiment kind")
	}
	res := g.Validate(KindSentiment, raw(models.CategorySentiment, "market", map[string]float64{"fear_greed": 17}))
	if !res.IsValid {
		t.Fatalf("fear_greed-only payload must be accepted: %s", res.Error)
	}
	if res.Confidence != 0.85 {
		t.Fatalf("sentiment base confidence = %v, want 0.85", res.Confidence)
	}
}

func TestSentimentRejectsOutOfRangeFearGreed(t *testing.T) {
	g := NewGate(nil)
	res := g.Validate(KindSentiment, raw(models.CategorySentiment, "market", map[string]float64{"fear_greed": 140}))
	if res.IsValid {
		t.Fatalf("fear_greed=140 must be rejected")
	}
	res = g.Validate(KindSentiment, raw(models.CategorySentiment, "market", map[string]float64{"social_sentiment": 0.4}))
	if res.IsValid {
		t.Fatalf("payload without fear_greed must be rejected")
	}
}
