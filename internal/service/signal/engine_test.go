package signal

import (
	"testing"

	"ChainPulse/internal/domain/models"
)

func f(v float64) *float64 { return &v }

func TestEvaluateBuyScenario(t *testing.T) {
	e := NewEngine()
	c := &models.SignalConditions{
		Asset:       "bitcoin",
		MVRV:        f(0.8),
		FearGreed:   f(15),
		FundingRate: f(-0.01),
		SOPR:        f(1.02),
		RSI:         f(40),
		NUPL:        f(0.4),
		VolumeTrend: models.VolumeIncreasing,
	}
	sig := e.Evaluate(c)

	if sig.Signal != models.SignalBuy && sig.Signal != models.SignalStrongBuy {
		t.Fatalf("signal = %s, want BUY or STRONG_BUY", sig.Signal)
	}
	// all four buy conditions match: 0.3+0.25+0.25+0.2 = 1.0
	if sig.Confidence != 100 {
		t.Fatalf("confidence = %v, want 100", sig.Confidence)
	}
	want := map[string]bool{"MVRV < 1": false, "Fear & Greed < 20": false, "Funding Rate âm": false}
	for _, tr := range sig.Triggers {
		if _, ok := want[tr]; ok {
			want[tr] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("trigger %q missing, got %v", name, sig.Triggers)
		}
	}
}

func TestEvaluateStrongSell(t *testing.T) {
	e := NewEngine()
	sig := e.Evaluate(&models.SignalConditions{
		Asset:       "bitcoin",
		MVRV:        f(2.5),
		FearGreed:   f(85),
		FundingRate: f(0.02),
		RSI:         f(75),
	})
	if sig.Signal != models.SignalStrongSell {
		t.Fatalf("signal = %s, want STRONG_SELL", sig.Signal)
	}
	if sig.Confidence != 100 {
		t.Fatalf("confidence = %v", sig.Confidence)
	}
}

func TestEvaluateHoldEquilibrium(t *testing.T) {
	e := NewEngine()
	sig := e.Evaluate(&models.SignalConditions{
		Asset:       "ethereum",
		MVRV:        f(1.2),
		NUPL:        f(0.5),
		RSI:         f(50),
		FearGreed:   f(50),
		VolumeTrend: models.VolumeIncreasing,
	})
	if sig.Signal != models.SignalHold {
		t.Fatalf("signal = %s, want HOLD", sig.Signal)
	}
	if sig.RiskLevel != models.RiskLow {
		t.Fatalf("risk = %s, want LOW", sig.RiskLevel)
	}
}

func TestEvaluateNeutralDefault(t *testing.T) {
	e := NewEngine()
	sig := e.Evaluate(&models.SignalConditions{
		Asset: "bitcoin",
		MVRV:  f(1.8),
		RSI:   f(60),
	})
	if sig.Signal != models.SignalHold || sig.RiskLevel != models.RiskMedium {
		t.Fatalf("default = %s/%s, want HOLD/MEDIUM", sig.Signal, sig.RiskLevel)
	}
	if sig.Reasoning == "" {
		t.Fatalf("neutral rationale missing")
	}
}

func TestExtremeConditionsRaiseRisk(t *testing.T) {
	e := NewEngine()
	sig := e.Evaluate(&models.SignalConditions{
		Asset:       "bitcoin",
		MVRV:        f(0.8),
		FearGreed:   f(5), // extreme fear
		FundingRate: f(-0.01),
		SOPR:        f(1.0),
	})
	if sig.RiskLevel != models.RiskHigh {
		t.Fatalf("risk = %s, want HIGH under extreme fear", sig.RiskLevel)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewEngine()
	c := &models.SignalConditions{
		Asset: "bitcoin", MVRV: f(0.8), FearGreed: f(15),
		FundingRate: f(-0.01), SOPR: f(1.02),
	}
	a := e.Evaluate(c)
	b := e.Evaluate(c)
	if a.Signal != b.Signal || a.Confidence != b.Confidence || len(a.Triggers) != len(b.Triggers) {
		t.Fatalf("evaluation not deterministic: %v vs %v", a, b)
	}
}

func TestEvaluateNilSnapshot(t *testing.T) {
	e := NewEngine()
	sig := e.Evaluate(nil)
	if sig.Signal != models.SignalHold {
		t.Fatalf("nil snapshot must yield HOLD, got %s", sig.Signal)
	}
}
