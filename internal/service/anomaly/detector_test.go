package anomaly

import (
	"math"
	"testing"
	"time"
)

func feed(h *History, asset, metric string, values []float64) {
	ts := time.Now().Add(-time.Duration(len(values)) * time.Minute)
	for i, v := range values {
		h.Append(asset, metric, v, ts.Add(time.Duration(i)*time.Minute))
	}
}

func steady(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestRingEvictsOldestFirst(t *testing.T) {
	h := NewHistory()
	for i := 0; i < HistoryCapacity+10; i++ {
		h.Append("bitcoin", "price", float64(i), time.Now())
	}
	if got := h.Len("bitcoin", "price"); got != HistoryCapacity {
		t.Fatalf("len = %d, want %d", got, HistoryCapacity)
	}
	s := h.Series("bitcoin", "price")
	if s[0] != 10 {
		t.Fatalf("oldest surviving point = %v, want 10", s[0])
	}
	if s[len(s)-1] != float64(HistoryCapacity+9) {
		t.Fatalf("newest point = %v", s[len(s)-1])
	}
}

func TestStatisticalAbstainsOnShortHistory(t *testing.T) {
	d := NewDetector(NewHistory())
	feed(d.History(), "bitcoin", "mvrv", steady(10, 1.2))

	res := d.Detect("bitcoin", "mvrv", 100)
	// pattern still runs, statistical and correlation abstain
	if res.Confidence >= 1 {
		t.Fatalf("confidence should reflect abstaining detectors, got %v", res.Confidence)
	}
	if math.Abs(res.Confidence-0.3) > 1e-9 {
		t.Fatalf("only pattern (weight 0.3) ran, confidence = %v", res.Confidence)
	}
}

func TestDetectFlagsSpikeAgainstStableBaseline(t *testing.T) {
	d := NewDetector(NewHistory())
	base := make([]float64, 60)
	for i := range base {
		// mild noise around 100
		base[i] = 100 + math.Sin(float64(i))*0.5
	}
	feed(d.History(), "bitcoin", "price", base)

	res := d.Detect("bitcoin", "price", 400)
	if !res.IsAnomaly {
		t.Fatalf("4x spike must be anomalous, score=%v", res.Score)
	}
	if res.Score < 0 || res.Score > 1 {
		t.Fatalf("score out of [0,1]: %v", res.Score)
	}
	if res.Severity != SeverityFor(res.Score) {
		t.Fatalf("severity mismatch")
	}
}

func TestDetectQuietValueNotAnomalous(t *testing.T) {
	d := NewDetector(NewHistory())
	base := make([]float64, 60)
	for i := range base {
		base[i] = 100 + math.Sin(float64(i))
	}
	feed(d.History(), "bitcoin", "price", base)

	res := d.Detect("bitcoin", "price", 100.5)
	if res.IsAnomaly {
		t.Fatalf("in-baseline value flagged, score=%v", res.Score)
	}
}

// Ensemble bound: combined score stays in [0,1] and the anomaly flag is
// exactly score > 0.7.
func TestEnsembleBoundAndThreshold(t *testing.T) {
	d := NewDetector(NewHistory())
	feed(d.History(), "eth", "price", steady(60, 1000))

	for _, v := range []float64{500, 900, 1000, 1100, 2000, 10000} {
		res := d.Detect("eth", "price", v)
		if res.Score < 0 || res.Score > 1 {
			t.Fatalf("value %v: score %v out of [0,1]", v, res.Score)
		}
		if res.IsAnomaly != (res.Score > AnomalyThreshold) {
			t.Fatalf("value %v: isAnomaly=%v inconsistent with score %v", v, res.IsAnomaly, res.Score)
		}
	}
}

func TestSeverityBuckets(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.1, "low"}, {0.29, "low"}, {0.3, "medium"}, {0.59, "medium"},
		{0.6, "high"}, {0.79, "high"}, {0.8, "critical"}, {1, "critical"},
	}
	for _, c := range cases {
		if got := string(SeverityFor(c.score)); got != c.want {
			t.Fatalf("severity(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestSystemicPriceVolumeSignature(t *testing.T) {
	d := NewDetector(NewHistory())
	feed(d.History(), "bitcoin", "price", steady(60, 100))
	feed(d.History(), "bitcoin", "volume", steady(60, 1e9))
	feed(d.History(), "bitcoin", "mvrv", steady(60, 1.2))

	res := d.DetectSystemic("bitcoin", map[string]float64{
		"price":  500,  // 5x spike
		"volume": 8e9,  // 8x spike
		"mvrv":   1.21, // quiet
	})
	found := false
	for _, issue := range res.Issues {
		if issue == "simultaneous price and volume anomaly" {
			found = true
		}
	}
	if !found {
		t.Fatalf("price+volume signature not reported, issues=%v", res.Issues)
	}
	if res.Score < 0 || res.Score > 1 {
		t.Fatalf("systemic score out of bounds: %v", res.Score)
	}
}

func TestCorrelationDetectorNeedsStrongRho(t *testing.T) {
	d := NewDetector(NewHistory())
	// price and volume perfectly correlated
	for i := 0; i < 60; i++ {
		v := 100 + float64(i)
		d.History().Append("sol", "price", v, time.Now())
		d.History().Append("sol", "volume", v*10, time.Now())
	}
	res := d.Detect("sol", "price", 400)
	if _, ok := res.Metrics["rho"]; !ok {
		t.Fatalf("correlation detector should have run, diag=%v", res.Metrics)
	}
}
