package anomaly

import (
	"math"
	"time"

	"ChainPulse/internal/domain/models"
)

const (
	// ensemble decision threshold
	AnomalyThreshold = 0.7

	minStatisticalPoints = 30
	patternWindow        = 10
	patternDeviation     = 0.5
	correlationMin       = 0.7
	correlationDeviation = 0.3

	weightStatistical = 0.4
	weightPattern     = 0.3
	weightCorrelation = 0.3

	// fixed increment per systemic issue found
	systemicIncrement = 0.25
)

// correlatedWith names metric pairs known to move together; the
// correlation detector only fires for these.
var correlatedWith = map[string]string{
	"price":  "volume",
	"volume": "price",
	"mvrv":   "nupl",
	"nupl":   "mvrv",
}

type detectorResult struct {
	ran       bool
	isAnomaly bool
	score     float64
	diag      map[string]float64
}

// Detector runs the statistical/pattern/correlation ensemble against the
// rolling history. Detection never fails on missing data; it returns an
// abstaining low-confidence result instead.
type Detector struct {
	history *History
}

// NewDetector creates a detector over the given history store.
func NewDetector(h *History) *Detector {
	return &Detector{history: h}
}

// History exposes the rolling store so the collection pipeline can feed it.
func (d *Detector) History() *History { return d.history }

// Detect evaluates one metric value against its rolling baseline.
func (d *Detector) Detect(asset, metric string, value float64) models.AnomalyDetectionResult {
	series := d.history.Series(asset, metric)

	stat := d.statistical(series, value)
	pat := d.pattern(series, value)
	corr := d.correlation(asset, metric, series, value)

	type weighted struct {
		r      detectorResult
		weight float64
		typ    models.AnomalyType
	}
	parts := []weighted{
		{stat, weightStatistical, models.AnomalyStatistical},
		{pat, weightPattern, models.AnomalyPattern},
		{corr, weightCorrelation, models.AnomalyCorrelation},
	}

	var sum, totalWeight, ranWeight float64
	best := models.AnomalyStatistical
	bestScore := -1.0
	diag := make(map[string]float64)
	for _, p := range parts {
		totalWeight += p.weight
		if !p.r.ran {
			continue
		}
		ranWeight += p.weight
		sum += p.r.score * p.weight
		if p.r.score > bestScore {
			bestScore = p.r.score
			best = p.typ
		}
		for k, v := range p.r.diag {
			diag[k] = v
		}
	}

	var final float64
	if ranWeight > 0 {
		final = sum / ranWeight
	}
	return models.AnomalyDetectionResult{
		Asset:      asset,
		Metric:     metric,
		IsAnomaly:  final > AnomalyThreshold,
		Score:      final,
		Type:       best,
		Confidence: ranWeight / totalWeight,
		Severity:   SeverityFor(final),
		Timestamp:  time.Now(),
		Metrics:    diag,
	}
}

// DetectSystemic runs the ensemble per metric then looks for asset-level
// signatures: most metrics anomalous at once, any high/critical single
// anomaly, or a simultaneous price+volume anomaly (possible manipulation).
func (d *Detector) DetectSystemic(asset string, metrics map[string]float64) models.SystemicAnomalyResult {
	per := make([]models.AnomalyDetectionResult, 0, len(metrics))
	var sumScores, maxScore float64
	var anomalous int
	priceAnom, volumeAnom := false, false
	for name, v := range metrics {
		r := d.Detect(asset, name, v)
		per = append(per, r)
		sumScores += r.Score
		if r.Score > maxScore {
			maxScore = r.Score
		}
		if r.IsAnomaly {
			anomalous++
			switch name {
			case "price":
				priceAnom = true
			case "volume":
				volumeAnom = true
			}
		}
	}

	var issues []string
	var systemicSeverity float64
	if len(per) > 0 && anomalous*2 > len(per) {
		issues = append(issues, "majority of tracked metrics anomalous")
		systemicSeverity += systemicIncrement
	}
	for _, r := range per {
		if r.Severity == models.SeverityHigh || r.Severity == models.SeverityCritical {
			issues = append(issues, "high severity anomaly in "+r.Metric)
			systemicSeverity += systemicIncrement
			break
		}
	}
	if priceAnom && volumeAnom {
		issues = append(issues, "simultaneous price and volume anomaly")
		systemicSeverity += systemicIncrement
	}

	var mean float64
	if len(per) > 0 {
		mean = sumScores / float64(len(per))
	}
	score := 0.6*mean + 0.4*math.Max(maxScore, systemicSeverity)
	if score > 1 {
		score = 1
	}
	return models.SystemicAnomalyResult{
		Asset:     asset,
		Score:     score,
		IsAnomaly: score > AnomalyThreshold,
		Severity:  SeverityFor(score),
		Issues:    issues,
		PerMetric: per,
		Timestamp: time.Now(),
	}
}

// statistical flags values more than 3 sigma from the rolling mean, or
// with a two-tailed tail probability under 0.001. Abstains below 30
// history points.
func (d *Detector) statistical(series []float64, value float64) detectorResult {
	if len(series) < minStatisticalPoints {
		return detectorResult{ran: false}
	}
	mean, std := meanStd(series)
	if std == 0 {
		return detectorResult{ran: false}
	}
	z := (value - mean) / std
	tail := math.Erfc(math.Abs(z) / math.Sqrt2)
	score := math.Min(math.Abs(z)/5, 1)
	return detectorResult{
		ran:       true,
		isAnomaly: math.Abs(z) > 3 || tail < 0.001,
		score:     score,
		diag:      map[string]float64{"z_score": z, "tail_prob": tail, "mean": mean, "std": std},
	}
}

// pattern flags large relative deviation from a short moving average.
func (d *Detector) pattern(series []float64, value float64) detectorResult {
	if len(series) == 0 {
		return detectorResult{ran: false}
	}
	w := patternWindow
	if len(series) < w {
		w = len(series)
	}
	ma := mean(series[len(series)-w:])
	if ma == 0 {
		return detectorResult{ran: false}
	}
	dev := math.Abs(value-ma) / math.Abs(ma)
	return detectorResult{
		ran:       true,
		isAnomaly: dev > patternDeviation,
		score:     math.Min(dev, 1),
		diag:      map[string]float64{"ma": ma, "ma_deviation": dev},
	}
}

// correlation projects the expected value from a strongly correlated
// series and flags a large divergence between actual and expected.
func (d *Detector) correlation(asset, metric string, series []float64, value float64) detectorResult {
	peer, ok := correlatedWith[metric]
	if !ok {
		return detectorResult{ran: false}
	}
	peerSeries := d.history.Series(asset, peer)
	n := len(series)
	if len(peerSeries) < n {
		n = len(peerSeries)
	}
	if n < minStatisticalPoints {
		return detectorResult{ran: false}
	}
	a := series[len(series)-n:]
	b := peerSeries[len(peerSeries)-n:]

	rho := pearson(a, b)
	if math.Abs(rho) < correlationMin {
		return detectorResult{ran: false}
	}
	meanA, stdA := meanStd(a)
	meanB, stdB := meanStd(b)
	if stdB == 0 {
		return detectorResult{ran: false}
	}
	bCur := b[len(b)-1]
	expected := meanA + rho*(stdA/stdB)*(bCur-meanB)
	denom := math.Abs(expected)
	if denom == 0 {
		denom = 1
	}
	dev := math.Abs(value-expected) / denom
	return detectorResult{
		ran:       true,
		isAnomaly: dev > correlationDeviation,
		score:     math.Min(dev, 1),
		diag:      map[string]float64{"rho": rho, "expected": expected, "corr_deviation": dev},
	}
}

// SeverityFor buckets an anomaly score.
func SeverityFor(score float64) models.Severity {
	switch {
	case score < 0.3:
		return models.SeverityLow
	case score < 0.6:
		return models.SeverityMedium
	case score < 0.8:
		return models.SeverityHigh
	default:
		return models.SeverityCritical
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func meanStd(xs []float64) (float64, float64) {
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	if len(xs) < 2 {
		return m, 0
	}
	return m, math.Sqrt(ss / float64(len(xs)-1))
}

func pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	ma, sa := meanStd(a)
	mb, sb := meanStd(b)
	if sa == 0 || sb == 0 {
		return 0
	}
	var s float64
	for i := range a {
		s += (a[i] - ma) * (b[i] - mb)
	}
	return s / (float64(len(a)-1) * sa * sb)
}
