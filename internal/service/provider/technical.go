package provider

import (
	"context"
	"fmt"
	"math"
	"time"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
	"ChainPulse/internal/service/ratelimit"
	"ChainPulse/pkg/cache"
	"ChainPulse/pkg/config"
	"ChainPulse/pkg/logger"
)

const (
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignalSpan = 9
	bbPeriod       = 20
	// minimum closes required before indicators are computed
	minCloses = macdSlow + macdSignalSpan
)

// TechnicalProvider derives RSI, MACD and Bollinger band width from
// stored price history. It never touches the network: no API key, no
// quota spend, only the shared cache TTL guards recomputation.
type TechnicalProvider struct {
	base
	store repository.MetricStore
	ttl   time.Duration
}

// NewTechnical creates a calculated-indicator adapter over the metric store.
func NewTechnical(cfg config.ProviderConfig, ttl time.Duration, store repository.MetricStore, gov *ratelimit.Governor, c cache.Service, log *logger.Logger) *TechnicalProvider {
	// quota is configured so Remaining() reporting stays uniform across
	// providers, but Collect never draws from it
	gov.Configure("technical", ratelimit.Quota{DayLimit: cfg.DayLimit, MinuteLimit: cfg.MinuteLimit})
	return &TechnicalProvider{
		base:  newBase("technical", models.CategoryTechnical, gov, c, log, "", "", false, cfg.Timeout),
		store: store,
		ttl:   ttl,
	}
}

func (p *TechnicalProvider) Collect(ctx context.Context, asset *models.Asset) (*models.RawMetric, error) {
	key := p.metricKey("indicators", asset.ExternalID, repository.Win24h)

	var cached string
	if err := p.cache.Get(ctx, key, &cached); err == nil {
		if raw, ok := decodeCachedRaw(cached); ok {
			return raw, nil
		}
		_ = p.cache.Delete(ctx, key)
	}

	closes, err := p.closes(ctx, asset.ExternalID)
	if err != nil {
		return nil, err
	}
	if len(closes) < minCloses {
		return nil, fmt.Errorf("%w: technical %s: %d closes, need %d", ErrUpstream, asset.ExternalID, len(closes), minCloses)
	}

	macdLine, signalLine := macd(closes)
	values := map[string]float64{
		"rsi":         rsi(closes, rsiPeriod),
		"macd":        macdLine,
		"macd_signal": signalLine,
		"bb_width":    bollingerWidth(closes, bbPeriod),
	}

	raw := &models.RawMetric{
		Provider:  p.name,
		Asset:     asset.ExternalID,
		Category:  p.category,
		Values:    values,
		Meta:      map[string]string{"closes": fmt.Sprintf("%d", len(closes))},
		Source:    models.SourceCalculated,
		Timestamp: time.Now(),
	}
	p.cacheRaw(ctx, key, raw, p.ttl)
	return raw, nil
}

// Estimate returns neutral indicator values when no history exists yet.
// The result keeps fallback provenance so it is never confused with
// genuinely computed indicators.
func (p *TechnicalProvider) Estimate(asset *models.Asset) *models.RawMetric {
	return p.estimateRaw(asset.ExternalID, map[string]float64{
		"rsi":         50,
		"macd":        0,
		"macd_signal": 0,
		"bb_width":    0.04,
	})
}

// closes loads the recent price snapshots oldest-first.
func (p *TechnicalProvider) closes(ctx context.Context, asset string) ([]float64, error) {
	to := time.Now()
	from := to.Add(-30 * 24 * time.Hour)
	snaps, err := p.store.QueryRange(ctx, models.CategoryPrice, asset, from, to, 200)
	if err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	}
	closes := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		if v, ok := s.Values["price"]; ok && v > 0 {
			closes = append(closes, v)
		}
	}
	return closes, nil
}

// rsi is Wilder's relative strength index over the trailing period.
func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	var gain, loss float64
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// macd returns the MACD line and its signal line.
func macd(closes []float64) (line, signal float64) {
	fast := emaSeries(closes, macdFast)
	slow := emaSeries(closes, macdSlow)
	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = fast[i] - slow[i]
	}
	sig := emaSeries(diff, macdSignalSpan)
	return diff[len(diff)-1], sig[len(sig)-1]
}

// emaSeries computes an exponential moving average over the whole series.
func emaSeries(vals []float64, span int) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out
	}
	k := 2.0 / float64(span+1)
	out[0] = vals[0]
	for i := 1; i < len(vals); i++ {
		out[i] = vals[i]*k + out[i-1]*(1-k)
	}
	return out
}

// bollingerWidth is (upper-lower)/middle for 2-sigma bands.
func bollingerWidth(closes []float64, period int) float64 {
	if len(closes) < period {
		period = len(closes)
	}
	window := closes[len(closes)-period:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)
	if mean == 0 {
		return 0
	}
	var varSum float64
	for _, v := range window {
		varSum += (v - mean) * (v - mean)
	}
	std := math.Sqrt(varSum / float64(period))
	return 4 * std / mean
}
