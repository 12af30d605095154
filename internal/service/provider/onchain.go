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
	xhttp "ChainPulse/pkg/http"
	"ChainPulse/pkg/logger"
)

// glassnode metric endpoints with their cache TTL classes. Valuation
// ratios are structural (12h); SOPR is a daily series (6h); address
// activity is historical (24h).
type onchainSeries struct {
	field    string
	endpoint string
	window   repository.Window
}

// OnChainProvider pulls valuation and holder metrics from a
// Glassnode-style API. Requires an API key; without one every collect
// falls back to estimation.
type OnChainProvider struct {
	base
	seriesTTL     time.Duration
	structuralTTL time.Duration
	historicalTTL time.Duration
}

// NewOnChain creates an on-chain metrics adapter.
func NewOnChain(cfg config.ProviderConfig, seriesTTL, structuralTTL, historicalTTL time.Duration, gov *ratelimit.Governor, c cache.Service, log *logger.Logger) *OnChainProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.glassnode.com/v1/metrics"
	}
	gov.Configure("glassnode", ratelimit.Quota{DayLimit: cfg.DayLimit, MinuteLimit: cfg.MinuteLimit})
	return &OnChainProvider{
		base:          newBase("glassnode", models.CategoryOnChain, gov, c, log, baseURL, cfg.APIKey, true, cfg.Timeout),
		seriesTTL:     seriesTTL,
		structuralTTL: structuralTTL,
		historicalTTL: historicalTTL,
	}
}

type glassnodePoint struct {
	T int64   `json:"t"`
	V float64 `json:"v"`
}

func (p *OnChainProvider) series() []onchainSeries {
	return []onchainSeries{
		{"mvrv", "/market/mvrv", repository.Win7d},
		{"nupl", "/indicators/net_unrealized_profit_loss", repository.Win7d},
		{"sopr", "/indicators/sopr", repository.Win24h},
		{"active_addresses", "/addresses/active_count", repository.Win30d},
	}
}

func (p *OnChainProvider) ttlFor(w repository.Window) time.Duration {
	switch w {
	case repository.Win30d:
		return p.historicalTTL
	case repository.Win7d:
		return p.structuralTTL
	default:
		return p.seriesTTL
	}
}

// Collect fetches each on-chain series independently; one series
// failing never discards the others. Only a fully empty result is an
// error.
func (p *OnChainProvider) Collect(ctx context.Context, asset *models.Asset) (*models.RawMetric, error) {
	merged := &models.RawMetric{
		Provider:  p.name,
		Asset:     asset.ExternalID,
		Category:  p.category,
		Values:    make(map[string]float64),
		Meta:      make(map[string]string),
		Source:    models.SourceAPI,
		Timestamp: time.Now(),
	}
	allCached := true
	var lastErr error

	for _, s := range p.series() {
		raw, err := p.fetchOne(ctx, s, asset)
		if err != nil {
			lastErr = err
			p.log.Warn("onchain series failed",
				logger.String("metric", s.field),
				logger.String("asset", asset.ExternalID),
				logger.Error(err))
			continue
		}
		for k, v := range raw.Values {
			merged.Values[k] = v
		}
		for k, v := range raw.Meta {
			merged.Meta[k] = v
		}
		if !raw.Cached {
			allCached = false
		}
	}

	if len(merged.Values) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: no on-chain series for %s", ErrUpstream, asset.ExternalID)
	}
	merged.Cached = allCached
	return merged, nil
}

func (p *OnChainProvider) fetchOne(ctx context.Context, s onchainSeries, asset *models.Asset) (*models.RawMetric, error) {
	return p.fetchSeries(ctx, s.field, asset.ExternalID, s.window, p.ttlFor(s.window),
		func(ctx context.Context) (map[string]float64, map[string]string, error) {
			var pts []glassnodePoint
			err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
				Method: xhttp.MethodGet,
				URL:    p.baseURL + s.endpoint,
				QueryParams: map[string][]string{
					"a":       {assetTicker(asset)},
					"api_key": {p.apiKey},
					"s":       {fmt.Sprintf("%d", time.Now().Add(-s.window.Duration()).Unix())},
				},
			}, &pts)
			if err != nil {
				return nil, nil, err
			}
			if len(pts) == 0 {
				return nil, nil, fmt.Errorf("empty series %s", s.endpoint)
			}
			last := pts[len(pts)-1]
			return map[string]float64{s.field: last.V},
				map[string]string{"endpoint_" + s.field: s.endpoint}, nil
		})
}

// Estimate derives placeholder on-chain ratios from market structure.
// A pure function of fundamentals; clearly marked fallback provenance.
func (p *OnChainProvider) Estimate(asset *models.Asset) *models.RawMetric {
	// assume realized cap roughly 80% of market cap for a mature asset,
	// less for long-tail assets
	realizedShare := 0.8
	if asset.Rank > 5 {
		realizedShare = 0.7
	}
	mvrv := 1.0
	if realizedShare > 0 {
		mvrv = 1 / realizedShare
	}
	nupl := 0.0
	if mvrv > 0 {
		nupl = 1 - 1/mvrv
	}
	// SOPR hovers near break-even when nothing is known
	sopr := 1.0
	// active addresses scale roughly with the square root of market cap
	active := 0.0
	if asset.MarketCap > 0 {
		active = math.Sqrt(asset.MarketCap)
	}
	return p.estimateRaw(asset.ExternalID, map[string]float64{
		"mvrv":             mvrv,
		"nupl":             nupl,
		"sopr":             sopr,
		"active_addresses": active,
	})
}

func assetTicker(a *models.Asset) string {
	if a.Symbol != "" {
		return a.Symbol
	}
	return a.ExternalID
}
