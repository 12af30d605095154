package provider

import (
	"context"
	"strconv"
	"strings"
	"time"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
	"ChainPulse/internal/service/ratelimit"
	"ChainPulse/pkg/cache"
	"ChainPulse/pkg/config"
	xhttp "ChainPulse/pkg/http"
	"ChainPulse/pkg/logger"
)

// DerivativesProvider pulls perpetual funding rate and open interest
// from an exchange futures API. Keyless for public market data.
type DerivativesProvider struct {
	base
	ttl time.Duration
}

// NewDerivatives creates a derivatives adapter.
func NewDerivatives(cfg config.ProviderConfig, ttl time.Duration, gov *ratelimit.Governor, c cache.Service, log *logger.Logger) *DerivativesProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://fapi.binance.com"
	}
	gov.Configure("binance-futures", ratelimit.Quota{DayLimit: cfg.DayLimit, MinuteLimit: cfg.MinuteLimit})
	return &DerivativesProvider{
		base: newBase("binance-futures", models.CategoryDerivatives, gov, c, log, baseURL, cfg.APIKey, false, cfg.Timeout),
		ttl:  ttl,
	}
}

// funding and open interest arrive as JSON strings
type premiumIndexResponse struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
	MarkPrice       string `json:"markPrice"`
}

type openInterestResponse struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
}

func (p *DerivativesProvider) Collect(ctx context.Context, asset *models.Asset) (*models.RawMetric, error) {
	symbol := perpSymbol(asset)
	return p.fetchSeries(ctx, "funding", asset.ExternalID, repository.Win24h, p.ttl,
		func(ctx context.Context) (map[string]float64, map[string]string, error) {
			var prem premiumIndexResponse
			err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
				Method:      xhttp.MethodGet,
				URL:         p.baseURL + "/fapi/v1/premiumIndex",
				QueryParams: map[string][]string{"symbol": {symbol}},
			}, &prem)
			if err != nil {
				return nil, nil, err
			}
			funding, err := strconv.ParseFloat(prem.LastFundingRate, 64)
			if err != nil {
				return nil, nil, err
			}

			values := map[string]float64{"funding_rate": funding}
			meta := map[string]string{"perp_symbol": prem.Symbol}

			// open interest is best-effort: funding alone is a usable payload
			var oi openInterestResponse
			if err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
				Method:      xhttp.MethodGet,
				URL:         p.baseURL + "/fapi/v1/openInterest",
				QueryParams: map[string][]string{"symbol": {symbol}},
			}, &oi); err == nil {
				if v, perr := strconv.ParseFloat(oi.OpenInterest, 64); perr == nil {
					values["open_interest"] = v
				}
			}
			return values, meta, nil
		})
}

// Estimate assumes balanced positioning: zero funding, open interest as
// a small share of market cap.
func (p *DerivativesProvider) Estimate(asset *models.Asset) *models.RawMetric {
	return p.estimateRaw(asset.ExternalID, map[string]float64{
		"funding_rate":  0,
		"open_interest": asset.MarketCap * 0.02,
	})
}

func perpSymbol(a *models.Asset) string {
	return strings.ToUpper(a.Symbol) + "USDT"
}
