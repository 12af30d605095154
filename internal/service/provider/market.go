package provider

import (
	"context"
	"fmt"
	"time"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
	"ChainPulse/internal/service/ratelimit"
	"ChainPulse/pkg/cache"
	"ChainPulse/pkg/config"
	xhttp "ChainPulse/pkg/http"
	"ChainPulse/pkg/logger"
)

// MarketProvider pulls spot price, market cap and volume from a
// CoinGecko-style markets endpoint. The free tier is keyless, so this
// adapter never enters estimate-only mode.
type MarketProvider struct {
	base
	ttl time.Duration
}

// NewMarket creates a market data adapter.
func NewMarket(cfg config.ProviderConfig, ttl time.Duration, gov *ratelimit.Governor, c cache.Service, log *logger.Logger) *MarketProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	gov.Configure("coingecko", ratelimit.Quota{DayLimit: cfg.DayLimit, MinuteLimit: cfg.MinuteLimit})
	return &MarketProvider{
		base: newBase("coingecko", models.CategoryPrice, gov, c, log, baseURL, cfg.APIKey, false, cfg.Timeout),
		ttl:  ttl,
	}
}

type geckoMarketRow struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"symbol"`
	CurrentPrice float64 `json:"current_price"`
	MarketCap    float64 `json:"market_cap"`
	TotalVolume  float64 `json:"total_volume"`
	Rank         int     `json:"market_cap_rank"`
}

func (p *MarketProvider) Collect(ctx context.Context, asset *models.Asset) (*models.RawMetric, error) {
	return p.fetchSeries(ctx, "markets", asset.ExternalID, repository.Win24h, p.ttl,
		func(ctx context.Context) (map[string]float64, map[string]string, error) {
			var rows []geckoMarketRow
			err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
				Method: xhttp.MethodGet,
				URL:    p.baseURL + "/coins/markets",
				QueryParams: map[string][]string{
					"vs_currency": {"usd"},
					"ids":         {asset.ExternalID},
				},
			}, &rows)
			if err != nil {
				return nil, nil, err
			}
			if len(rows) == 0 {
				return nil, nil, fmt.Errorf("no market row for %s", asset.ExternalID)
			}
			r := rows[0]
			return map[string]float64{
					"price":      r.CurrentPrice,
					"market_cap": r.MarketCap,
					"volume":     r.TotalVolume,
					"rank":       float64(r.Rank),
				}, map[string]string{
					"id":     r.ID,
					"symbol": r.Symbol,
				}, nil
		})
}

// Estimate replays the last known fundamentals. Useful only when the
// registry was primed by an earlier live pass or the ticker stream.
func (p *MarketProvider) Estimate(asset *models.Asset) *models.RawMetric {
	return p.estimateRaw(asset.ExternalID, map[string]float64{
		"price":      asset.Price,
		"market_cap": asset.MarketCap,
		"volume":     asset.MarketCap * 0.05, // long-run turnover heuristic
		"rank":       float64(asset.Rank),
	})
}
