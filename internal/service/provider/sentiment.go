package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
	"ChainPulse/internal/service/ratelimit"
	"ChainPulse/pkg/cache"
	"ChainPulse/pkg/config"
	xhttp "ChainPulse/pkg/http"
	"ChainPulse/pkg/logger"
)

// SentimentProvider pulls the composite Fear & Greed index from an
// Alternative.me-style endpoint. Market-wide, not per asset; the same
// reading is attached to every tracked asset. Keyless.
type SentimentProvider struct {
	base
	ttl time.Duration
}

// NewSentiment creates a sentiment adapter.
func NewSentiment(cfg config.ProviderConfig, ttl time.Duration, gov *ratelimit.Governor, c cache.Service, log *logger.Logger) *SentimentProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.alternative.me"
	}
	gov.Configure("alternative", ratelimit.Quota{DayLimit: cfg.DayLimit, MinuteLimit: cfg.MinuteLimit})
	return &SentimentProvider{
		base: newBase("alternative", models.CategorySentiment, gov, c, log, baseURL, cfg.APIKey, false, cfg.Timeout),
		ttl:  ttl,
	}
}

// the API returns the numeric value as a JSON string
type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

func (p *SentimentProvider) Collect(ctx context.Context, asset *models.Asset) (*models.RawMetric, error) {
	// one market-wide reading shared across assets: key by "market"
	return p.fetchSeries(ctx, "fng", "market", repository.Win24h, p.ttl,
		func(ctx context.Context) (map[string]float64, map[string]string, error) {
			var resp fngResponse
			err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
				Method:      xhttp.MethodGet,
				URL:         p.baseURL + "/fng/",
				QueryParams: map[string][]string{"limit": {"1"}},
			}, &resp)
			if err != nil {
				return nil, nil, err
			}
			if len(resp.Data) == 0 {
				return nil, nil, fmt.Errorf("empty fng response")
			}
			v, err := strconv.ParseFloat(resp.Data[0].Value, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("parse fng value %q: %w", resp.Data[0].Value, err)
			}
			return map[string]float64{
					"fear_greed":       v,
					"social_sentiment": v / 100,
				}, map[string]string{
					"classification": resp.Data[0].Classification,
				}, nil
		})
}

// Estimate returns a neutral reading when the index is unreachable.
func (p *SentimentProvider) Estimate(asset *models.Asset) *models.RawMetric {
	return p.estimateRaw("market", map[string]float64{
		"fear_greed":       50,
		"social_sentiment": 0.5,
	})
}
