package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
	"ChainPulse/internal/service/ratelimit"
	"ChainPulse/pkg/cache"
	"ChainPulse/pkg/config"
	"ChainPulse/pkg/logger"
)

func testDeps(t *testing.T) (*ratelimit.Governor, cache.Service, *logger.Logger) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return ratelimit.New(), cache.NewMemoryCache(), log
}

func btc() *models.Asset {
	return &models.Asset{Symbol: "BTC", ExternalID: "bitcoin", Rank: 1, Price: 60000, MarketCap: 1.2e12}
}

func TestMarketCollectCachedSecondCall(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		if r.URL.Query().Get("ids") != "bitcoin" {
			t.Errorf("ids = %q", r.URL.Query().Get("ids"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"bitcoin","symbol":"btc","current_price":61234.5,"market_cap":1200000000000,"total_volume":30000000000,"market_cap_rank":1}]`))
	}))
	defer srv.Close()

	gov, c, log := testDeps(t)
	p := NewMarket(config.ProviderConfig{BaseURL: srv.URL, DayLimit: 100, MinuteLimit: 10, Timeout: 5 * time.Second}, time.Hour, gov, c, log)

	first, err := p.Collect(context.Background(), btc())
	if err != nil {
		t.Fatalf("first collect: %v", err)
	}
	if first.Cached {
		t.Fatal("first collect must not be tagged cached")
	}
	if first.Values["price"] != 61234.5 {
		t.Fatalf("price = %v", first.Values["price"])
	}
	if first.Source != models.SourceAPI {
		t.Fatalf("source = %v", first.Source)
	}

	dayBefore, minBefore := gov.Remaining("coingecko")

	second, err := p.Collect(context.Background(), btc())
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if !second.Cached {
		t.Fatal("second collect must be served from cache")
	}
	if second.Values["price"] != first.Values["price"] || second.Values["market_cap"] != first.Values["market_cap"] {
		t.Fatal("cached values differ from fetched values")
	}
	dayAfter, minAfter := gov.Remaining("coingecko")
	if dayAfter != dayBefore || minAfter != minBefore {
		t.Fatalf("cache hit consumed quota: day %d->%d minute %d->%d", dayBefore, dayAfter, minBefore, minAfter)
	}
	if n := atomic.LoadInt64(&hits); n != 1 {
		t.Fatalf("upstream hit %d times, want 1", n)
	}
	if p.CacheSize() != 1 {
		t.Fatalf("CacheSize = %d, want 1", p.CacheSize())
	}
}

func TestMarketCollectRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"bitcoin","current_price":1,"market_cap":1,"total_volume":1,"market_cap_rank":1}]`))
	}))
	defer srv.Close()

	gov, c, log := testDeps(t)
	p := NewMarket(config.ProviderConfig{BaseURL: srv.URL, DayLimit: 1, MinuteLimit: 1, Timeout: 5 * time.Second}, time.Hour, gov, c, log)

	if _, err := p.Collect(context.Background(), btc()); err != nil {
		t.Fatalf("collect within budget: %v", err)
	}
	// evict so the second call cannot be served from cache
	key := p.metricKey("markets", "bitcoin", repository.Win24h)
	if err := c.Delete(context.Background(), key); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := p.Collect(context.Background(), btc())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestMarketUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	gov, c, log := testDeps(t)
	p := NewMarket(config.ProviderConfig{BaseURL: srv.URL, DayLimit: 10, MinuteLimit: 10, Timeout: 5 * time.Second}, time.Hour, gov, c, log)

	_, err := p.Collect(context.Background(), btc())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestOnChainEstimateOnlyWithoutKey(t *testing.T) {
	gov, c, log := testDeps(t)
	p := NewOnChain(config.ProviderConfig{DayLimit: 10, MinuteLimit: 10, Timeout: time.Second}, time.Hour, 2*time.Hour, 4*time.Hour, gov, c, log)

	if !p.EstimateOnly() {
		t.Fatal("no API key must mean estimate-only")
	}
	_, err := p.Collect(context.Background(), btc())
	if !errors.Is(err, ErrEstimateOnly) {
		t.Fatalf("err = %v, want ErrEstimateOnly", err)
	}

	est := p.Estimate(btc())
	if est.Source != models.SourceFallback {
		t.Fatalf("estimate source = %v", est.Source)
	}
	if est.Values["sopr"] != 1 {
		t.Fatalf("estimated sopr = %v, want 1", est.Values["sopr"])
	}
	if mvrv := est.Values["mvrv"]; mvrv <= 1 || mvrv > 2 {
		t.Fatalf("estimated mvrv = %v, want in (1, 2]", mvrv)
	}
}

func TestOnChainPartialSeriesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/indicators/sopr" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"t":1756684800,"v":1.8}]`))
	}))
	defer srv.Close()

	gov, c, log := testDeps(t)
	p := NewOnChain(config.ProviderConfig{BaseURL: srv.URL, APIKey: "gn-test", DayLimit: 100, MinuteLimit: 100, Timeout: 5 * time.Second}, time.Hour, 2*time.Hour, 4*time.Hour, gov, c, log)

	raw, err := p.Collect(context.Background(), btc())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if _, ok := raw.Values["sopr"]; ok {
		t.Fatal("failed series must be omitted, not zero-filled")
	}
	if raw.Values["mvrv"] != 1.8 {
		t.Fatalf("mvrv = %v", raw.Values["mvrv"])
	}
	if raw.Values["nupl"] != 1.8 {
		t.Fatalf("nupl = %v", raw.Values["nupl"])
	}
}

func TestSentimentParsesStringValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"value":"17","value_classification":"Extreme Fear","timestamp":"1756684800"}]}`))
	}))
	defer srv.Close()

	gov, c, log := testDeps(t)
	p := NewSentiment(config.ProviderConfig{BaseURL: srv.URL, DayLimit: 10, MinuteLimit: 10, Timeout: 5 * time.Second}, time.Hour, gov, c, log)

	raw, err := p.Collect(context.Background(), btc())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if raw.Values["fear_greed"] != 17 {
		t.Fatalf("fear_greed = %v", raw.Values["fear_greed"])
	}
	if raw.Values["social_sentiment"] != 0.17 {
		t.Fatalf("social_sentiment = %v", raw.Values["social_sentiment"])
	}
	if raw.Asset != "market" {
		t.Fatalf("sentiment keyed to %q, want market-wide key", raw.Asset)
	}
	if raw.Meta["classification"] != "Extreme Fear" {
		t.Fatalf("classification = %q", raw.Meta["classification"])
	}
}

func TestDerivativesCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/fapi/v1/premiumIndex":
			if r.URL.Query().Get("symbol") != "BTCUSDT" {
				t.Errorf("symbol = %q", r.URL.Query().Get("symbol"))
			}
			w.Write([]byte(`{"symbol":"BTCUSDT","lastFundingRate":"-0.00012500","markPrice":"60000.10"}`))
		case "/fapi/v1/openInterest":
			w.Write([]byte(`{"symbol":"BTCUSDT","openInterest":"81234.567"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	gov, c, log := testDeps(t)
	p := NewDerivatives(config.ProviderConfig{BaseURL: srv.URL, DayLimit: 10, MinuteLimit: 10, Timeout: 5 * time.Second}, time.Hour, gov, c, log)

	raw, err := p.Collect(context.Background(), btc())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if raw.Values["funding_rate"] != -0.000125 {
		t.Fatalf("funding_rate = %v", raw.Values["funding_rate"])
	}
	if raw.Values["open_interest"] != 81234.567 {
		t.Fatalf("open_interest = %v", raw.Values["open_interest"])
	}
	if raw.Meta["perp_symbol"] != "BTCUSDT" {
		t.Fatalf("perp_symbol = %q", raw.Meta["perp_symbol"])
	}
}

type stubStore struct {
	repository.MetricStore
	snaps []*models.MetricSnapshot
	err   error
}

func (s *stubStore) QueryRange(ctx context.Context, category models.MetricCategory, asset string, from, to time.Time, limit int) ([]*models.MetricSnapshot, error) {
	return s.snaps, s.err
}

func priceHistory(n int, step float64) []*models.MetricSnapshot {
	snaps := make([]*models.MetricSnapshot, n)
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := range snaps {
		snaps[i] = &models.MetricSnapshot{
			Asset:     "bitcoin",
			Category:  models.CategoryPrice,
			Values:    map[string]float64{"price": 50000 + float64(i)*step},
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
		}
	}
	return snaps
}

func TestTechnicalComputesIndicators(t *testing.T) {
	gov, c, log := testDeps(t)
	store := &stubStore{snaps: priceHistory(60, 100)} // steadily rising
	p := NewTechnical(config.ProviderConfig{DayLimit: 10, MinuteLimit: 10, Timeout: time.Second}, time.Hour, store, gov, c, log)

	raw, err := p.Collect(context.Background(), btc())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if raw.Source != models.SourceCalculated {
		t.Fatalf("source = %v, want calculated", raw.Source)
	}
	if raw.Values["rsi"] != 100 {
		t.Fatalf("rsi on monotone uptrend = %v, want 100", raw.Values["rsi"])
	}
	if raw.Values["macd"] <= 0 {
		t.Fatalf("macd on uptrend = %v, want > 0", raw.Values["macd"])
	}
	if raw.Values["bb_width"] <= 0 {
		t.Fatalf("bb_width = %v, want > 0", raw.Values["bb_width"])
	}

	// no budget slot may be spent on calculated indicators
	day, _ := gov.Remaining("technical")
	if day != 10 {
		t.Fatalf("technical collect spent quota: remaining day = %d", day)
	}
}

func TestTechnicalInsufficientHistory(t *testing.T) {
	gov, c, log := testDeps(t)
	p := NewTechnical(config.ProviderConfig{DayLimit: 10, MinuteLimit: 10, Timeout: time.Second}, time.Hour, &stubStore{snaps: priceHistory(5, 10)}, gov, c, log)

	_, err := p.Collect(context.Background(), btc())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}

	est := p.Estimate(btc())
	if est.Values["rsi"] != 50 {
		t.Fatalf("neutral rsi = %v", est.Values["rsi"])
	}
	if est.Source != models.SourceFallback {
		t.Fatalf("estimate source = %s, want %s", est.Source, models.SourceFallback)
	}
}

func TestEstimateQualityBand(t *testing.T) {
	top := btc()
	if q := EstimateQuality(top); q < estimateQualityLow || q > estimateQualityHigh {
		t.Fatalf("quality %v outside [%d, %d]", q, estimateQualityLow, estimateQualityHigh)
	}
	longTail := &models.Asset{Symbol: "XYZ", ExternalID: "xyz", Rank: 250, MarketCap: 1e7}
	if q := EstimateQuality(longTail); q >= EstimateQuality(top) {
		t.Fatalf("long-tail quality %v must sit below top-rank %v", q, EstimateQuality(top))
	}
	if q := EstimateQuality(nil); q != estimateQualityLow {
		t.Fatalf("nil asset quality = %v, want floor", q)
	}
}
