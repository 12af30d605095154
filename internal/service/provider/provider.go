package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
	"ChainPulse/internal/service/ratelimit"
	"ChainPulse/pkg/cache"
	xhttp "ChainPulse/pkg/http"
	"ChainPulse/pkg/logger"
)

var (
	// ErrRateLimited marks a budget denial. Transient: callers defer to
	// the next scheduled pass, they never busy-retry.
	ErrRateLimited = errors.New("provider: rate limited")

	// ErrInFlight marks a duplicate fetch collapsed onto one in-flight
	// request for the same key.
	ErrInFlight = errors.New("provider: fetch already in flight")

	// ErrEstimateOnly marks a provider with no API key configured.
	ErrEstimateOnly = errors.New("provider: estimate-only mode")

	// ErrUpstream wraps network/HTTP/parse failures.
	ErrUpstream = errors.New("provider: upstream failure")
)

// MetricProvider is the uniform {fetch, cache, quota, estimate} contract
// every adapter satisfies.
type MetricProvider interface {
	Name() string
	Category() models.MetricCategory

	// Collect fetches the full metric set for one asset, consulting
	// cache and quota first. Errors are typed: ErrRateLimited and
	// ErrInFlight are transient, ErrEstimateOnly and ErrUpstream mean
	// the caller should fall back to Estimate.
	Collect(ctx context.Context, asset *models.Asset) (*models.RawMetric, error)

	// Estimate produces a best-effort snapshot from already-known
	// fundamentals. Markedly lower quality than live data, never
	// indistinguishable from it.
	Estimate(asset *models.Asset) *models.RawMetric

	// EstimateOnly reports whether the adapter has no usable API key.
	EstimateOnly() bool

	// CacheSize reports how many distinct keys this adapter has cached.
	CacheSize() int
}

// Estimate quality band: fallback data scores well below the >=70
// threshold live validated data clears.
const (
	estimateQualityLow  = 55
	estimateQualityHigh = 65
)

// base carries the shared fetch path: cache -> single-flight lock ->
// quota -> network -> cache store.
type base struct {
	name        string
	category    models.MetricCategory
	gov         *ratelimit.Governor
	cache       cache.Service
	client      *xhttp.Client
	log         *logger.Logger
	apiKey      string
	baseURL     string
	requiresKey bool

	mu       sync.Mutex
	cacheKey map[string]struct{}
}

func newBase(name string, category models.MetricCategory, gov *ratelimit.Governor, c cache.Service, log *logger.Logger, baseURL, apiKey string, requiresKey bool, timeout time.Duration) base {
	return base{
		name:        name,
		category:    category,
		gov:         gov,
		cache:       c,
		client:      xhttp.NewClient(xhttp.WithTimeout(timeout)),
		log:         log,
		apiKey:      apiKey,
		baseURL:     baseURL,
		requiresKey: requiresKey,
		cacheKey:    make(map[string]struct{}),
	}
}

func (b *base) Name() string                    { return b.name }
func (b *base) Category() models.MetricCategory { return b.category }

// EstimateOnly reports whether the adapter cannot fetch live data.
// Keyless public endpoints never enter estimate-only mode.
func (b *base) EstimateOnly() bool { return b.requiresKey && b.apiKey == "" }

func (b *base) CacheSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cacheKey)
}

// metricKey builds the cache key for one (provider, metric, asset, window).
func (b *base) metricKey(metric, asset string, window repository.Window) string {
	return cache.GenerateKeyWithParams("metric", b.name, metric, asset, string(window))
}

// fetchSeries runs the shared fetch path for one metric series. fetch
// performs the provider-specific network call and returns the payload
// values; the result is cached under key for ttl.
func (b *base) fetchSeries(ctx context.Context, metric, asset string, window repository.Window, ttl time.Duration,
	fetch func(ctx context.Context) (map[string]float64, map[string]string, error)) (*models.RawMetric, error) {

	key := b.metricKey(metric, asset, window)

	// 1. cache: entries within TTL are reused as-is.
	var cached string
	if err := b.cache.Get(ctx, key, &cached); err == nil {
		if raw, ok := decodeCachedRaw(cached); ok {
			return raw, nil
		}
		// corrupt entry: fall through to refetch
		_ = b.cache.Delete(ctx, key)
	}

	if b.EstimateOnly() {
		return nil, ErrEstimateOnly
	}

	// 2. single-flight: same-key concurrent refreshes collapse to one
	// fetch so duplicate quota is never spent.
	lockKey := key + ":lock"
	locked, err := b.cache.TryLock(ctx, lockKey, 30*time.Second)
	if err == nil && !locked {
		return nil, ErrInFlight
	}
	defer func() { _ = b.cache.Unlock(ctx, lockKey) }()

	// 3. quota
	if !b.gov.TryAcquire(b.name) {
		return nil, ErrRateLimited
	}

	// 4. network
	values, meta, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s/%s: %v", ErrUpstream, b.name, metric, asset, err)
	}

	raw := &models.RawMetric{
		Provider:  b.name,
		Asset:     asset,
		Category:  b.category,
		Values:    values,
		Meta:      meta,
		Source:    models.SourceAPI,
		Timestamp: time.Now(),
	}

	b.cacheRaw(ctx, key, raw, ttl)
	return raw, nil
}

// decodeCachedRaw unpacks a cached JSON entry and tags it as served
// from cache.
func decodeCachedRaw(data string) (*models.RawMetric, bool) {
	var raw models.RawMetric
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, false
	}
	raw.Cached = true
	return &raw, true
}

// cacheRaw stores a fresh result and tracks its key for CacheSize.
func (b *base) cacheRaw(ctx context.Context, key string, raw *models.RawMetric, ttl time.Duration) {
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, key, string(data), ttl); err != nil {
		return
	}
	b.mu.Lock()
	b.cacheKey[key] = struct{}{}
	b.mu.Unlock()
}

// estimateRaw tags a computed value set as fallback provenance.
func (b *base) estimateRaw(asset string, values map[string]float64) *models.RawMetric {
	return &models.RawMetric{
		Provider:  b.name,
		Asset:     asset,
		Category:  b.category,
		Values:    values,
		Source:    models.SourceFallback,
		Timestamp: time.Now(),
	}
}

// EstimateQuality returns the quality score band for fallback data,
// nudged by asset rank: top-ranked assets have better-known fundamentals.
func EstimateQuality(asset *models.Asset) float64 {
	q := float64(estimateQualityHigh)
	if asset != nil && asset.Rank > 5 {
		q = float64(estimateQualityLow) + 5
	}
	if asset == nil || asset.MarketCap == 0 {
		q = estimateQualityLow
	}
	return q
}
