package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ChainPulse/internal/domain/models"
	drepo "ChainPulse/internal/domain/repository"
	"ChainPulse/internal/service/anomaly"
	"ChainPulse/internal/service/provider"
	"ChainPulse/internal/service/ratelimit"
	"ChainPulse/internal/service/signal"
	"ChainPulse/internal/service/validation"
	"ChainPulse/pkg/logger"
)

type memStore struct {
	mu    sync.Mutex
	snaps []*models.MetricSnapshot
	fail  bool
}

func (s *memStore) Init(ctx context.Context) error {
	if s.fail {
		return fmt.Errorf("store unreachable")
	}
	return nil
}

func (s *memStore) Save(ctx context.Context, snap *models.MetricSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *memStore) SaveBatch(ctx context.Context, snaps []*models.MetricSnapshot) error {
	for _, snap := range snaps {
		if err := s.Save(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) QueryLatest(ctx context.Context, category models.MetricCategory, asset string) (*models.MetricSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.MetricSnapshot
	for _, snap := range s.snaps {
		if snap.Category != category || snap.Asset != asset {
			continue
		}
		if latest == nil || snap.Timestamp.After(latest.Timestamp) {
			latest = snap
		}
	}
	return latest, nil
}

func (s *memStore) QueryRange(ctx context.Context, category models.MetricCategory, asset string, from, to time.Time, limit int) ([]*models.MetricSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MetricSnapshot
	for _, snap := range s.snaps {
		if snap.Category == category && snap.Asset == asset && !snap.Timestamp.Before(from) && !snap.Timestamp.After(to) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *memStore) Health(ctx context.Context) error { return nil }
func (s *memStore) Close() error                     { return nil }

func (s *memStore) count(category models.MetricCategory) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, snap := range s.snaps {
		if snap.Category == category {
			n++
		}
	}
	return n
}

type memRegistry struct {
	mu     sync.Mutex
	assets []*models.Asset
}

func (r *memRegistry) List(ctx context.Context) ([]*models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Asset, len(r.assets))
	copy(out, r.assets)
	return out, nil
}

func (r *memRegistry) Seed(ctx context.Context, assets []*models.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets = append(r.assets, assets...)
	return nil
}

func (r *memRegistry) UpdateMarket(ctx context.Context, symbol string, price, marketCap float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assets {
		if a.Symbol == symbol {
			a.Price = price
			a.MarketCap = marketCap
		}
	}
	return nil
}

func (r *memRegistry) Get(ctx context.Context, symbol string) (*models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assets {
		if a.Symbol == symbol {
			return a, nil
		}
	}
	return nil, fmt.Errorf("unknown asset %s", symbol)
}

type nopMetrics struct{}

func (nopMetrics) RecordCollection(category, result string)               {}
func (nopMetrics) RecordError(kind string)                               {}
func (nopMetrics) RecordLastPrice(symbol string, price float64)          {}
func (nopMetrics) RecordLatency(op string, seconds float64)              {}
func (nopMetrics) RecordQuotaRemaining(provider string, day, minute int) {}

type fakeProvider struct {
	name     string
	category models.MetricCategory
	collect  func(asset *models.Asset) (*models.RawMetric, error)
	calls    int64
	mu       sync.Mutex
}

func (f *fakeProvider) Name() string                    { return f.name }
func (f *fakeProvider) Category() models.MetricCategory { return f.category }
func (f *fakeProvider) EstimateOnly() bool              { return false }
func (f *fakeProvider) CacheSize() int                  { return 0 }

func (f *fakeProvider) Collect(ctx context.Context, asset *models.Asset) (*models.RawMetric, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.collect(asset)
}

func (f *fakeProvider) Estimate(asset *models.Asset) *models.RawMetric {
	return &models.RawMetric{
		Provider:  f.name,
		Asset:     asset.ExternalID,
		Category:  f.category,
		Values:    map[string]float64{"price": 100},
		Source:    models.SourceFallback,
		Timestamp: time.Now(),
	}
}

func liveRaw(name string, cat models.MetricCategory, asset *models.Asset, values map[string]float64) (*models.RawMetric, error) {
	return &models.RawMetric{
		Provider:  name,
		Asset:     asset.ExternalID,
		Category:  cat,
		Values:    values,
		Source:    models.SourceAPI,
		Timestamp: time.Now(),
	}, nil
}

func testOrchestrator(t *testing.T, providers []provider.MetricProvider, store *memStore, reg *memRegistry) *Orchestrator {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	gov := ratelimit.New()
	for _, p := range providers {
		gov.Configure(p.Name(), ratelimit.Quota{DayLimit: 1000, MinuteLimit: 100})
	}
	jobs := []models.CollectionJobConfig{
		{Category: models.CategoryAnomaly, Enabled: true, IntervalMinutes: 60},
		{Category: models.CategorySignal, Enabled: true, IntervalMinutes: 60},
	}
	for _, p := range providers {
		jobs = append(jobs, models.CollectionJobConfig{Category: p.Category(), Enabled: true, IntervalMinutes: 60})
	}
	proc := NewSnapshotProcessor(nil, store, nopMetrics{}, "clickhouse")
	det := anomaly.NewDetector(anomaly.NewHistory())
	return NewOrchestrator(providers, validation.NewGate(nil), det, signal.NewEngine(),
		proc, store, reg, gov, nopMetrics{}, nil, log,
		Options{Jobs: jobs, MaxAssets: 10, RetryAttempts: 2, RetryBackoff: time.Millisecond})
}

func TestStartSeedsAndRunsOnePass(t *testing.T) {
	store := &memStore{}
	reg := &memRegistry{}
	priceProv := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return liveRaw("fakeprice", models.CategoryPrice, a, map[string]float64{
				"price": 50000, "market_cap": 1e12, "volume": 3e10,
			})
		}}
	o := testOrchestrator(t, []provider.MetricProvider{priceProv}, store, reg)
	defer o.Stop()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	assets, _ := reg.List(context.Background())
	if len(assets) != len(DefaultAssets) {
		t.Fatalf("seeded %d assets, want %d", len(assets), len(DefaultAssets))
	}

	// the synchronous pass must have run before Start returned
	if got := store.count(models.CategoryPrice); got != len(DefaultAssets) {
		t.Fatalf("price snapshots = %d, want %d", got, len(DefaultAssets))
	}

	status := o.GetStatus()
	if !status.IsRunning {
		t.Fatal("status must report running")
	}
	// three enabled categories, one iteration each
	if status.Stats.TotalCollections < 3 {
		t.Fatalf("TotalCollections = %d, want >= 3", status.Stats.TotalCollections)
	}
	for _, cat := range []models.MetricCategory{models.CategoryPrice, models.CategoryAnomaly, models.CategorySignal} {
		if _, ok := status.Stats.LastCollection[cat]; !ok {
			t.Fatalf("no LastCollection timestamp for %s", cat)
		}
	}
}

func TestStartIsIdempotent(t *testing.T) {
	store := &memStore{}
	reg := &memRegistry{}
	p := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return liveRaw("fakeprice", models.CategoryPrice, a, map[string]float64{"price": 1})
		}}
	o := testOrchestrator(t, []provider.MetricProvider{p}, store, reg)
	defer o.Stop()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	before := o.GetStatus().Stats.TotalCollections
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if after := o.GetStatus().Stats.TotalCollections; after != before {
		t.Fatalf("second start ran a pass: %d -> %d", before, after)
	}
}

func TestStartFatalOnUnreachableStore(t *testing.T) {
	store := &memStore{fail: true}
	p := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return liveRaw("fakeprice", models.CategoryPrice, a, map[string]float64{"price": 1})
		}}
	o := testOrchestrator(t, []provider.MetricProvider{p}, store, &memRegistry{})

	if err := o.Start(context.Background()); err == nil {
		t.Fatal("unreachable store must be fatal to start")
	}
	if o.IsRunning() {
		t.Fatal("orchestrator must not run in a broken state")
	}
}

func TestUpstreamFailureFallsBackToEstimate(t *testing.T) {
	store := &memStore{}
	p := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return nil, fmt.Errorf("%w: boom", provider.ErrUpstream)
		}}
	o := testOrchestrator(t, []provider.MetricProvider{p}, store, &memRegistry{})
	defer o.Stop()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap, err := store.QueryLatest(context.Background(), models.CategoryPrice, "bitcoin")
	if err != nil || snap == nil {
		t.Fatalf("no fallback snapshot persisted: %v", err)
	}
	if snap.Source != models.SourceFallback {
		t.Fatalf("source = %v, want fallback", snap.Source)
	}
	if snap.Quality >= 70 {
		t.Fatalf("fallback quality = %v, must stay below 70", snap.Quality)
	}
	// a fallback that validated is not a failed collection
	if failed := o.GetStatus().Stats.FailedCollections; failed != 0 {
		t.Fatalf("FailedCollections = %d, want 0", failed)
	}
}

func TestRateLimitDeferredNotFailed(t *testing.T) {
	store := &memStore{}
	p := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return nil, provider.ErrRateLimited
		}}
	o := testOrchestrator(t, []provider.MetricProvider{p}, store, &memRegistry{})
	defer o.Stop()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := store.count(models.CategoryPrice); got != 0 {
		t.Fatalf("throttled pass persisted %d snapshots", got)
	}
	if failed := o.GetStatus().Stats.FailedCollections; failed != 0 {
		t.Fatalf("throttling counted as failure: %d", failed)
	}
	// no retry on rate-limit denial: one call per asset
	p.mu.Lock()
	calls := p.calls
	p.mu.Unlock()
	if calls != int64(len(DefaultAssets)) {
		t.Fatalf("calls = %d, want %d (no busy-retry)", calls, len(DefaultAssets))
	}
}

func TestLiveSnapshotQualityAtLeast70(t *testing.T) {
	store := &memStore{}
	p := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return liveRaw("fakeprice", models.CategoryPrice, a, map[string]float64{
				"price": 50000, "market_cap": 1e12, "volume": 3e10,
			})
		}}
	o := testOrchestrator(t, []provider.MetricProvider{p}, store, &memRegistry{})
	defer o.Stop()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, _ := store.QueryLatest(context.Background(), models.CategoryPrice, "bitcoin")
	if snap == nil {
		t.Fatal("no snapshot")
	}
	if snap.Source != models.SourceAPI {
		t.Fatalf("source = %v", snap.Source)
	}
	if snap.Quality < 70 {
		t.Fatalf("validated live quality = %v, want >= 70", snap.Quality)
	}
}

func TestSignalPassFillsLatestSignal(t *testing.T) {
	store := &memStore{}
	onchain := &fakeProvider{name: "fakechain", category: models.CategoryOnChain,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return liveRaw("fakechain", models.CategoryOnChain, a, map[string]float64{
				"mvrv": 0.8, "nupl": -0.1, "sopr": 1.02,
			})
		}}
	o := testOrchestrator(t, []provider.MetricProvider{onchain}, store, &memRegistry{})
	defer o.Stop()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	sig := o.GetLatestSignal(context.Background(), "bitcoin")
	if sig == nil {
		t.Fatal("no signal after signal pass")
	}
	if sig.Asset != "bitcoin" {
		t.Fatalf("signal asset = %q", sig.Asset)
	}
	if sig.Signal == "" {
		t.Fatal("empty signal action")
	}
}

func TestGetProviderStats(t *testing.T) {
	store := &memStore{}
	p := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return liveRaw("fakeprice", models.CategoryPrice, a, map[string]float64{"price": 1})
		}}
	o := testOrchestrator(t, []provider.MetricProvider{p}, store, &memRegistry{})

	stats, ok := o.GetProviderStats("fakeprice")
	if !ok {
		t.Fatal("provider not found")
	}
	if stats.RemainingDay != 1000 || stats.RemainingMinute != 100 {
		t.Fatalf("remaining = %d/%d", stats.RemainingDay, stats.RemainingMinute)
	}
	if _, ok := o.GetProviderStats("nosuch"); ok {
		t.Fatal("unknown provider must report not found")
	}
}

func TestGetAnomalySummaryWindow(t *testing.T) {
	store := &memStore{}
	p := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return liveRaw("fakeprice", models.CategoryPrice, a, map[string]float64{"price": 1})
		}}
	o := testOrchestrator(t, []provider.MetricProvider{p}, store, &memRegistry{})

	o.resultMu.Lock()
	o.anomalyLog["bitcoin"] = []models.AnomalyDetectionResult{
		{Asset: "bitcoin", Metric: "price", IsAnomaly: true, Severity: models.SeverityHigh, Type: models.AnomalyStatistical, Timestamp: time.Now()},
		{Asset: "bitcoin", Metric: "volume", IsAnomaly: true, Severity: models.SeverityLow, Type: models.AnomalyPattern, Timestamp: time.Now().Add(-48 * time.Hour)},
		{Asset: "bitcoin", Metric: "mvrv", IsAnomaly: false, Severity: models.SeverityLow, Type: models.AnomalyStatistical, Timestamp: time.Now()},
	}
	o.resultMu.Unlock()

	sum := o.GetAnomalySummary("bitcoin", drepo.Win24h)
	if sum.TotalAnomalies != 1 {
		t.Fatalf("TotalAnomalies = %d, want 1 (48h-old and non-anomalies excluded)", sum.TotalAnomalies)
	}
	if sum.BySeverity[models.SeverityHigh] != 1 {
		t.Fatalf("BySeverity = %v", sum.BySeverity)
	}

	sum = o.GetAnomalySummary("bitcoin", drepo.Win7d)
	if sum.TotalAnomalies != 2 {
		t.Fatalf("7d TotalAnomalies = %d, want 2", sum.TotalAnomalies)
	}
}

func TestStopWaitsAndMarksStopped(t *testing.T) {
	store := &memStore{}
	p := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return liveRaw("fakeprice", models.CategoryPrice, a, map[string]float64{"price": 1})
		}}
	o := testOrchestrator(t, []provider.MetricProvider{p}, store, &memRegistry{})

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.Stop()
	if o.IsRunning() {
		t.Fatal("still running after stop")
	}
	// stopping twice must not panic or block
	o.Stop()
}

func TestSentimentPassPersistsMarketSnapshot(t *testing.T) {
	store := &memStore{}
	sentProv := &fakeProvider{name: "fakesentiment", category: models.CategorySentiment,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			// fear & greed is market-wide, not per asset
			return &models.RawMetric{
				Provider:  "fakesentiment",
				Asset:     "market",
				Category:  models.CategorySentiment,
				Values:    map[string]float64{"fear_greed": 17},
				Source:    models.SourceAPI,
				Timestamp: time.Now(),
			}, nil
		}}
	o := testOrchestrator(t, []provider.MetricProvider{sentProv}, store, &memRegistry{})
	defer o.Stop()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if got := store.count(models.CategorySentiment); got == 0 {
		t.Fatal("sentiment pass persisted 0 snapshots")
	}
	snap, err := store.QueryLatest(context.Background(), models.CategorySentiment, "market")
	if err != nil || snap == nil {
		t.Fatalf("no market-keyed sentiment snapshot: %v", err)
	}
	if snap.Values["fear_greed"] != 17 {
		t.Fatalf("fear_greed = %v, want 17", snap.Values["fear_greed"])
	}
	if failed := o.GetStatus().Stats.FailedCollections; failed != 0 {
		t.Fatalf("FailedCollections = %d, want 0", failed)
	}
}

func TestCalculatedIndicatorsKeepLiveQuality(t *testing.T) {
	store := &memStore{}
	techProv := &fakeProvider{name: "faketechnical", category: models.CategoryTechnical,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return &models.RawMetric{
				Provider:  "faketechnical",
				Asset:     a.ExternalID,
				Category:  models.CategoryTechnical,
				Values:    map[string]float64{"rsi": 62, "macd": 120, "bb_width": 0.05},
				Source:    models.SourceCalculated,
				Timestamp: time.Now(),
			}, nil
		}}
	o := testOrchestrator(t, []provider.MetricProvider{techProv}, store, &memRegistry{})
	defer o.Stop()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap, err := store.QueryLatest(context.Background(), models.CategoryTechnical, "bitcoin")
	if err != nil || snap == nil {
		t.Fatalf("no technical snapshot persisted: %v", err)
	}
	if snap.Source != models.SourceCalculated {
		t.Fatalf("source = %v, want calculated", snap.Source)
	}
	if snap.Quality < 70 {
		t.Fatalf("calculated indicator quality = %v, must not sit in the estimate band", snap.Quality)
	}
}

func TestReconfigureSwapsSchedule(t *testing.T) {
	store := &memStore{}
	p := &fakeProvider{name: "fakeprice", category: models.CategoryPrice,
		collect: func(a *models.Asset) (*models.RawMetric, error) {
			return liveRaw("fakeprice", models.CategoryPrice, a, map[string]float64{"price": 1})
		}}
	o := testOrchestrator(t, []provider.MetricProvider{p}, store, &memRegistry{})
	defer o.Stop()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	next := []models.CollectionJobConfig{
		{Category: models.CategoryPrice, Enabled: true, IntervalMinutes: 5},
		{Category: models.CategorySignal, Enabled: false, IntervalMinutes: 60},
	}
	o.Reconfigure(next)

	status := o.GetStatus()
	if !status.IsRunning {
		t.Fatal("reconfigure must keep the orchestrator running")
	}
	if len(status.Config) != len(next) {
		t.Fatalf("config jobs = %d, want %d", len(status.Config), len(next))
	}
	for _, j := range status.Config {
		if j.Category == models.CategoryPrice && j.IntervalMinutes != 5 {
			t.Fatalf("price interval = %d, want re-derived 5", j.IntervalMinutes)
		}
		if j.Category == models.CategorySignal && j.Enabled {
			t.Fatal("signal job must be disabled after reconfigure")
		}
	}

	// a second stop-start cycle must still work on the swapped config
	o.Stop()
	if o.IsRunning() {
		t.Fatal("stop after reconfigure must halt the scheduler")
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("restart after reconfigure: %v", err)
	}
}
