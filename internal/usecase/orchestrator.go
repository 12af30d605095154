package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
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

// DefaultAssets seed the registry on first start when it is empty.
var DefaultAssets = []*models.Asset{
	{Symbol: "BTC", ExternalID: "bitcoin", Rank: 1},
	{Symbol: "ETH", ExternalID: "ethereum", Rank: 2},
	{Symbol: "BNB", ExternalID: "binancecoin", Rank: 4},
	{Symbol: "SOL", ExternalID: "solana", Rank: 5},
}

// anomalyLogCap bounds the per-asset detection log backing the summary
// endpoint.
const anomalyLogCap = 500

// NarrativeDispatcher hands a snapshot off for async LLM commentary.
// Nil dispatchers are allowed; the pipeline then runs rule-only.
type NarrativeDispatcher interface {
	Dispatch(ctx context.Context, conditions *models.SignalConditions) error
}

// Options carries the orchestrator knobs taken from config.
type Options struct {
	Jobs          []models.CollectionJobConfig
	MaxAssets     int
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Orchestrator owns one periodic job per metric category, sequences
// asset iteration within each job and tracks aggregate health/stats.
// Start is idempotent; Stop cancels timers and waits for in-flight
// iterations.
type Orchestrator struct {
	providers map[models.MetricCategory]provider.MetricProvider
	gate      *validation.Gate
	detector  *anomaly.Detector
	engine    *signal.Engine
	proc      *SnapshotProcessor
	store     drepo.MetricStore
	registry  drepo.AssetRegistry
	gov       *ratelimit.Governor
	metrics   drepo.Metrics
	narrative NarrativeDispatcher
	log       *logger.Logger
	opts      Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statsMu sync.RWMutex
	stats   models.CollectionStats

	resultMu    sync.RWMutex
	lastSignal  map[string]*models.TradingSignal
	lastVerdict map[string]*models.SystemicAnomalyResult
	anomalyLog  map[string][]models.AnomalyDetectionResult
}

// NewOrchestrator wires the collection pipeline together.
func NewOrchestrator(
	providers []provider.MetricProvider,
	gate *validation.Gate,
	detector *anomaly.Detector,
	engine *signal.Engine,
	proc *SnapshotProcessor,
	store drepo.MetricStore,
	registry drepo.AssetRegistry,
	gov *ratelimit.Governor,
	metrics drepo.Metrics,
	narrative NarrativeDispatcher,
	log *logger.Logger,
	opts Options,
) *Orchestrator {
	byCat := make(map[models.MetricCategory]provider.MetricProvider, len(providers))
	for _, p := range providers {
		byCat[p.Category()] = p
	}
	if opts.MaxAssets <= 0 {
		opts.MaxAssets = 10
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &Orchestrator{
		providers:   byCat,
		gate:        gate,
		detector:    detector,
		engine:      engine,
		proc:        proc,
		store:       store,
		registry:    registry,
		gov:         gov,
		metrics:     metrics,
		narrative:   narrative,
		log:         log,
		opts:        opts,
		stats:       models.CollectionStats{LastCollection: make(map[models.MetricCategory]time.Time)},
		lastSignal:  make(map[string]*models.TradingSignal),
		lastVerdict: make(map[string]*models.SystemicAnomalyResult),
		anomalyLog:  make(map[string][]models.AnomalyDetectionResult),
	}
}

// Start seeds the registry if empty, arms one timer per enabled
// category and runs one full synchronous pass before returning.
// Idempotent: a second call while running is a no-op. An unreachable
// store is fatal here so the process never runs silently broken.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	if err := o.store.Init(ctx); err != nil {
		return fmt.Errorf("metric store init: %w", err)
	}

	assets, err := o.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list assets: %w", err)
	}
	if len(assets) == 0 {
		if err := o.registry.Seed(ctx, DefaultAssets); err != nil {
			return fmt.Errorf("seed default assets: %w", err)
		}
		assets = DefaultAssets
		o.log.Info("asset registry seeded", logger.Int("assets", len(assets)))
	}

	o.seedHistory(ctx, assets)

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	// one synchronous pass so callers observe a warm pipeline
	for _, job := range o.enabledJobs() {
		o.runCategory(ctx, job.Category)
	}

	for _, job := range o.enabledJobs() {
		o.wg.Add(1)
		go o.schedule(runCtx, job)
	}

	o.running = true
	o.log.Info("orchestrator started", logger.Int("jobs", len(o.enabledJobs())))
	return nil
}

// Stop cancels all timers and waits for in-flight iterations to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.log.Info("orchestrator stopped")
}

// Reconfigure replaces the job set and re-derives the schedule. The
// running timers are cancelled, in-flight iterations drain, and one
// ticker per newly enabled category is re-armed. Stats, rolling history
// and cached results survive. When the orchestrator is stopped only the
// config is swapped; the next Start picks it up.
func (o *Orchestrator) Reconfigure(jobs []models.CollectionJobConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opts.Jobs = jobs
	if !o.running {
		return
	}

	o.cancel()
	o.wg.Wait()

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	for _, job := range o.enabledJobs() {
		o.wg.Add(1)
		go o.schedule(runCtx, job)
	}
	o.log.Info("schedule reconfigured", logger.Int("jobs", len(o.enabledJobs())))
}

// IsRunning reports the scheduler state.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) enabledJobs() []models.CollectionJobConfig {
	jobs := make([]models.CollectionJobConfig, 0, len(o.opts.Jobs))
	for _, j := range o.opts.Jobs {
		if j.Enabled {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Category < jobs[k].Category })
	return jobs
}

func (o *Orchestrator) schedule(ctx context.Context, job models.CollectionJobConfig) {
	defer o.wg.Done()
	interval := time.Duration(job.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runCategory(ctx, job.Category)
		}
	}
}

// runCategory executes one iteration of a category job. Completion
// increments TotalCollections; an unhandled handler error increments
// FailedCollections. Throttling is not a failure.
func (o *Orchestrator) runCategory(ctx context.Context, cat models.MetricCategory) {
	start := time.Now()
	var err error
	switch cat {
	case models.CategoryAnomaly:
		err = o.runAnomalyPass(ctx)
	case models.CategorySignal:
		err = o.runSignalPass(ctx)
	default:
		err = o.runCollectionPass(ctx, cat)
	}

	o.statsMu.Lock()
	o.stats.TotalCollections++
	if err != nil {
		o.stats.FailedCollections++
	}
	o.stats.LastCollection[cat] = time.Now()
	o.statsMu.Unlock()

	if err != nil {
		o.metrics.RecordCollection(string(cat), "failed")
		o.metrics.RecordError("collection_" + string(cat))
		o.log.Error("collection iteration failed",
			logger.String("category", string(cat)),
			logger.Error(err))
	} else {
		o.metrics.RecordCollection(string(cat), "ok")
	}
	o.metrics.RecordLatency("collection_"+string(cat), time.Since(start).Seconds())
	o.recordQuota()
}

// runCollectionPass iterates tracked assets serially. One asset failing
// never aborts the batch.
func (o *Orchestrator) runCollectionPass(ctx context.Context, cat models.MetricCategory) error {
	p, ok := o.providers[cat]
	if !ok {
		return fmt.Errorf("no provider for category %s", cat)
	}
	assets, err := o.trackedAssets(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for _, asset := range assets {
		if err := o.collectAsset(ctx, p, asset); err != nil {
			lastErr = err
			o.log.Warn("asset collection failed",
				logger.String("category", string(cat)),
				logger.String("asset", asset.ExternalID),
				logger.Error(err))
		}
	}
	return lastErr
}

// collectAsset runs one asset through fetch, fallback, validation,
// persistence and history. Rate-limit denial defers to the next tick.
func (o *Orchestrator) collectAsset(ctx context.Context, p provider.MetricProvider, asset *models.Asset) error {
	raw, err := o.collectWithRetry(ctx, p, asset)
	switch {
	case err == nil:
	case errors.Is(err, provider.ErrRateLimited), errors.Is(err, provider.ErrInFlight):
		// transient throttling: defer to the next scheduled pass
		o.metrics.RecordCollection(string(p.Category()), "throttled")
		return nil
	default:
		raw = p.Estimate(asset)
	}

	kind := validation.KindForCategory(raw.Category)
	vr := o.gate.Validate(kind, raw)
	if !vr.IsValid && raw.Source == models.SourceAPI {
		// discard the rejected payload and try the estimation path
		o.log.Warn("payload rejected, estimating",
			logger.String("provider", p.Name()),
			logger.String("asset", asset.ExternalID),
			logger.String("reason", vr.Error))
		raw = p.Estimate(asset)
		vr = o.gate.Validate(kind, raw)
	}
	if !vr.IsValid {
		return fmt.Errorf("validation: %s", vr.Error)
	}

	snap := o.buildSnapshot(asset, raw, vr)
	if err := o.proc.Process(ctx, snap); err != nil {
		return err
	}

	for name, v := range snap.Values {
		o.detector.History().Append(snap.Asset, name, v, snap.Timestamp)
	}

	if price, ok := snap.Value("price"); ok {
		o.metrics.RecordLastPrice(asset.Symbol, price)
		if err := o.registry.UpdateMarket(ctx, asset.Symbol, price, snap.Values["market_cap"]); err != nil {
			o.log.Warn("registry update failed", logger.Error(err))
		}
	}
	return nil
}

// collectWithRetry applies bounded exponential backoff to upstream
// failures. Throttling and estimate-only conditions are never retried.
func (o *Orchestrator) collectWithRetry(ctx context.Context, p provider.MetricProvider, asset *models.Asset) (*models.RawMetric, error) {
	backoff := o.opts.RetryBackoff
	var lastErr error
	for attempt := 0; attempt < o.opts.RetryAttempts; attempt++ {
		raw, err := p.Collect(ctx, asset)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if errors.Is(err, provider.ErrRateLimited) ||
			errors.Is(err, provider.ErrInFlight) ||
			errors.Is(err, provider.ErrEstimateOnly) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (o *Orchestrator) buildSnapshot(asset *models.Asset, raw *models.RawMetric, vr models.ValidationResult) *models.MetricSnapshot {
	kind := validation.KindForCategory(raw.Category)
	quality := validation.QualityScore(kind, vr.Values)
	if raw.Source == models.SourceFallback {
		// fallback data is never allowed to look live
		quality = provider.EstimateQuality(asset)
	}
	return &models.MetricSnapshot{
		Asset:      raw.Asset,
		Category:   raw.Category,
		Values:     vr.Values,
		Quality:    quality,
		Confidence: vr.Confidence,
		Source:     raw.Source,
		Cached:     raw.Cached,
		Timestamp:  raw.Timestamp,
	}
}

// runAnomalyPass runs the systemic ensemble for each asset over its
// latest validated values.
func (o *Orchestrator) runAnomalyPass(ctx context.Context) error {
	assets, err := o.trackedAssets(ctx)
	if err != nil {
		return err
	}
	for _, asset := range assets {
		values := o.latestValues(ctx, asset.ExternalID)
		if len(values) == 0 {
			continue
		}
		verdict := o.detector.DetectSystemic(asset.ExternalID, values)

		o.resultMu.Lock()
		o.lastVerdict[asset.ExternalID] = &verdict
		log := o.anomalyLog[asset.ExternalID]
		log = append(log, verdict.PerMetric...)
		if len(log) > anomalyLogCap {
			log = log[len(log)-anomalyLogCap:]
		}
		o.anomalyLog[asset.ExternalID] = log
		o.resultMu.Unlock()

		if verdict.IsAnomaly {
			o.log.Warn("systemic anomaly",
				logger.String("asset", asset.ExternalID),
				logger.Float64("score", verdict.Score),
				logger.String("severity", string(verdict.Severity)))
			if err := o.proc.PublishAnomaly(ctx, &verdict); err != nil {
				o.log.Error("anomaly publish failed", logger.Error(err))
			}
		}
	}
	return nil
}

// runSignalPass evaluates the rule engine against each asset's latest
// snapshot and dispatches narrative analysis asynchronously.
func (o *Orchestrator) runSignalPass(ctx context.Context) error {
	assets, err := o.trackedAssets(ctx)
	if err != nil {
		return err
	}
	for _, asset := range assets {
		cond := o.conditionsFor(ctx, asset.ExternalID)
		sig := o.engine.Evaluate(cond)
		sig.Asset = asset.ExternalID

		o.resultMu.Lock()
		o.lastSignal[asset.ExternalID] = sig
		o.resultMu.Unlock()

		if err := o.proc.PublishSignal(ctx, sig); err != nil {
			o.log.Error("signal publish failed", logger.Error(err))
		}
		if o.narrative != nil && cond != nil {
			if err := o.narrative.Dispatch(ctx, cond); err != nil {
				// degrade to rule-only output
				o.log.Warn("narrative dispatch failed", logger.Error(err))
			}
		}
	}
	return nil
}

// trackedAssets bounds the iteration to the configured maximum, ranked
// first so free-tier budgets go to the assets that matter.
func (o *Orchestrator) trackedAssets(ctx context.Context) ([]*models.Asset, error) {
	assets, err := o.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	sort.Slice(assets, func(i, k int) bool { return assets[i].Rank < assets[k].Rank })
	if len(assets) > o.opts.MaxAssets {
		assets = assets[:o.opts.MaxAssets]
	}
	return assets, nil
}

// latestValues merges the newest stored snapshot per category into one
// flat value map for the systemic detector.
func (o *Orchestrator) latestValues(ctx context.Context, asset string) map[string]float64 {
	merged := make(map[string]float64)
	for cat := range o.providers {
		snap, err := o.store.QueryLatest(ctx, cat, asset)
		if err != nil || snap == nil {
			continue
		}
		for k, v := range snap.Values {
			merged[k] = v
		}
	}
	return merged
}

// conditionsFor assembles the rule-engine input from the latest stored
// snapshots. Stale or missing categories leave fields nil; the engine
// tolerates partial snapshots.
func (o *Orchestrator) conditionsFor(ctx context.Context, asset string) *models.SignalConditions {
	values := o.latestValues(ctx, asset)
	if len(values) == 0 {
		return nil
	}
	// market-wide sentiment is stored under its own key
	if _, ok := values["fear_greed"]; !ok {
		if snap, err := o.store.QueryLatest(ctx, models.CategorySentiment, "market"); err == nil && snap != nil {
			for k, v := range snap.Values {
				values[k] = v
			}
		}
	}
	cond := &models.SignalConditions{
		Asset:       asset,
		VolumeTrend: o.volumeTrend(asset),
		Timestamp:   time.Now(),
	}
	fieldPtr(values, "mvrv", &cond.MVRV)
	fieldPtr(values, "nupl", &cond.NUPL)
	fieldPtr(values, "sopr", &cond.SOPR)
	fieldPtr(values, "rsi", &cond.RSI)
	fieldPtr(values, "fear_greed", &cond.FearGreed)
	fieldPtr(values, "funding_rate", &cond.FundingRate)
	fieldPtr(values, "social_sentiment", &cond.SocialSentiment)
	return cond
}

func fieldPtr(values map[string]float64, name string, dst **float64) {
	if v, ok := values[name]; ok {
		*dst = &v
	}
}

// volumeTrend compares the latest rolling-history volume to its short
// moving average.
func (o *Orchestrator) volumeTrend(asset string) models.VolumeTrend {
	series := o.detector.History().Series(asset, "volume")
	if len(series) < 2 {
		return models.VolumeFlat
	}
	window := series
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(len(window))
	last := series[len(series)-1]
	switch {
	case avg > 0 && last > avg*1.05:
		return models.VolumeIncreasing
	case avg > 0 && last < avg*0.95:
		return models.VolumeDecreasing
	default:
		return models.VolumeFlat
	}
}

// seedHistory warms the anomaly rolling history from persisted
// snapshots so detectors have a baseline at process start.
func (o *Orchestrator) seedHistory(ctx context.Context, assets []*models.Asset) {
	from := time.Now().Add(-30 * 24 * time.Hour)
	to := time.Now()
	for _, asset := range assets {
		for cat := range o.providers {
			snaps, err := o.store.QueryRange(ctx, cat, asset.ExternalID, from, to, anomaly.HistoryCapacity)
			if err != nil {
				continue
			}
			for _, s := range snaps {
				for name, v := range s.Values {
					o.detector.History().Append(s.Asset, name, v, s.Timestamp)
				}
			}
		}
	}
}

func (o *Orchestrator) recordQuota() {
	for _, p := range o.providers {
		day, minute := o.gov.Remaining(p.Name())
		o.metrics.RecordQuotaRemaining(p.Name(), day, minute)
	}
}

// GetStatus returns the aggregate pipeline view with health derived on
// demand.
func (o *Orchestrator) GetStatus() models.PipelineStatus {
	o.statsMu.RLock()
	stats := models.CollectionStats{
		TotalCollections:  o.stats.TotalCollections,
		FailedCollections: o.stats.FailedCollections,
		LastCollection:    make(map[models.MetricCategory]time.Time, len(o.stats.LastCollection)),
	}
	for k, v := range o.stats.LastCollection {
		stats.LastCollection[k] = v
	}
	o.statsMu.RUnlock()

	o.mu.Lock()
	jobs := make([]models.CollectionJobConfig, len(o.opts.Jobs))
	copy(jobs, o.opts.Jobs)
	o.mu.Unlock()

	return models.PipelineStatus{
		IsRunning: o.IsRunning(),
		Stats:     stats,
		Config:    jobs,
		Health:    o.Health(),
	}
}

// Health derives a 0..100 score: penalties for low success rate, stale
// price data and near-exhausted quota. Computed on demand, not stored.
func (o *Orchestrator) Health() int {
	health := 100

	o.statsMu.RLock()
	total := o.stats.TotalCollections
	failed := o.stats.FailedCollections
	lastPrice, hasPrice := o.stats.LastCollection[models.CategoryPrice]
	o.statsMu.RUnlock()

	if total > 0 {
		rate := 1 - float64(failed)/float64(total)
		if rate < 0.5 {
			health -= 40
		} else if rate < 0.9 {
			health -= 20
		}
	}

	if hasPrice {
		interval := o.intervalFor(models.CategoryPrice)
		if interval > 0 && time.Since(lastPrice) > 2*interval {
			health -= 20
		}
	}

	for _, p := range o.providers {
		day, _ := o.gov.Remaining(p.Name())
		if !p.EstimateOnly() && day <= 0 {
			health -= 10
		}
	}

	if health < 0 {
		health = 0
	}
	return health
}

func (o *Orchestrator) intervalFor(cat models.MetricCategory) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, j := range o.opts.Jobs {
		if j.Category == cat {
			return time.Duration(j.IntervalMinutes) * time.Minute
		}
	}
	return 0
}

// GetLatestSignal returns the newest evaluated signal for an asset,
// computing one on demand when no signal pass has run yet.
func (o *Orchestrator) GetLatestSignal(ctx context.Context, asset string) *models.TradingSignal {
	o.resultMu.RLock()
	sig, ok := o.lastSignal[asset]
	o.resultMu.RUnlock()
	if ok {
		return sig
	}
	cond := o.conditionsFor(ctx, asset)
	sig = o.engine.Evaluate(cond)
	sig.Asset = asset
	return sig
}

// GetAnomalySummary aggregates logged detections for an asset over a
// window.
func (o *Orchestrator) GetAnomalySummary(asset string, window drepo.Window) models.AnomalySummary {
	to := time.Now()
	from := to.Add(-window.Duration())
	summary := models.AnomalySummary{
		Asset:      asset,
		BySeverity: make(map[models.Severity]int),
		ByType:     make(map[models.AnomalyType]int),
		From:       from,
		To:         to,
	}

	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	for _, r := range o.anomalyLog[asset] {
		if !r.IsAnomaly || r.Timestamp.Before(from) {
			continue
		}
		summary.TotalAnomalies++
		summary.BySeverity[r.Severity]++
		summary.ByType[r.Type]++
	}
	return summary
}

// GetProviderStats returns quota and cache state for one provider.
func (o *Orchestrator) GetProviderStats(name string) (models.ProviderStats, bool) {
	for _, p := range o.providers {
		if p.Name() != name {
			continue
		}
		day, minute := o.gov.Remaining(name)
		return models.ProviderStats{
			Provider:        name,
			RemainingDay:    day,
			RemainingMinute: minute,
			CacheSize:       p.CacheSize(),
			EstimateOnly:    p.EstimateOnly(),
		}, true
	}
	return models.ProviderStats{}, false
}

// ProviderNames lists registered adapters for the status surface.
func (o *Orchestrator) ProviderNames() []string {
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}
