package di

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
	"ChainPulse/internal/handler/api"
	mid "ChainPulse/internal/middleware"
	internalrepo "ChainPulse/internal/repository"
	"ChainPulse/internal/service/anomaly"
	"ChainPulse/internal/service/narrative"
	"ChainPulse/internal/service/provider"
	"ChainPulse/internal/service/ratelimit"
	"ChainPulse/internal/service/signal"
	"ChainPulse/internal/service/stream"
	"ChainPulse/internal/service/validation"
	"ChainPulse/internal/usecase"
	"ChainPulse/pkg/cache"
	pkgch "ChainPulse/pkg/clickhouse"
	"ChainPulse/pkg/config"
	xhttp "ChainPulse/pkg/http"
	pkgkafka "ChainPulse/pkg/kafka"
	"ChainPulse/pkg/logger"
	"ChainPulse/pkg/metrics"
	"ChainPulse/pkg/queue"
	"ChainPulse/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideRecentErrors creates the in-memory buffer behind the status
// endpoint's recent-errors view.
func ProvideRecentErrors() *logger.RecentBuffer {
	return logger.NewRecentBuffer(50)
}

// ProvideLogger creates the application logger. Development gets a
// console writer, everything else structured JSON. Error logs are
// aggregated into the recent-errors buffer.
func ProvideLogger(cfg *config.Config, recent *logger.RecentBuffer) (*logger.Logger, error) {
	format := "json"
	level := "info"
	if cfg.Environment == "development" {
		format = "console"
		level = "debug"
	}
	l, err := logger.New(&logger.Config{Level: level, Format: format, Output: "stdout"})
	if err != nil {
		return nil, err
	}
	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          "errors",
		Publisher:      recent,
	})
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideGovernor creates the shared request budget governor. Each
// provider adapter registers its own quota on construction.
func ProvideGovernor() *ratelimit.Governor {
	return ratelimit.New()
}

// ProvideCache picks the metric cache backend: a memory-over-Redis
// layered cache when Redis is enabled, otherwise in-process LRU only.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize)), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	redisCache, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, err
	}
	return cache.NewLayeredCache(redisCache, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize)), nil
}

// ProvideClickHouseClient creates a ClickHouse client. Table schema is
// owned by the metric store and created on orchestrator start.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideMetricStore creates the ClickHouse snapshot store.
func ProvideMetricStore(chClient *pkgch.Client, cfg *config.Config) repository.MetricStore {
	return internalrepo.NewClickHouseMetricStore(chClient.DB(), cfg.ClickHouse.Database+".metric_snapshots")
}

// ProvideKafkaProducer creates a Kafka producer. Storage-only
// deployments run without a broker, so this returns nil for them.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher creates the Kafka event publisher, one topic
// per event kind.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, internalrepo.Topics{
		Snapshots: cfg.Kafka.SnapshotTopic,
		Anomalies: cfg.Kafka.AnomalyTopic,
		Signals:   cfg.Kafka.SignalTopic,
	})
}

// ProvideKafkaConsumer creates the snapshot ingest consumer for the
// kafka backend.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideSnapshotsHandler registers the handler for the snapshots
// topic.
func ProvideSnapshotsHandler(store repository.MetricStore, m repository.Metrics, cfg *config.Config) *usecase.KafkaSnapshotsHandler {
	return usecase.NewKafkaSnapshotsHandler(cfg.Kafka.SnapshotTopic, store, m)
}

// ProvideSnapshotProcessor creates the backend router for validated
// snapshots.
func ProvideSnapshotProcessor(pub repository.Publisher, store repository.MetricStore, m repository.Metrics, cfg *config.Config) *usecase.SnapshotProcessor {
	return usecase.NewSnapshotProcessor(pub, store, m, cfg.Backend.Type)
}

// ProvideAssetRegistry creates an empty registry. The orchestrator
// seeds the default asset set on first start.
func ProvideAssetRegistry() repository.AssetRegistry {
	return internalrepo.NewMemoryAssetRegistry(nil)
}

func providerCfg(cfg *config.Config, name string) config.ProviderConfig {
	pc, ok := cfg.Providers[name]
	if !ok {
		pc = config.ProviderConfig{DayLimit: 100, MinuteLimit: 10}
	}
	return pc
}

// ProvideProviders builds the full adapter set, one per metric
// category. Unconfigured providers fall back to built-in defaults.
func ProvideProviders(
	cfg *config.Config,
	gov *ratelimit.Governor,
	c cache.Service,
	store repository.MetricStore,
	log *logger.Logger,
) []provider.MetricProvider {
	return []provider.MetricProvider{
		provider.NewMarket(providerCfg(cfg, "coingecko"), cfg.Cache.SeriesTTL, gov, c, log),
		provider.NewOnChain(providerCfg(cfg, "glassnode"), cfg.Cache.SeriesTTL, cfg.Cache.StructuralTTL, cfg.Cache.HistoricalTTL, gov, c, log),
		provider.NewSentiment(providerCfg(cfg, "alternative"), cfg.Cache.SeriesTTL, gov, c, log),
		provider.NewDerivatives(providerCfg(cfg, "binance-futures"), cfg.Cache.SeriesTTL, gov, c, log),
		provider.NewTechnical(providerCfg(cfg, "technical"), cfg.Cache.SeriesTTL, store, gov, c, log),
	}
}

// ProvideGate creates the validation gate from configured price bands.
func ProvideGate(cfg *config.Config) *validation.Gate {
	bands := make(map[string]validation.PriceBand, len(cfg.PriceBands))
	for asset, b := range cfg.PriceBands {
		bands[asset] = validation.PriceBand{Min: b.Min, Max: b.Max}
	}
	return validation.NewGate(bands)
}

// ProvideDetector creates the anomaly ensemble with a fresh rolling
// history. The orchestrator warms it from persisted snapshots.
func ProvideDetector() *anomaly.Detector {
	return anomaly.NewDetector(anomaly.NewHistory())
}

// ProvideSignalEngine creates the rule-based signal engine.
func ProvideSignalEngine() *signal.Engine {
	return signal.NewEngine()
}

// ProvideRedisClient creates the raw Redis client used by the job
// queue. Nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideNarrativeJob creates the async narrative analysis job backed
// by the external commentary service. Nil when unconfigured.
func ProvideNarrativeJob(cfg *config.Config, log *logger.Logger) *usecase.NarrativeJob {
	if cfg.Narrative.ServiceURL == "" {
		return nil
	}
	client := narrative.NewClient(
		cfg.Narrative.ServiceURL,
		cfg.Narrative.Timeout,
		cfg.Narrative.RetryLimit,
		cfg.Narrative.RetryDelay,
	)
	return usecase.NewNarrativeJob(client, cfg.Narrative.Timeout, log)
}

// ProvideNarrativeQueue creates the Redis-backed job queue running the
// narrative worker. Nil when Redis or the narrative service is off.
func ProvideNarrativeQueue(cfg *config.Config, rdb *redis.Client, job *usecase.NarrativeJob, log *logger.Logger) *queue.RedisQueue {
	if rdb == nil || job == nil {
		return nil
	}
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Narrative.Workers,
		RetryLimit: cfg.Narrative.RetryLimit,
		RetryDelay: cfg.Narrative.RetryDelay,
	}, rdb, queue.ModeProducerConsumer, queue.WithKeyPrefix("chainpulse:narrative"))
	q.RegisterJob(job)
	return q
}

// ProvideNarrativeDispatcher adapts the queue into the orchestrator's
// dispatch port. Nil disables narrative dispatch entirely.
func ProvideNarrativeDispatcher(q *queue.RedisQueue) usecase.NarrativeDispatcher {
	if q == nil {
		return nil
	}
	return usecase.NewQueueDispatcher(q)
}

// ProvideTickerCollector creates the optional realtime price stream:
// a Binance miniTicker WebSocket throttled through the middleware
// pipeline into the asset registry.
func ProvideTickerCollector(cfg *config.Config, registry repository.AssetRegistry, m repository.Metrics, log *logger.Logger) *usecase.TickerCollector {
	if !cfg.Stream.Enabled {
		return nil
	}
	st := stream.New(cfg.Stream.WebSocketURL, cfg.Stream.Symbols, cfg.Stream.ReconnectDelay, cfg.Stream.PingInterval, log)
	applier := usecase.NewTickerApplier(registry, m)
	pipe := mid.NewTickerPipeline(applier, m,
		mid.WithMaxRPS(5),
		mid.WithBufferSize(1000),
	)
	return usecase.NewTickerCollector(st, applier, m, pipe)
}

// ProvideOrchestrator wires the collection pipeline.
func ProvideOrchestrator(
	providers []provider.MetricProvider,
	gate *validation.Gate,
	detector *anomaly.Detector,
	engine *signal.Engine,
	proc *usecase.SnapshotProcessor,
	store repository.MetricStore,
	registry repository.AssetRegistry,
	gov *ratelimit.Governor,
	m repository.Metrics,
	dispatcher usecase.NarrativeDispatcher,
	log *logger.Logger,
	cfg *config.Config,
) *usecase.Orchestrator {
	jobs := make([]models.CollectionJobConfig, 0, len(cfg.Categories))
	for name, cc := range cfg.Categories {
		jobs = append(jobs, models.CollectionJobConfig{
			Category:        models.MetricCategory(name),
			Enabled:         cc.Enabled,
			IntervalMinutes: cc.IntervalMinutes,
		})
	}
	return usecase.NewOrchestrator(
		providers, gate, detector, engine, proc,
		store, registry, gov, m, dispatcher, log,
		usecase.Options{
			Jobs:          jobs,
			MaxAssets:     cfg.Collection.MaxAssets,
			RetryAttempts: cfg.Collection.RetryAttempts,
			RetryBackoff:  cfg.Collection.RetryBackoff,
		},
	)
}

// ProvideHTTPHandler creates the dashboard API handler.
func ProvideHTTPHandler(log *logger.Logger, orch *usecase.Orchestrator, narr *usecase.NarrativeJob, recent *logger.RecentBuffer) xhttp.Handler {
	return api.NewPipelineHandler(log, orch, narr, recent)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	orch *usecase.Orchestrator,
	narrQueue *queue.RedisQueue,
	collector *usecase.TickerCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSnapshotsHandler,
	proc *usecase.SnapshotProcessor,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, log, orch, narrQueue, collector, consumer, kh, proc, chClient, handler)
}
