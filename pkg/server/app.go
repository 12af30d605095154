package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	svcmetrics "ChainPulse/internal/service/metrics"
	"ChainPulse/internal/usecase"
	pkgch "ChainPulse/pkg/clickhouse"
	"ChainPulse/pkg/config"
	xhttp "ChainPulse/pkg/http"
	pkgkafka "ChainPulse/pkg/kafka"
	applogger "ChainPulse/pkg/logger"
	"ChainPulse/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	orch       *usecase.Orchestrator
	narrQueue  *queue.RedisQueue
	collector  *usecase.TickerCollector
	consumer   *pkgkafka.Consumer
	kh         *usecase.KafkaSnapshotsHandler
	proc       *usecase.SnapshotProcessor
	chClient   *pkgch.Client
	httpServer *xhttp.Server
	handler    xhttp.Handler
}

// New creates a new App instance with all dependencies. The narrative
// queue, ticker collector and kafka consumer are optional and may be
// nil depending on configuration.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	orch *usecase.Orchestrator,
	narrQueue *queue.RedisQueue,
	collector *usecase.TickerCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSnapshotsHandler,
	proc *usecase.SnapshotProcessor,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		orch:      orch,
		narrQueue: narrQueue,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		proc:      proc,
		chClient:  chClient,
		handler:   handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcmetrics.Register()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(a.log, time.Second),
	)

	// Collection pipeline. Start runs one synchronous pass and is
	// fatal when the snapshot store is unreachable.
	if err := a.orch.Start(ctx); err != nil {
		a.log.Error("orchestrator start failed", applogger.Error(err))
		return err
	}
	a.log.Info("collection pipeline started",
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Strings("providers", a.orch.ProviderNames()))

	// Optional narrative worker queue.
	if a.narrQueue != nil {
		if err := a.narrQueue.Start(); err != nil {
			a.log.Error("narrative queue start failed", applogger.Error(err))
		} else {
			a.narrQueue.StartRetryProcessor()
			a.log.Info("narrative queue started",
				applogger.Int("workers", a.cfg.Narrative.Workers))
		}
	}

	// Optional realtime ticker stream.
	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.log.Error("ticker collector error", applogger.Error(err))
			}
		}()
		a.log.Info("ticker stream started",
			applogger.Strings("symbols", a.cfg.Stream.Symbols))
	}

	// Snapshot ingest consumer for the kafka backend.
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server listening", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services in reverse start order.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("ticker collector stop error", applogger.Error(err))
		}
	}

	if a.narrQueue != nil {
		if err := a.narrQueue.Stop(shutdownCtx); err != nil {
			a.log.Warn("narrative queue stop error", applogger.Error(err))
		}
	}

	// Stops tickers and waits for in-flight passes.
	a.orch.Stop()

	// Closes the event publisher and the snapshot store.
	if a.proc != nil {
		a.proc.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
