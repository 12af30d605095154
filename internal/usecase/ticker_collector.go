package usecase

import (
	"context"
	"strings"

	"ChainPulse/internal/domain/models"
	drepo "ChainPulse/internal/domain/repository"
	mid "ChainPulse/internal/middleware"
)

// TickerApplier applies live ticks to the registry and gauges.
type TickerApplier struct {
	registry drepo.AssetRegistry
	metrics  drepo.Metrics
}

func NewTickerApplier(registry drepo.AssetRegistry, metrics drepo.Metrics) *TickerApplier {
	return &TickerApplier{registry: registry, metrics: metrics}
}

// Process applies one tick. Unknown symbols are fine, the stream may
// carry more pairs than the registry tracks.
func (a *TickerApplier) Process(ctx context.Context, t *models.Ticker) error {
	symbol := baseSymbol(t.Symbol)
	a.metrics.RecordLastPrice(symbol, t.Price)
	_ = a.registry.UpdateMarket(ctx, symbol, t.Price, 0)
	return nil
}

// TickerCollector consumes the live exchange stream and keeps last
// prices fresh between collection passes.
type TickerCollector struct {
	stream  drepo.TickerStream
	applier *TickerApplier
	metrics drepo.Metrics
	pipe    *mid.TickerPipeline
}

// NewTickerCollector creates a new TickerCollector instance.
func NewTickerCollector(stream drepo.TickerStream, applier *TickerApplier, metrics drepo.Metrics, pipe *mid.TickerPipeline) *TickerCollector {
	return &TickerCollector{stream: stream, applier: applier, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the exchange stream is connected.
func (c *TickerCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickerCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tkCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tkCh, errCh)
	return nil
}

func (c *TickerCollector) consume(ctx context.Context, tkCh <-chan *models.Ticker, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case t := <-tkCh:
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.applier.Process(ctx, t)
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *TickerCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}

func (c *TickerCollector) Stop() error { return c.stream.Close() }

// baseSymbol strips the quote currency from an exchange pair, so
// "BTCUSDT" matches the registry's "BTC".
func baseSymbol(pair string) string {
	for _, quote := range []string{"USDT", "BUSD", "USDC", "USD"} {
		if strings.HasSuffix(pair, quote) && len(pair) > len(quote) {
			return strings.TrimSuffix(pair, quote)
		}
	}
	return pair
}

var _ mid.TickerProc = (*TickerApplier)(nil)
