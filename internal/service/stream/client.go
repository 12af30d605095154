package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ChainPulse/internal/domain/models"
	drepo "ChainPulse/internal/domain/repository"
	"ChainPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a TickerStream backed by a Binance-style combined
// miniTicker WebSocket. The public stream is keyless.
type Client struct {
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a live ticker stream client.
func New(websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) drepo.TickerStream {
	return &Client{
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the combined-stream WebSocket connection. All
// configured symbols ride one connection.
func (c *Client) Connect(ctx context.Context) error {
	streams := make([]string, len(c.symbols))
	for i, s := range c.symbols {
		streams[i] = strings.ToLower(s) + "@miniTicker"
	}
	u := fmt.Sprintf("%s/stream?streams=%s", c.websocketURL, strings.Join(streams, "/"))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("ticker stream connected", logger.Int("symbols", len(c.symbols)))
	return nil
}

// current returns the active connection, nil when disconnected.
func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	return c.conn
}

// Subscribe is a no-op: combined streams subscribe via the URL.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.current() == nil {
		return fmt.Errorf("stream not connected")
	}
	return nil
}

// numeric fields arrive as JSON strings
type miniTicker struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
	Volume string `json:"v"`
	Time   int64  `json:"E"` // ms
}

type streamFrame struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

// Read streams ticker events and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.Ticker, <-chan error) {
	ticks := make(chan *models.Ticker, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if conn := c.current(); conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				conn := c.current()
				if conn == nil {
					errs <- fmt.Errorf("stream conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("stream read: %w", err)
					return
				}
				var f streamFrame
				if err := json.Unmarshal(b, &f); err != nil {
					// ignore non-ticker frames
					continue
				}
				t, ok := parseTicker(f.Data)
				if !ok {
					continue
				}
				select {
				case ticks <- t:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return ticks, errs
}

func parseTicker(m miniTicker) (*models.Ticker, bool) {
	if m.Symbol == "" {
		return nil, false
	}
	price, err := strconv.ParseFloat(m.Close, 64)
	if err != nil || price <= 0 {
		return nil, false
	}
	volume, _ := strconv.ParseFloat(m.Volume, 64)
	return &models.Ticker{
		Symbol:    m.Symbol,
		Price:     price,
		Volume:    volume,
		Timestamp: m.Time / 1000,
	}, true
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
