package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"ChainPulse/pkg/logger"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New("wss://example.invalid", []string{"btcusdt"}, time.Millisecond, time.Second, log).(*Client)
}

func TestParseTicker(t *testing.T) {
	tk, ok := parseTicker(miniTicker{Symbol: "BTCUSDT", Close: "50123.45", Volume: "812.5", Time: 1_700_000_000_000})
	if !ok {
		t.Fatal("valid frame must parse")
	}
	if tk.Price != 50123.45 || tk.Volume != 812.5 {
		t.Fatalf("parsed price=%v volume=%v", tk.Price, tk.Volume)
	}
	if tk.Timestamp != 1_700_000_000 {
		t.Fatalf("timestamp = %d, want seconds", tk.Timestamp)
	}

	if _, ok := parseTicker(miniTicker{Symbol: "BTCUSDT", Close: "-1"}); ok {
		t.Fatal("non-positive price must be dropped")
	}
	if _, ok := parseTicker(miniTicker{Close: "100"}); ok {
		t.Fatal("empty symbol must be dropped")
	}
}

func TestConnectionStateConcurrentAccess(t *testing.T) {
	c := testClient(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.IsConnected()
				_ = c.Subscribe(context.Background())
				_ = c.Close()
			}
		}()
	}
	wg.Wait()

	if c.IsConnected() {
		t.Fatal("closed client must report disconnected")
	}
	if err := c.Subscribe(context.Background()); err == nil {
		t.Fatal("subscribe without a connection must fail")
	}
}
