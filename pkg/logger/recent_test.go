package logger

import (
	"context"
	"testing"
	"time"
)

func entry(msg string) AggregatedLogEntry {
	now := time.Now()
	return AggregatedLogEntry{Level: "error", Message: msg, Count: 1, FirstSeen: now, LastSeen: now}
}

func TestRecentBufferEvictsOldest(t *testing.T) {
	b := NewRecentBuffer(2)
	batch := []AggregatedLogEntry{entry("first"), entry("second"), entry("third")}
	if err := b.PublishMessage(context.Background(), "errors", batch); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := b.Recent()
	if len(got) != 2 {
		t.Fatalf("retained %d entries, want 2", len(got))
	}
	if got[0].Message != "second" || got[1].Message != "third" {
		t.Fatalf("retained wrong entries: %q, %q", got[0].Message, got[1].Message)
	}
}

func TestRecentBufferRejectsForeignPayload(t *testing.T) {
	b := NewRecentBuffer(10)
	if err := b.PublishMessage(context.Background(), "errors", "not a batch"); err == nil {
		t.Fatal("non-batch payload must be rejected")
	}
	if len(b.Recent()) != 0 {
		t.Fatal("rejected payload must not be retained")
	}
}

func TestCollectorFlushesErrorsToRecentBuffer(t *testing.T) {
	buf := NewRecentBuffer(10)
	l, err := New(&Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour, // rely on the count threshold
		CountThreshold: 1,
		Topic:          "errors",
		Publisher:      buf,
	})
	defer l.RemoveCollector()

	l.Error("upstream exploded", String("provider", "glassnode"))

	// flush publishes from a background goroutine
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(buf.Recent()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := buf.Recent()
	if len(got) == 0 {
		t.Fatal("error log never reached the recent buffer")
	}
	if got[0].Message != "upstream exploded" || got[0].Level != "error" {
		t.Fatalf("unexpected entry: %+v", got[0])
	}
}
