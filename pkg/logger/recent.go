package logger

import (
	"context"
	"fmt"
	"sync"
)

// RecentBuffer is a Publisher that retains the newest aggregated log
// entries in memory, so the API layer can surface recent errors without
// an external log backend.
type RecentBuffer struct {
	mu       sync.Mutex
	capacity int
	entries  []AggregatedLogEntry
}

// NewRecentBuffer creates a buffer keeping at most capacity entries.
func NewRecentBuffer(capacity int) *RecentBuffer {
	if capacity <= 0 {
		capacity = 50
	}
	return &RecentBuffer{capacity: capacity}
}

// PublishMessage receives one flushed batch from the LogCollector and
// appends it, evicting the oldest entries past capacity.
func (b *RecentBuffer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	logs, ok := payload.([]AggregatedLogEntry)
	if !ok {
		return fmt.Errorf("recent buffer: unexpected payload %T", payload)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, logs...)
	if n := len(b.entries) - b.capacity; n > 0 {
		b.entries = append([]AggregatedLogEntry(nil), b.entries[n:]...)
	}
	return nil
}

// Recent returns a copy of the retained entries, oldest first.
func (b *RecentBuffer) Recent() []AggregatedLogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]AggregatedLogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}
