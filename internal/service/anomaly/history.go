package anomaly

import (
	"sync"
	"time"
)

// HistoryCapacity bounds each (asset, metric) rolling series.
const HistoryCapacity = 1000

// Point is one observed metric value.
type Point struct {
	Value     float64
	Timestamp time.Time
}

// ring is a fixed-capacity buffer; oldest points are overwritten first.
type ring struct {
	buf   []Point
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Point, capacity)}
}

func (r *ring) append(p Point) {
	r.buf[r.head] = p
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// values returns the series oldest-first.
func (r *ring) values() []float64 {
	out := make([]float64, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)].Value)
	}
	return out
}

// History keeps a bounded rolling series per (asset, metric) pair for
// baseline computation. Safe for concurrent use.
type History struct {
	mu sync.RWMutex
	m  map[string]*ring
}

// NewHistory creates an empty history store.
func NewHistory() *History {
	return &History{m: make(map[string]*ring)}
}

func key(asset, metric string) string { return asset + ":" + metric }

// Append records one observation, evicting the oldest at capacity.
func (h *History) Append(asset, metric string, value float64, ts time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.m[key(asset, metric)]
	if !ok {
		r = newRing(HistoryCapacity)
		h.m[key(asset, metric)] = r
	}
	r.append(Point{Value: value, Timestamp: ts})
}

// Series returns the rolling values for (asset, metric), oldest first.
func (h *History) Series(asset, metric string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.m[key(asset, metric)]
	if !ok {
		return nil
	}
	return r.values()
}

// Len reports how many points are held for (asset, metric).
func (h *History) Len(asset, metric string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.m[key(asset, metric)]
	if !ok {
		return 0
	}
	return r.count
}
