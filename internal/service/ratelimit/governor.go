package ratelimit

import (
	"sync"
	"time"
)

// Quota holds the per-provider request budget limits.
type Quota struct {
	DayLimit    int
	MinuteLimit int
}

type window struct {
	dayCount        int
	minuteCount     int
	lastDayReset    time.Time
	lastMinuteReset time.Time
	quota           Quota
}

// Governor enforces per-provider day and minute request budgets.
// Check-then-increment is atomic: two concurrent callers can never both
// pass when only one budget slot remains.
type Governor struct {
	mu  sync.Mutex
	m   map[string]*window
	now func() time.Time
}

// New creates a Governor. Providers are registered lazily on first use
// with the quota given to TryAcquire via Configure.
func New() *Governor {
	return &Governor{m: make(map[string]*window), now: time.Now}
}

// Configure sets the budget for a provider. Counters are kept if the
// provider was already known so a reconfigure cannot grant extra budget
// mid-window.
func (g *Governor) Configure(provider string, q Quota) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.m[provider]
	if !ok {
		now := g.now()
		g.m[provider] = &window{quota: q, lastDayReset: now, lastMinuteReset: now}
		return
	}
	w.quota = q
}

// TryAcquire consumes one budget slot for provider if both the day and
// minute counters are below their limits. Denied callers must defer to
// the next scheduled pass, never busy-retry.
func (g *Governor) TryAcquire(provider string) bool {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.m[provider]
	if !ok {
		// unknown provider: no budget configured, deny
		return false
	}
	g.roll(w, now)

	if w.dayCount >= w.quota.DayLimit || w.minuteCount >= w.quota.MinuteLimit {
		return false
	}
	w.dayCount++
	w.minuteCount++
	return true
}

// Remaining reports how many requests are left in the current day and
// minute windows.
func (g *Governor) Remaining(provider string) (day, minute int) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.m[provider]
	if !ok {
		return 0, 0
	}
	g.roll(w, now)
	return w.quota.DayLimit - w.dayCount, w.quota.MinuteLimit - w.minuteCount
}

// roll zeroes counters exactly once per window boundary crossing.
// Caller holds g.mu.
func (g *Governor) roll(w *window, now time.Time) {
	if now.YearDay() != w.lastDayReset.YearDay() || now.Year() != w.lastDayReset.Year() {
		w.dayCount = 0
		w.lastDayReset = now
	}
	if now.Sub(w.lastMinuteReset) >= time.Minute {
		w.minuteCount = 0
		w.lastMinuteReset = now
	}
}
