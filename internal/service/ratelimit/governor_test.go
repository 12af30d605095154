package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTryAcquireWithinLimits(t *testing.T) {
	g := New()
	g.Configure("glassnode", Quota{DayLimit: 10, MinuteLimit: 3})

	for i := 0; i < 3; i++ {
		if !g.TryAcquire("glassnode") {
			t.Fatalf("acquire %d should pass", i)
		}
	}
	if g.TryAcquire("glassnode") {
		t.Fatalf("minute limit should deny 4th acquire")
	}
	day, minute := g.Remaining("glassnode")
	if day != 7 || minute != 0 {
		t.Fatalf("remaining = (%d, %d), want (7, 0)", day, minute)
	}
}

func TestUnknownProviderDenied(t *testing.T) {
	g := New()
	if g.TryAcquire("nobody") {
		t.Fatalf("unconfigured provider must be denied")
	}
}

func TestMinuteWindowReset(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	g := New()
	g.now = func() time.Time { return now }
	g.Configure("glassnode", Quota{DayLimit: 100, MinuteLimit: 2})

	if !g.TryAcquire("glassnode") || !g.TryAcquire("glassnode") {
		t.Fatalf("first two should pass")
	}
	if g.TryAcquire("glassnode") {
		t.Fatalf("third within minute should fail")
	}

	now = base.Add(61 * time.Second)
	if !g.TryAcquire("glassnode") {
		t.Fatalf("acquire after minute boundary should pass")
	}
	day, _ := g.Remaining("glassnode")
	if day != 97 {
		t.Fatalf("day counter must not reset on minute boundary, remaining=%d", day)
	}
}

func TestDayWindowReset(t *testing.T) {
	base := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	now := base
	g := New()
	g.now = func() time.Time { return now }
	g.Configure("tokenterminal", Quota{DayLimit: 1, MinuteLimit: 10})

	if !g.TryAcquire("tokenterminal") {
		t.Fatalf("first should pass")
	}
	if g.TryAcquire("tokenterminal") {
		t.Fatalf("day limit should deny")
	}

	now = base.Add(2 * time.Minute) // crosses midnight
	if !g.TryAcquire("tokenterminal") {
		t.Fatalf("acquire after day boundary should pass")
	}
}

// Quota monotonicity: successes never exceed the configured limit no
// matter how many goroutines race on one provider.
func TestConcurrentAcquireNeverOversells(t *testing.T) {
	const limit = 50
	g := New()
	g.Configure("artemis", Quota{DayLimit: 1000, MinuteLimit: limit})

	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if g.TryAcquire("artemis") {
					atomic.AddInt64(&granted, 1)
				}
			}
		}()
	}
	wg.Wait()

	if granted != limit {
		t.Fatalf("granted = %d, want exactly %d", granted, limit)
	}
}
