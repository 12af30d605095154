package narrative

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ChainPulse/internal/domain/models"
)

func TestAnalyzeStructured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"recommendation":"ACCUMULATE","confidence":0.72,"reasoning":"valuation reset","risk_factors":["funding squeeze"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, 1, time.Millisecond)
	got, err := c.Analyze(context.Background(), "bitcoin", &models.SignalConditions{Asset: "bitcoin"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Kind != models.NarrativeStructured {
		t.Fatalf("kind = %v", got.Kind)
	}
	if got.Recommendation != "ACCUMULATE" || got.Confidence != 0.72 {
		t.Fatalf("recommendation = %q confidence = %v", got.Recommendation, got.Confidence)
	}
	if len(got.RiskFactors) != 1 {
		t.Fatalf("risk factors = %v", got.RiskFactors)
	}
}

func TestAnalyzeUnstructuredFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"Market looks oversold but stay cautious."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, 1, time.Millisecond)
	got, err := c.Analyze(context.Background(), "bitcoin", nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Kind != models.NarrativeUnstructured {
		t.Fatalf("kind = %v", got.Kind)
	}
	if got.RawText == "" {
		t.Fatal("raw text must carry the reply")
	}
	if got.Recommendation != "" {
		t.Fatalf("unstructured result must not fake a recommendation: %q", got.Recommendation)
	}
}

func TestAnalyzeRetriesTransientFailure(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"recommendation":"HOLD","confidence":0.5}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, 2, time.Millisecond)
	got, err := c.Analyze(context.Background(), "ethereum", nil)
	if err != nil {
		t.Fatalf("analyze after retry: %v", err)
	}
	if got.Kind != models.NarrativeStructured {
		t.Fatalf("kind = %v", got.Kind)
	}
	if n := atomic.LoadInt64(&hits); n != 2 {
		t.Fatalf("upstream hit %d times, want 2", n)
	}
}

func TestAnalyzeUnconfigured(t *testing.T) {
	c := NewClient("", time.Second, 1, time.Millisecond)
	if _, err := c.Analyze(context.Background(), "bitcoin", nil); err == nil {
		t.Fatal("unconfigured client must fail fast")
	}
}

func TestAnalyzeFailureReturnsWithoutTrailingBackoff(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	retryDelay := 150 * time.Millisecond
	c := NewClient(srv.URL, 5*time.Second, 2, retryDelay)

	start := time.Now()
	_, err := c.Analyze(context.Background(), "bitcoin", nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("analyze must fail when every attempt fails")
	}
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
	// one backoff between the two attempts, none after the last
	if elapsed >= 2*retryDelay {
		t.Fatalf("elapsed %v includes a backoff after the final attempt", elapsed)
	}
}
