package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ChainPulse/internal/usecase"
	xlogger "ChainPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

func newStatusFixture(t *testing.T) (*echo.Echo, *xlogger.RecentBuffer) {
	t.Helper()
	log, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	orch := usecase.NewOrchestrator(nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, log, usecase.Options{})
	recent := xlogger.NewRecentBuffer(10)

	e := echo.New()
	NewPipelineHandler(log, orch, nil, recent).RegisterRoutes(e)
	return e, recent
}

func TestStatusIncludesRecentErrors(t *testing.T) {
	e, recent := newStatusFixture(t)

	now := time.Now()
	if err := recent.PublishMessage(context.Background(), "errors", []xlogger.AggregatedLogEntry{
		{Level: "error", Message: "provider timeout", Count: 3, FirstSeen: now, LastSeen: now},
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Data struct {
			Pipeline     json.RawMessage             `json:"pipeline"`
			RecentErrors []xlogger.AggregatedLogEntry `json:"recent_errors"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Data.Pipeline) == 0 || string(body.Data.Pipeline) == "null" {
		t.Fatal("expected pipeline status in response")
	}
	if len(body.Data.RecentErrors) != 1 {
		t.Fatalf("recent_errors = %d entries, want 1", len(body.Data.RecentErrors))
	}
	if body.Data.RecentErrors[0].Message != "provider timeout" {
		t.Fatalf("unexpected entry: %+v", body.Data.RecentErrors[0])
	}
	if !strings.Contains(rec.Body.String(), `"is_running"`) {
		t.Fatal("expected orchestrator fields in pipeline status")
	}
}
