package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ChainPulse/internal/domain/models"
	domsvc "ChainPulse/internal/domain/service"
	svcmetrics "ChainPulse/internal/service/metrics"
	xhttp "ChainPulse/pkg/http"
)

// Client calls the external LLM narrative service over HTTP. The
// service is a black box that returns either a parseable structured
// recommendation or free text; both are carried back tagged so callers
// never guess.
type Client struct {
	baseURL    string
	client     *xhttp.Client
	retryLimit int
	retryDelay time.Duration
}

// NewClient builds a narrative client. An empty baseURL yields a client
// whose Analyze always fails fast; the pipeline then runs rule-only.
func NewClient(baseURL string, timeout time.Duration, retryLimit int, retryDelay time.Duration) *Client {
	if retryLimit <= 0 {
		retryLimit = 1
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Client{
		baseURL:    baseURL,
		client:     xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retryLimit: retryLimit,
		retryDelay: retryDelay,
	}
}

type analyzeResponse struct {
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	RiskFactors    []string `json:"risk_factors"`
	Text           string   `json:"text"`
}

// Analyze posts the snapshot and parses the reply. Responses carrying a
// recommendation come back Structured; anything else degrades to an
// Unstructured carry of the raw text.
func (c *Client) Analyze(ctx context.Context, asset string, conditions *models.SignalConditions) (*models.NarrativeAnalysis, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("narrative service not configured")
	}

	payload := map[string]interface{}{
		"asset":      asset,
		"conditions": conditions,
	}

	var raw json.RawMessage
	if err := c.postWithRetry(ctx, "/analyze", payload, &raw); err != nil {
		return nil, err
	}

	now := time.Now()
	var resp analyzeResponse
	if err := json.Unmarshal(raw, &resp); err == nil && strings.TrimSpace(resp.Recommendation) != "" {
		return &models.NarrativeAnalysis{
			Asset:          asset,
			Kind:           models.NarrativeStructured,
			Recommendation: resp.Recommendation,
			Confidence:     resp.Confidence,
			Reasoning:      resp.Reasoning,
			RiskFactors:    resp.RiskFactors,
			Timestamp:      now,
		}, nil
	}

	text := resp.Text
	if text == "" {
		text = string(raw)
	}
	return &models.NarrativeAnalysis{
		Asset:     asset,
		Kind:      models.NarrativeUnstructured,
		RawText:   text,
		Timestamp: now,
	}, nil
}

func (c *Client) postWithRetry(ctx context.Context, path string, payload, dest interface{}) error {
	start := time.Now()
	defer func() {
		svcmetrics.NarrativeLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	var err error
	for i := 1; i <= c.retryLimit; i++ {
		err = c.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    c.baseURL + path,
			Headers: map[string]string{
				"Content-Type": "application/json",
			},
			Body: payload,
		}, dest)
		if err == nil {
			return nil
		}
		if i == c.retryLimit {
			break
		}
		select {
		case <-time.After(time.Duration(i) * c.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	svcmetrics.NarrativeErrors.WithLabelValues(path).Inc()
	return fmt.Errorf("post %s: %w", path, err)
}

var _ domsvc.NarrativeAnalyzer = (*Client)(nil)
