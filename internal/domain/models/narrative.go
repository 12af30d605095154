package models

import "time"

// NarrativeKind discriminates how the analysis response could be parsed.
type NarrativeKind string

const (
	NarrativeStructured   NarrativeKind = "structured"
	NarrativeUnstructured NarrativeKind = "unstructured"
)

// NarrativeAnalysis is the LLM-backed commentary for one asset snapshot.
// Kind tells downstream code which half is populated: Structured carries the
// parsed recommendation, Unstructured carries the raw text only.
type NarrativeAnalysis struct {
	Asset          string        `json:"asset"`
	Kind           NarrativeKind `json:"kind"`
	Recommendation string        `json:"recommendation,omitempty"`
	Confidence     float64       `json:"confidence,omitempty"`
	Reasoning      string        `json:"reasoning,omitempty"`
	RiskFactors    []string      `json:"risk_factors,omitempty"`
	RawText        string        `json:"raw_text,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
