package service

import (
	"context"

	"ChainPulse/internal/domain/models"
)

// NarrativeAnalyzer produces LLM-backed commentary for a metric snapshot.
// Implementations must honor ctx deadlines; unavailability degrades the
// pipeline to rule-only signals and never blocks the signal engine.
type NarrativeAnalyzer interface {
	Analyze(ctx context.Context, asset string, conditions *models.SignalConditions) (*models.NarrativeAnalysis, error)
}
