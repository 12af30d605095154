package models

import "time"

// ValidationResult is produced once per raw payload and never mutated.
type ValidationResult struct {
	IsValid    bool               `json:"is_valid"`
	Values     map[string]float64 `json:"values,omitempty"`
	Confidence float64            `json:"confidence"` // 0..1
	Source     Source             `json:"source"`
	Timestamp  time.Time          `json:"timestamp"`
	Error      string             `json:"error,omitempty"`
}
