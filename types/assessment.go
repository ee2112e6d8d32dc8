package types

import (
	"fmt"
	"time"
)

// CascadeFlag marks two or more dimensions elevated at the same time.
// Compounding risk beyond what their plain average implies.
type CascadeFlag struct {
	Dimensions []string `json:"dimensions"`
	Threshold  float64  `json:"threshold"`
	Penalty    float64  `json:"penalty"`
}

// DriftReport describes deviation of one assessment from the subject's baseline
type DriftReport struct {
	OverallDrift        float64            `json:"overall_drift"`
	PerDimension        map[string]float64 `json:"per_dimension,omitempty"`
	Significant         []string           `json:"significant,omitempty"`
	InsufficientHistory bool               `json:"insufficient_history,omitempty"`
	BaselineSamples     int64              `json:"baseline_samples"`
}

// HasSignificant reports whether any dimension drifted past its threshold
func (r *DriftReport) HasSignificant() bool {
	return r != nil && !r.InsufficientHistory && len(r.Significant) > 0
}

// Assessment is the unit of record: one orchestration cycle for one subject.
// Immutable once appended to the audit store.
type Assessment struct {
	ID        string           `json:"id"`
	SubjectID string           `json:"subject_id"`
	Profile   string           `json:"profile,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Scores    []DimensionScore `json:"scores"`
	Overall   float64          `json:"overall"`
	Cascades  []CascadeFlag    `json:"cascades,omitempty"`
	Drift     *DriftReport     `json:"drift,omitempty"`
	Degraded  bool             `json:"degraded,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Validate checks assessment invariants before it is accepted for audit
func (a *Assessment) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("assessment ID cannot be empty")
	}
	if a.SubjectID == "" {
		return fmt.Errorf("assessment subject ID cannot be empty")
	}
	if a.Overall < 0 || a.Overall > 1 {
		return fmt.Errorf("assessment overall score %f out of [0,1]", a.Overall)
	}
	for i := range a.Scores {
		if err := a.Scores[i].Validate(); err != nil {
			return fmt.Errorf("invalid score: %w", err)
		}
	}
	return nil
}

// HasCascade reports whether any cascade flag was raised
func (a *Assessment) HasCascade() bool {
	return len(a.Cascades) > 0
}

// FailedDimensions lists dimensions whose assessors failed
func (a *Assessment) FailedDimensions() []string {
	var out []string
	for _, s := range a.Scores {
		if s.Failed {
			out = append(out, s.Dimension)
		}
	}
	return out
}
