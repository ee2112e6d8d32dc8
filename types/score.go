package types

import (
	"fmt"
	"math"
)

// SeverityBand buckets a dimension score for human consumption
type SeverityBand string

const (
	BandNone     SeverityBand = "none"
	BandLow      SeverityBand = "low"
	BandMedium   SeverityBand = "medium"
	BandHigh     SeverityBand = "high"
	BandCritical SeverityBand = "critical"
)

// DimensionScore is the result of one assessor run for one dimension.
// Immutable once produced; a failed assessor is recorded as maximum risk.
type DimensionScore struct {
	Dimension string         `json:"dimension"`
	Score     float64        `json:"score"`
	Band      SeverityBand   `json:"band"`
	Evidence  map[string]any `json:"evidence,omitempty"`
	Failed    bool           `json:"failed,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Validate ensures the score is in bounds
func (d *DimensionScore) Validate() error {
	if d.Dimension == "" {
		return fmt.Errorf("dimension score missing dimension name")
	}
	if math.IsNaN(d.Score) || d.Score < 0 || d.Score > 1 {
		return fmt.Errorf("dimension %s score %f out of [0,1]", d.Dimension, d.Score)
	}
	return nil
}

// BandFor maps a score in [0,1] to its severity band
func BandFor(score float64) SeverityBand {
	switch {
	case score >= 0.9:
		return BandCritical
	case score >= 0.7:
		return BandHigh
	case score >= 0.4:
		return BandMedium
	case score > 0.1:
		return BandLow
	default:
		return BandNone
	}
}

// FailedScore builds the fail-safe score for an assessor that errored or
// timed out: maximum risk, never neutral.
func FailedScore(dimension string, err error) DimensionScore {
	ds := DimensionScore{
		Dimension: dimension,
		Score:     1.0,
		Band:      BandCritical,
		Failed:    true,
	}
	if err != nil {
		ds.Error = err.Error()
	}
	return ds
}
