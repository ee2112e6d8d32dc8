// Package aggregate combines per-dimension scores into one overall score.
package aggregate

import (
	"fmt"
	"math"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/types"
)

// Result is the aggregation output for one assessment cycle
type Result struct {
	Overall  float64
	Cascades []types.CascadeFlag
}

// Aggregate computes the weight-normalized mean of dimension scores and
// raises a cascade flag when two or more dimensions exceed the elevated
// threshold simultaneously. Missing weights default to 1.0. Output is
// deterministic: scores are folded in input order, no clock, no randomness.
func Aggregate(scores []types.DimensionScore, weights map[string]float64, cascade config.CascadeConfig) (Result, error) {
	if len(scores) == 0 {
		return Result{}, fmt.Errorf("no dimension scores to aggregate")
	}

	var weightedSum, totalWeight float64
	var elevated []string

	for i := range scores {
		s := &scores[i]
		if err := s.Validate(); err != nil {
			return Result{}, fmt.Errorf("aggregation rejected score: %w", err)
		}

		w, ok := weights[s.Dimension]
		if !ok {
			w = 1.0
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return Result{}, fmt.Errorf("malformed weight %f for dimension %s", w, s.Dimension)
		}

		weightedSum += s.Score * w
		totalWeight += w

		if s.Score > cascade.ElevatedThreshold {
			elevated = append(elevated, s.Dimension)
		}
	}

	if totalWeight == 0 {
		return Result{}, fmt.Errorf("total dimension weight is zero")
	}

	overall := weightedSum / totalWeight

	var flags []types.CascadeFlag
	if len(elevated) >= 2 {
		flags = append(flags, types.CascadeFlag{
			Dimensions: elevated,
			Threshold:  cascade.ElevatedThreshold,
			Penalty:    cascade.Penalty,
		})
		overall += cascade.Penalty
	}

	overall = math.Min(1.0, overall)

	// Round to 1e-9 so summation order cannot nudge a score across a tier
	// boundary (1.2/3 must compare equal to 0.4).
	overall = math.Round(overall*1e9) / 1e9

	return Result{Overall: overall, Cascades: flags}, nil
}
