package baseline

import (
	"math"
	"sort"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/types"
)

// Detector compares assessments against a subject's baseline. Pure: no
// state, no clock; identical inputs yield identical reports.
type Detector struct {
	cfg        config.DriftConfig
	thresholds map[string]float64
}

// NewDetector creates a detector with the profile's drift configuration and
// per-dimension significance thresholds
func NewDetector(cfg config.DriftConfig, thresholds map[string]float64) *Detector {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-6
	}
	if cfg.SaturationCap <= 0 {
		cfg.SaturationCap = 4.0
	}
	return &Detector{cfg: cfg, thresholds: thresholds}
}

// Detect computes the normalized deviation of the assessment from the
// baseline. Per-dimension deviation is |score - mean| / max(stddev, eps),
// saturated into [0,1] by dividing through the saturation cap. The overall
// drift is the mean of the per-dimension deviations, not the max - a single
// noisy dimension must not trigger a system-wide drift alert.
func (d *Detector) Detect(assessment types.Assessment, b *Baseline) types.DriftReport {
	if !b.Mature() {
		report := types.DriftReport{InsufficientHistory: true}
		if b != nil {
			report.BaselineSamples = b.Samples
		}
		return report
	}

	report := types.DriftReport{
		PerDimension:    make(map[string]float64, len(assessment.Scores)),
		BaselineSamples: b.Samples,
	}

	var sum float64
	var n int
	for _, s := range assessment.Scores {
		stats, ok := b.Dimensions[s.Dimension]
		if !ok || stats.Count < 2 {
			// Dimension newly added to the profile; no history to compare
			continue
		}

		dev := math.Abs(s.Score-stats.Mean) / math.Max(stats.StdDev(), d.cfg.Epsilon)
		sat := saturate(dev, d.cfg.SaturationCap)

		report.PerDimension[s.Dimension] = sat
		sum += sat
		n++

		if threshold, ok := d.thresholds[s.Dimension]; ok && sat > threshold {
			report.Significant = append(report.Significant, s.Dimension)
		}
	}

	if n == 0 {
		return types.DriftReport{InsufficientHistory: true, BaselineSamples: b.Samples}
	}

	sort.Strings(report.Significant)
	report.OverallDrift = sum / float64(n)

	return report
}

// saturate maps a non-negative deviation into [0,1]
func saturate(dev, zCap float64) float64 {
	return math.Min(1.0, math.Max(0, dev/zCap))
}
