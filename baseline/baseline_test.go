package baseline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_Welford(t *testing.T) {
	var s Stats
	samples := []float64{0.2, 0.4, 0.6, 0.8}
	for _, x := range samples {
		s.Fold(x)
	}

	assert.Equal(t, int64(4), s.Count)
	assert.InDelta(t, 0.5, s.Mean, 1e-12)

	// Sample variance of {0.2, 0.4, 0.6, 0.8} is 0.2/3
	assert.InDelta(t, 0.2/3.0, s.Variance(), 1e-12)
	assert.InDelta(t, math.Sqrt(0.2/3.0), s.StdDev(), 1e-12)
}

func TestStats_VarianceNeedsTwoSamples(t *testing.T) {
	var s Stats
	assert.Zero(t, s.Variance())

	s.Fold(0.5)
	assert.Zero(t, s.Variance())

	s.Fold(0.7)
	assert.Greater(t, s.Variance(), 0.0)
}

func TestStats_ConstantSeries(t *testing.T) {
	var s Stats
	for i := 0; i < 10; i++ {
		s.Fold(0.3)
	}
	assert.InDelta(t, 0.3, s.Mean, 1e-12)
	assert.InDelta(t, 0.0, s.Variance(), 1e-12)
}

func TestBaseline_Mature(t *testing.T) {
	var nilBaseline *Baseline
	assert.False(t, nilBaseline.Mature())

	b := &Baseline{SubjectID: "agent-7", Samples: 1}
	assert.False(t, b.Mature())

	b.Samples = 2
	assert.True(t, b.Mature())
}

func TestBaseline_CloneIsDeep(t *testing.T) {
	b := &Baseline{
		SubjectID:  "agent-7",
		Dimensions: map[string]Stats{"behavioral": {Count: 3, Mean: 0.2}},
		Samples:    3,
	}

	c := b.Clone()
	stats := c.Dimensions["behavioral"]
	stats.Fold(0.9)
	c.Dimensions["behavioral"] = stats

	assert.Equal(t, int64(3), b.Dimensions["behavioral"].Count)
	assert.InDelta(t, 0.2, b.Dimensions["behavioral"].Mean, 1e-12)
}
