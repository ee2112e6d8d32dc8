package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/types"
)

func score(dim string, v float64) types.DimensionScore {
	return types.DimensionScore{Dimension: dim, Score: v, Band: types.BandFor(v)}
}

func defaultCascade() config.CascadeConfig {
	return config.CascadeConfig{ElevatedThreshold: 0.6, Penalty: 0.1}
}

func TestAggregate_WeightedMean(t *testing.T) {
	scores := []types.DimensionScore{
		score("behavioral", 0.2),
		score("integrity", 0.4),
		score("technical", 0.6),
	}
	weights := map[string]float64{
		"behavioral": 2.0,
		"integrity":  1.0,
		"technical":  1.0,
	}

	result, err := Aggregate(scores, weights, defaultCascade())
	require.NoError(t, err)

	// (0.2*2 + 0.4 + 0.6) / 4 = 0.35
	assert.InDelta(t, 0.35, result.Overall, 1e-9)
	assert.Empty(t, result.Cascades)
}

func TestAggregate_MissingWeightDefaultsToOne(t *testing.T) {
	scores := []types.DimensionScore{
		score("behavioral", 0.4),
		score("integrity", 0.2),
	}

	result, err := Aggregate(scores, map[string]float64{"behavioral": 1.0}, defaultCascade())
	require.NoError(t, err)
	assert.InDelta(t, 0.3, result.Overall, 1e-9)
}

func TestAggregate_Deterministic(t *testing.T) {
	scores := []types.DimensionScore{
		score("behavioral", 0.31),
		score("integrity", 0.47),
		score("technical", 0.12),
		score("communication", 0.88),
	}
	weights := map[string]float64{"behavioral": 1.5, "integrity": 2.0}

	first, err := Aggregate(scores, weights, defaultCascade())
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		again, err := Aggregate(scores, weights, defaultCascade())
		require.NoError(t, err)
		assert.Equal(t, first.Overall, again.Overall)
	}
}

func TestAggregate_CascadeDetection(t *testing.T) {
	scores := []types.DimensionScore{
		score("behavioral", 0.7),
		score("integrity", 0.65),
		score("technical", 0.1),
	}

	result, err := Aggregate(scores, nil, defaultCascade())
	require.NoError(t, err)

	require.Len(t, result.Cascades, 1)
	assert.ElementsMatch(t, []string{"behavioral", "integrity"}, result.Cascades[0].Dimensions)

	// mean (0.7+0.65+0.1)/3 plus the 0.1 penalty
	assert.InDelta(t, 1.45/3.0+0.1, result.Overall, 1e-9)
}

func TestAggregate_SingleElevatedNoCascade(t *testing.T) {
	scores := []types.DimensionScore{
		score("behavioral", 0.9),
		score("integrity", 0.1),
	}

	result, err := Aggregate(scores, nil, defaultCascade())
	require.NoError(t, err)
	assert.Empty(t, result.Cascades)
	assert.InDelta(t, 0.5, result.Overall, 1e-9)
}

func TestAggregate_ExactlyAtThresholdNotElevated(t *testing.T) {
	// Elevated means strictly above the threshold.
	scores := []types.DimensionScore{
		score("behavioral", 0.6),
		score("integrity", 0.6),
	}

	result, err := Aggregate(scores, nil, defaultCascade())
	require.NoError(t, err)
	assert.Empty(t, result.Cascades)
}

func TestAggregate_PenaltyCappedAtOne(t *testing.T) {
	scores := []types.DimensionScore{
		score("behavioral", 1.0),
		score("integrity", 0.95),
	}

	result, err := Aggregate(scores, nil, defaultCascade())
	require.NoError(t, err)
	require.Len(t, result.Cascades, 1)
	assert.Equal(t, 1.0, result.Overall)
}

func TestAggregate_FailedDimensionWithCascadeHitsBoundary(t *testing.T) {
	// A failed assessor scores 1.0; with two quiet dimensions at 0.1 the
	// mean is 1.2/3 and must land exactly on 0.4, not a float hair below.
	scores := []types.DimensionScore{
		{Dimension: "behavioral", Score: 1.0, Band: types.BandCritical, Failed: true},
		score("integrity", 0.1),
		score("technical", 0.1),
	}

	result, err := Aggregate(scores, nil, defaultCascade())
	require.NoError(t, err)
	assert.Equal(t, 0.4, result.Overall)
	assert.Empty(t, result.Cascades)
}

func TestAggregate_RejectsMalformedWeights(t *testing.T) {
	scores := []types.DimensionScore{score("behavioral", 0.5)}

	_, err := Aggregate(scores, map[string]float64{"behavioral": -1.0}, defaultCascade())
	assert.Error(t, err)
}

func TestAggregate_RejectsZeroTotalWeight(t *testing.T) {
	scores := []types.DimensionScore{
		score("behavioral", 0.5),
		score("integrity", 0.5),
	}

	_, err := Aggregate(scores, map[string]float64{"behavioral": 0, "integrity": 0}, defaultCascade())
	assert.Error(t, err)
}

func TestAggregate_RejectsOutOfRangeScore(t *testing.T) {
	scores := []types.DimensionScore{
		{Dimension: "behavioral", Score: 1.5, Band: types.BandCritical},
	}

	_, err := Aggregate(scores, nil, defaultCascade())
	assert.Error(t, err)
}

func TestAggregate_EmptyScores(t *testing.T) {
	_, err := Aggregate(nil, nil, defaultCascade())
	assert.Error(t, err)
}
