package assessor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/types"
)

func TestRegistry_BuiltinsPreloaded(t *testing.T) {
	r := NewRegistry()

	for _, dim := range []string{"behavioral", "integrity", "technical", "communication"} {
		_, ok := r.Get(dim)
		assert.True(t, ok, "builtin %s missing", dim)
	}
}

func TestRegistry_RegisterReplacesBuiltin(t *testing.T) {
	r := NewRegistry()

	custom := Func{
		Dimension: "behavioral",
		Fn: func(context.Context, types.Snapshot, config.DimensionConfig) (types.DimensionScore, error) {
			return types.DimensionScore{Dimension: "behavioral", Score: 0.42, Band: types.BandMedium}, nil
		},
	}
	r.Register(custom)

	a, ok := r.Get("behavioral")
	require.True(t, ok)

	score, err := a.Assess(context.Background(), types.Snapshot{}, config.DimensionConfig{})
	require.NoError(t, err)
	assert.Equal(t, 0.42, score.Score)
}

func TestRegistry_ResolveOrderMatchesProfile(t *testing.T) {
	r := NewRegistry()

	assessors, err := r.Resolve([]string{"technical", "behavioral", "integrity"})
	require.NoError(t, err)
	require.Len(t, assessors, 3)
	assert.Equal(t, "technical", assessors[0].Name())
	assert.Equal(t, "behavioral", assessors[1].Name())
	assert.Equal(t, "integrity", assessors[2].Name())
}

func TestRegistry_ResolveUnknownDimension(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve([]string{"behavioral", "astral"})
	assert.Error(t, err)
}
