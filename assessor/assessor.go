// Package assessor defines the dimension assessor contract and registry.
package assessor

import (
	"context"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/types"
)

// Assessor scores one independent risk dimension for a subject.
// Keep it simple: Name + Assess. Implementations read the snapshot and
// return a score; they must not mutate shared state.
type Assessor interface {
	// Name returns the dimension this assessor scores (e.g., "behavioral")
	Name() string

	// Assess evaluates the snapshot and returns a score in [0,1].
	// The context carries the caller's per-assessor timeout.
	Assess(ctx context.Context, snapshot types.Snapshot, dim config.DimensionConfig) (types.DimensionScore, error)
}

// Func adapts a plain function to the Assessor interface
type Func struct {
	Dimension string
	Fn        func(ctx context.Context, snapshot types.Snapshot, dim config.DimensionConfig) (types.DimensionScore, error)
}

func (f Func) Name() string { return f.Dimension }

func (f Func) Assess(ctx context.Context, snapshot types.Snapshot, dim config.DimensionConfig) (types.DimensionScore, error) {
	return f.Fn(ctx, snapshot, dim)
}
