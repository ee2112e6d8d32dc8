package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/types"
)

// ErrCycleCancelled is returned when the caller cancelled an in-flight
// cycle; a cancelled cycle writes nothing
var ErrCycleCancelled = errors.New("assessment cycle cancelled")

// SnapshotSource supplies point-in-time views of a subject's behavior
type SnapshotSource interface {
	Snapshot(ctx context.Context, subjectID string, window time.Duration) (types.Snapshot, error)
}

// SourceFunc adapts a function to the SnapshotSource interface
type SourceFunc func(ctx context.Context, subjectID string, window time.Duration) (types.Snapshot, error)

func (f SourceFunc) Snapshot(ctx context.Context, subjectID string, window time.Duration) (types.Snapshot, error) {
	return f(ctx, subjectID, window)
}

// CycleRequest describes one assessment cycle. The profile travels with the
// request so concurrent cycles can run different profiles without shared
// configuration.
type CycleRequest struct {
	SubjectID        string
	Profile          config.Profile
	Window           time.Duration
	CrisisIndicators []string

	// CycleID, when set, names the cycle up front (async submissions
	// return it before the cycle runs). Generated when empty.
	CycleID string

	// Snapshot, when set, is used instead of the configured source.
	// The HTTP surface uses this for submissions that carry observations.
	Snapshot *types.Snapshot
}

// CycleResult contains the results of one assessment cycle
type CycleResult struct {
	CycleID      string                    `json:"cycle_id"`
	StartTime    time.Time                 `json:"start_time"`
	EndTime      time.Time                 `json:"end_time"`
	Duration     time.Duration             `json:"duration"`
	Assessment   *types.Assessment         `json:"assessment,omitempty"`
	Intervention *types.InterventionRecord `json:"intervention,omitempty"`
	Success      bool                      `json:"success"`
	Errors       []string                  `json:"errors,omitempty"`
}
