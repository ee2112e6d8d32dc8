// Package dispatch hands intervention decisions to external collaborators.
// Vigil only emits the decision: dispatchers deliver the symbolic action
// tokens to whatever system actually notifies, restricts, or isolates.
package dispatch

import (
	"context"
	"time"

	"github.com/veldt-labs/vigil/telemetry"
	"github.com/veldt-labs/vigil/types"
)

// Dispatcher delivers one intervention record to an external channel
type Dispatcher interface {
	// Name identifies the channel in dispatch outcomes
	Name() string

	// Dispatch delivers the record. Implementations must not block past
	// the context deadline.
	Dispatch(ctx context.Context, record *types.InterventionRecord) error
}

// LogDispatcher records interventions to the structured log. Always
// configured: the LOG action is present at every tier.
type LogDispatcher struct {
	logger *telemetry.Logger
}

// NewLogDispatcher creates a log-channel dispatcher
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{logger: telemetry.NewLogger("dispatch-log")}
}

func (d *LogDispatcher) Name() string { return "log" }

func (d *LogDispatcher) Dispatch(ctx context.Context, record *types.InterventionRecord) error {
	d.logger.LogIntervention(ctx, record)
	return nil
}

// Fanout delivers a record to every configured dispatcher, collecting one
// outcome per channel. A failed channel does not stop the others; the
// outcomes carry the errors for the audit record.
func Fanout(ctx context.Context, dispatchers []Dispatcher, record *types.InterventionRecord) []types.DispatchOutcome {
	outcomes := make([]types.DispatchOutcome, 0, len(dispatchers))
	for _, d := range dispatchers {
		outcome := types.DispatchOutcome{
			Action:       record.Actions[len(record.Actions)-1], // highest obligation
			Dispatcher:   d.Name(),
			DispatchedAt: time.Now(),
		}
		if err := d.Dispatch(ctx, record); err != nil {
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
