// Package daemon runs continuous assessment cycles for a fixed subject set.
package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/orchestrator"
	"github.com/veldt-labs/vigil/telemetry"
)

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	Subjects []string
	Profile  config.Profile
	Window   time.Duration
}

// Daemon manages the continuous assessment loop
type Daemon struct {
	orch       *orchestrator.Orchestrator
	interval   time.Duration
	subjects   []string
	profile    config.Profile
	window     time.Duration
	startTime  time.Time
	cycleCount atomic.Int64
	logger     *telemetry.Logger
}

// New creates a daemon over an orchestrator
func New(orch *orchestrator.Orchestrator, cfg Config) *Daemon {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Daemon{
		orch:      orch,
		interval:  interval,
		subjects:  cfg.Subjects,
		profile:   cfg.Profile,
		window:    cfg.Window,
		startTime: time.Now(),
		logger:    telemetry.NewLogger("daemon"),
	}
}

// Start begins the assessment loop; it returns when ctx is cancelled
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info().
		Dur("interval", d.interval).
		Int("subjects", len(d.subjects)).
		Str("profile", d.profile.Name).
		Msg("daemon starting")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("daemon stopping")
			return nil
		case <-ticker.C:
			d.runAll(ctx)
		}
	}
}

// runAll assesses every configured subject once. Failures are logged per
// subject and never stop the loop.
func (d *Daemon) runAll(ctx context.Context) {
	for _, subjectID := range d.subjects {
		if ctx.Err() != nil {
			return
		}
		_, err := d.orch.RunCycle(ctx, orchestrator.CycleRequest{
			SubjectID: subjectID,
			Profile:   d.profile,
			Window:    d.window,
		})
		if err != nil {
			d.logger.Error().
				Err(err).
				Str("subject_id", subjectID).
				Msg("scheduled assessment failed")
			continue
		}
		d.cycleCount.Add(1)
	}
}

// CycleCount returns the number of successful scheduled cycles
func (d *Daemon) CycleCount() int64 {
	return d.cycleCount.Load()
}

// Uptime returns how long the daemon has been running
func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.startTime)
}
