package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Engine metric instruments, following OTEL naming conventions
var (
	CyclesRun        metric.Int64Counter
	CycleDuration    metric.Float64Histogram
	AssessorFailures metric.Int64Counter
	AssessorDuration metric.Float64Histogram
	TierDecisions    metric.Int64Counter
	AuditWrites      metric.Int64Counter
	AuditRetries     metric.Int64Counter
)

// initEngineMetrics creates all instruments. Called from InitOTEL once the
// meter provider is installed; instruments created before that are no-ops.
func initEngineMetrics() error {
	var err error

	CyclesRun, err = Meter.Int64Counter("vigil.cycles.total",
		metric.WithDescription("Total number of assessment cycles run"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cycles counter: %w", err)
	}

	CycleDuration, err = Meter.Float64Histogram("vigil.cycle.duration",
		metric.WithDescription("Duration of assessment cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cycle duration histogram: %w", err)
	}

	AssessorFailures, err = Meter.Int64Counter("vigil.assessor.failures.total",
		metric.WithDescription("Assessor runs converted to the fail-safe score"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create assessor failures counter: %w", err)
	}

	AssessorDuration, err = Meter.Float64Histogram("vigil.assessor.duration",
		metric.WithDescription("Duration of individual assessor runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create assessor duration histogram: %w", err)
	}

	TierDecisions, err = Meter.Int64Counter("vigil.tier.decisions.total",
		metric.WithDescription("Intervention decisions by tier"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create tier decisions counter: %w", err)
	}

	AuditWrites, err = Meter.Int64Counter("vigil.audit.writes.total",
		metric.WithDescription("Audit store write operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit writes counter: %w", err)
	}

	AuditRetries, err = Meter.Int64Counter("vigil.audit.retries.total",
		metric.WithDescription("Retried audit store writes"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit retries counter: %w", err)
	}

	return nil
}

// RecordCycle records one finished cycle with its outcome
func RecordCycle(ctx context.Context, subjectID string, success bool, seconds float64) {
	if CyclesRun == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("subject.id", subjectID),
		attribute.Bool("success", success),
	)
	CyclesRun.Add(ctx, 1, attrs)
	CycleDuration.Record(ctx, seconds, attrs)
}

// RecordAssessor records one assessor run
func RecordAssessor(ctx context.Context, dimension string, failed bool, seconds float64) {
	if AssessorDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("dimension", dimension))
	AssessorDuration.Record(ctx, seconds, attrs)
	if failed {
		AssessorFailures.Add(ctx, 1, attrs)
	}
}

// RecordTier records one intervention decision
func RecordTier(ctx context.Context, tier string) {
	if TierDecisions == nil {
		return
	}
	TierDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}
