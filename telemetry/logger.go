package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/veldt-labs/vigil/types"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for assessment cycle events

// LogAssessment logs one accepted assessment
func (l *Logger) LogAssessment(ctx context.Context, a *types.Assessment) {
	l.WithContext(ctx).Info().
		Str("assessment_id", a.ID).
		Str("subject_id", a.SubjectID).
		Float64("overall", a.Overall).
		Int("dimensions", len(a.Scores)).
		Bool("cascade", a.HasCascade()).
		Bool("degraded", a.Degraded).
		Msg("assessment recorded")
}

// LogIntervention logs a policy decision and its tier
func (l *Logger) LogIntervention(ctx context.Context, r *types.InterventionRecord) {
	l.WithContext(ctx).Info().
		Str("assessment_id", r.AssessmentID).
		Str("subject_id", r.SubjectID).
		Str("tier", r.Tier.String()).
		Strs("actions", r.Actions).
		Msg("intervention decided")
}

// LogAssessorFailure logs an assessor converted to the fail-safe score
func (l *Logger) LogAssessorFailure(ctx context.Context, dimension string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("dimension", dimension).
		Msg("assessor failed, recorded as maximum risk")
}

// LogCycleFailure logs a cycle that could not complete normally
func (l *Logger) LogCycleFailure(ctx context.Context, subjectID, stage string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("subject_id", subjectID).
		Str("stage", stage).
		Msg("assessment cycle failed")
}

// LogStorageError logs a failed audit store operation
func (l *Logger) LogStorageError(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("storage operation failed")
}
