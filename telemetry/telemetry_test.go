package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/veldt-labs/vigil/types"
)

func captureLogger(buf *bytes.Buffer, component string) *Logger {
	logger := zerolog.New(buf).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})
	return &Logger{Logger: logger}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf, "orchestrator")

	logger.Info().Msg("cycle started")

	assert.Contains(t, buf.String(), `"component":"orchestrator"`)
	assert.Contains(t, buf.String(), "cycle started")
}

func TestOTELHook_AddsTraceIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	var buf bytes.Buffer
	logger := captureLogger(&buf, "test")
	logger.WithContext(ctx).Info().Msg("inside span")

	assert.Contains(t, buf.String(), `"trace_id"`)
	assert.Contains(t, buf.String(), `"span_id"`)
}

func TestOTELHook_NoSpanNoFields(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf, "test")

	logger.WithContext(context.Background()).Info().Msg("outside span")

	assert.NotContains(t, buf.String(), "trace_id")
}

func TestLogger_LogAssessment(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf, "test")

	logger.LogAssessment(context.Background(), &types.Assessment{
		ID:        "a-1",
		SubjectID: "agent-7",
		Overall:   0.42,
		Timestamp: time.Now(),
	})

	out := buf.String()
	assert.Contains(t, out, `"subject_id":"agent-7"`)
	assert.Contains(t, out, `"overall":0.42`)
	assert.Contains(t, out, "assessment recorded")
}

func TestLogger_LogIntervention(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf, "test")

	logger.LogIntervention(context.Background(), &types.InterventionRecord{
		AssessmentID: "a-1",
		SubjectID:    "agent-7",
		Tier:         types.TierContain,
		Actions:      []string{types.ActionLog, types.ActionNotify, types.ActionRestrict},
		DecidedAt:    time.Now(),
	})

	out := buf.String()
	assert.Contains(t, out, `"tier":"CONTAIN"`)
	assert.Contains(t, out, "RESTRICT")
}

func TestInitOTEL_PrometheusOnly(t *testing.T) {
	// Without an OTLP endpoint, init must succeed offline with the
	// Prometheus registry as the only metric sink.
	shutdown, err := InitOTEL(context.Background(), Config{
		ServiceName:    "vigil-test",
		ServiceVersion: "0.0.0",
	})
	require.NoError(t, err)
	require.NotNil(t, PrometheusRegistry)

	assert.NotNil(t, CyclesRun)
	assert.NotNil(t, TierDecisions)

	RecordCycle(context.Background(), "agent-7", true, 0.005)
	RecordTier(context.Background(), "MONITOR")

	families, err := PrometheusRegistry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))
}
