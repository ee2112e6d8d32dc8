// Package orchestrator coordinates one assessment cycle: snapshot, assessor
// fan-out, aggregation, drift detection, policy decision, dispatch, audit.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veldt-labs/vigil/aggregate"
	"github.com/veldt-labs/vigil/assessor"
	"github.com/veldt-labs/vigil/baseline"
	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/dispatch"
	"github.com/veldt-labs/vigil/policy"
	"github.com/veldt-labs/vigil/storage"
	"github.com/veldt-labs/vigil/telemetry"
	"github.com/veldt-labs/vigil/types"
	"github.com/veldt-labs/vigil/wal"
)

const (
	auditRetries      = 3
	auditBackoffStart = 50 * time.Millisecond
)

// AuditStore is the slice of the storage layer a cycle touches: the audit
// append, baseline persistence, and the reads the API surface serves.
type AuditStore interface {
	Append(assessment *types.Assessment, intervention *types.InterventionRecord) (int64, error)
	History(subjectID string, window time.Duration) ([]types.Assessment, error)
	Interventions(subjectID string, window time.Duration) ([]types.InterventionRecord, error)
	baseline.Store
}

var _ AuditStore = (*storage.AuditStore)(nil)

// Orchestrator coordinates assess -> aggregate -> drift -> decide -> audit
type Orchestrator struct {
	registry    *assessor.Registry
	tracker     *baseline.Tracker
	store       AuditStore
	journal     *wal.WAL
	overrides   *policy.OverrideEngine
	dispatchers []dispatch.Dispatcher
	source      SnapshotSource
	logger      *telemetry.Logger
	tracer      trace.Tracer

	// Serializes cycles per subject so baseline updates apply in arrival
	// order; cycles for different subjects run concurrently
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an orchestrator over the given audit store
func New(store AuditStore) *Orchestrator {
	return &Orchestrator{
		registry:    assessor.NewRegistry(),
		tracker:     baseline.NewTracker(store),
		store:       store,
		dispatchers: []dispatch.Dispatcher{dispatch.NewLogDispatcher()},
		logger:      telemetry.NewLogger("orchestrator"),
		tracer:      otel.Tracer("orchestrator"),
		locks:       make(map[string]*sync.Mutex),
	}
}

// WithSource sets the snapshot source
func (o *Orchestrator) WithSource(s SnapshotSource) *Orchestrator {
	o.source = s
	return o
}

// WithJournal sets the audit WAL
func (o *Orchestrator) WithJournal(j *wal.WAL) *Orchestrator {
	o.journal = j
	return o
}

// WithOverrides sets the Rego override engine
func (o *Orchestrator) WithOverrides(e *policy.OverrideEngine) *Orchestrator {
	o.overrides = e
	return o
}

// WithDispatchers replaces the dispatcher set
func (o *Orchestrator) WithDispatchers(ds ...dispatch.Dispatcher) *Orchestrator {
	o.dispatchers = ds
	return o
}

// Registry returns the assessor registry for external registration
func (o *Orchestrator) Registry() *assessor.Registry {
	return o.registry
}

// Tracker returns the baseline tracker
func (o *Orchestrator) Tracker() *baseline.Tracker {
	return o.tracker
}

// Store returns the audit store
func (o *Orchestrator) Store() AuditStore {
	return o.store
}

// RunCycle runs one assessment cycle for one subject. It returns either a
// complete assessment plus intervention, or an error naming the stage that
// failed - never a partial success. A degraded assessment (aggregation
// failure) is returned alongside its error.
func (o *Orchestrator) RunCycle(ctx context.Context, req CycleRequest) (*CycleResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run_cycle",
		trace.WithAttributes(
			attribute.String("subject.id", req.SubjectID),
			attribute.String("profile", req.Profile.Name)))
	defer span.End()

	cycleID := req.CycleID
	if cycleID == "" {
		cycleID = uuid.NewString()
	}
	result := &CycleResult{
		CycleID:   cycleID,
		StartTime: time.Now(),
	}

	// Strict arrival-order per subject: no two concurrent cycles for the
	// same subject may fold into the baseline out of order
	lock := o.subjectLock(req.SubjectID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, ErrCycleCancelled
	}

	err := o.runCycleLocked(ctx, req, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = err == nil

	telemetry.RecordCycle(ctx, req.SubjectID, result.Success, result.Duration.Seconds())

	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		if !errors.Is(err, ErrCycleCancelled) {
			o.journalError(wal.EntryCycleFailed, req.SubjectID, result.CycleID, result, err)
		}
		return result, err
	}

	return result, nil
}

func (o *Orchestrator) runCycleLocked(ctx context.Context, req CycleRequest, result *CycleResult) error {
	// 1. Snapshot
	snapshot, err := o.fetchSnapshot(ctx, req)
	if err != nil {
		o.logger.LogCycleFailure(ctx, req.SubjectID, "snapshot", err)
		return fmt.Errorf("snapshot failed: %w", err)
	}

	// 2. Fan out assessors, barrier before aggregation
	scores, err := o.runAssessors(ctx, req, snapshot)
	if err != nil {
		o.logger.LogCycleFailure(ctx, req.SubjectID, "assessors", err)
		return fmt.Errorf("assessor dispatch failed: %w", err)
	}

	assessment := &types.Assessment{
		ID:        uuid.NewString(),
		SubjectID: req.SubjectID,
		Profile:   req.Profile.Name,
		Timestamp: time.Now(),
		Scores:    scores,
	}

	// 3. Aggregate. Failure here is fatal for the cycle but still audited
	// as a degraded record with a conservative tier floor.
	agg, aggErr := aggregate.Aggregate(scores, req.Profile.Weights(), req.Profile.Cascade)
	if aggErr != nil {
		return o.finishDegraded(ctx, req, result, assessment, aggErr)
	}
	assessment.Overall = agg.Overall
	assessment.Cascades = agg.Cascades

	// 4. Drift against the baseline as it stood before this assessment
	prior, err := o.tracker.Get(req.SubjectID)
	switch {
	case err == nil:
		detector := baseline.NewDetector(req.Profile.Drift, req.Profile.DriftThresholds())
		report := detector.Detect(*assessment, prior)
		assessment.Drift = &report
	case errors.Is(err, baseline.ErrNotFound):
		// First assessment: insufficient history, drift skipped
		assessment.Drift = &types.DriftReport{InsufficientHistory: true}
	default:
		// Storage unreachable is not zero drift; proceed on score alone
		o.logger.LogStorageError(ctx, "load_baseline", err)
		assessment.Drift = &types.DriftReport{InsufficientHistory: true}
	}

	// 5. Decide
	record := o.decide(ctx, req, assessment)

	// Cancelled cycles write nothing: no audit record, no baseline change
	if err := ctx.Err(); err != nil {
		return ErrCycleCancelled
	}

	// 6. Dispatch actions to external channels
	record.Outcomes = dispatch.Fanout(ctx, o.dispatchers, record)

	// 7. Audit, then fold into the baseline
	if err := o.audit(ctx, assessment, record, result.CycleID); err != nil {
		o.logger.LogCycleFailure(ctx, req.SubjectID, "audit", err)
		return fmt.Errorf("audit write failed: %w", err)
	}

	if _, err := o.tracker.Update(req.SubjectID, *assessment); err != nil {
		o.logger.LogCycleFailure(ctx, req.SubjectID, "baseline", err)
		return fmt.Errorf("baseline update failed: %w", err)
	}

	o.logger.LogAssessment(ctx, assessment)
	telemetry.RecordTier(ctx, record.Tier.String())

	result.Assessment = assessment
	result.Intervention = record
	return nil
}

func (o *Orchestrator) fetchSnapshot(ctx context.Context, req CycleRequest) (types.Snapshot, error) {
	if req.Snapshot != nil {
		return *req.Snapshot, nil
	}
	if o.source == nil {
		return types.Snapshot{}, fmt.Errorf("no snapshot source configured")
	}
	return o.source.Snapshot(ctx, req.SubjectID, req.Window)
}

// runAssessors dispatches every configured assessor in parallel and waits
// for all of them. A failed, panicked, timed-out, or out-of-bounds assessor
// becomes the fail-safe maximum-risk score; it never aborts the cycle.
// Scores come back in profile dimension order regardless of completion
// order, so aggregation input is deterministic.
func (o *Orchestrator) runAssessors(ctx context.Context, req CycleRequest, snapshot types.Snapshot) ([]types.DimensionScore, error) {
	dims := req.Profile.Dimensions
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = d.Name
	}

	assessors, err := o.registry.Resolve(names)
	if err != nil {
		return nil, err
	}

	scores := make([]types.DimensionScore, len(dims))
	var wg sync.WaitGroup
	for i := range dims {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scores[i] = o.runOne(ctx, assessors[i], snapshot, dims[i], req.Profile.AssessorTimeout)
		}(i)
	}
	wg.Wait()

	return scores, nil
}

func (o *Orchestrator) runOne(ctx context.Context, a assessor.Assessor, snapshot types.Snapshot, dim config.DimensionConfig, timeout time.Duration) types.DimensionScore {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	type outcome struct {
		score types.DimensionScore
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("assessor panic: %v", r)}
			}
		}()
		score, err := a.Assess(ctx, snapshot, dim)
		done <- outcome{score: score, err: err}
	}()

	var score types.DimensionScore
	select {
	case out := <-done:
		switch {
		case out.err != nil:
			score = types.FailedScore(dim.Name, out.err)
		case out.score.Validate() != nil:
			score = types.FailedScore(dim.Name, out.score.Validate())
		default:
			score = out.score
			score.Dimension = dim.Name
			if score.Band == "" {
				score.Band = types.BandFor(score.Score)
			}
		}
	case <-ctx.Done():
		score = types.FailedScore(dim.Name, ctx.Err())
	}

	if score.Failed {
		o.logger.LogAssessorFailure(ctx, dim.Name, fmt.Errorf("%s", score.Error))
	}
	telemetry.RecordAssessor(ctx, dim.Name, score.Failed, time.Since(start).Seconds())

	return score
}

// decide evaluates overrides and the pure tier policy
func (o *Orchestrator) decide(ctx context.Context, req CycleRequest, assessment *types.Assessment) *types.InterventionRecord {
	crisis := append([]string(nil), req.CrisisIndicators...)
	var floor types.Tier
	var overrideReasons []string

	if o.overrides != nil && o.overrides.RuleCount() > 0 {
		override := o.overrides.Evaluate(ctx, policy.OverrideInput{
			Assessment: *assessment,
			Crisis:     crisis,
			Timestamp:  assessment.Timestamp,
		})
		crisis = append(crisis, override.CrisisIndicators...)
		floor = override.TierFloor
		overrideReasons = override.Reasons
	}

	plan := policy.Decide(policy.Input{
		Overall:          assessment.Overall,
		Drift:            assessment.Drift,
		Cascade:          assessment.HasCascade(),
		CrisisIndicators: crisis,
	}, req.Profile.Tiers)

	if plan.Tier < floor {
		plan.Tier = floor
		plan.Actions = policy.ActionsFor(floor)
		plan.Reasons = append(plan.Reasons, "tier floor raised by override rule")
	}
	plan.Reasons = append(plan.Reasons, overrideReasons...)

	return &types.InterventionRecord{
		AssessmentID: assessment.ID,
		SubjectID:    assessment.SubjectID,
		Tier:         plan.Tier,
		Actions:      plan.Actions,
		Reasons:      plan.Reasons,
		DecidedAt:    time.Now(),
	}
}

// finishDegraded audits an aggregation failure as a degraded assessment
// with tier forced to at least ESCALATE, and reports the error to the
// caller alongside the record. Degraded cycles never fold into the
// baseline.
func (o *Orchestrator) finishDegraded(ctx context.Context, req CycleRequest, result *CycleResult, assessment *types.Assessment, cause error) error {
	assessment.Degraded = true
	assessment.Error = cause.Error()
	assessment.Overall = conservativeOverall(assessment.Scores)

	record := o.decide(ctx, req, assessment)
	if record.Tier < types.TierEscalate {
		record.Tier = types.TierEscalate
		record.Actions = policy.ActionsFor(types.TierEscalate)
		record.Reasons = append(record.Reasons, "degraded cycle: aggregation failed")
	}

	if err := ctx.Err(); err != nil {
		return ErrCycleCancelled
	}

	record.Outcomes = dispatch.Fanout(ctx, o.dispatchers, record)

	if err := o.audit(ctx, assessment, record, result.CycleID); err != nil {
		return fmt.Errorf("aggregation failed (%v); audit of degraded record also failed: %w", cause, err)
	}

	result.Assessment = assessment
	result.Intervention = record

	return fmt.Errorf("aggregation failed: %w", cause)
}

// conservativeOverall is the fallback score for a degraded assessment:
// the worst observed dimension score
func conservativeOverall(scores []types.DimensionScore) float64 {
	var worst float64
	for _, s := range scores {
		if s.Score > worst && s.Score <= 1 {
			worst = s.Score
		}
	}
	return worst
}

// audit appends the cycle to the store with bounded backoff. The audit
// store is the compliance record; an intervention decision is never
// silently lost.
func (o *Orchestrator) audit(ctx context.Context, assessment *types.Assessment, record *types.InterventionRecord, cycleID string) error {
	backoff := auditBackoffStart
	var lastErr error

	for attempt := 0; attempt < auditRetries; attempt++ {
		if attempt > 0 {
			if telemetry.AuditRetries != nil {
				telemetry.AuditRetries.Add(ctx, 1)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ErrCycleCancelled
			}
			backoff *= 2
		}

		_, lastErr = o.store.Append(assessment, record)
		if lastErr == nil {
			if telemetry.AuditWrites != nil {
				telemetry.AuditWrites.Add(ctx, 1)
			}
			o.journalCycle(assessment, record, cycleID)
			return nil
		}
		o.logger.LogStorageError(ctx, "audit_append", lastErr)
	}

	return fmt.Errorf("exhausted %d attempts: %w", auditRetries, lastErr)
}

func (o *Orchestrator) journalCycle(assessment *types.Assessment, record *types.InterventionRecord, cycleID string) {
	if o.journal == nil {
		return
	}
	// Journal failures are logged, not fatal: the bbolt append already
	// succeeded and remains the authoritative record
	if err := o.journal.Append(wal.EntryAssessed, assessment.SubjectID, cycleID, assessment); err != nil {
		o.logger.Error().Err(err).Msg("failed to journal assessment")
	}
	if err := o.journal.Append(wal.EntryDecided, record.SubjectID, cycleID, record); err != nil {
		o.logger.Error().Err(err).Msg("failed to journal decision")
	}
	if len(record.Outcomes) > 0 {
		if err := o.journal.Append(wal.EntryDispatched, record.SubjectID, cycleID, record.Outcomes); err != nil {
			o.logger.Error().Err(err).Msg("failed to journal dispatch outcomes")
		}
	}
}

func (o *Orchestrator) journalError(entryType wal.EntryType, subjectID, cycleID string, data interface{}, cause error) {
	if o.journal == nil {
		return
	}
	if err := o.journal.AppendError(entryType, subjectID, cycleID, data, cause); err != nil {
		o.logger.Error().Err(err).Msg("failed to journal cycle failure")
	}
}

func (o *Orchestrator) subjectLock(subjectID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	lock, ok := o.locks[subjectID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[subjectID] = lock
	}
	return lock
}
