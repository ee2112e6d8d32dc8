package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veldt-labs/vigil/telemetry"
	"github.com/veldt-labs/vigil/types"
)

// OverrideEngine evaluates externally supplied Rego rules against an
// assessment before the tier decision. Rules can declare crisis indicators
// or raise the tier floor; they can never lower a tier the pure policy
// already assigned.
type OverrideEngine struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// OverrideInput is the input document handed to Rego rules
type OverrideInput struct {
	Assessment types.Assessment `json:"assessment"`
	Crisis     []string         `json:"crisis_indicators,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Override is the aggregated result of all loaded rules
type Override struct {
	CrisisIndicators []string
	TierFloor        types.Tier
	Reasons          []string
	Rules            []string
}

// NewOverrideEngine creates an engine with no rules loaded
func NewOverrideEngine() *OverrideEngine {
	return &OverrideEngine{
		logger:  telemetry.NewLogger("policy-overrides"),
		tracer:  otel.Tracer("policy-overrides"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// LoadRule compiles and registers a Rego rule under the data.vigil namespace
func (e *OverrideEngine) LoadRule(ctx context.Context, name string, regoCode string) error {
	ctx, span := e.tracer.Start(ctx, "policy_overrides.load_rule",
		trace.WithAttributes(attribute.String("rule.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.vigil"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile rule %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("rule_name", name).
		Msg("override rule loaded")

	return nil
}

// RuleCount returns the number of loaded rules
func (e *OverrideEngine) RuleCount() int {
	return len(e.queries)
}

// Evaluate runs all loaded rules against the assessment. A rule that fails
// to evaluate is logged and skipped; overrides are advisory input to the
// pure policy, not a cycle-fatal stage.
func (e *OverrideEngine) Evaluate(ctx context.Context, input OverrideInput) Override {
	ctx, span := e.tracer.Start(ctx, "policy_overrides.evaluate",
		trace.WithAttributes(
			attribute.String("subject.id", input.Assessment.SubjectID),
			attribute.Int("rules.loaded", len(e.queries))))
	defer span.End()

	var out Override
	for name, query := range e.queries {
		results, err := query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			e.logger.WithContext(ctx).Error().
				Err(err).
				Str("rule_name", name).
				Msg("override rule evaluation failed")
			continue
		}
		if e.parseResults(results, name, &out) {
			out.Rules = append(out.Rules, name)
		}
	}

	if len(out.Rules) > 0 {
		e.logger.WithContext(ctx).Info().
			Str("subject_id", input.Assessment.SubjectID).
			Strs("matched_rules", out.Rules).
			Str("tier_floor", out.TierFloor.String()).
			Strs("crisis_indicators", out.CrisisIndicators).
			Msg("override rules matched")
	}

	return out
}

func (e *OverrideEngine) parseResults(results rego.ResultSet, rule string, out *Override) bool {
	matched := false
	for _, res := range results {
		if len(res.Expressions) == 0 {
			continue
		}
		// OPA returns arbitrary JSON shapes determined by the rule at
		// runtime; a map is the only workable representation here.
		doc, ok := res.Expressions[0].Value.(map[string]interface{})
		if !ok {
			continue
		}
		if e.bindValues(doc, rule, out) {
			matched = true
		}
	}
	return matched
}

func (e *OverrideEngine) bindValues(doc map[string]interface{}, rule string, out *Override) bool {
	matched := false

	if crisis, ok := doc["crisis"].(bool); ok && crisis {
		out.CrisisIndicators = append(out.CrisisIndicators, "rule:"+rule)
		matched = true
	}

	if floor, ok := doc["tier_floor"].(string); ok {
		if tier, err := parseTier(floor); err == nil {
			if tier > out.TierFloor {
				out.TierFloor = tier
			}
			matched = true
		}
	}

	if reason, ok := doc["reason"].(string); ok && reason != "" {
		out.Reasons = append(out.Reasons, reason)
	}

	return matched
}

func parseTier(name string) (types.Tier, error) {
	switch name {
	case "MONITOR":
		return types.TierMonitor, nil
	case "ESCALATE":
		return types.TierEscalate, nil
	case "CONTAIN":
		return types.TierContain, nil
	case "EMERGENCY":
		return types.TierEmergency, nil
	}
	return types.TierMonitor, fmt.Errorf("unknown tier %q", name)
}
