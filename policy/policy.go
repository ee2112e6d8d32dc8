// Package policy maps assessment outcomes to tiered intervention plans.
package policy

import (
	"fmt"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/types"
)

// Input is everything the intervention policy consults for one assessment
type Input struct {
	Overall          float64
	Drift            *types.DriftReport
	Cascade          bool
	CrisisIndicators []string
}

// Decide is a pure function from one assessment's outcome to its required
// intervention plan. No state persists across calls - each cycle is
// independently decidable, which keeps testing simple and rules out
// hysteresis between assessments. Triggers are "any true": the highest
// tier whose condition holds wins, and higher tiers carry every lower
// tier's actions.
func Decide(in Input, bounds config.TierBoundaries) types.InterventionPlan {
	tier := TierForScore(in.Overall, bounds)
	reasons := []string{fmt.Sprintf("overall score %.3f", in.Overall)}

	if in.Drift.HasSignificant() && tier < types.TierEscalate {
		tier = types.TierEscalate
		reasons = append(reasons, fmt.Sprintf("significant drift in %v", in.Drift.Significant))
	}

	if in.Cascade && tier < types.TierContain {
		tier = types.TierContain
		reasons = append(reasons, "cascade risk across elevated dimensions")
	}

	if len(in.CrisisIndicators) > 0 && tier < types.TierEmergency {
		tier = types.TierEmergency
		reasons = append(reasons, fmt.Sprintf("crisis indicators %v", in.CrisisIndicators))
	}

	return types.InterventionPlan{
		Tier:    tier,
		Actions: ActionsFor(tier),
		Reasons: reasons,
	}
}

// TierForScore maps an overall score to its tier by the configured
// boundaries alone. Monotonic: a higher score never yields a lower tier.
func TierForScore(overall float64, bounds config.TierBoundaries) types.Tier {
	switch {
	case overall >= bounds.Emergency:
		return types.TierEmergency
	case overall >= bounds.Contain:
		return types.TierContain
	case overall >= bounds.Escalate:
		return types.TierEscalate
	default:
		return types.TierMonitor
	}
}

// ActionsFor returns the cumulative action set for a tier
func ActionsFor(tier types.Tier) []string {
	actions := []string{types.ActionLog}
	if tier >= types.TierEscalate {
		actions = append(actions, types.ActionNotify)
	}
	if tier >= types.TierContain {
		actions = append(actions, types.ActionRestrict)
	}
	if tier >= types.TierEmergency {
		actions = append(actions, types.ActionIsolate, types.ActionHumanAlert)
	}
	return actions
}
