package assessor

import (
	"context"
	"math"

	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/types"
)

// Builtin heuristic assessors. They score a subject purely from snapshot
// observations, so the engine runs end-to-end without external plugins.
// Deployments with richer heuristics register their own assessors over
// these names.

func builtinAssessors() []Assessor {
	return []Assessor{
		Func{Dimension: "behavioral", Fn: assessBehavioral},
		Func{Dimension: "integrity", Fn: assessIntegrity},
		Func{Dimension: "technical", Fn: assessTechnical},
		Func{Dimension: "communication", Fn: assessCommunication},
	}
}

var severityWeights = map[string]float64{
	"low":      0.5,
	"medium":   1.0,
	"high":     2.0,
	"critical": 4.0,
}

// weightedIncidentScore saturates a severity-weighted incident count into
// [0,1]. halfPoint is the weighted count that maps to 0.5.
func weightedIncidentScore(snapshot types.Snapshot, kinds []string, halfPoint float64) (float64, int) {
	var weighted float64
	var n int
	for _, kind := range kinds {
		for _, o := range snapshot.ObservationsOfKind(kind) {
			if !snapshot.InWindow(o) {
				continue
			}
			w, ok := severityWeights[o.Severity]
			if !ok {
				w = 1.0
			}
			weighted += w
			n++
		}
	}
	return weighted / (weighted + halfPoint), n
}

func scoreOf(dimension string, score float64, evidence map[string]any) types.DimensionScore {
	score = math.Min(1, math.Max(0, score))
	return types.DimensionScore{
		Dimension: dimension,
		Score:     score,
		Band:      types.BandFor(score),
		Evidence:  evidence,
	}
}

// assessBehavioral scores rule violations and behavioral anomalies
func assessBehavioral(_ context.Context, snapshot types.Snapshot, _ config.DimensionConfig) (types.DimensionScore, error) {
	score, n := weightedIncidentScore(snapshot, []string{"violation", "anomaly"}, 4.0)
	return scoreOf("behavioral", score, map[string]any{
		"incidents": n,
		"window":    snapshot.Window.String(),
	}), nil
}

// assessIntegrity scores value-alignment incidents: policy breaches,
// deceptive output, unauthorized scope expansion
func assessIntegrity(_ context.Context, snapshot types.Snapshot, _ config.DimensionConfig) (types.DimensionScore, error) {
	score, n := weightedIncidentScore(snapshot, []string{"policy_breach", "deception", "scope_expansion"}, 2.0)
	return scoreOf("integrity", score, map[string]any{
		"incidents": n,
	}), nil
}

// assessTechnical scores operational health signals. Observations of kind
// "error_rate" carry a rate in [0,1]; the score is their mean.
func assessTechnical(_ context.Context, snapshot types.Snapshot, _ config.DimensionConfig) (types.DimensionScore, error) {
	var sum float64
	var n int
	for _, o := range snapshot.ObservationsOfKind("error_rate") {
		if !snapshot.InWindow(o) {
			continue
		}
		sum += math.Min(1, math.Max(0, o.Value))
		n++
	}
	score := 0.0
	if n > 0 {
		score = sum / float64(n)
	}
	return scoreOf("technical", score, map[string]any{
		"samples": n,
	}), nil
}

// assessCommunication scores interaction-pattern incidents
func assessCommunication(_ context.Context, snapshot types.Snapshot, _ config.DimensionConfig) (types.DimensionScore, error) {
	score, n := weightedIncidentScore(snapshot, []string{"tone_shift", "refusal", "escalation_language"}, 6.0)
	return scoreOf("communication", score, map[string]any{
		"incidents": n,
	}), nil
}
