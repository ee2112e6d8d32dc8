package types

import (
	"fmt"
	"time"
)

// Action tokens - these are DECISIONS only, not executed by Vigil.
// An external notification/containment collaborator carries them out;
// Vigil never pages anyone or shuts infrastructure down itself.
const (
	ActionLog        = "LOG"         // Record the assessment, nothing more
	ActionNotify     = "NOTIFY"      // Notify the responsible operator channel
	ActionRestrict   = "RESTRICT"    // Restrict the subject's operating capability
	ActionIsolate    = "ISOLATE"     // Immediate shutdown / isolation
	ActionHumanAlert = "HUMAN_ALERT" // Mandatory human notification
)

// Tier is the required response level for an assessment
type Tier int

const (
	TierMonitor Tier = iota
	TierEscalate
	TierContain
	TierEmergency
)

var tierNames = map[Tier]string{
	TierMonitor:   "MONITOR",
	TierEscalate:  "ESCALATE",
	TierContain:   "CONTAIN",
	TierEmergency: "EMERGENCY",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TIER(%d)", int(t))
}

// MarshalJSON encodes tiers by name for audit readability
func (t Tier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON decodes a tier name back to its ordinal
func (t *Tier) UnmarshalJSON(data []byte) error {
	name := string(data)
	if len(name) >= 2 && name[0] == '"' {
		name = name[1 : len(name)-1]
	}
	for tier, n := range tierNames {
		if n == name {
			*t = tier
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", name)
}

// InterventionPlan is the pure policy output for one assessment
type InterventionPlan struct {
	Tier    Tier     `json:"tier"`
	Actions []string `json:"actions"`
	Reasons []string `json:"reasons,omitempty"`
}

// DispatchOutcome records the result of handing one action to a dispatcher
type DispatchOutcome struct {
	Action       string    `json:"action"`
	Dispatcher   string    `json:"dispatcher"`
	DispatchedAt time.Time `json:"dispatched_at"`
	Error        string    `json:"error,omitempty"`
}

// InterventionRecord is the append-only record of a policy decision
// and its dispatch, keyed to the assessment it came from.
type InterventionRecord struct {
	AssessmentID string            `json:"assessment_id"`
	SubjectID    string            `json:"subject_id"`
	Tier         Tier              `json:"tier"`
	Actions      []string          `json:"actions"`
	Reasons      []string          `json:"reasons,omitempty"`
	DecidedAt    time.Time         `json:"decided_at"`
	Outcomes     []DispatchOutcome `json:"outcomes,omitempty"`
}

// Validate ensures the record carries its required fields
func (r *InterventionRecord) Validate() error {
	if r.AssessmentID == "" {
		return fmt.Errorf("intervention record assessment ID cannot be empty")
	}
	if r.SubjectID == "" {
		return fmt.Errorf("intervention record subject ID cannot be empty")
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("intervention record must carry at least one action")
	}
	return nil
}
