package types

import "time"

// Snapshot is a read-only, point-in-time view of a subject's recent
// observable behavior. Assessors read it, score it, and never mutate it.
type Snapshot struct {
	SubjectID    string            `json:"subject_id"`
	TakenAt      time.Time         `json:"taken_at"`
	Window       time.Duration     `json:"window"`
	Observations []Observation     `json:"observations"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// Observation is one recorded behavioral signal within a snapshot window.
type Observation struct {
	Kind     string         `json:"kind"`
	Value    float64        `json:"value"`
	Severity string         `json:"severity,omitempty"`
	At       time.Time      `json:"at"`
	Tags     map[string]any `json:"tags,omitempty"`
}

// ObservationsOfKind filters a snapshot's observations by kind.
func (s *Snapshot) ObservationsOfKind(kind string) []Observation {
	var out []Observation
	for _, o := range s.Observations {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

// InWindow reports whether an observation falls inside the snapshot window.
func (s *Snapshot) InWindow(o Observation) bool {
	if s.Window <= 0 {
		return true
	}
	cutoff := s.TakenAt.Add(-s.Window)
	return !o.At.Before(cutoff)
}
