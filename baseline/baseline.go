// Package baseline maintains per-subject statistical baselines and detects
// drift of new assessments against them.
package baseline

import (
	"errors"
	"math"
	"time"
)

// ErrNotFound is returned when a subject has no baseline yet
var ErrNotFound = errors.New("baseline not found")

// Stats holds an online mean/variance for one dimension (Welford's
// algorithm), so memory stays constant regardless of history length.
type Stats struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
}

// Fold incorporates one sample
func (s *Stats) Fold(x float64) {
	s.Count++
	delta := x - s.Mean
	s.Mean += delta / float64(s.Count)
	s.M2 += delta * (x - s.Mean)
}

// Variance returns the sample variance; zero until two samples exist
func (s Stats) Variance() float64 {
	if s.Count < 2 {
		return 0
	}
	return s.M2 / float64(s.Count-1)
}

// StdDev returns the sample standard deviation
func (s Stats) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// Baseline is a subject's expected per-dimension score distribution,
// learned from its own assessment history. Created on the first assessment,
// mutated incrementally, never deleted while the subject is monitored.
type Baseline struct {
	SubjectID  string           `json:"subject_id"`
	Dimensions map[string]Stats `json:"dimensions"`
	Samples    int64            `json:"samples"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Mature reports whether the baseline has enough history to support drift
// detection. A single-sample baseline has zero variance everywhere and
// would flag any change as infinite drift.
func (b *Baseline) Mature() bool {
	return b != nil && b.Samples >= 2
}

// Clone returns a deep copy so drift can be computed against a snapshot of
// the baseline as it stood before the new assessment is folded in.
func (b *Baseline) Clone() *Baseline {
	if b == nil {
		return nil
	}
	c := *b
	c.Dimensions = make(map[string]Stats, len(b.Dimensions))
	for k, v := range b.Dimensions {
		c.Dimensions[k] = v
	}
	return &c
}
