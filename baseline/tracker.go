package baseline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veldt-labs/vigil/types"
)

// Store persists baselines across restarts
type Store interface {
	SaveBaseline(b *Baseline) error
	LoadBaseline(subjectID string) (*Baseline, error)
}

// HistorySource supplies past assessments for baseline rebuild
type HistorySource interface {
	History(subjectID string, window time.Duration) ([]types.Assessment, error)
}

// Tracker maintains per-subject baselines backed by a store. It caches
// loaded baselines in memory; callers serialize updates per subject (the
// orchestrator holds a per-subject lock across the whole cycle).
type Tracker struct {
	mu    sync.RWMutex
	store Store
	cache map[string]*Baseline
}

// NewTracker creates a tracker over the given store
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store: store,
		cache: make(map[string]*Baseline),
	}
}

// Get returns the subject's current baseline, or ErrNotFound before the
// first assessment. The returned baseline is a copy; mutating it does not
// affect the tracker.
func (t *Tracker) Get(subjectID string) (*Baseline, error) {
	t.mu.RLock()
	if b, ok := t.cache[subjectID]; ok {
		t.mu.RUnlock()
		return b.Clone(), nil
	}
	t.mu.RUnlock()

	b, err := t.store.LoadBaseline(subjectID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.cache[subjectID] = b
	t.mu.Unlock()

	return b.Clone(), nil
}

// Update folds an accepted assessment into the subject's baseline and
// persists the result. The first assessment seeds the baseline with one
// sample and zero variance. Must be called only after the assessment's
// drift was computed against the prior baseline.
func (t *Tracker) Update(subjectID string, assessment types.Assessment) (*Baseline, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.cache[subjectID]
	if !ok {
		loaded, err := t.store.LoadBaseline(subjectID)
		switch {
		case err == nil:
			b = loaded
		case isNotFound(err):
			b = &Baseline{
				SubjectID:  subjectID,
				Dimensions: make(map[string]Stats),
			}
		default:
			return nil, fmt.Errorf("failed to load baseline for %s: %w", subjectID, err)
		}
	}

	fold(b, assessment)

	if err := t.store.SaveBaseline(b); err != nil {
		return nil, fmt.Errorf("failed to persist baseline for %s: %w", subjectID, err)
	}
	t.cache[subjectID] = b

	return b.Clone(), nil
}

// Rebuild re-folds the subject's audited assessments into a fresh baseline,
// oldest first. Used after restart when the cache is cold and the stored
// baseline is missing or suspect.
func (t *Tracker) Rebuild(subjectID string, source HistorySource, window time.Duration) (*Baseline, error) {
	history, err := source.History(subjectID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", subjectID, err)
	}

	b := &Baseline{
		SubjectID:  subjectID,
		Dimensions: make(map[string]Stats),
	}
	for _, a := range history {
		fold(b, a)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.SaveBaseline(b); err != nil {
		return nil, fmt.Errorf("failed to persist rebuilt baseline for %s: %w", subjectID, err)
	}
	t.cache[subjectID] = b

	return b.Clone(), nil
}

// fold merges one assessment into the baseline. Fail-safe maximum-risk
// scores from failed assessors are skipped: a transient assessor outage
// must not skew the learned mean and mute later drift detection. Degraded
// assessments (present in history during rebuild) are skipped entirely.
func fold(b *Baseline, assessment types.Assessment) {
	if assessment.Degraded {
		return
	}
	folded := false
	for _, s := range assessment.Scores {
		if s.Failed {
			continue
		}
		stats := b.Dimensions[s.Dimension]
		stats.Fold(s.Score)
		b.Dimensions[s.Dimension] = stats
		folded = true
	}
	if !folded {
		return
	}
	b.Samples++
	b.UpdatedAt = assessment.Timestamp
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
