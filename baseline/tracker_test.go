package baseline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/vigil/types"
)

// memStore is an in-memory baseline store for tests
type memStore struct {
	baselines map[string]*Baseline
	saveErr   error
}

func newMemStore() *memStore {
	return &memStore{baselines: make(map[string]*Baseline)}
}

func (m *memStore) SaveBaseline(b *Baseline) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.baselines[b.SubjectID] = b.Clone()
	return nil
}

func (m *memStore) LoadBaseline(subjectID string) (*Baseline, error) {
	b, ok := m.baselines[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

type memHistory struct {
	assessments []types.Assessment
}

func (m *memHistory) History(string, time.Duration) ([]types.Assessment, error) {
	return m.assessments, nil
}

func TestTracker_GetBeforeFirstAssessment(t *testing.T) {
	tracker := NewTracker(newMemStore())

	_, err := tracker.Get("agent-7")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_FirstAssessmentSeedsBaseline(t *testing.T) {
	tracker := NewTracker(newMemStore())

	b, err := tracker.Update("agent-7", assessmentWith(map[string]float64{
		"behavioral": 0.3,
		"integrity":  0.2,
	}))
	require.NoError(t, err)

	assert.Equal(t, int64(1), b.Samples)
	assert.False(t, b.Mature())
	assert.InDelta(t, 0.3, b.Dimensions["behavioral"].Mean, 1e-12)
	assert.Zero(t, b.Dimensions["behavioral"].Variance())
}

func TestTracker_UpdatePersists(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(store)

	_, err := tracker.Update("agent-7", assessmentWith(map[string]float64{"behavioral": 0.3}))
	require.NoError(t, err)
	_, err = tracker.Update("agent-7", assessmentWith(map[string]float64{"behavioral": 0.5}))
	require.NoError(t, err)

	// A fresh tracker over the same store sees the accumulated state.
	fresh := NewTracker(store)
	b, err := fresh.Get("agent-7")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Samples)
	assert.InDelta(t, 0.4, b.Dimensions["behavioral"].Mean, 1e-12)
}

func TestTracker_GetReturnsCopy(t *testing.T) {
	tracker := NewTracker(newMemStore())
	_, err := tracker.Update("agent-7", assessmentWith(map[string]float64{"behavioral": 0.3}))
	require.NoError(t, err)

	b, err := tracker.Get("agent-7")
	require.NoError(t, err)
	stats := b.Dimensions["behavioral"]
	stats.Fold(0.99)
	b.Dimensions["behavioral"] = stats

	again, err := tracker.Get("agent-7")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Dimensions["behavioral"].Count)
}

func TestTracker_SaveFailureSurfaces(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	tracker := NewTracker(store)

	_, err := tracker.Update("agent-7", assessmentWith(map[string]float64{"behavioral": 0.3}))
	assert.Error(t, err)
}

func TestTracker_FailedScoresDoNotFold(t *testing.T) {
	tracker := NewTracker(newMemStore())

	_, err := tracker.Update("agent-7", assessmentWith(map[string]float64{"behavioral": 0.2}))
	require.NoError(t, err)

	// One healthy dimension, one assessor outage.
	outage := assessmentWith(map[string]float64{"behavioral": 0.2})
	outage.Scores = append(outage.Scores, types.FailedScore("integrity", errors.New("upstream feed down")))

	b, err := tracker.Update("agent-7", outage)
	require.NoError(t, err)

	assert.Equal(t, int64(2), b.Samples)
	assert.InDelta(t, 0.2, b.Dimensions["behavioral"].Mean, 1e-12,
		"fail-safe 1.0 must not skew the learned mean")
	_, ok := b.Dimensions["integrity"]
	assert.False(t, ok, "fail-safe score must not seed a dimension")
}

func TestTracker_AllFailedLeavesBaselineUntouched(t *testing.T) {
	tracker := NewTracker(newMemStore())

	_, err := tracker.Update("agent-7", assessmentWith(map[string]float64{"behavioral": 0.2}))
	require.NoError(t, err)

	outage := assessmentWith(nil)
	outage.Scores = []types.DimensionScore{
		types.FailedScore("behavioral", errors.New("upstream feed down")),
	}

	b, err := tracker.Update("agent-7", outage)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Samples)
	assert.InDelta(t, 0.2, b.Dimensions["behavioral"].Mean, 1e-12)
}

func TestTracker_Rebuild(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(store)

	history := &memHistory{assessments: []types.Assessment{
		assessmentWith(map[string]float64{"behavioral": 0.2}),
		assessmentWith(map[string]float64{"behavioral": 0.4}),
		assessmentWith(map[string]float64{"behavioral": 0.6}),
	}}

	b, err := tracker.Rebuild("agent-7", history, 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int64(3), b.Samples)
	assert.True(t, b.Mature())
	assert.InDelta(t, 0.4, b.Dimensions["behavioral"].Mean, 1e-12)

	// Rebuild replaces the stored baseline too.
	stored, err := store.LoadBaseline("agent-7")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Samples)
}

func TestTracker_RebuildSkipsDegraded(t *testing.T) {
	tracker := NewTracker(newMemStore())

	degraded := assessmentWith(map[string]float64{"behavioral": 0.9})
	degraded.Degraded = true

	history := &memHistory{assessments: []types.Assessment{
		assessmentWith(map[string]float64{"behavioral": 0.2}),
		degraded,
		assessmentWith(map[string]float64{"behavioral": 0.4}),
	}}

	b, err := tracker.Rebuild("agent-7", history, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Samples)
	assert.InDelta(t, 0.3, b.Dimensions["behavioral"].Mean, 1e-12)
}
