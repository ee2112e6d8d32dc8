package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/vigil/baseline"
	"github.com/veldt-labs/vigil/types"
)

func testAssessment(subjectID string, overall float64) *types.Assessment {
	return &types.Assessment{
		ID:        fmt.Sprintf("a-%s-%d", subjectID, time.Now().UnixNano()),
		SubjectID: subjectID,
		Timestamp: time.Now(),
		Overall:   overall,
		Scores: []types.DimensionScore{
			{Dimension: "behavioral", Score: overall, Band: types.BandFor(overall)},
		},
	}
}

func testIntervention(assessmentID, subjectID string, tier types.Tier) *types.InterventionRecord {
	return &types.InterventionRecord{
		AssessmentID: assessmentID,
		SubjectID:    subjectID,
		Tier:         tier,
		Actions:      []string{types.ActionLog},
		DecidedAt:    time.Now(),
	}
}

func TestAuditStore_Append(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	a := testAssessment("agent-7", 0.3)
	rev, err := store.Append(a, testIntervention(a.ID, a.SubjectID, types.TierMonitor))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	state, err := store.GetSubjectState("agent-7")
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.FirstSeenRev)
	assert.Equal(t, int64(1), state.Assessments)
}

func TestAuditStore_AppendRejectsInvalid(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.Append(&types.Assessment{SubjectID: "agent-7"}, nil)
	assert.Error(t, err)
	assert.Equal(t, int64(0), store.CurrentRevision())
}

func TestAuditStore_HistoryOldestFirst(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	overalls := []float64{0.1, 0.2, 0.3}
	for _, v := range overalls {
		_, err := store.Append(testAssessment("agent-7", v), nil)
		require.NoError(t, err)
	}
	// Another subject mixed in must not appear.
	_, err = store.Append(testAssessment("agent-9", 0.9), nil)
	require.NoError(t, err)

	history, err := store.History("agent-7", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, v := range overalls {
		assert.Equal(t, v, history[i].Overall)
	}
}

func TestAuditStore_HistoryWindow(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	old := testAssessment("agent-7", 0.1)
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	_, err = store.Append(old, nil)
	require.NoError(t, err)

	_, err = store.Append(testAssessment("agent-7", 0.5), nil)
	require.NoError(t, err)

	history, err := store.History("agent-7", 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 0.5, history[0].Overall)
}

func TestAuditStore_Interventions(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	a := testAssessment("agent-7", 0.8)
	_, err = store.Append(a, testIntervention(a.ID, a.SubjectID, types.TierContain))
	require.NoError(t, err)

	records, err := store.Interventions("agent-7", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.TierContain, records[0].Tier)
	assert.Equal(t, a.ID, records[0].AssessmentID)
}

func TestAuditStore_ReopenRestoresState(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := store.Append(testAssessment("agent-7", 0.2), nil)
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, int64(3), reopened.CurrentRevision())

	state, err := reopened.GetSubjectState("agent-7")
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.Assessments)

	// Revision numbering continues, never restarts.
	rev, err := reopened.Append(testAssessment("agent-7", 0.4), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rev)
}

func TestAuditStore_Subjects(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_, err := store.Append(testAssessment(id, 0.1), nil)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, store.Subjects())
}

func TestAuditStore_Baselines(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.LoadBaseline("agent-7")
	assert.ErrorIs(t, err, baseline.ErrNotFound)

	b := &baseline.Baseline{
		SubjectID:  "agent-7",
		Dimensions: map[string]baseline.Stats{"behavioral": {Count: 2, Mean: 0.3, M2: 0.02}},
		Samples:    2,
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, store.SaveBaseline(b))

	loaded, err := store.LoadBaseline("agent-7")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Samples)
	assert.InDelta(t, 0.3, loaded.Dimensions["behavioral"].Mean, 1e-12)
}

func TestAuditStore_UnknownSubject(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.GetSubjectState("ghost")
	assert.Error(t, err)

	history, err := store.History("ghost", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}
