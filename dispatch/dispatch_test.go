package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/vigil/types"
)

type fakeDispatcher struct {
	name     string
	err      error
	received []*types.InterventionRecord
}

func (f *fakeDispatcher) Name() string { return f.name }

func (f *fakeDispatcher) Dispatch(_ context.Context, record *types.InterventionRecord) error {
	f.received = append(f.received, record)
	return f.err
}

func containRecord() *types.InterventionRecord {
	return &types.InterventionRecord{
		AssessmentID: "a-1",
		SubjectID:    "agent-7",
		Tier:         types.TierContain,
		Actions:      []string{types.ActionLog, types.ActionNotify, types.ActionRestrict},
		DecidedAt:    time.Now(),
	}
}

func TestFanout_OneOutcomePerDispatcher(t *testing.T) {
	first := &fakeDispatcher{name: "log"}
	second := &fakeDispatcher{name: "queue"}

	outcomes := Fanout(context.Background(), []Dispatcher{first, second}, containRecord())

	require.Len(t, outcomes, 2)
	assert.Equal(t, "log", outcomes[0].Dispatcher)
	assert.Equal(t, "queue", outcomes[1].Dispatcher)
	assert.Equal(t, types.ActionRestrict, outcomes[0].Action)
	assert.Len(t, first.received, 1)
	assert.Len(t, second.received, 1)
}

func TestFanout_FailedChannelDoesNotStopOthers(t *testing.T) {
	failing := &fakeDispatcher{name: "queue", err: errors.New("queue unreachable")}
	healthy := &fakeDispatcher{name: "log"}

	outcomes := Fanout(context.Background(), []Dispatcher{failing, healthy}, containRecord())

	require.Len(t, outcomes, 2)
	assert.Equal(t, "queue unreachable", outcomes[0].Error)
	assert.Empty(t, outcomes[1].Error)
	assert.Len(t, healthy.received, 1)
}

func TestLogDispatcher(t *testing.T) {
	d := NewLogDispatcher()
	assert.Equal(t, "log", d.Name())
	assert.NoError(t, d.Dispatch(context.Background(), containRecord()))
}
