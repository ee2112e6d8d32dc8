package wal

import (
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAL_AppendAndRead(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, w.Append(EntryAssessed, "agent-7", "c-1", map[string]any{"overall": 0.3}))
	require.NoError(t, w.Append(EntryDecided, "agent-7", "c-1", map[string]any{"tier": "MONITOR"}))
	require.NoError(t, w.AppendError(EntryCycleFailed, "agent-9", "c-2", nil, errors.New("snapshot source unavailable")))
	require.NoError(t, w.Close())

	files, err := filepath.Glob(filepath.Join(dir, "vigil-*.wal"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	reader, err := NewReader(files[0])
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	first, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, EntryAssessed, first.Type)
	assert.Equal(t, "agent-7", first.SubjectID)
	assert.Equal(t, "c-1", first.CycleID)
	assert.Equal(t, int64(1), first.Sequence)

	var payload map[string]float64
	require.NoError(t, json.Unmarshal(first.Data, &payload))
	assert.Equal(t, 0.3, payload["overall"])

	second, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, EntryDecided, second.Type)
	assert.Equal(t, int64(2), second.Sequence)

	third, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, EntryCycleFailed, third.Type)
	assert.Equal(t, "snapshot source unavailable", third.Error)

	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestWAL_SequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Append(EntryAssessed, "agent-7", "c-1", nil))
	}
	require.NoError(t, w.Close())

	reopened, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	require.NoError(t, reopened.Append(EntryAssessed, "agent-7", "c-2", nil))
	assert.Equal(t, int64(6), reopened.Sequence())
}

func TestWAL_Rotation(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 256 // force rotation after a couple of entries

	w, err := Open(dir, config)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Append(EntryAssessed, "agent-7", "c-1", map[string]any{
			"padding": "some assessment payload to push past the size limit",
		}))
	}
	require.NoError(t, w.Close())

	files, err := filepath.Glob(filepath.Join(dir, "vigil-*.wal"))
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "expected rotation to create multiple files")
}

func TestWAL_PartialConfigKeepsCallerFields(t *testing.T) {
	dir := t.TempDir()

	// Only the size is set; the prefix must default without resetting it.
	w, err := Open(dir, Config{MaxFileSize: 256})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Append(EntryAssessed, "agent-7", "c-1", map[string]any{
			"padding": "some assessment payload to push past the size limit",
		}))
	}
	require.NoError(t, w.Close())

	files, err := filepath.Glob(filepath.Join(dir, "vigil-*.wal"))
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "caller-set MaxFileSize was discarded")
}

func TestReplay_FiltersByTime(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, w.Append(EntryAssessed, "agent-7", "c-1", nil))
	require.NoError(t, w.Append(EntryDecided, "agent-7", "c-1", nil))
	require.NoError(t, w.Close())

	var all []EntryType
	require.NoError(t, Replay(dir, "", time.Time{}, func(e *Entry) error {
		all = append(all, e.Type)
		return nil
	}))
	assert.Equal(t, []EntryType{EntryAssessed, EntryDecided}, all)

	var future []EntryType
	require.NoError(t, Replay(dir, "", time.Now().Add(time.Hour), func(e *Entry) error {
		future = append(future, e.Type)
		return nil
	}))
	assert.Empty(t, future)
}

func TestReplay_HandlerErrorStops(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, w.Append(EntryAssessed, "agent-7", "c-1", nil))
	require.NoError(t, w.Close())

	wantErr := errors.New("stop")
	err = Replay(dir, "", time.Time{}, func(*Entry) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestReplay_EmptyDir(t *testing.T) {
	err := Replay(t.TempDir(), "", time.Time{}, func(*Entry) error {
		t.Fatal("handler called for empty dir")
		return nil
	})
	assert.NoError(t, err)
}
