package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Name  string         `json:"name"`
	Banks map[string]int `json:"banks"`
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(NewFileStorage(path))

	saved := testState{Name: "drone", Banks: map[string]int{"0": 3, "1": 7}}
	require.NoError(t, m.SaveSnapshot(context.Background(), saved))

	var loaded testState
	require.NoError(t, m.LoadSnapshot(context.Background(), &loaded))
	assert.Equal(t, saved, loaded)
}

func TestLoadMissingFileFails(t *testing.T) {
	m := NewManager(NewFileStorage(filepath.Join(t.TempDir(), "absent.json")))

	var loaded testState
	assert.Error(t, m.LoadSnapshot(context.Background(), &loaded))
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"99","data":{}}`), 0o644))

	m := NewManager(NewFileStorage(path))
	var loaded testState
	err := m.LoadSnapshot(context.Background(), &loaded)
	assert.ErrorContains(t, err, "version")
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	m := NewManager(NewFileStorage(path))

	require.NoError(t, m.SaveSnapshot(context.Background(), testState{Name: "x"}))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	m := NewManager(NewFileStorage(path))

	require.NoError(t, m.SaveSnapshot(context.Background(), testState{Name: "first"}))
	require.NoError(t, m.SaveSnapshot(context.Background(), testState{Name: "second"}))

	var loaded testState
	require.NoError(t, m.LoadSnapshot(context.Background(), &loaded))
	assert.Equal(t, "second", loaded.Name)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
