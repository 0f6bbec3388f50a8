package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cluster", "state.json")
	s, err := Load(path, logr.Discard())
	require.NoError(t, err)
	return s
}

func TestLoad_MissingFileStartsFresh(t *testing.T) {
	t.Parallel()

	s := tempStore(t)

	assert.False(t, s.IsComplete("base_template"))
	doc := s.Snapshot()
	assert.Equal(t, SchemaVersion, doc.Version)
	assert.Empty(t, doc.Phases)
}

func TestLoad_CorruptFileStartsFresh(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := Load(path, logr.Discard())
	require.NoError(t, err)
	assert.Empty(t, s.Snapshot().Phases)
}

func TestLoad_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := Load("", logr.Discard())
	assert.Error(t, err)
}

func TestMarkComplete_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Load(path, logr.Discard())
	require.NoError(t, err)

	details := map[string]string{"token_id": "automation@pve!deploy", "token_secret": "abc123"}
	require.NoError(t, s.MarkComplete("packer_user", details))

	// Reload from disk and verify everything survived.
	reloaded, err := Load(path, logr.Discard())
	require.NoError(t, err)

	assert.True(t, reloaded.IsComplete("packer_user"))
	got, ok := reloaded.Details("packer_user")
	require.True(t, ok)
	assert.Equal(t, details, got)

	rec := reloaded.Snapshot().Phases["packer_user"]
	assert.False(t, rec.Timestamp.IsZero())
}

func TestDetails_IncompletePhase(t *testing.T) {
	t.Parallel()

	s := tempStore(t)

	_, ok := s.Details("never_ran")
	assert.False(t, ok)
}

func TestDetails_IsACopy(t *testing.T) {
	t.Parallel()

	s := tempStore(t)
	require.NoError(t, s.MarkComplete("packer_user", map[string]string{"token_id": "automation@pve!deploy"}))

	got, ok := s.Details("packer_user")
	require.True(t, ok)
	got["token_id"] = "mutated"

	fresh, ok := s.Details("packer_user")
	require.True(t, ok)
	assert.Equal(t, "automation@pve!deploy", fresh["token_id"])
}

func TestInvalidate_ClearsSinglePhase(t *testing.T) {
	t.Parallel()

	s := tempStore(t)
	require.NoError(t, s.MarkComplete("base_template", nil))
	require.NoError(t, s.MarkComplete("golden_template", nil))

	require.NoError(t, s.Invalidate("base_template"))

	assert.False(t, s.IsComplete("base_template"))
	assert.True(t, s.IsComplete("golden_template"))
}

func TestInvalidate_UnknownPhaseIsNoop(t *testing.T) {
	t.Parallel()

	s := tempStore(t)
	require.NoError(t, s.Invalidate("never_ran"))
}

func TestRecordResource_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Load(path, logr.Discard())
	require.NoError(t, err)

	require.NoError(t, s.RecordResource("template", "base", "9000"))
	require.NoError(t, s.RecordResource("vm", "cp-1", "100"))

	reloaded, err := Load(path, logr.Discard())
	require.NoError(t, err)

	v, ok := reloaded.Resource("template", "base")
	require.True(t, ok)
	assert.Equal(t, "9000", v)

	v, ok = reloaded.Resource("vm", "cp-1")
	require.True(t, ok)
	assert.Equal(t, "100", v)
}

func TestReset_DiscardsEverything(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Load(path, logr.Discard())
	require.NoError(t, err)

	require.NoError(t, s.MarkComplete("validation", nil))
	require.NoError(t, s.RecordResource("template", "base", "9000"))

	require.NoError(t, s.Reset())

	assert.False(t, s.IsComplete("validation"))
	_, ok := s.Resource("template", "base")
	assert.False(t, ok)

	// The empty document is persisted, not just in memory.
	reloaded, err := Load(path, logr.Discard())
	require.NoError(t, err)
	assert.Empty(t, reloaded.Snapshot().Phases)
}

func TestDelete_RemovesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Load(path, logr.Discard())
	require.NoError(t, err)
	require.NoError(t, s.MarkComplete("validation", nil))

	require.NoError(t, s.Delete())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// Deleting twice is fine.
	require.NoError(t, s.Delete())
}

func TestSave_WritesValidJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Load(path, logr.Discard())
	require.NoError(t, err)
	require.NoError(t, s.MarkComplete("validation", map[string]string{"ok": "true"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, SchemaVersion, doc.Version)
	assert.True(t, doc.Phases["validation"].Completed)
	assert.False(t, doc.LastUpdated.IsZero())
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s, err := Load(path, logr.Discard())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.MarkComplete("validation", nil))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestSnapshot_IsACopy(t *testing.T) {
	t.Parallel()

	s := tempStore(t)
	require.NoError(t, s.MarkComplete("validation", map[string]string{"k": "v"}))

	snap := s.Snapshot()
	snap.Phases["validation"].Details["k"] = "mutated"
	delete(snap.Phases, "validation")

	assert.True(t, s.IsComplete("validation"))
	got, _ := s.Details("validation")
	assert.Equal(t, "v", got["k"])
}
