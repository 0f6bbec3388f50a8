package handlers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxkube/pxkube/internal/config"
)

func stubStatus(t *testing.T) string {
	t.Helper()

	origLoad := loadConfigFile
	origLogger := newLogger
	origStatePath := defaultStatePath
	origWatch := watchState
	t.Cleanup(func() {
		loadConfigFile = origLoad
		newLogger = origLogger
		defaultStatePath = origStatePath
		watchState = origWatch
	})

	statePath := filepath.Join(t.TempDir(), "state.json")
	loadConfigFile = func(_ string) (*config.Config, error) { return testClusterConfig(), nil }
	newLogger = func() logr.Logger { return logr.Discard() }
	defaultStatePath = func(_ string) (string, error) { return statePath, nil }
	return statePath
}

func TestStatus_FreshCluster(t *testing.T) {
	stubStatus(t)

	assert.NoError(t, Status(context.Background(), "pxkube.yaml", false, false))
}

func TestStatus_WithRecordedState(t *testing.T) {
	statePath := stubStatus(t)

	st, err := loadState(statePath, logr.Discard())
	require.NoError(t, err)
	require.NoError(t, st.MarkComplete("validation", nil))
	require.NoError(t, st.RecordResource("template", "base", "9000"))

	assert.NoError(t, Status(context.Background(), "pxkube.yaml", false, false))
}

func TestStatus_WatchHandsOff(t *testing.T) {
	statePath := stubStatus(t)

	var gotCluster, gotPath string
	var gotOrder []string
	watchState = func(clusterName, path string, phaseOrder []string) error {
		gotCluster, gotPath, gotOrder = clusterName, path, phaseOrder
		return nil
	}

	require.NoError(t, Status(context.Background(), "pxkube.yaml", true, false))
	assert.Equal(t, "test", gotCluster)
	assert.Equal(t, statePath, gotPath)
	assert.Equal(t, phaseNames(), gotOrder)
}

func TestStatus_JSONOutput(t *testing.T) {
	statePath := stubStatus(t)

	st, err := loadState(statePath, logr.Discard())
	require.NoError(t, err)
	require.NoError(t, st.MarkComplete("validation", nil))

	assert.NoError(t, Status(context.Background(), "pxkube.yaml", false, true))
}
