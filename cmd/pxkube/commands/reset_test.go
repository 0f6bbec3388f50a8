package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReset(t *testing.T) {
	cmd := Reset()

	require.NotNil(t, cmd)
	assert.Equal(t, "reset [phase...]", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestCleanup_Flags(t *testing.T) {
	cmd := Cleanup()

	yes := cmd.Flags().Lookup("yes")
	require.NotNil(t, yes)
	assert.Equal(t, "y", yes.Shorthand)
}

func TestStatus_Flags(t *testing.T) {
	cmd := Status()

	watch := cmd.Flags().Lookup("watch")
	require.NotNil(t, watch)
	assert.Equal(t, "w", watch.Shorthand)
}

func TestInit_OutputFlagDefault(t *testing.T) {
	cmd := Init()

	output := cmd.Flags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, "pxkube.yaml", output.DefValue)
}
