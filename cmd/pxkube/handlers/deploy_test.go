package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/phase"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/util/prerequisites"
	"github.com/pxkube/pxkube/internal/validate"
)

// fakeRunner satisfies runner.Runner and reports success for everything.
type fakeRunner struct{}

func (fakeRunner) Run(_ context.Context, _ runner.Command) runner.Result {
	return runner.Result{ExitCode: 0}
}

func testClusterConfig() *config.Config {
	cfg := &config.Config{ClusterName: "test"}
	cfg.Proxmox.Host = "pve.example.com"
	cfg.Templates.BaseVMID = 9000
	cfg.Templates.GoldenVMID = 9100
	return cfg
}

// pipelineCall records what Deploy handed to the phase engine.
type pipelineCall struct {
	ctx    *phase.Context
	phases []phase.Phase
	opts   phase.Options
	called bool
}

// stubDeploy replaces the deploy factory functions with fakes and
// restores them when the test finishes.
func stubDeploy(t *testing.T) *pipelineCall {
	t.Helper()

	origLoad := loadConfigFile
	origPrereqs := checkDeployPrereqs
	origLogger := newLogger
	origLocal := newLocalRunner
	origRemote := newRemoteRunner
	origStatePath := defaultStatePath
	origRun := runPipeline
	t.Cleanup(func() {
		loadConfigFile = origLoad
		checkDeployPrereqs = origPrereqs
		newLogger = origLogger
		newLocalRunner = origLocal
		newRemoteRunner = origRemote
		defaultStatePath = origStatePath
		runPipeline = origRun
	})

	statePath := filepath.Join(t.TempDir(), "state.json")

	loadConfigFile = func(_ string) (*config.Config, error) { return testClusterConfig(), nil }
	checkDeployPrereqs = func() *prerequisites.CheckResults { return &prerequisites.CheckResults{} }
	newLogger = func() logr.Logger { return logr.Discard() }
	newLocalRunner = func(_ logr.Logger) runner.Runner { return fakeRunner{} }
	newRemoteRunner = func(_ *config.Config, _ logr.Logger) (runner.Runner, error) { return fakeRunner{}, nil }
	defaultStatePath = func(_ string) (string, error) { return statePath, nil }

	call := &pipelineCall{}
	runPipeline = func(ctx *phase.Context, phases []phase.Phase, opts phase.Options) error {
		call.ctx = ctx
		call.phases = phases
		call.opts = opts
		call.called = true
		return nil
	}
	return call
}

func TestDeploy_RunsPipeline(t *testing.T) {
	call := stubDeploy(t)

	err := Deploy(context.Background(), "pxkube.yaml", DeployOptions{
		SkipPhases: []string{"cloud_image"},
		ResumeFrom: "bootstrap",
		DryRun:     true,
	})
	require.NoError(t, err)

	require.True(t, call.called)
	assert.Len(t, call.phases, 10)
	assert.Equal(t, []string{"cloud_image"}, call.opts.SkipPhases)
	assert.Equal(t, "bootstrap", call.opts.ResumeFrom)
	assert.True(t, call.opts.DryRun)
	assert.Equal(t, "test", call.ctx.Config.ClusterName)
	assert.NotNil(t, call.ctx.State)
	assert.NotNil(t, call.ctx.Observer)
}

func TestDeploy_ForceRebuildClearsState(t *testing.T) {
	call := stubDeploy(t)

	// Seed a completed phase, as a previous deploy would have.
	statePath, err := defaultStatePath("test")
	require.NoError(t, err)
	seed, err := loadState(statePath, logr.Discard())
	require.NoError(t, err)
	require.NoError(t, seed.MarkComplete("validation", nil))

	err = Deploy(context.Background(), "pxkube.yaml", DeployOptions{ForceRebuild: true})
	require.NoError(t, err)

	require.True(t, call.called)
	assert.False(t, call.ctx.State.IsComplete("validation"))
}

func TestDeploy_ConfigLoadError(t *testing.T) {
	stubDeploy(t)
	loadConfigFile = func(_ string) (*config.Config, error) { return nil, errors.New("no such file") }

	err := Deploy(context.Background(), "pxkube.yaml", DeployOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestDeploy_MissingToolsAbort(t *testing.T) {
	call := stubDeploy(t)
	checkDeployPrereqs = func() *prerequisites.CheckResults {
		return &prerequisites.CheckResults{
			Missing: []prerequisites.Tool{{Name: "packer", Required: true}},
		}
	}

	err := Deploy(context.Background(), "pxkube.yaml", DeployOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "packer")
	assert.False(t, call.called)
}

func TestDeploy_RemoteConnectError(t *testing.T) {
	call := stubDeploy(t)
	newRemoteRunner = func(_ *config.Config, _ logr.Logger) (runner.Runner, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	err := Deploy(context.Background(), "pxkube.yaml", DeployOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach proxmox host")
	assert.False(t, call.called)
}

func TestDeploy_ValidateOnlySkipsPipeline(t *testing.T) {
	call := stubDeploy(t)

	origValidator := newValidator
	t.Cleanup(func() { newValidator = origValidator })
	validatorCalled := false
	newValidator = func(_ runner.Runner, _ *config.Config, _ logr.Logger) checkRunner {
		validatorCalled = true
		return stubChecks{}
	}

	err := Deploy(context.Background(), "pxkube.yaml", DeployOptions{ValidateOnly: true})
	require.NoError(t, err)
	assert.True(t, validatorCalled)
	assert.False(t, call.called)
}

// stubChecks returns an empty, all-passing validation result set.
type stubChecks struct{}

func (stubChecks) RunAll(_ context.Context) *validate.Results { return &validate.Results{} }

func TestPhaseNames_Order(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"validation",
		"tools_storage",
		"cloud_image",
		"packer_user",
		"base_template",
		"golden_template",
		"infrastructure",
		"bootstrap",
		"kubeconfig",
		"cluster_verify",
	}, phaseNames())
}
