package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/validate"
)

type cannedChecks struct {
	results *validate.Results
}

func (c cannedChecks) RunAll(_ context.Context) *validate.Results { return c.results }

func stubValidate(t *testing.T, results *validate.Results) {
	t.Helper()

	origLoad := loadConfigFile
	origLogger := newLogger
	origRemote := newRemoteRunner
	origValidator := newValidator
	t.Cleanup(func() {
		loadConfigFile = origLoad
		newLogger = origLogger
		newRemoteRunner = origRemote
		newValidator = origValidator
	})

	loadConfigFile = func(_ string) (*config.Config, error) { return testClusterConfig(), nil }
	newLogger = func() logr.Logger { return logr.Discard() }
	newRemoteRunner = func(_ *config.Config, _ logr.Logger) (runner.Runner, error) { return fakeRunner{}, nil }
	newValidator = func(_ runner.Runner, _ *config.Config, _ logr.Logger) checkRunner {
		return cannedChecks{results: results}
	}
}

func TestValidate_AllChecksPass(t *testing.T) {
	stubValidate(t, &validate.Results{Results: []validate.Result{
		{Check: validate.Check{Name: "local tools", Required: true}},
		{Check: validate.Check{Name: "proxmox version", Required: true}},
	}})

	assert.NoError(t, Validate(context.Background(), "pxkube.yaml"))
}

func TestValidate_RequiredFailureSurfaces(t *testing.T) {
	stubValidate(t, &validate.Results{Results: []validate.Result{
		{Check: validate.Check{Name: "local tools", Required: true}},
		{Check: validate.Check{Name: "storage pool accessible", Required: true}, Err: errors.New("pool missing")},
	}})

	err := Validate(context.Background(), "pxkube.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage pool accessible")
}

func TestValidate_WarningsAreNotFatal(t *testing.T) {
	stubValidate(t, &validate.Results{Results: []validate.Result{
		{Check: validate.Check{Name: "proxmox version", Required: true}},
		{Check: validate.Check{Name: "ceph healthy", Required: false}, Err: errors.New("HEALTH_WARN")},
	}})

	assert.NoError(t, Validate(context.Background(), "pxkube.yaml"))
}
