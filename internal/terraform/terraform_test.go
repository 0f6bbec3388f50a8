package terraform

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
)

type fakeRunner struct {
	calls   []runner.Command
	fail    map[string]int // subcommand -> remaining failures
	outputs string
}

func (f *fakeRunner) Run(_ context.Context, cmd runner.Command) runner.Result {
	f.calls = append(f.calls, cmd)
	sub := cmd.Argv[1]
	if left, ok := f.fail[sub]; ok && left > 0 {
		f.fail[sub]--
		return runner.Result{ExitCode: 1, Stderr: "Error: " + sub + " failed transiently"}
	}
	if sub == "output" {
		return runner.Result{Stdout: f.outputs}
	}
	return runner.Result{}
}

func testWorkspace(fr *fakeRunner) *Workspace {
	cfg := &config.Config{
		Dirs: config.Dirs{Terraform: "/opt/pxkube/terraform", Logs: "/tmp/logs"},
	}
	w := NewWorkspace(fr, cfg, logr.Discard())
	w.TokenID = "automation@pve!deploy"
	w.TokenSecret = "secret-value"
	return w
}

func TestCommand_CredentialsInEnvironmentNotArgv(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{}
	w := testWorkspace(fr)

	require.NoError(t, w.Init(context.Background()))

	cmd := fr.calls[0]
	assert.Equal(t, "/opt/pxkube/terraform", cmd.Dir)
	assert.NotContains(t, strings.Join(cmd.Argv, " "), "secret-value")
	assert.Contains(t, cmd.Env, "TF_VAR_proxmox_token_secret=secret-value")
	assert.Contains(t, cmd.Env, "TF_IN_AUTOMATION=1")
}

func TestValidate_FailureSurfacesStderr(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{fail: map[string]int{"validate": 1}}
	w := testWorkspace(fr)

	err := w.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate failed")
}

func TestApply_PlanThenApply(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{}
	w := testWorkspace(fr)

	require.NoError(t, w.Apply(context.Background(), time.Hour, 3, time.Millisecond))

	require.Len(t, fr.calls, 2)
	assert.Equal(t, "plan", fr.calls[0].Argv[1])
	assert.Contains(t, fr.calls[0].Argv, "-out=tfplan")
	assert.Equal(t, "apply", fr.calls[1].Argv[1])
	assert.Contains(t, fr.calls[1].Argv, "-auto-approve")
	assert.Equal(t, time.Hour, fr.calls[1].Timeout)
	assert.Equal(t, "/tmp/logs/terraform-apply.log", fr.calls[1].LogPath)
}

func TestApply_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{fail: map[string]int{"apply": 2}}
	w := testWorkspace(fr)

	require.NoError(t, w.Apply(context.Background(), time.Hour, 3, time.Millisecond))

	applies := 0
	for _, c := range fr.calls {
		if c.Argv[1] == "apply" {
			applies++
		}
	}
	assert.Equal(t, 3, applies)
}

func TestApply_ReplansEachAttempt(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{fail: map[string]int{"apply": 2}}
	w := testWorkspace(fr)

	require.NoError(t, w.Apply(context.Background(), time.Hour, 3, time.Millisecond))

	// A partial apply invalidates the saved plan, so every attempt must
	// start with its own plan.
	var subs []string
	for _, c := range fr.calls {
		subs = append(subs, c.Argv[1])
	}
	assert.Equal(t, []string{"plan", "apply", "plan", "apply", "plan", "apply"}, subs)
}

func TestApply_GivesUpAfterBudget(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{fail: map[string]int{"apply": 10}}
	w := testWorkspace(fr)

	err := w.Apply(context.Background(), time.Hour, 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terraform apply failed")
}

func TestApply_PlanFailureSkipsApply(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{fail: map[string]int{"plan": 10}}
	w := testWorkspace(fr)

	err := w.Apply(context.Background(), time.Hour, 3, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terraform plan failed")
	for _, c := range fr.calls {
		assert.NotEqual(t, "apply", c.Argv[1])
	}
}

func TestOutputs(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{outputs: `{
		"node_vmids": {"sensitive": false, "value": {"homelab-cp-1": "101", "homelab-worker-1": "102"}},
		"vip": {"sensitive": false, "value": "10.0.0.100"}
	}`}
	w := testWorkspace(fr)

	outputs, err := w.Outputs(context.Background())
	require.NoError(t, err)

	vmids, err := outputs["node_vmids"].StringMap()
	require.NoError(t, err)
	assert.Equal(t, "101", vmids["homelab-cp-1"])

	vip, err := outputs["vip"].String()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.100", vip)
}

func TestOutputs_GarbageJSON(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{outputs: "not json"}
	w := testWorkspace(fr)

	_, err := w.Outputs(context.Background())
	require.Error(t, err)
}

func TestOutput_WrongShape(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{outputs: `{"vip": {"value": "10.0.0.100"}}`}
	w := testWorkspace(fr)

	outputs, err := w.Outputs(context.Background())
	require.NoError(t, err)

	_, err = outputs["vip"].StringMap()
	assert.Error(t, err)
}

func TestDestroy(t *testing.T) {
	t.Parallel()

	fr := &fakeRunner{}
	w := testWorkspace(fr)

	require.NoError(t, w.Destroy(context.Background(), time.Hour))

	require.Len(t, fr.calls, 1)
	assert.Equal(t, "destroy", fr.calls[0].Argv[1])
	assert.Contains(t, fr.calls[0].Argv, "-auto-approve")
}
