// Package terraform wraps the terraform CLI to provision the cluster VMs
// from the golden template. Credentials travel to the child process as
// TF_VAR_ environment entries, never on the command line where ps would
// show them.
package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/util/retry"
)

// Workspace drives one terraform root module.
type Workspace struct {
	run runner.Runner
	cfg *config.Config
	log logr.Logger

	TokenID     string
	TokenSecret string
}

// NewWorkspace wraps the local runner with terraform operations.
func NewWorkspace(run runner.Runner, cfg *config.Config, log logr.Logger) *Workspace {
	return &Workspace{run: run, cfg: cfg, log: log}
}

func (w *Workspace) command(argv []string, timeout time.Duration) runner.Command {
	return runner.Command{
		Argv:    argv,
		Timeout: timeout,
		Dir:     w.cfg.Dirs.Terraform,
		Env: []string{
			"TF_IN_AUTOMATION=1",
			"TF_VAR_proxmox_token_id=" + w.TokenID,
			"TF_VAR_proxmox_token_secret=" + w.TokenSecret,
		},
	}
}

// Init runs terraform init with plugin caching friendly flags.
func (w *Workspace) Init(ctx context.Context) error {
	res := w.run.Run(ctx, w.command([]string{"terraform", "init", "-input=false", "-no-color"}, 10*time.Minute))
	if !res.OK() {
		return fmt.Errorf("terraform init failed: %s", tail(res))
	}
	return nil
}

// Validate checks the configuration is syntactically valid before any
// plan touches the hypervisor.
func (w *Workspace) Validate(ctx context.Context) error {
	res := w.run.Run(ctx, w.command([]string{"terraform", "validate", "-no-color"}, 2*time.Minute))
	if !res.OK() {
		return fmt.Errorf("terraform validate failed: %s", tail(res))
	}
	return nil
}

// Apply plans and applies, retrying a bounded number of times. Proxmox
// clone operations fail transiently under storage load; a fixed delay
// between attempts lets the host settle. The plan runs inside the retry
// loop because a partial apply changes the state a saved plan was built
// against.
func (w *Workspace) Apply(ctx context.Context, timeout time.Duration, attempts int, delay time.Duration) error {
	plan := w.command([]string{"terraform", "plan", "-input=false", "-no-color", "-out=tfplan"}, 10*time.Minute)

	apply := w.command([]string{"terraform", "apply", "-input=false", "-no-color", "-auto-approve", "tfplan"}, timeout)
	if w.cfg.Dirs.Logs != "" {
		apply.LogPath = filepath.Join(w.cfg.Dirs.Logs, "terraform-apply.log")
	}

	return retry.Do(ctx, func() error {
		if res := w.run.Run(ctx, plan); !res.OK() {
			return fmt.Errorf("terraform plan failed: %s", tail(res))
		}
		res := w.run.Run(ctx, apply)
		if !res.OK() {
			return fmt.Errorf("terraform apply failed: %s", tail(res))
		}
		return nil
	},
		retry.WithAttempts(attempts),
		retry.WithDelay(delay),
	)
}

// Destroy tears down everything the workspace manages.
func (w *Workspace) Destroy(ctx context.Context, timeout time.Duration) error {
	cmd := w.command([]string{"terraform", "destroy", "-input=false", "-no-color", "-auto-approve"}, timeout)
	if w.cfg.Dirs.Logs != "" {
		cmd.LogPath = filepath.Join(w.cfg.Dirs.Logs, "terraform-destroy.log")
	}
	res := w.run.Run(ctx, cmd)
	if !res.OK() {
		return fmt.Errorf("terraform destroy failed: %s", tail(res))
	}
	return nil
}

// Outputs fetches and decodes terraform output -json.
func (w *Workspace) Outputs(ctx context.Context) (map[string]Output, error) {
	res := w.run.Run(ctx, w.command([]string{"terraform", "output", "-json"}, 2*time.Minute))
	if !res.OK() {
		return nil, fmt.Errorf("terraform output failed: %s", tail(res))
	}

	var outputs map[string]Output
	if err := json.Unmarshal([]byte(res.Stdout), &outputs); err != nil {
		return nil, fmt.Errorf("failed to decode terraform outputs: %w", err)
	}
	return outputs, nil
}

// Output is one entry of terraform output -json.
type Output struct {
	Value json.RawMessage `json:"value"`
}

// StringMap decodes the output value as map[string]string, the shape the
// node IP outputs use.
func (o Output) StringMap() (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal(o.Value, &m); err != nil {
		return nil, fmt.Errorf("output is not a string map: %w", err)
	}
	return m, nil
}

// String decodes the output value as a plain string.
func (o Output) String() (string, error) {
	var s string
	if err := json.Unmarshal(o.Value, &s); err != nil {
		return "", fmt.Errorf("output is not a string: %w", err)
	}
	return s, nil
}

func tail(res runner.Result) string {
	out := strings.TrimSpace(res.Stderr)
	if out == "" {
		out = strings.TrimSpace(res.Stdout)
	}
	lines := strings.Split(out, "\n")
	if len(lines) > 20 {
		lines = lines[len(lines)-20:]
	}
	return strings.Join(lines, "\n")
}
