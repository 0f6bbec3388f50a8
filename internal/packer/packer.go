// Package packer wraps the packer CLI for the golden template build: the
// base template cloned, booted, provisioned with Kubernetes prerequisites
// and converted back into a template.
package packer

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
)

// Build holds one golden template build.
type Build struct {
	run runner.Runner
	cfg *config.Config
	log logr.Logger

	// Token is the automation API credential packer authenticates with.
	TokenID     string
	TokenSecret string
}

// NewBuild wraps the local runner with packer operations.
func NewBuild(run runner.Runner, cfg *config.Config, log logr.Logger) *Build {
	return &Build{run: run, cfg: cfg, log: log}
}

// Run executes init, validate and build in the packer workspace. Build
// output streams to a log file so a 30-minute bake is observable.
func (b *Build) Run(ctx context.Context, buildTimeout time.Duration) error {
	if b.TokenID == "" || b.TokenSecret == "" {
		return fmt.Errorf("packer build requires the automation API token")
	}

	steps := []struct {
		argv    []string
		timeout time.Duration
	}{
		{argv: []string{"packer", "init", "."}, timeout: 5 * time.Minute},
		{argv: append([]string{"packer", "validate"}, b.varFlags()...), timeout: 5 * time.Minute},
		{argv: append([]string{"packer", "build", "-force"}, b.varFlags()...), timeout: buildTimeout},
	}

	for _, step := range steps {
		cmd := runner.Command{
			Argv:    step.argv,
			Timeout: step.timeout,
			Dir:     b.cfg.Dirs.Packer,
		}
		if step.argv[1] == "build" && b.cfg.Dirs.Logs != "" {
			cmd.LogPath = filepath.Join(b.cfg.Dirs.Logs, "packer-build.log")
		}
		res := b.run.Run(ctx, cmd)
		if !res.OK() {
			return fmt.Errorf("packer %s failed (exit %d): %s",
				step.argv[1], res.ExitCode, lastLines(res.Stderr+res.Stdout, 20))
		}
	}
	return nil
}

// varFlags renders the template variables packer needs. The token secret
// travels as an argument vector entry, never through a shell.
func (b *Build) varFlags() []string {
	cfg := b.cfg
	vars := []struct{ k, v string }{
		{"proxmox_url", fmt.Sprintf("https://%s/api2/json", cfg.Proxmox.APIHostPort())},
		{"proxmox_node", cfg.Proxmox.Node},
		{"proxmox_token_id", b.TokenID},
		{"proxmox_token_secret", b.TokenSecret},
		{"base_template", cfg.Templates.BaseName},
		{"golden_vmid", strconv.Itoa(cfg.Templates.GoldenVMID)},
		{"golden_name", cfg.Templates.GoldenName},
		{"storage_pool", cfg.Proxmox.StoragePool},
		{"kubernetes_version", cfg.Cluster.KubernetesVersion},
		{"ssh_username", cfg.Cluster.NodeUser},
	}

	flags := make([]string, 0, len(vars)+1)
	for _, v := range vars {
		flags = append(flags, "-var", fmt.Sprintf("%s=%s", v.k, v.v))
	}
	return append(flags, ".")
}

// lastLines trims tool output to its tail for error messages.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
