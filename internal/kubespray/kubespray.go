package kubespray

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
)

// Bootstrap drives the Kubespray playbooks for one cluster.
type Bootstrap struct {
	run runner.Runner
	cfg *config.Config
	log logr.Logger
}

// NewBootstrap wraps the local runner with Kubespray operations.
func NewBootstrap(run runner.Runner, cfg *config.Config, log logr.Logger) *Bootstrap {
	return &Bootstrap{run: run, cfg: cfg, log: log}
}

// sshArgs are the connection flags shared by ansible and ansible-playbook.
func (b *Bootstrap) sshArgs(inventory string) []string {
	return []string{
		"-i", inventory,
		"-u", b.cfg.Cluster.NodeUser,
		"--private-key", b.cfg.SSH.AutomationPrivateKeyPath,
		"-e", "ansible_ssh_common_args=-o StrictHostKeyChecking=no",
	}
}

// Ping gates the playbook run on every node answering Ansible's ping
// module. Failing here beats failing twenty minutes into cluster.yml.
func (b *Bootstrap) Ping(ctx context.Context, inventory string) error {
	argv := append([]string{"ansible", "all", "-m", "ping"}, b.sshArgs(inventory)...)
	res := b.run.Run(ctx, runner.Command{
		Argv:    argv,
		Timeout: 2 * time.Minute,
		Dir:     b.cfg.Dirs.Kubespray,
	})
	if !res.OK() {
		return fmt.Errorf("not all nodes are reachable over SSH: %s", tail(res))
	}
	return nil
}

// RunClusterPlaybook executes cluster.yml with output streamed to a log
// file. This is the longest step of the whole deployment.
func (b *Bootstrap) RunClusterPlaybook(ctx context.Context, inventory string, timeout time.Duration) error {
	argv := append([]string{"ansible-playbook", "cluster.yml", "-b"}, b.sshArgs(inventory)...)
	argv = append(argv, "-e", "kube_version="+b.cfg.Cluster.KubernetesVersion)

	cmd := runner.Command{
		Argv:    argv,
		Timeout: timeout,
		Dir:     b.cfg.Dirs.Kubespray,
	}
	if b.cfg.Dirs.Logs != "" {
		cmd.LogPath = filepath.Join(b.cfg.Dirs.Logs, "kubespray-cluster.log")
	}

	res := b.run.Run(ctx, cmd)
	if !res.OK() {
		if res.TimedOut {
			return fmt.Errorf("cluster playbook timed out after %v, see the kubespray log", timeout)
		}
		return fmt.Errorf("cluster playbook failed: %s", tail(res))
	}
	return nil
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
