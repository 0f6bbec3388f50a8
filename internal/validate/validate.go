// Package validate runs the pre-flight checks: required tools on the
// operator machine and read-only probes against the Proxmox host. A
// failed probe here costs seconds; the same problem discovered by a
// phase costs a half-finished deployment.
package validate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/util/prerequisites"
)

// Check is one named probe.
type Check struct {
	Name     string
	Required bool
	Probe    func(ctx context.Context) error
}

// Result pairs a check with its outcome.
type Result struct {
	Check Check
	Err   error
}

// Results is the outcome of a validation run.
type Results struct {
	Results []Result
}

// Failed returns the results of failed required checks.
func (r *Results) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil && res.Check.Required {
			out = append(out, res)
		}
	}
	return out
}

// Warnings returns failed optional checks.
func (r *Results) Warnings() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil && !res.Check.Required {
			out = append(out, res)
		}
	}
	return out
}

// Err summarizes the failed required checks, or returns nil.
func (r *Results) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = fmt.Sprintf("%s (%v)", f.Check.Name, f.Err)
	}
	return fmt.Errorf("validation failed: %s", strings.Join(names, "; "))
}

// Validator assembles and runs the check list.
type Validator struct {
	remote runner.Runner
	cfg    *config.Config
	log    logr.Logger
}

// NewValidator builds a validator probing the host through remote.
func NewValidator(remote runner.Runner, cfg *config.Config, log logr.Logger) *Validator {
	return &Validator{remote: remote, cfg: cfg, log: log}
}

// RunAll executes every check and returns all outcomes. Checks keep
// running after a failure so one report covers everything wrong.
func (v *Validator) RunAll(ctx context.Context) *Results {
	results := &Results{}
	for _, check := range v.Checks() {
		err := check.Probe(ctx)
		if err != nil {
			v.log.V(1).Info("validation check failed", "check", check.Name, "error", err.Error())
		}
		results.Results = append(results.Results, Result{Check: check, Err: err})
	}
	return results
}

// Checks returns the full pre-flight list.
func (v *Validator) Checks() []Check {
	return []Check{
		{
			Name:     "local tools",
			Required: true,
			Probe: func(context.Context) error {
				return prerequisites.CheckDeploy().Error()
			},
		},
		{
			Name:     "host ssh access",
			Required: true,
			Probe:    v.remoteProbe("echo", "ok"),
		},
		{
			Name:     "proxmox version",
			Required: true,
			Probe:    v.remoteProbe("pveversion"),
		},
		{
			Name:     "pvedaemon active",
			Required: true,
			Probe:    v.remoteProbe("systemctl", "is-active", "--quiet", "pvedaemon"),
		},
		{
			Name:     "pveproxy active",
			Required: true,
			Probe:    v.remoteProbe("systemctl", "is-active", "--quiet", "pveproxy"),
		},
		{
			Name:     "storage pool accessible",
			Required: true,
			Probe:    v.remoteProbe("rbd", "ls", v.cfg.Proxmox.StoragePool),
		},
		{
			Name:     "ceph healthy",
			Required: false,
			Probe:    v.cephHealth,
		},
		{
			Name:     "network bridge up",
			Required: true,
			Probe:    v.remoteProbe("ip", "link", "show", v.cfg.Proxmox.Bridge),
		},
		{
			Name:     "image tools installed",
			Required: true,
			Probe:    v.remoteProbe("which", "virt-customize", "virt-sysprep", "wget"),
		},
		{
			// The image directory only exists once tools storage is
			// mounted, so on a fresh host this is a warning.
			Name:     "image directory writable",
			Required: false,
			Probe:    v.remoteProbe("test", "-w", v.cfg.Image.Dir),
		},
		{
			Name:     "memory headroom",
			Required: false,
			Probe:    v.memoryHeadroom,
		},
	}
}

// remoteProbe wraps a short read-only remote command as a check.
func (v *Validator) remoteProbe(argv ...string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		res := v.remote.Run(ctx, runner.Command{Argv: argv, Timeout: 10 * time.Second})
		if !res.OK() {
			msg := strings.TrimSpace(res.Stderr)
			if msg == "" {
				msg = fmt.Sprintf("exit %d", res.ExitCode)
			}
			return fmt.Errorf("%s", msg)
		}
		return nil
	}
}

// memoryHeadroom compares the host's available memory against what the
// configured node count will claim. The pipeline still works on an
// overcommitted host, so this is a warning, not a gate.
func (v *Validator) memoryHeadroom(ctx context.Context) error {
	res := v.remote.Run(ctx, runner.Command{
		Argv:    []string{"free", "-m"},
		Timeout: 10 * time.Second,
	})
	if !res.OK() {
		return fmt.Errorf("free probe failed: %s", strings.TrimSpace(res.Stderr))
	}

	availableMB, err := parseAvailableMB(res.Stdout)
	if err != nil {
		return err
	}
	nodes := len(v.cfg.Cluster.ControlPlaneIPs) + len(v.cfg.Cluster.WorkerIPs)
	neededMB := nodes * v.cfg.Templates.MemoryMB
	if availableMB < neededMB {
		return fmt.Errorf("%d MB available, %d nodes need %d MB", availableMB, nodes, neededMB)
	}
	return nil
}

// parseAvailableMB pulls the "available" column from free -m output.
func parseAvailableMB(out string) (int, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 7 && strings.HasPrefix(fields[0], "Mem") {
			var mb int
			if _, err := fmt.Sscanf(fields[6], "%d", &mb); err != nil {
				return 0, fmt.Errorf("unparseable free output: %q", fields[6])
			}
			return mb, nil
		}
	}
	return 0, fmt.Errorf("no Mem line in free output")
}

// cephHealth tolerates HEALTH_WARN, which homelab Ceph spends most of
// its life in; only HEALTH_ERR fails the check.
func (v *Validator) cephHealth(ctx context.Context) error {
	res := v.remote.Run(ctx, runner.Command{
		Argv:    []string{"ceph", "health"},
		Timeout: 10 * time.Second,
	})
	if !res.OK() {
		return fmt.Errorf("ceph health probe failed: %s", strings.TrimSpace(res.Stderr))
	}
	if strings.Contains(res.Stdout, "HEALTH_ERR") {
		return fmt.Errorf("ceph reports HEALTH_ERR")
	}
	return nil
}
