package kubespray

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pxkube/pxkube/internal/phase"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/util/retry"
)

// DetailKubeconfigPath is where the kubeconfig phase records the fetched
// admin config.
const DetailKubeconfigPath = "kubeconfig_path"

// BootstrapPhase generates the inventory, gates on SSH reachability and
// runs the Kubespray cluster playbook.
type BootstrapPhase struct{}

// Name implements phase.Phase.
func (*BootstrapPhase) Name() string { return "bootstrap" }

// Run executes the bootstrap. The playbook is idempotent on its own, so
// re-running after a mid-play failure converges rather than starting
// over.
func (*BootstrapPhase) Run(ctx *phase.Context) (map[string]string, error) {
	inventory, err := WriteInventory(ctx.Config)
	if err != nil {
		return nil, err
	}

	b := NewBootstrap(ctx.Local, ctx.Config, ctx.Log)
	if err := b.Ping(ctx, inventory); err != nil {
		return nil, err
	}
	if err := b.RunClusterPlaybook(ctx, inventory, ctx.Timeouts.AnsiblePlaybook); err != nil {
		return nil, err
	}
	return map[string]string{"inventory": inventory}, nil
}

// KubeconfigPhase fetches the admin kubeconfig and points it at the VIP.
type KubeconfigPhase struct{}

// Name implements phase.Phase.
func (*KubeconfigPhase) Name() string { return "kubeconfig" }

// Run fetches and rewrites the config.
func (*KubeconfigPhase) Run(ctx *phase.Context) (map[string]string, error) {
	path, err := FetchKubeconfig(ctx, ctx.Config, ctx.Log)
	if err != nil {
		return nil, err
	}
	return map[string]string{DetailKubeconfigPath: path}, nil
}

// Verify checks the kubeconfig file is still where it was written.
func (*KubeconfigPhase) Verify(_ *phase.Context, details map[string]string) bool {
	path := details[DetailKubeconfigPath]
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// ClusterVerifyPhase waits for every node to report Ready.
type ClusterVerifyPhase struct{}

// Name implements phase.Phase.
func (*ClusterVerifyPhase) Name() string { return "cluster_verify" }

// Run polls kubectl get nodes until the expected number of Ready nodes
// appears. Nodes finish joining at slightly different times after the
// playbook ends.
func (*ClusterVerifyPhase) Run(ctx *phase.Context) (map[string]string, error) {
	kubeDetails, ok := ctx.State.Details("kubeconfig")
	if !ok {
		return nil, fmt.Errorf("kubeconfig phase has not completed")
	}
	kubeconfig := kubeDetails[DetailKubeconfigPath]

	expected := len(ctx.Config.Cluster.ControlPlaneIPs) + len(ctx.Config.Cluster.WorkerIPs)

	err := retry.Do(ctx, func() error {
		ready, total, perr := readyNodes(ctx, ctx.Local, kubeconfig)
		if perr != nil {
			return perr
		}
		if ready < expected {
			return fmt.Errorf("%d/%d nodes ready (expected %d)", ready, total, expected)
		}
		return nil
	},
		retry.WithAttempts(10),
		retry.WithDelay(15*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("cluster did not become ready: %w", err)
	}
	return map[string]string{"nodes": fmt.Sprintf("%d", expected)}, nil
}

// Verify runs a single readiness probe against the recorded cluster.
func (*ClusterVerifyPhase) Verify(ctx *phase.Context, _ map[string]string) bool {
	kubeDetails, ok := ctx.State.Details("kubeconfig")
	if !ok {
		return false
	}
	expected := len(ctx.Config.Cluster.ControlPlaneIPs) + len(ctx.Config.Cluster.WorkerIPs)
	ready, _, err := readyNodes(ctx, ctx.Local, kubeDetails[DetailKubeconfigPath])
	return err == nil && ready >= expected
}

// readyNodes counts Ready nodes via kubectl's no-headers listing.
func readyNodes(ctx *phase.Context, run runner.Runner, kubeconfig string) (ready, total int, err error) {
	res := run.Run(ctx, runner.Command{
		Argv:    []string{"kubectl", "--kubeconfig", kubeconfig, "get", "nodes", "--no-headers"},
		Timeout: phase.VerifyTimeout,
	})
	if !res.OK() {
		return 0, 0, fmt.Errorf("kubectl get nodes failed: %s", strings.TrimSpace(res.Stderr))
	}
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		total++
		if fields[1] == "Ready" {
			ready++
		}
	}
	return ready, total, nil
}
