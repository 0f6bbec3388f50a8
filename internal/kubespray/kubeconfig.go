package kubespray

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/platform/ssh"
	"github.com/pxkube/pxkube/internal/runner"
)

// FetchKubeconfig pulls the admin kubeconfig off the first control plane
// node, points it at the VIP and writes it locally with key-file
// permissions.
func FetchKubeconfig(ctx context.Context, cfg *config.Config, log logr.Logger) (string, error) {
	if len(cfg.Cluster.ControlPlaneIPs) == 0 {
		return "", fmt.Errorf("no control plane nodes configured")
	}
	node := cfg.Cluster.ControlPlaneIPs[0]

	client, err := ssh.NewClient(&ssh.Config{
		Host:           node,
		User:           cfg.Cluster.NodeUser,
		PrivateKeyPath: cfg.SSH.AutomationPrivateKeyPath,
	}, log)
	if err != nil {
		return "", fmt.Errorf("failed to build node SSH client: %w", err)
	}

	res := client.Run(ctx, runner.Command{
		Argv: []string{"sudo", "cat", "/etc/kubernetes/admin.conf"},
	})
	if !res.OK() {
		return "", fmt.Errorf("failed to read admin.conf on %s: %s", node, strings.TrimSpace(res.Stderr))
	}

	kubeconfig := res.Stdout
	if cfg.Cluster.VIP != "" {
		kubeconfig = rewriteServer(kubeconfig, cfg.Cluster.VIP)
	}

	dst := cfg.Dirs.Kubeconfig
	if dst == "" {
		dst = filepath.Join(cfg.Dirs.Kubespray, cfg.ClusterName+".kubeconfig")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create kubeconfig directory: %w", err)
	}
	if err := os.WriteFile(dst, []byte(kubeconfig), 0o600); err != nil {
		return "", fmt.Errorf("failed to write kubeconfig: %w", err)
	}
	return dst, nil
}

// rewriteServer repoints the server line at the VIP. The fetched config
// names the node it came from, which defeats the point of a floating
// control plane address.
func rewriteServer(kubeconfig, vip string) string {
	lines := strings.Split(kubeconfig, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "server:") {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		lines[i] = fmt.Sprintf("%sserver: https://%s:6443", indent, vip)
	}
	return strings.Join(lines, "\n")
}
