package kubespray

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pxkube/pxkube/internal/config"
)

func inventoryConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ClusterName: "homelab",
		Cluster: config.Cluster{
			NodeUser:        "ubuntu",
			ControlPlaneIPs: []string{"10.0.0.11", "10.0.0.12", "10.0.0.13"},
			WorkerIPs:       []string{"10.0.0.21", "10.0.0.22"},
		},
		Dirs: config.Dirs{Kubespray: t.TempDir()},
	}
}

func TestBuildInventory(t *testing.T) {
	t.Parallel()

	inv := BuildInventory(inventoryConfig(t))

	assert.Len(t, inv.All.Hosts, 5)
	assert.Equal(t, "10.0.0.11", inv.All.Hosts["homelab-cp-1"].AnsibleHost)
	assert.Equal(t, "10.0.0.22", inv.All.Hosts["homelab-worker-2"].AnsibleHost)

	cp := inv.All.Children["kube_control_plane"]
	assert.Len(t, cp.Hosts, 3)
	assert.Contains(t, cp.Hosts, "homelab-cp-2")

	etcd := inv.All.Children["etcd"]
	assert.Equal(t, cp.Hosts, etcd.Hosts, "control plane nodes double as etcd members")

	workers := inv.All.Children["kube_node"]
	assert.Len(t, workers.Hosts, 2)

	k8s := inv.All.Children["k8s_cluster"]
	assert.Contains(t, k8s.Children, "kube_control_plane")
	assert.Contains(t, k8s.Children, "kube_node")
}

func TestBuildInventory_NoWorkers(t *testing.T) {
	t.Parallel()

	cfg := inventoryConfig(t)
	cfg.Cluster.WorkerIPs = nil

	inv := BuildInventory(cfg)

	workers := inv.All.Children["kube_node"]
	assert.Len(t, workers.Hosts, 3, "control plane nodes run workloads when no workers exist")
	assert.Contains(t, workers.Hosts, "homelab-cp-1")
}

func TestWriteInventory_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := inventoryConfig(t)

	path, err := WriteInventory(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Dirs.Kubespray, "inventory", "homelab", "hosts.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Inventory
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, "10.0.0.11", loaded.All.Hosts["homelab-cp-1"].IP)
	assert.Len(t, loaded.All.Children["etcd"].Hosts, 3)
}

func TestRewriteServer(t *testing.T) {
	t.Parallel()

	in := "apiVersion: v1\nclusters:\n- cluster:\n    server: https://10.0.0.11:6443\n  name: cluster.local\n"
	out := rewriteServer(in, "10.0.0.100")

	assert.Contains(t, out, "    server: https://10.0.0.100:6443")
	assert.NotContains(t, out, "10.0.0.11:6443")
}
