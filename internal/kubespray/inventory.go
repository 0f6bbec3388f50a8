// Package kubespray drives the Kubespray playbooks that turn provisioned
// VMs into a Kubernetes cluster: inventory generation, a reachability
// gate, the cluster playbook and kubeconfig retrieval.
package kubespray

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pxkube/pxkube/internal/config"
)

// Host is one inventory entry.
type Host struct {
	AnsibleHost string `yaml:"ansible_host"`
	IP          string `yaml:"ip"`
	AccessIP    string `yaml:"access_ip"`
}

// Inventory mirrors the hosts.yaml layout Kubespray expects.
type Inventory struct {
	All struct {
		Hosts    map[string]Host  `yaml:"hosts"`
		Children map[string]Group `yaml:"children"`
	} `yaml:"all"`
}

// Group is a named set of hosts or child groups.
type Group struct {
	Hosts    map[string]struct{} `yaml:"hosts,omitempty"`
	Children map[string]struct{} `yaml:"children,omitempty"`
}

// BuildInventory lays out control plane and worker nodes the way the
// cluster.yml playbook expects: control plane nodes double as etcd
// members, every node joins kube_node when there are no workers.
func BuildInventory(cfg *config.Config) *Inventory {
	inv := &Inventory{}
	inv.All.Hosts = make(map[string]Host)

	controlPlane := Group{Hosts: make(map[string]struct{})}
	etcd := Group{Hosts: make(map[string]struct{})}
	workers := Group{Hosts: make(map[string]struct{})}

	for i, ip := range cfg.Cluster.ControlPlaneIPs {
		name := fmt.Sprintf("%s-cp-%d", cfg.ClusterName, i+1)
		inv.All.Hosts[name] = Host{AnsibleHost: ip, IP: ip, AccessIP: ip}
		controlPlane.Hosts[name] = struct{}{}
		etcd.Hosts[name] = struct{}{}
	}
	for i, ip := range cfg.Cluster.WorkerIPs {
		name := fmt.Sprintf("%s-worker-%d", cfg.ClusterName, i+1)
		inv.All.Hosts[name] = Host{AnsibleHost: ip, IP: ip, AccessIP: ip}
		workers.Hosts[name] = struct{}{}
	}
	if len(workers.Hosts) == 0 {
		workers.Hosts = controlPlane.Hosts
	}

	inv.All.Children = map[string]Group{
		"kube_control_plane": controlPlane,
		"kube_node":          workers,
		"etcd":               etcd,
		"k8s_cluster": {Children: map[string]struct{}{
			"kube_control_plane": {},
			"kube_node":          {},
		}},
		"calico_rr": {Hosts: map[string]struct{}{}},
	}
	return inv
}

// InventoryPath returns where the generated inventory lives inside the
// kubespray workspace.
func InventoryPath(cfg *config.Config) string {
	return filepath.Join(cfg.Dirs.Kubespray, "inventory", cfg.ClusterName, "hosts.yaml")
}

// WriteInventory marshals the inventory to its workspace location.
func WriteInventory(cfg *config.Config) (string, error) {
	inv := BuildInventory(cfg)

	data, err := yaml.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("failed to marshal inventory: %w", err)
	}

	path := InventoryPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create inventory directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write inventory: %w", err)
	}
	return path, nil
}
