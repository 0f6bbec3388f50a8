// Package wizard implements the interactive setup behind `pxkube init`:
// a short form that produces a working configuration file and,
// optionally, a fresh automation SSH key pair.
package wizard

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
)

// clusterNameRegex limits names to what Proxmox VM names and file paths
// both tolerate.
var clusterNameRegex = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,30}[a-z0-9])?$`)

// Result holds the wizard answers.
type Result struct {
	ClusterName string

	ProxmoxHost string
	ProxmoxNode string
	StoragePool string

	PrivateKeyPath string
	GenerateKey    bool

	ImageURL string

	NetworkCIDR     string
	Gateway         string
	VIP             string
	ControlPlaneIPs []string
	WorkerIPs       []string

	KubernetesVersion string
}

// Run walks the operator through the questions.
func Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	if err := runIdentityGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("cluster identity: %w", err)
	}
	if err := runProxmoxGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("proxmox host: %w", err)
	}
	if err := runNetworkGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("cluster network: %w", err)
	}
	return result, nil
}

func runIdentityGroup(ctx context.Context, result *Result) error {
	result.KubernetesVersion = "v1.31.4"
	result.ImageURL = "https://cloud-images.ubuntu.com/noble/current/noble-server-cloudimg-amd64.img"

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Cluster Name").
				Description("1-32 lowercase alphanumeric characters or hyphens").
				Placeholder("homelab").
				Value(&result.ClusterName).
				Validate(validateClusterName),
			huh.NewInput().
				Title("Kubernetes Version").
				Value(&result.KubernetesVersion),
			huh.NewInput().
				Title("Cloud Image URL").
				Description("Base image the node template is built from").
				Value(&result.ImageURL),
		).Title("Cluster Identity"),
	).RunWithContext(ctx)
}

func runProxmoxGroup(ctx context.Context, result *Result) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Proxmox Host").
				Description("Address of the Proxmox VE host (SSH and API)").
				Placeholder("10.0.0.10").
				Value(&result.ProxmoxHost).
				Validate(validateHost),
			huh.NewInput().
				Title("Proxmox Node Name").
				Placeholder("pve1").
				Value(&result.ProxmoxNode).
				Validate(notEmpty("node name")),
			huh.NewInput().
				Title("Storage Pool").
				Description("Ceph/RBD pool for VM disks").
				Placeholder("rbd").
				Value(&result.StoragePool).
				Validate(notEmpty("storage pool")),
			huh.NewInput().
				Title("SSH Private Key Path").
				Description("Key with root access to the Proxmox host").
				Placeholder("~/.ssh/id_rsa").
				Value(&result.PrivateKeyPath).
				Validate(notEmpty("private key path")),
			huh.NewConfirm().
				Title("Generate automation SSH key?").
				Description("A dedicated key pair injected into node images for Ansible").
				Value(&result.GenerateKey),
		).Title("Proxmox Host"),
	).RunWithContext(ctx)
}

func runNetworkGroup(ctx context.Context, result *Result) error {
	var cpInput, workerInput string

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Network CIDR").
				Placeholder("10.0.0.0/24").
				Value(&result.NetworkCIDR).
				Validate(validateCIDR),
			huh.NewInput().
				Title("Gateway").
				Placeholder("10.0.0.1").
				Value(&result.Gateway).
				Validate(validateIP),
			huh.NewInput().
				Title("Control Plane VIP").
				Description("Floating address the kubeconfig points at").
				Placeholder("10.0.0.100").
				Value(&result.VIP).
				Validate(validateIP),
			huh.NewInput().
				Title("Control Plane IPs").
				Description("Comma-separated, odd count for etcd quorum").
				Placeholder("10.0.0.11, 10.0.0.12, 10.0.0.13").
				Value(&cpInput).
				Validate(validateIPList),
			huh.NewInput().
				Title("Worker IPs").
				Description("Comma-separated, may be empty").
				Placeholder("10.0.0.21, 10.0.0.22").
				Value(&workerInput),
		).Title("Cluster Network"),
	).RunWithContext(ctx)
	if err != nil {
		return err
	}

	result.ControlPlaneIPs = splitIPs(cpInput)
	result.WorkerIPs = splitIPs(workerInput)
	return nil
}

func validateClusterName(s string) error {
	if !clusterNameRegex.MatchString(s) {
		return fmt.Errorf("must be 1-32 lowercase alphanumeric characters or hyphens")
	}
	return nil
}

func validateHost(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func notEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func validateIP(s string) error {
	if net.ParseIP(strings.TrimSpace(s)) == nil {
		return fmt.Errorf("not a valid IP address")
	}
	return nil
}

func validateCIDR(s string) error {
	if _, _, err := net.ParseCIDR(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("not a valid CIDR")
	}
	return nil
}

func validateIPList(s string) error {
	ips := splitIPs(s)
	if len(ips) == 0 {
		return fmt.Errorf("at least one IP is required")
	}
	if len(ips)%2 == 0 {
		return fmt.Errorf("count must be odd for etcd quorum")
	}
	for _, ip := range ips {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("%q is not a valid IP address", ip)
		}
	}
	return nil
}

func splitIPs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
