package config

import (
	"fmt"
	"net"
)

// Validate checks the configuration for common errors before any work
// starts. It catches what a phase would otherwise discover minutes into
// a deploy.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("cluster_name is required")
	}
	if c.Proxmox.Host == "" {
		return fmt.Errorf("proxmox.host is required")
	}
	if c.Proxmox.Node == "" {
		return fmt.Errorf("proxmox.node is required")
	}
	if c.Proxmox.StoragePool == "" {
		return fmt.Errorf("proxmox.storage_pool is required")
	}
	if c.SSH.PrivateKeyPath == "" {
		return fmt.Errorf("ssh.private_key_path is required")
	}
	if c.Image.URL == "" {
		return fmt.Errorf("image.url is required")
	}

	if err := c.validateTemplates(); err != nil {
		return fmt.Errorf("template validation failed: %w", err)
	}
	if err := c.validateCluster(); err != nil {
		return fmt.Errorf("cluster validation failed: %w", err)
	}
	return nil
}

func (c *Config) validateTemplates() error {
	if c.Templates.BaseVMID == c.Templates.GoldenVMID {
		return fmt.Errorf("base_vmid and golden_vmid must differ, both are %d", c.Templates.BaseVMID)
	}
	if c.Templates.BaseVMID < 100 || c.Templates.GoldenVMID < 100 {
		return fmt.Errorf("template VMIDs must be >= 100")
	}
	return nil
}

func (c *Config) validateCluster() error {
	if len(c.Cluster.ControlPlaneIPs) == 0 {
		return fmt.Errorf("at least one control plane IP is required")
	}
	if len(c.Cluster.ControlPlaneIPs)%2 == 0 {
		return fmt.Errorf("control plane count must be odd for etcd quorum, got %d", len(c.Cluster.ControlPlaneIPs))
	}

	seen := make(map[string]bool)
	all := make([]string, 0, len(c.Cluster.ControlPlaneIPs)+len(c.Cluster.WorkerIPs))
	all = append(all, c.Cluster.ControlPlaneIPs...)
	all = append(all, c.Cluster.WorkerIPs...)
	for _, ip := range all {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("invalid node IP %q", ip)
		}
		if seen[ip] {
			return fmt.Errorf("duplicate node IP %q", ip)
		}
		seen[ip] = true
	}

	if c.Cluster.VIP != "" {
		if net.ParseIP(c.Cluster.VIP) == nil {
			return fmt.Errorf("invalid vip %q", c.Cluster.VIP)
		}
		if seen[c.Cluster.VIP] {
			return fmt.Errorf("vip %q collides with a node IP", c.Cluster.VIP)
		}
	}

	if c.Cluster.NetworkCIDR != "" {
		_, ipNet, err := net.ParseCIDR(c.Cluster.NetworkCIDR)
		if err != nil {
			return fmt.Errorf("invalid network_cidr %q: %w", c.Cluster.NetworkCIDR, err)
		}
		for _, ip := range all {
			if !ipNet.Contains(net.ParseIP(ip)) {
				return fmt.Errorf("node IP %q is outside network_cidr %s", ip, c.Cluster.NetworkCIDR)
			}
		}
	}
	return nil
}
