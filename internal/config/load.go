package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LoadFile reads, decodes, defaults and validates the configuration.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Config
	if err := mapstructure.Decode(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Proxmox.User == "" {
		c.Proxmox.User = "root"
	}
	if c.Proxmox.Port == 0 {
		c.Proxmox.Port = 22
	}
	if c.Proxmox.APIPort == 0 {
		c.Proxmox.APIPort = 8006
	}
	if c.Proxmox.Bridge == "" {
		c.Proxmox.Bridge = "vmbr0"
	}
	if c.Proxmox.ISOStorage == "" {
		c.Proxmox.ISOStorage = "local"
	}

	if c.Image.Dir == "" {
		c.Image.Dir = "/var/lib/vz/template/iso"
	}

	if c.Templates.BaseVMID == 0 {
		c.Templates.BaseVMID = 9000
	}
	if c.Templates.BaseName == "" {
		c.Templates.BaseName = c.ClusterName + "-base"
	}
	if c.Templates.GoldenVMID == 0 {
		c.Templates.GoldenVMID = 9100
	}
	if c.Templates.GoldenName == "" {
		c.Templates.GoldenName = c.ClusterName + "-golden"
	}
	if c.Templates.Cores == 0 {
		c.Templates.Cores = 2
	}
	if c.Templates.MemoryMB == 0 {
		c.Templates.MemoryMB = 2048
	}
	if c.Templates.DiskGB == 0 {
		c.Templates.DiskGB = 20
	}

	if c.Cluster.NodeUser == "" {
		c.Cluster.NodeUser = "ubuntu"
	}

	if c.Automation.User == "" {
		c.Automation.User = "automation@pve"
	}
	if c.Automation.Role == "" {
		c.Automation.Role = "Automation"
	}
	if c.Automation.TokenName == "" {
		c.Automation.TokenName = "deploy"
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
