package wizard

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape written by the wizard. It mirrors the
// mapstructure layout config.LoadFile decodes.
type fileConfig struct {
	ClusterName string `yaml:"cluster_name"`
	Proxmox     struct {
		Host        string `yaml:"host"`
		Node        string `yaml:"node"`
		StoragePool string `yaml:"storage_pool"`
	} `yaml:"proxmox"`
	SSH struct {
		PrivateKeyPath           string `yaml:"private_key_path"`
		AutomationPrivateKeyPath string `yaml:"automation_private_key_path,omitempty"`
		AutomationPublicKeyPath  string `yaml:"automation_public_key_path,omitempty"`
	} `yaml:"ssh"`
	Image struct {
		URL string `yaml:"url"`
	} `yaml:"image"`
	Cluster struct {
		KubernetesVersion string   `yaml:"kubernetes_version"`
		NetworkCIDR       string   `yaml:"network_cidr"`
		Gateway           string   `yaml:"gateway"`
		VIP               string   `yaml:"vip"`
		ControlPlaneIPs   []string `yaml:"control_plane_ips"`
		WorkerIPs         []string `yaml:"worker_ips,omitempty"`
	} `yaml:"cluster"`
}

// WriteConfig renders the wizard answers as a commented YAML file.
// automationKeyPath, when set, points at the generated automation key.
func WriteConfig(result *Result, outputPath, automationKeyPath string) error {
	var fc fileConfig
	fc.ClusterName = result.ClusterName
	fc.Proxmox.Host = result.ProxmoxHost
	fc.Proxmox.Node = result.ProxmoxNode
	fc.Proxmox.StoragePool = result.StoragePool
	fc.SSH.PrivateKeyPath = result.PrivateKeyPath
	if automationKeyPath != "" {
		fc.SSH.AutomationPrivateKeyPath = automationKeyPath
		fc.SSH.AutomationPublicKeyPath = automationKeyPath + ".pub"
	}
	fc.Image.URL = result.ImageURL
	fc.Cluster.KubernetesVersion = result.KubernetesVersion
	fc.Cluster.NetworkCIDR = result.NetworkCIDR
	fc.Cluster.Gateway = result.Gateway
	fc.Cluster.VIP = result.VIP
	fc.Cluster.ControlPlaneIPs = result.ControlPlaneIPs
	fc.Cluster.WorkerIPs = result.WorkerIPs

	yamlBytes, err := yaml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# pxkube configuration for cluster %q\n", result.ClusterName))
	sb.WriteString(fmt.Sprintf("# generated by pxkube init on %s\n", time.Now().Format("2006-01-02")))
	sb.WriteString("# run `pxkube deploy --config " + outputPath + "` to bring the cluster up\n\n")
	sb.Write(yamlBytes)

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
