// Package config defines the deployment configuration: the Proxmox host
// to drive, the templates to build, and the cluster to bring up. Config
// is loaded once from YAML, validated, and passed explicitly to every
// component that needs it.
package config

// Config is the full deployment configuration for one cluster.
type Config struct {
	ClusterName string  `mapstructure:"cluster_name"`
	Proxmox     Proxmox `mapstructure:"proxmox"`
	SSH         SSH     `mapstructure:"ssh"`

	Image     Image     `mapstructure:"image"`
	Templates Templates `mapstructure:"templates"`
	Cluster   Cluster   `mapstructure:"cluster"`
	Dirs      Dirs      `mapstructure:"dirs"`

	// Automation is the Proxmox API identity created for packer and
	// terraform.
	Automation Automation `mapstructure:"automation"`
}

// Proxmox identifies the hypervisor host and the storage to use on it.
type Proxmox struct {
	// Host is the address the SSH transport and the API both use.
	Host string `mapstructure:"host"`
	// Node is the Proxmox node name, which qm and pvesh need.
	Node string `mapstructure:"node"`
	// User is the SSH user, normally root.
	User string `mapstructure:"user"`
	Port int    `mapstructure:"port"`
	// APIPort serves the REST API, normally 8006.
	APIPort int `mapstructure:"api_port"`

	// StoragePool holds VM disks (e.g. an RBD pool).
	StoragePool string `mapstructure:"storage_pool"`
	// ISOStorage holds ISOs and tool images.
	ISOStorage string `mapstructure:"iso_storage"`
	// Bridge is the VM network bridge, normally vmbr0.
	Bridge string `mapstructure:"bridge"`
}

// SSH holds the key material for both transports: the operator key that
// reaches the Proxmox host, and the automation key injected into images
// for Ansible to use.
type SSH struct {
	PrivateKeyPath           string `mapstructure:"private_key_path"`
	AutomationPrivateKeyPath string `mapstructure:"automation_private_key_path"`
	AutomationPublicKeyPath  string `mapstructure:"automation_public_key_path"`
}

// Image describes the upstream cloud image the base template is built
// from.
type Image struct {
	URL string `mapstructure:"url"`
	// MirrorURL is an optional nearby mirror tried before URL.
	MirrorURL string `mapstructure:"mirror_url"`
	// Checksum is the expected SHA256, empty to skip verification.
	Checksum string `mapstructure:"checksum"`
	// Dir is the remote directory the image is downloaded to.
	Dir string `mapstructure:"dir"`
}

// Templates names the two VM templates the pipeline maintains.
type Templates struct {
	// BaseVMID is the cloud-image template packer clones from.
	BaseVMID int    `mapstructure:"base_vmid"`
	BaseName string `mapstructure:"base_name"`
	// GoldenVMID is the fully provisioned Kubernetes node template.
	GoldenVMID int    `mapstructure:"golden_vmid"`
	GoldenName string `mapstructure:"golden_name"`

	// Cores, MemoryMB and DiskGB size the base template hardware.
	Cores    int `mapstructure:"cores"`
	MemoryMB int `mapstructure:"memory_mb"`
	DiskGB   int `mapstructure:"disk_gb"`
}

// Cluster describes the Kubernetes cluster to bring up.
type Cluster struct {
	KubernetesVersion string `mapstructure:"kubernetes_version"`

	// NetworkCIDR and Gateway describe the VM network.
	NetworkCIDR string `mapstructure:"network_cidr"`
	Gateway     string `mapstructure:"gateway"`
	// VIP is the control plane virtual IP the kubeconfig points at.
	VIP string `mapstructure:"vip"`

	ControlPlaneIPs []string `mapstructure:"control_plane_ips"`
	WorkerIPs       []string `mapstructure:"worker_ips"`

	// NodeUser is the login Ansible uses on the nodes.
	NodeUser string `mapstructure:"node_user"`
}

// Dirs locates the external tool workspaces on the operator machine.
type Dirs struct {
	Packer    string `mapstructure:"packer"`
	Terraform string `mapstructure:"terraform"`
	Kubespray string `mapstructure:"kubespray"`
	// Kubeconfig is where the fetched admin kubeconfig is written.
	Kubeconfig string `mapstructure:"kubeconfig"`
	// Logs receives per-command log files for long-running tools.
	Logs string `mapstructure:"logs"`
}

// Automation names the Proxmox API identity created for the build tools.
type Automation struct {
	// User is the PVE-realm user, e.g. automation@pve.
	User string `mapstructure:"user"`
	// Role is the privilege role bound to the user.
	Role string `mapstructure:"role"`
	// TokenName is the API token identifier under the user.
	TokenName string `mapstructure:"token_name"`
}

// APIHostPort returns host:port for the Proxmox REST API.
func (p Proxmox) APIHostPort() string {
	return joinHostPort(p.Host, p.APIPort)
}
