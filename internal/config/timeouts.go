package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds the long-operation deadlines, overridable via
// environment variables for unusual hardware or networks.
type Timeouts struct {
	ImageDownload     time.Duration // cloud image download on the Proxmox host
	ImageCustomize    time.Duration // virt-customize / virt-sysprep runs
	TemplateBuild     time.Duration // qm importdisk and template conversion
	PackerBuild       time.Duration // golden image packer build
	TerraformApply    time.Duration // terraform apply
	AnsiblePlaybook   time.Duration // kubespray cluster.yml
	GuestAgentWait    time.Duration // waiting for an IP from the guest agent
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
}

// DefaultTimeouts loads deadlines from the environment, falling back to
// defaults sized for spinning-disk homelab hosts.
//
// Environment variables:
//   - PXKUBE_TIMEOUT_IMAGE_DOWNLOAD (default: 15m)
//   - PXKUBE_TIMEOUT_IMAGE_CUSTOMIZE (default: 20m)
//   - PXKUBE_TIMEOUT_TEMPLATE_BUILD (default: 15m)
//   - PXKUBE_TIMEOUT_PACKER_BUILD (default: 45m)
//   - PXKUBE_TIMEOUT_TERRAFORM_APPLY (default: 30m)
//   - PXKUBE_TIMEOUT_ANSIBLE_PLAYBOOK (default: 30m)
//   - PXKUBE_TIMEOUT_GUEST_AGENT (default: 5m)
//   - PXKUBE_RETRY_MAX_ATTEMPTS (default: 5)
//   - PXKUBE_RETRY_INITIAL_DELAY (default: 5s)
func DefaultTimeouts() *Timeouts {
	return &Timeouts{
		ImageDownload:     parseDuration("PXKUBE_TIMEOUT_IMAGE_DOWNLOAD", 15*time.Minute),
		ImageCustomize:    parseDuration("PXKUBE_TIMEOUT_IMAGE_CUSTOMIZE", 20*time.Minute),
		TemplateBuild:     parseDuration("PXKUBE_TIMEOUT_TEMPLATE_BUILD", 15*time.Minute),
		PackerBuild:       parseDuration("PXKUBE_TIMEOUT_PACKER_BUILD", 45*time.Minute),
		TerraformApply:    parseDuration("PXKUBE_TIMEOUT_TERRAFORM_APPLY", 30*time.Minute),
		AnsiblePlaybook:   parseDuration("PXKUBE_TIMEOUT_ANSIBLE_PLAYBOOK", 30*time.Minute),
		GuestAgentWait:    parseDuration("PXKUBE_TIMEOUT_GUEST_AGENT", 5*time.Minute),
		RetryMaxAttempts:  parseInt("PXKUBE_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay: parseDuration("PXKUBE_RETRY_INITIAL_DELAY", 5*time.Second),
	}
}

func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}
