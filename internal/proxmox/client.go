// Package proxmox drives the Proxmox VE host through its CLI tools (qm,
// pveum, pvesh) over the SSH transport. Nothing here links against an
// API client; every operation is an argument vector executed remotely,
// and every failure comes back as a command result, not an exception.
package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/util/retry"
)

// Client executes hypervisor operations on one Proxmox node.
type Client struct {
	run runner.Runner
	cfg *config.Config
	log logr.Logger
}

// NewClient wraps the remote runner with Proxmox operations.
func NewClient(run runner.Runner, cfg *config.Config, log logr.Logger) *Client {
	return &Client{run: run, cfg: cfg, log: log}
}

// CommandError describes a remote command that exited non-zero.
type CommandError struct {
	Cmd    string
	Result runner.Result
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}
	if e.Result.TimedOut {
		return fmt.Sprintf("%s timed out: %s", e.Cmd, msg)
	}
	return fmt.Sprintf("%s exited %d: %s", e.Cmd, e.Result.ExitCode, msg)
}

// exec runs one remote command and converts failures into CommandError.
func (c *Client) exec(ctx context.Context, timeout time.Duration, argv ...string) (runner.Result, error) {
	res := c.run.Run(ctx, runner.Command{Argv: argv, Timeout: timeout})
	if !res.OK() {
		return res, &CommandError{Cmd: argv[0], Result: res}
	}
	return res, nil
}

// probe builds a short read-only command for existence checks.
func (c *Client) probe(argv ...string) runner.Command {
	return runner.Command{Argv: argv, Timeout: 10 * time.Second}
}

// VMExists reports whether the VMID is known to the node.
func (c *Client) VMExists(ctx context.Context, vmid int) bool {
	res := c.run.Run(ctx, runner.Command{
		Argv:    []string{"qm", "status", strconv.Itoa(vmid)},
		Timeout: 10 * time.Second,
	})
	return res.OK()
}

// IsTemplate reports whether the VMID exists and is a template.
func (c *Client) IsTemplate(ctx context.Context, vmid int) bool {
	res := c.run.Run(ctx, runner.Command{
		Argv:    []string{"qm", "config", strconv.Itoa(vmid)},
		Timeout: 10 * time.Second,
	})
	if !res.OK() {
		return false
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.TrimSpace(line) == "template: 1" {
			return true
		}
	}
	return false
}

// CreateVM creates an empty VM shell for the base template.
func (c *Client) CreateVM(ctx context.Context, vmid int, name string, cores, memoryMB int) error {
	_, err := c.exec(ctx, 2*time.Minute,
		"qm", "create", strconv.Itoa(vmid),
		"--name", name,
		"--cores", strconv.Itoa(cores),
		"--memory", strconv.Itoa(memoryMB),
		"--net0", "virtio,bridge="+c.cfg.Proxmox.Bridge,
		"--scsihw", "virtio-scsi-pci",
		"--agent", "enabled=1",
		"--serial0", "socket",
		"--vga", "serial0",
	)
	return err
}

// ImportDisk imports a disk image into the storage pool and attaches it.
func (c *Client) ImportDisk(ctx context.Context, vmid int, imagePath string, timeout time.Duration) error {
	id := strconv.Itoa(vmid)
	if _, err := c.exec(ctx, timeout,
		"qm", "importdisk", id, imagePath, c.cfg.Proxmox.StoragePool,
	); err != nil {
		return err
	}
	_, err := c.exec(ctx, 2*time.Minute,
		"qm", "set", id,
		"--scsi0", fmt.Sprintf("%s:vm-%d-disk-0", c.cfg.Proxmox.StoragePool, vmid),
		"--ide2", c.cfg.Proxmox.StoragePool+":cloudinit",
		"--boot", "order=scsi0",
	)
	return err
}

// ResizeDisk grows the primary disk to the configured size.
func (c *Client) ResizeDisk(ctx context.Context, vmid, sizeGB int) error {
	_, err := c.exec(ctx, 5*time.Minute,
		"qm", "resize", strconv.Itoa(vmid), "scsi0", fmt.Sprintf("%dG", sizeGB),
	)
	return err
}

// ConvertToTemplate marks the VM as a template.
func (c *Client) ConvertToTemplate(ctx context.Context, vmid int) error {
	_, err := c.exec(ctx, 5*time.Minute, "qm", "template", strconv.Itoa(vmid))
	return err
}

// DestroyVM stops and destroys a VM, tolerating one that is already gone.
func (c *Client) DestroyVM(ctx context.Context, vmid int) error {
	if !c.VMExists(ctx, vmid) {
		return nil
	}
	id := strconv.Itoa(vmid)
	// Stop is best effort; templates and stopped VMs refuse it.
	_ = c.run.Run(ctx, runner.Command{
		Argv:    []string{"qm", "stop", id},
		Timeout: 2 * time.Minute,
	})
	_, err := c.exec(ctx, 5*time.Minute, "qm", "destroy", id, "--purge")
	return err
}

// ListVMNames returns the VM names known to the node, keyed by VMID.
func (c *Client) ListVMNames(ctx context.Context) (map[int]string, error) {
	res, err := c.exec(ctx, 10*time.Second,
		"pvesh", "get", "/cluster/resources", "--type", "vm", "--output-format", "json",
	)
	if err != nil {
		return nil, err
	}
	var entries []struct {
		VMID int    `json:"vmid"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse cluster resources: %w", err)
	}
	out := make(map[int]string, len(entries))
	for _, e := range entries {
		out[e.VMID] = e.Name
	}
	return out, nil
}

// guest agent payload shape for network-get-interfaces.
type guestInterfaces struct {
	Result []struct {
		Name        string `json:"name"`
		IPAddresses []struct {
			Address string `json:"ip-address"`
			Type    string `json:"ip-address-type"`
		} `json:"ip-addresses"`
	} `json:"result"`
}

// GuestIPv4 polls the QEMU guest agent until the VM reports a non-loopback
// IPv4 address. Fresh VMs need a minute or two for the agent to come up.
func (c *Client) GuestIPv4(ctx context.Context, vmid int, wait time.Duration) (string, error) {
	attempts := int(wait / (10 * time.Second))
	if attempts < 1 {
		attempts = 1
	}

	var ip string
	err := retry.Do(ctx, func() error {
		res := c.run.Run(ctx, runner.Command{
			Argv:    []string{"qm", "guest", "cmd", strconv.Itoa(vmid), "network-get-interfaces"},
			Timeout: 15 * time.Second,
		})
		if !res.OK() {
			return fmt.Errorf("guest agent not responding on vm %d", vmid)
		}
		got, perr := parseGuestIPv4(res.Stdout)
		if perr != nil {
			return perr
		}
		ip = got
		return nil
	},
		retry.WithAttempts(attempts),
		retry.WithDelay(10*time.Second),
	)
	if err != nil {
		return "", fmt.Errorf("no IPv4 from guest agent on vm %d: %w", vmid, err)
	}
	return ip, nil
}

func parseGuestIPv4(out string) (string, error) {
	// qm prints either the bare result array or a {"result": ...} object
	// depending on version.
	trimmed := strings.TrimSpace(out)
	var parsed guestInterfaces
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &parsed.Result); err != nil {
			return "", fmt.Errorf("failed to parse guest interfaces: %w", err)
		}
	} else if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse guest interfaces: %w", err)
	}

	for _, iface := range parsed.Result {
		if iface.Name == "lo" {
			continue
		}
		for _, addr := range iface.IPAddresses {
			if addr.Type == "ipv4" && !strings.HasPrefix(addr.Address, "127.") {
				return addr.Address, nil
			}
		}
	}
	return "", fmt.Errorf("no non-loopback IPv4 reported yet")
}
