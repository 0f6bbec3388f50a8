// Package image prepares the upstream cloud image on the Proxmox host:
// download, checksum verification, guest agent installation and SSH key
// injection. All heavy lifting runs remotely through libguestfs tools so
// the image never transits the operator machine.
package image

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
)

// Builder prepares cloud images on the remote host.
type Builder struct {
	run runner.Runner
	cfg *config.Config
	log logr.Logger
}

// NewBuilder wraps the remote runner with image operations.
func NewBuilder(run runner.Runner, cfg *config.Config, log logr.Logger) *Builder {
	return &Builder{run: run, cfg: cfg, log: log}
}

// RemotePath returns where the prepared image lives on the host.
func (b *Builder) RemotePath() string {
	return path.Join(b.cfg.Image.Dir, path.Base(b.cfg.Image.URL))
}

// Exists checks for the prepared image file.
func (b *Builder) Exists(ctx context.Context) bool {
	res := b.run.Run(ctx, runner.Command{
		Argv:    []string{"test", "-f", b.RemotePath()},
		Timeout: 10 * time.Second,
	})
	return res.OK()
}

// Prepare downloads and customizes the image. An image that is already
// present and passes its checksum is reused; a corrupt one is deleted
// and fetched again.
func (b *Builder) Prepare(ctx context.Context, downloadTimeout, customizeTimeout time.Duration) (string, error) {
	dst := b.RemotePath()

	if b.Exists(ctx) && b.checksumOK(ctx, dst) {
		b.log.Info("reusing existing cloud image", "path", dst)
	} else {
		if err := b.download(ctx, dst, downloadTimeout); err != nil {
			return "", err
		}
		if !b.checksumOK(ctx, dst) {
			return "", fmt.Errorf("downloaded image failed checksum verification")
		}
	}

	if err := b.customize(ctx, dst, customizeTimeout); err != nil {
		return "", err
	}
	return dst, nil
}

// download fetches the image, preferring the configured mirror and
// falling back to the canonical URL.
func (b *Builder) download(ctx context.Context, dst string, timeout time.Duration) error {
	urls := []string{b.cfg.Image.URL}
	if b.cfg.Image.MirrorURL != "" {
		urls = []string{b.cfg.Image.MirrorURL, b.cfg.Image.URL}
	}

	var lastErr error
	for _, url := range urls {
		_ = b.run.Run(ctx, runner.Command{
			Argv:    []string{"rm", "-f", dst},
			Timeout: 30 * time.Second,
		})
		res := b.run.Run(ctx, runner.Command{
			Argv:    []string{"wget", "--quiet", "--output-document", dst, url},
			Timeout: timeout,
		})
		if res.OK() {
			return nil
		}
		lastErr = fmt.Errorf("failed to download %s: %s", url, strings.TrimSpace(res.Stderr))
		b.log.Info("image download failed", "url", url)
	}
	return lastErr
}

// checksumOK verifies the configured SHA256. No configured checksum
// means the check passes.
func (b *Builder) checksumOK(ctx context.Context, dst string) bool {
	if b.cfg.Image.Checksum == "" {
		return true
	}
	res := b.run.Run(ctx, runner.Command{
		Argv:    []string{"sha256sum", dst},
		Timeout: 5 * time.Minute,
	})
	if !res.OK() {
		return false
	}
	fields := strings.Fields(res.Stdout)
	return len(fields) > 0 && strings.EqualFold(fields[0], b.cfg.Image.Checksum)
}

// guestPackages is installed into every image: the guest agent for IP
// reporting plus the EFI bootloader chain cloud images ship without.
const guestPackages = "qemu-guest-agent,grub-efi-amd64,grub-efi-amd64-signed,shim-signed"

// customize installs the guest packages, creates the node login with
// passwordless sudo, injects the automation SSH key and strips machine
// identity so every clone boots unique.
func (b *Builder) customize(ctx context.Context, dst string, timeout time.Duration) error {
	argv := []string{
		"virt-customize", "-a", dst,
		"--install", guestPackages,
		"--run-command", "systemctl enable qemu-guest-agent",
	}

	if user := b.cfg.Cluster.NodeUser; user != "" {
		argv = append(argv,
			"--run-command", fmt.Sprintf("id -u %s >/dev/null 2>&1 || useradd -m -s /bin/bash %s", user, user),
			"--run-command", fmt.Sprintf("echo '%s ALL=(ALL) NOPASSWD:ALL' > /etc/sudoers.d/%s", user, user),
		)
	}

	pubKey, err := b.automationPublicKey()
	if err != nil {
		return err
	}
	if pubKey != "" {
		argv = append(argv, "--ssh-inject", fmt.Sprintf("%s:string:%s", b.cfg.Cluster.NodeUser, pubKey))
	}

	res := b.run.Run(ctx, runner.Command{Argv: argv, Timeout: timeout})
	if !res.OK() {
		return fmt.Errorf("virt-customize failed: %s", strings.TrimSpace(res.Stderr))
	}

	sysprep := b.run.Run(ctx, runner.Command{
		Argv: []string{
			"virt-sysprep", "-a", dst,
			"--operations", "machine-id,ssh-hostkeys,logfiles,tmp-files",
		},
		Timeout: timeout,
	})
	if !sysprep.OK() {
		return fmt.Errorf("virt-sysprep failed: %s", strings.TrimSpace(sysprep.Stderr))
	}

	b.fixEFIBoot(ctx, dst, timeout)
	return nil
}

// fixEFIBoot reinstalls grub into the EFI partition and seeds the
// removable-media fallback path. Images that already boot EFI fail
// these commands harmlessly, so the result is ignored.
func (b *Builder) fixEFIBoot(ctx context.Context, dst string, timeout time.Duration) {
	_ = b.run.Run(ctx, runner.Command{
		Argv: []string{
			"virt-customize", "-a", dst,
			"--run-command", "update-grub && grub-install --target=x86_64-efi --efi-directory=/boot/efi --bootloader-id=ubuntu --recheck",
			"--run-command", "mkdir -p /boot/efi/EFI/BOOT && (cp /boot/efi/EFI/ubuntu/grubx64.efi /boot/efi/EFI/BOOT/BOOTX64.EFI || cp /boot/efi/EFI/ubuntu/shimx64.efi /boot/efi/EFI/BOOT/BOOTX64.EFI)",
		},
		Timeout: timeout,
	})
}

// automationPublicKey reads the key injected into images, from the local
// machine where it was generated.
func (b *Builder) automationPublicKey() (string, error) {
	keyPath := b.cfg.SSH.AutomationPublicKeyPath
	if keyPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(keyPath) // #nosec G304 -- path from validated config
	if err != nil {
		return "", fmt.Errorf("failed to read automation public key: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
