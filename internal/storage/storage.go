// Package storage manages the RBD-backed ISO store on the Proxmox host.
// Cloud images and tool payloads are large; keeping them on a dedicated
// Ceph image keeps the host's root filesystem out of the blast radius.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
)

// rbdImageName is the Ceph image backing the ISO store.
const rbdImageName = "pxkube-tools"

// rbdImageSize is the image size passed to rbd create.
const rbdImageSize = "64G"

// Store manages the tools volume lifecycle on the host.
type Store struct {
	run runner.Runner
	cfg *config.Config
	log logr.Logger
}

// NewStore wraps the remote runner with ISO store operations.
func NewStore(run runner.Runner, cfg *config.Config, log logr.Logger) *Store {
	return &Store{run: run, cfg: cfg, log: log}
}

// MountPoint returns where the tools volume is mounted.
func (s *Store) MountPoint() string {
	return s.cfg.Image.Dir
}

// imageExists checks whether the Ceph image is already created.
func (s *Store) imageExists(ctx context.Context) bool {
	res := s.run.Run(ctx, runner.Command{
		Argv:    []string{"rbd", "info", s.cfg.Proxmox.StoragePool + "/" + rbdImageName},
		Timeout: 10 * time.Second,
	})
	return res.OK()
}

// IsMounted checks whether the store is mounted at its mount point.
func (s *Store) IsMounted(ctx context.Context) bool {
	res := s.run.Run(ctx, runner.Command{
		Argv:    []string{"mountpoint", "-q", s.MountPoint()},
		Timeout: 10 * time.Second,
	})
	return res.OK()
}

// Ensure creates, maps, formats and mounts the tools volume. Every step
// checks what already exists first, so re-running after a partial
// failure picks up where it stopped.
func (s *Store) Ensure(ctx context.Context) error {
	spec := s.cfg.Proxmox.StoragePool + "/" + rbdImageName

	if !s.imageExists(ctx) {
		if err := s.exec(ctx, 2*time.Minute,
			"rbd", "create", spec, "--size", rbdImageSize,
		); err != nil {
			return fmt.Errorf("failed to create rbd image: %w", err)
		}
	}

	device, err := s.mapDevice(ctx, spec)
	if err != nil {
		return err
	}

	if err := s.ensureFilesystem(ctx, device); err != nil {
		return err
	}

	if s.IsMounted(ctx) {
		return nil
	}
	if err := s.exec(ctx, 30*time.Second, "mkdir", "-p", s.MountPoint()); err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}
	if err := s.exec(ctx, 1*time.Minute, "mount", device, s.MountPoint()); err != nil {
		return fmt.Errorf("failed to mount tools volume: %w", err)
	}
	return nil
}

// mapDevice maps the image into a block device, reusing an existing
// mapping when rbd reports one.
func (s *Store) mapDevice(ctx context.Context, spec string) (string, error) {
	res := s.run.Run(ctx, runner.Command{
		Argv:    []string{"rbd", "showmapped", "--format", "json"},
		Timeout: 10 * time.Second,
	})
	if res.OK() && strings.Contains(res.Stdout, rbdImageName) {
		if dev := parseMappedDevice(res.Stdout); dev != "" {
			return dev, nil
		}
	}

	mapped := s.run.Run(ctx, runner.Command{
		Argv:    []string{"rbd", "map", spec},
		Timeout: 1 * time.Minute,
	})
	if !mapped.OK() {
		return "", fmt.Errorf("failed to map rbd image: %s", strings.TrimSpace(mapped.Stderr))
	}
	return mapped.Output(), nil
}

// ensureFilesystem formats the device only when blkid finds nothing.
func (s *Store) ensureFilesystem(ctx context.Context, device string) error {
	res := s.run.Run(ctx, runner.Command{
		Argv:    []string{"blkid", device},
		Timeout: 10 * time.Second,
	})
	if res.OK() {
		return nil
	}
	if err := s.exec(ctx, 5*time.Minute, "mkfs.ext4", "-q", device); err != nil {
		return fmt.Errorf("failed to format tools volume: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, timeout time.Duration, argv ...string) error {
	res := s.run.Run(ctx, runner.Command{Argv: argv, Timeout: timeout})
	if !res.OK() {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		return fmt.Errorf("%s exited %d: %s", argv[0], res.ExitCode, msg)
	}
	return nil
}

// parseMappedDevice pulls the device path for the tools image out of
// rbd showmapped JSON. The output is a map keyed by mapping ID on older
// releases and an array on newer ones; scanning for the name and the
// sibling device field handles both without a schema.
func parseMappedDevice(out string) string {
	for _, chunk := range strings.Split(out, "{") {
		if !strings.Contains(chunk, `"`+rbdImageName+`"`) {
			continue
		}
		idx := strings.Index(chunk, `"device":"`)
		if idx == -1 {
			continue
		}
		rest := chunk[idx+len(`"device":"`):]
		if end := strings.Index(rest, `"`); end != -1 {
			return rest[:end]
		}
	}
	return ""
}
