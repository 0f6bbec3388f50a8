package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/proxmox"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/terraform"
	"github.com/pxkube/pxkube/internal/ui"
)

// infraDestroyer matches terraform.Workspace for test injection.
type infraDestroyer interface {
	Destroy(ctx context.Context, timeout time.Duration) error
}

// vmDestroyer matches proxmox.Client for test injection.
type vmDestroyer interface {
	DestroyVM(ctx context.Context, vmid int) error
}

// Factory function variables for cleanup - can be replaced in tests.
var (
	newInfraWorkspace = func(run runner.Runner, cfg *config.Config, log logr.Logger, tokenID, tokenSecret string) infraDestroyer {
		ws := terraform.NewWorkspace(run, cfg, log)
		ws.TokenID = tokenID
		ws.TokenSecret = tokenSecret
		return ws
	}

	newVMClient = func(run runner.Runner, cfg *config.Config, log logr.Logger) vmDestroyer {
		return proxmox.NewClient(run, cfg, log)
	}
)

// Cleanup tears down a deployed cluster: the terraform-managed node
// VMs, then the golden and base templates, then the recorded state.
// The automation identity and the tools storage are kept for the next
// deployment.
func Cleanup(ctx context.Context, configPath string, yes bool) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !yes {
		ok, err := confirm(fmt.Sprintf("Destroy cluster %q and all its resources?", cfg.ClusterName))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	log := newLogger()
	statePath, err := defaultStatePath(cfg.ClusterName)
	if err != nil {
		return err
	}
	st, err := loadState(statePath, log)
	if err != nil {
		return err
	}

	remote, err := newRemoteRunner(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to reach proxmox host: %w", err)
	}

	p := ui.NewPrinter()

	if st.IsComplete("infrastructure") {
		details, _ := st.Details("packer_user")
		tokenID, tokenSecret := details[proxmox.DetailTokenID], details[proxmox.DetailTokenSecret]
		if tokenID == "" || tokenSecret == "" {
			p.Warn("infrastructure is recorded but no automation token is available; skipping terraform destroy")
		} else {
			p.Active("Destroying node VMs")
			ws := newInfraWorkspace(newLocalRunner(log), cfg, log, tokenID, tokenSecret)
			if err := ws.Destroy(ctx, config.DefaultTimeouts().TerraformApply); err != nil {
				return fmt.Errorf("terraform destroy failed: %w", err)
			}
		}
	}

	pve := newVMClient(remote, cfg, log)
	p.Active("Removing VM templates")
	if err := pve.DestroyVM(ctx, cfg.Templates.GoldenVMID); err != nil {
		return fmt.Errorf("failed to remove golden template: %w", err)
	}
	if err := pve.DestroyVM(ctx, cfg.Templates.BaseVMID); err != nil {
		return fmt.Errorf("failed to remove base template: %w", err)
	}

	if err := st.Delete(); err != nil {
		return fmt.Errorf("failed to remove state: %w", err)
	}

	p.OK("Cluster %s destroyed", cfg.ClusterName)
	return nil
}
