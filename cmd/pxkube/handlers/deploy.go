// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command
// definitions in the commands package. Handlers are framework-agnostic
// and can be tested independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	stdlog "log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/image"
	"github.com/pxkube/pxkube/internal/kubespray"
	"github.com/pxkube/pxkube/internal/packer"
	"github.com/pxkube/pxkube/internal/phase"
	"github.com/pxkube/pxkube/internal/platform/ssh"
	"github.com/pxkube/pxkube/internal/proxmox"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/state"
	"github.com/pxkube/pxkube/internal/storage"
	"github.com/pxkube/pxkube/internal/terraform"
	"github.com/pxkube/pxkube/internal/ui"
	"github.com/pxkube/pxkube/internal/util/prerequisites"
	"github.com/pxkube/pxkube/internal/validate"
)

// DeployOptions carry the deploy command flags into the handler.
type DeployOptions struct {
	ForceRebuild bool
	SkipPhases   []string
	ResumeFrom   string
	ValidateOnly bool
	DryRun       bool
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads config from file.
	loadConfigFile = config.LoadFile

	// defaultStatePath resolves the per-cluster state file location.
	defaultStatePath = state.DefaultPath

	// loadState opens the state store.
	loadState = state.Load

	// newLogger builds the diagnostic logger handlers thread through
	// every component.
	newLogger = func() logr.Logger {
		return stdr.New(stdlog.New(os.Stderr, "", stdlog.LstdFlags))
	}

	// newLocalRunner executes commands on the operator workstation.
	newLocalRunner = func(log logr.Logger) runner.Runner {
		return runner.NewLocal(log)
	}

	// newRemoteRunner executes commands on the Proxmox host over SSH.
	newRemoteRunner = func(cfg *config.Config, log logr.Logger) (runner.Runner, error) {
		return ssh.NewClient(&ssh.Config{
			Host:           cfg.Proxmox.Host,
			Port:           cfg.Proxmox.Port,
			User:           cfg.Proxmox.User,
			PrivateKeyPath: cfg.SSH.PrivateKeyPath,
		}, log)
	}

	// runPipeline executes the phase pipeline.
	runPipeline = phase.RunAll

	// checkDeployPrereqs verifies required client tools are available.
	checkDeployPrereqs = prerequisites.CheckDeploy
)

// pipeline returns the deployment phases in execution order.
func pipeline() []phase.Phase {
	return []phase.Phase{
		&validate.ValidationPhase{},
		&storage.ToolsStoragePhase{},
		&image.CloudImagePhase{},
		&proxmox.PackerUserPhase{},
		&proxmox.BaseTemplatePhase{},
		&packer.GoldenTemplatePhase{},
		&terraform.InfrastructurePhase{},
		&kubespray.BootstrapPhase{},
		&kubespray.KubeconfigPhase{},
		&kubespray.ClusterVerifyPhase{},
	}
}

// phaseNames returns the canonical phase order for status output.
func phaseNames() []string {
	phases := pipeline()
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = p.Name()
	}
	return names
}

// Deploy runs the deployment pipeline for the configured cluster.
//
// The pipeline is idempotent: completed phases whose work still exists
// on the host are skipped, drifted phases are invalidated and re-run,
// and the first failure stops the run with everything before it still
// recorded.
func Deploy(ctx context.Context, configPath string, opts DeployOptions) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := checkDeployPrereqs().Error(); err != nil {
		return fmt.Errorf("prerequisites check failed: %w", err)
	}

	log := newLogger()

	remote, err := newRemoteRunner(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to reach proxmox host: %w", err)
	}

	if opts.ValidateOnly {
		return runChecks(ctx, cfg, remote, log)
	}

	statePath, err := defaultStatePath(cfg.ClusterName)
	if err != nil {
		return err
	}
	st, err := loadState(statePath, log)
	if err != nil {
		return err
	}

	if opts.ForceRebuild {
		if err := st.Reset(); err != nil {
			return fmt.Errorf("failed to reset state: %w", err)
		}
	}

	pctx := phase.NewContext(ctx, cfg, st, newLocalRunner(log), remote, log)
	pctx.Observer = ui.NewObserver()

	return runPipeline(pctx, pipeline(), phase.Options{
		SkipPhases: opts.SkipPhases,
		ResumeFrom: opts.ResumeFrom,
		DryRun:     opts.DryRun,
	})
}
