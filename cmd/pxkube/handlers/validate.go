package handlers

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/ui"
	"github.com/pxkube/pxkube/internal/validate"
)

// newValidator builds the pre-flight check list. Replaceable in tests.
var newValidator = func(remote runner.Runner, cfg *config.Config, log logr.Logger) checkRunner {
	return validate.NewValidator(remote, cfg, log)
}

// checkRunner matches validate.Validator for test injection.
type checkRunner interface {
	RunAll(ctx context.Context) *validate.Results
}

// Validate runs the pre-flight checks and reports every outcome.
func Validate(ctx context.Context, configPath string) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger()
	remote, err := newRemoteRunner(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to reach proxmox host: %w", err)
	}

	return runChecks(ctx, cfg, remote, log)
}

// runChecks executes the validator and prints one line per check.
// Failed optional checks are warnings; failed required checks make the
// run fail after everything has been reported.
func runChecks(ctx context.Context, cfg *config.Config, remote runner.Runner, log logr.Logger) error {
	p := ui.NewPrinter()
	p.Title("Validating environment for cluster %s", cfg.ClusterName)

	results := newValidator(remote, cfg, log).RunAll(ctx)
	for _, res := range results.Results {
		switch {
		case res.Err == nil:
			p.OK("%s", res.Check.Name)
		case res.Check.Required:
			p.Fail("%s: %v", res.Check.Name, res.Err)
		default:
			p.Warn("%s: %v", res.Check.Name, res.Err)
		}
	}

	return results.Err()
}
