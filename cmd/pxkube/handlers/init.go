package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pxkube/pxkube/internal/config/wizard"
	"github.com/pxkube/pxkube/internal/ui"
	"github.com/pxkube/pxkube/internal/util/keygen"
)

const automationKeyBits = 4096

// Factory function variables for init - can be replaced in tests.
var (
	runWizard       = wizard.Run
	writeConfigFile = wizard.WriteConfig
	generateKeyPair = keygen.GenerateRSAKeyPair
)

// Init interactively creates a cluster configuration file. When the
// user asks for it, an automation SSH key pair is generated next to the
// cluster's state file and referenced from the written config.
func Init(ctx context.Context, outputPath string) error {
	if _, err := os.Stat(outputPath); err == nil {
		ok, err := confirm(fmt.Sprintf("%s already exists, overwrite?", outputPath))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	result, err := runWizard(ctx)
	if err != nil {
		return fmt.Errorf("configuration wizard failed: %w", err)
	}

	p := ui.NewPrinter()

	var automationKeyPath string
	if result.GenerateKey {
		statePath, err := defaultStatePath(result.ClusterName)
		if err != nil {
			return err
		}
		automationKeyPath = filepath.Join(filepath.Dir(statePath), "automation_key")

		kp, err := generateKeyPair(automationKeyBits)
		if err != nil {
			return fmt.Errorf("failed to generate automation key: %w", err)
		}
		if err := kp.WriteTo(automationKeyPath); err != nil {
			return fmt.Errorf("failed to write automation key: %w", err)
		}
		p.OK("Automation key written to %s", automationKeyPath)
	}

	if err := writeConfigFile(result, outputPath, automationKeyPath); err != nil {
		return err
	}

	p.OK("Configuration written to %s", outputPath)
	p.Plain("Run `pxkube deploy -c %s` to bring the cluster up.", outputPath)
	return nil
}
