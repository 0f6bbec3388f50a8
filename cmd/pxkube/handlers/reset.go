package handlers

import (
	"context"
	"fmt"

	"github.com/pxkube/pxkube/internal/ui"
)

// Reset clears recorded deployment state. With phase arguments only
// those phases are invalidated; without arguments the whole document is
// cleared after confirmation. Nothing on the Proxmox host is touched.
func Reset(_ context.Context, configPath string, phases []string, yes bool) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	known := make(map[string]bool)
	for _, name := range phaseNames() {
		known[name] = true
	}
	for _, name := range phases {
		if !known[name] {
			return fmt.Errorf("unknown phase %q", name)
		}
	}

	statePath, err := defaultStatePath(cfg.ClusterName)
	if err != nil {
		return err
	}
	st, err := loadState(statePath, newLogger())
	if err != nil {
		return err
	}

	p := ui.NewPrinter()

	if len(phases) > 0 {
		for _, name := range phases {
			if err := st.Invalidate(name); err != nil {
				return fmt.Errorf("failed to invalidate %s: %w", name, err)
			}
			p.OK("Phase %s will run again on the next deploy", name)
		}
		return nil
	}

	if !yes {
		ok, err := confirm(fmt.Sprintf("Clear all recorded state for cluster %q?", cfg.ClusterName))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	if err := st.Reset(); err != nil {
		return fmt.Errorf("failed to reset state: %w", err)
	}
	p.OK("State cleared; the next deploy starts from scratch")
	return nil
}
