package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pxkube/pxkube/internal/ui"
	"github.com/pxkube/pxkube/internal/ui/tui"
)

// watchState runs the live status view. Replaceable in tests.
var watchState = tui.Watch

// Status reports the recorded deployment state for a cluster.
//
// The plain report prints each phase with its completion timestamp and
// the recorded resources. With jsonOut set the raw state document is
// printed instead. With watch set it hands off to the live view, which
// refreshes as the state file changes.
func Status(_ context.Context, configPath string, watch, jsonOut bool) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	statePath, err := defaultStatePath(cfg.ClusterName)
	if err != nil {
		return err
	}

	if watch {
		return watchState(cfg.ClusterName, statePath, phaseNames())
	}

	st, err := loadState(statePath, newLogger())
	if err != nil {
		return err
	}
	doc := st.Snapshot()

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	p := ui.NewPrinter()
	p.Title("Cluster %s", cfg.ClusterName)
	p.Plain("State file: %s", statePath)

	p.Plain("")
	p.Plain("Phases:")
	for _, name := range phaseNames() {
		rec, ok := doc.Phases[name]
		if ok && rec.Completed {
			p.OK("%-16s %s", name, rec.Timestamp.Local().Format("2006-01-02 15:04:05"))
		} else {
			p.Skip("%-16s pending", name)
		}
	}

	if len(doc.Resources) > 0 {
		p.Plain("")
		p.Plain("Resources:")
		kinds := make([]string, 0, len(doc.Resources))
		for kind := range doc.Resources {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			ids := make([]string, 0, len(doc.Resources[kind]))
			for id := range doc.Resources[kind] {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				p.Plain("  %s/%s = %s", kind, id, doc.Resources[kind][id])
			}
		}
	}

	return nil
}
