package commands

import (
	"github.com/spf13/cobra"

	"github.com/pxkube/pxkube/cmd/pxkube/handlers"
)

// Reset returns the command that clears recorded deployment state.
//
// Without arguments the whole state document is reset. With phase name
// arguments only those phases are invalidated, forcing them to run
// again on the next deploy while everything else stays recorded.
func Reset() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset [phase...]",
		Short: "Clear recorded deployment state",
		Long: `Clear recorded deployment state for a cluster.

This only touches the local state document. Nothing is removed from
the Proxmox host; the next deploy re-verifies or rebuilds whatever
the cleared records covered.

Examples:
  # Forget everything, next deploy starts from scratch
  pxkube reset -c prod.yaml

  # Force only the golden template to rebuild
  pxkube reset -c prod.yaml golden_template`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Reset(cmd.Context(), configPath, args, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
