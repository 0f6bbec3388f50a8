package commands

import (
	"github.com/spf13/cobra"

	"github.com/pxkube/pxkube/cmd/pxkube/handlers"
)

// Status returns the command that reports recorded deployment state.
//
// Flags:
//
//	--config, -c: Path to cluster configuration YAML file (required)
//	--watch, -w: Keep the report open and refresh it as state changes
//	--json: Print the raw state document as JSON
func Status() *cobra.Command {
	var (
		configPath string
		watch      bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show deployment state for a cluster",
		Long: `Show the recorded deployment state for a cluster.

Prints each pipeline phase with its completion status and timestamp,
followed by the resources the deployment has recorded. With --watch
the report stays open and refreshes as the state file changes, which
is useful alongside a running deploy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), configPath, watch, jsonOut)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Refresh the report as state changes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw state document as JSON")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
