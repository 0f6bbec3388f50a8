package commands

import (
	"github.com/spf13/cobra"

	"github.com/pxkube/pxkube/cmd/pxkube/handlers"
)

// Cleanup returns the command that tears down a deployed cluster.
func Cleanup() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Destroy a cluster and all associated resources",
		Long: `Destroy a deployed cluster and everything it created.

This removes, in order:
  - the terraform-managed node VMs
  - the golden and base VM templates
  - the recorded state document

The automation user and its API token are left in place so a later
deploy can reuse them. The tools storage image is also kept.

Example:
  pxkube cleanup -c prod.yaml

WARNING: This operation is irreversible. All cluster data will be lost.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Cleanup(cmd.Context(), configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
