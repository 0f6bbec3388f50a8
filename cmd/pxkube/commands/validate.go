package commands

import (
	"github.com/spf13/cobra"

	"github.com/pxkube/pxkube/cmd/pxkube/handlers"
)

// Validate returns the command that runs the pre-flight checks without
// deploying anything.
func Validate() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run pre-flight checks against the Proxmox host",
		Long: `Run the pre-flight checks without deploying anything.

Checks the local tools a deployment needs (packer, terraform,
ansible-playbook, ssh), SSH access to the Proxmox host, the Proxmox
services, the configured storage pool, Ceph health and the network
bridge. All checks run even after a failure so one report covers
everything that needs fixing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Validate(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
