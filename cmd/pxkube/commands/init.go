package commands

import (
	"github.com/spf13/cobra"

	"github.com/pxkube/pxkube/cmd/pxkube/handlers"
)

// Init returns the command for interactively creating a cluster
// configuration.
//
// Flags:
//
//	--output, -o: Path to output file (default "pxkube.yaml")
func Init() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a cluster configuration",
		Long: `Interactively create a cluster configuration file.

This command guides you through configuring your cluster step by
step. It will ask about:

  - Cluster identity (name, Kubernetes version, cloud image)
  - The Proxmox host (address, node name, storage pool, SSH key)
  - The cluster network (CIDR, gateway, VIP, node addresses)

It can also generate the automation SSH key pair that gets injected
into node images for Ansible to use.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "pxkube.yaml", "Output file path")

	return cmd
}
