// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated
// to handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the pxkube CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pxkube",
		Short: "Provision Kubernetes clusters on Proxmox VE",
	}

	cmd.AddCommand(Init())
	cmd.AddCommand(Deploy())
	cmd.AddCommand(Status())
	cmd.AddCommand(Validate())
	cmd.AddCommand(Cleanup())
	cmd.AddCommand(Reset())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
