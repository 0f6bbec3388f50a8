package commands

import (
	"github.com/spf13/cobra"

	"github.com/pxkube/pxkube/cmd/pxkube/handlers"
)

// Deploy returns the command that runs the deployment pipeline.
//
// The pipeline is idempotent: phases already completed and still
// verified on the host are skipped, so re-running deploy after a
// failure or interruption resumes where it stopped.
//
// Flags:
//
//	--config, -c: Path to cluster configuration YAML file (required)
//	--force-rebuild: Clear recorded state and run every phase again
//	--skip-phases: Comma-separated phase names to skip
//	--resume-from: Skip everything before the named phase
//	--validate-only: Run the pre-flight checks and stop
//	--dry-run: Report what would run without executing anything
func Deploy() *cobra.Command {
	var (
		configPath string
		opts       handlers.DeployOptions
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a Kubernetes cluster",
		Long: `Deploy a Kubernetes cluster on Proxmox VE.

The deployment runs as an ordered pipeline of idempotent phases:

  validation       pre-flight checks on workstation and host
  tools_storage    RBD-backed storage for images and tools
  cloud_image      download and customize the upstream cloud image
  packer_user      Proxmox automation user, role and API token
  base_template    cloud-image VM template
  golden_template  packer-built Kubernetes node template
  infrastructure   terraform-managed node VMs
  bootstrap        kubespray cluster playbook
  kubeconfig       fetch admin kubeconfig, repoint at the VIP
  cluster_verify   wait for all nodes to report Ready

Completed phases whose work still exists on the host are skipped, so
deploy is safe to re-run at any time.

Examples:
  # Full deployment
  pxkube deploy -c prod.yaml

  # Resume after fixing a failed playbook run
  pxkube deploy -c prod.yaml --resume-from bootstrap

  # See what a re-run would do
  pxkube deploy -c prod.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), configPath, opts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.ForceRebuild, "force-rebuild", false, "Clear recorded state and run every phase again")
	cmd.Flags().StringSliceVar(&opts.SkipPhases, "skip-phases", nil, "Phase names to skip")
	cmd.Flags().StringVar(&opts.ResumeFrom, "resume-from", "", "Skip everything before the named phase")
	cmd.Flags().BoolVar(&opts.ValidateOnly, "validate-only", false, "Run the pre-flight checks and stop")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report what would run without executing anything")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
