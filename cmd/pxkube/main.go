// Package main is the entry point for the pxkube CLI.
//
// pxkube provisions Kubernetes clusters on Proxmox VE: it prepares a
// cloud image, builds base and golden VM templates, creates the node
// VMs with terraform and bootstraps Kubernetes with kubespray. Every
// step is recorded in a state document so interrupted deployments
// resume where they stopped.
//
// Commands: init, deploy, status, validate, cleanup, reset.
//
// For detailed usage information, run:
//
//	pxkube --help
package main

import (
	"fmt"
	"os"

	"github.com/pxkube/pxkube/cmd/pxkube/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
