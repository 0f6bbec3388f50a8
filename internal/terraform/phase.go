package terraform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pxkube/pxkube/internal/phase"
	"github.com/pxkube/pxkube/internal/proxmox"
)

// detailVMIDPrefix namespaces the per-node VMID entries in the phase
// details.
const detailVMIDPrefix = "vmid_"

// InfrastructurePhase provisions the cluster VMs from the golden
// template via terraform.
type InfrastructurePhase struct{}

// Name implements phase.Phase.
func (*InfrastructurePhase) Name() string { return "infrastructure" }

// Run applies the terraform workspace, then waits for every VM's guest
// agent to report an address before declaring the nodes reachable.
func (*InfrastructurePhase) Run(ctx *phase.Context) (map[string]string, error) {
	tokenDetails, ok := ctx.State.Details("packer_user")
	if !ok {
		return nil, fmt.Errorf("packer user phase has not completed")
	}

	w := NewWorkspace(ctx.Local, ctx.Config, ctx.Log)
	w.TokenID = tokenDetails[proxmox.DetailTokenID]
	w.TokenSecret = tokenDetails[proxmox.DetailTokenSecret]

	if err := w.Init(ctx); err != nil {
		return nil, err
	}
	if err := w.Validate(ctx); err != nil {
		return nil, err
	}
	if err := w.Apply(ctx, ctx.Timeouts.TerraformApply,
		ctx.Timeouts.RetryMaxAttempts, ctx.Timeouts.RetryInitialDelay); err != nil {
		return nil, err
	}

	outputs, err := w.Outputs(ctx)
	if err != nil {
		return nil, err
	}
	vmidsOut, ok := outputs["node_vmids"]
	if !ok {
		return nil, fmt.Errorf("terraform did not produce a node_vmids output")
	}
	vmids, err := vmidsOut.StringMap()
	if err != nil {
		return nil, err
	}

	client := proxmox.NewClient(ctx.Remote, ctx.Config, ctx.Log)
	details := make(map[string]string, len(vmids))
	for name, raw := range vmids {
		vmid, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return nil, fmt.Errorf("terraform reported non-numeric vmid %q for %s", raw, name)
		}
		if _, agentErr := client.GuestIPv4(ctx, vmid, ctx.Timeouts.GuestAgentWait); agentErr != nil {
			return nil, agentErr
		}
		if err := ctx.State.RecordResource("vm", name, raw); err != nil {
			return nil, err
		}
		details[detailVMIDPrefix+name] = raw
	}
	return details, nil
}

// Verify checks every provisioned VM still exists on the node.
func (*InfrastructurePhase) Verify(ctx *phase.Context, details map[string]string) bool {
	var vmids []int
	for k, v := range details {
		if !strings.HasPrefix(k, detailVMIDPrefix) {
			continue
		}
		vmid, err := strconv.Atoi(v)
		if err != nil {
			return false
		}
		vmids = append(vmids, vmid)
	}
	if len(vmids) == 0 {
		return false
	}
	sort.Ints(vmids)

	client := proxmox.NewClient(ctx.Remote, ctx.Config, ctx.Log)
	existing, err := client.ListVMNames(ctx)
	if err != nil {
		return false
	}
	for _, vmid := range vmids {
		if _, ok := existing[vmid]; !ok {
			return false
		}
	}
	return true
}
