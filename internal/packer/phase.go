package packer

import (
	"fmt"

	"github.com/pxkube/pxkube/internal/phase"
	"github.com/pxkube/pxkube/internal/proxmox"
)

// GoldenTemplatePhase bakes the Kubernetes node template from the base
// template using packer.
type GoldenTemplatePhase struct{}

// Name implements phase.Phase.
func (*GoldenTemplatePhase) Name() string { return "golden_template" }

// Run builds the golden template with the token harvested by the
// packer_user phase.
func (*GoldenTemplatePhase) Run(ctx *phase.Context) (map[string]string, error) {
	tokenDetails, ok := ctx.State.Details("packer_user")
	if !ok {
		return nil, fmt.Errorf("packer user phase has not completed")
	}

	b := NewBuild(ctx.Local, ctx.Config, ctx.Log)
	b.TokenID = tokenDetails[proxmox.DetailTokenID]
	b.TokenSecret = tokenDetails[proxmox.DetailTokenSecret]

	if err := b.Run(ctx, ctx.Timeouts.PackerBuild); err != nil {
		return nil, err
	}
	if err := ctx.State.RecordResource("template", "golden",
		fmt.Sprintf("%d", ctx.Config.Templates.GoldenVMID)); err != nil {
		return nil, err
	}
	return map[string]string{
		proxmox.DetailVMID: fmt.Sprintf("%d", ctx.Config.Templates.GoldenVMID),
	}, nil
}

// Verify checks the golden template exists on the host as a template.
func (*GoldenTemplatePhase) Verify(ctx *phase.Context, _ map[string]string) bool {
	client := proxmox.NewClient(ctx.Remote, ctx.Config, ctx.Log)
	return client.IsTemplate(ctx, ctx.Config.Templates.GoldenVMID)
}
