package proxmox

import (
	"fmt"
	"strconv"

	"github.com/pxkube/pxkube/internal/phase"
)

// DetailImagePath is the key under which the cloud image phase records
// the prepared image location on the Proxmox host.
const DetailImagePath = "image_path"

// Detail keys recorded by the phases in this package.
const (
	DetailTokenID     = "token_id"
	DetailTokenSecret = "token_secret"
	DetailVMID        = "vmid"
)

// PackerUserPhase creates the automation API identity the image build
// and the infrastructure provisioning authenticate with.
type PackerUserPhase struct{}

// Name implements phase.Phase.
func (*PackerUserPhase) Name() string { return "packer_user" }

// Run creates or refreshes the role, user and token and harvests the
// token secret into the phase details.
func (*PackerUserPhase) Run(ctx *phase.Context) (map[string]string, error) {
	client := NewClient(ctx.Remote, ctx.Config, ctx.Log)

	token, err := client.EnsureAutomationIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if !client.VerifyToken(ctx, *token) {
		return nil, fmt.Errorf("freshly created token %s failed API verification", token.ID)
	}
	return map[string]string{
		DetailTokenID:     token.ID,
		DetailTokenSecret: token.Secret,
	}, nil
}

// Verify checks the recorded token still authenticates against the API.
func (*PackerUserPhase) Verify(ctx *phase.Context, details map[string]string) bool {
	id, secret := details[DetailTokenID], details[DetailTokenSecret]
	if id == "" || secret == "" {
		return false
	}
	client := NewClient(ctx.Remote, ctx.Config, ctx.Log)
	return client.VerifyToken(ctx, Token{ID: id, Secret: secret})
}

// BaseTemplatePhase turns the prepared cloud image into a Proxmox VM
// template that packer clones from.
type BaseTemplatePhase struct{}

// Name implements phase.Phase.
func (*BaseTemplatePhase) Name() string { return "base_template" }

// Run builds the template. A half-built VM left by an earlier failure is
// destroyed and rebuilt from scratch rather than patched.
func (*BaseTemplatePhase) Run(ctx *phase.Context) (map[string]string, error) {
	client := NewClient(ctx.Remote, ctx.Config, ctx.Log)
	vmid := ctx.Config.Templates.BaseVMID

	imageDetails, ok := ctx.State.Details("cloud_image")
	if !ok {
		return nil, fmt.Errorf("cloud image phase has not completed")
	}
	imagePath := imageDetails[DetailImagePath]
	if imagePath == "" {
		return nil, fmt.Errorf("cloud image phase recorded no image path")
	}

	if client.VMExists(ctx, vmid) {
		if err := client.DestroyVM(ctx, vmid); err != nil {
			return nil, fmt.Errorf("failed to remove stale vm %d: %w", vmid, err)
		}
	}

	tpl := ctx.Config.Templates
	if err := client.CreateVM(ctx, vmid, tpl.BaseName, tpl.Cores, tpl.MemoryMB); err != nil {
		return nil, err
	}
	if err := client.ImportDisk(ctx, vmid, imagePath, ctx.Timeouts.TemplateBuild); err != nil {
		return nil, err
	}
	if err := client.ResizeDisk(ctx, vmid, tpl.DiskGB); err != nil {
		return nil, err
	}
	if err := client.ConvertToTemplate(ctx, vmid); err != nil {
		return nil, err
	}

	if err := ctx.State.RecordResource("template", "base", strconv.Itoa(vmid)); err != nil {
		return nil, err
	}
	return map[string]string{DetailVMID: strconv.Itoa(vmid)}, nil
}

// Verify probes the host for an actual template under the configured
// VMID. A plain VM with the right ID does not count.
func (*BaseTemplatePhase) Verify(ctx *phase.Context, _ map[string]string) bool {
	client := NewClient(ctx.Remote, ctx.Config, ctx.Log)
	return client.IsTemplate(ctx, ctx.Config.Templates.BaseVMID)
}
