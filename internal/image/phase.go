package image

import (
	"github.com/pxkube/pxkube/internal/phase"
	"github.com/pxkube/pxkube/internal/proxmox"
)

// CloudImagePhase downloads and prepares the upstream cloud image.
type CloudImagePhase struct{}

// Name implements phase.Phase.
func (*CloudImagePhase) Name() string { return "cloud_image" }

// Run prepares the image and records its remote path for the template
// phase.
func (*CloudImagePhase) Run(ctx *phase.Context) (map[string]string, error) {
	b := NewBuilder(ctx.Remote, ctx.Config, ctx.Log)
	path, err := b.Prepare(ctx, ctx.Timeouts.ImageDownload, ctx.Timeouts.ImageCustomize)
	if err != nil {
		return nil, err
	}
	return map[string]string{proxmox.DetailImagePath: path}, nil
}

// Verify probes for the image file on the host.
func (*CloudImagePhase) Verify(ctx *phase.Context, _ map[string]string) bool {
	return NewBuilder(ctx.Remote, ctx.Config, ctx.Log).Exists(ctx)
}
