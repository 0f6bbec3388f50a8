package storage

import (
	"github.com/pxkube/pxkube/internal/phase"
)

// ToolsStoragePhase brings up the ISO store before any image work.
type ToolsStoragePhase struct{}

// Name implements phase.Phase.
func (*ToolsStoragePhase) Name() string { return "tools_storage" }

// Run ensures the RBD volume exists, has a filesystem and is mounted.
func (*ToolsStoragePhase) Run(ctx *phase.Context) (map[string]string, error) {
	store := NewStore(ctx.Remote, ctx.Config, ctx.Log)
	if err := store.Ensure(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"mount_point": store.MountPoint()}, nil
}

// Verify probes the mount point. An unmounted store means the host
// rebooted without the mapping; the phase re-runs and remounts.
func (*ToolsStoragePhase) Verify(ctx *phase.Context, _ map[string]string) bool {
	return NewStore(ctx.Remote, ctx.Config, ctx.Log).IsMounted(ctx)
}
