// Package phase contains the deployment engine: an ordered pipeline of
// idempotent phases that is safe to re-run. Each phase knows how to do
// its work and, where possible, how to verify that work still exists on
// the target. Completed phases whose verification passes are skipped;
// completed phases whose verification fails are invalidated and re-run.
package phase

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/pxkube/pxkube/internal/config"
	"github.com/pxkube/pxkube/internal/runner"
	"github.com/pxkube/pxkube/internal/state"
)

// VerifyTimeout bounds a single verification probe. Probes are cheap
// read-only commands; anything slower than this counts as failed.
const VerifyTimeout = 10 * time.Second

// Phase is one step of the deployment pipeline.
type Phase interface {
	// Name returns the stable identifier recorded in the state document.
	Name() string

	// Run executes the phase. It returns details to persist alongside
	// the completion record, for later phases and for verification.
	Run(ctx *Context) (map[string]string, error)
}

// Verifier is implemented by phases that can check whether their work
// still exists on the target. Verify must be read-only, must not block
// longer than VerifyTimeout per probe, and treats any probe failure as
// "not verified".
type Verifier interface {
	Verify(ctx *Context, details map[string]string) bool
}

// Context carries everything a phase needs. It embeds the cancellation
// context so phases pass it directly to runners.
type Context struct {
	context.Context

	Config   *config.Config
	State    *state.Store
	Timeouts *config.Timeouts

	// Local runs commands on the operator workstation, Remote on the
	// Proxmox host over SSH.
	Local  runner.Runner
	Remote runner.Runner

	Observer Observer
	Log      logr.Logger
}

// NewContext builds a phase context with a console observer.
func NewContext(ctx context.Context, cfg *config.Config, st *state.Store, local, remote runner.Runner, log logr.Logger) *Context {
	return &Context{
		Context:  ctx,
		Config:   cfg,
		State:    st,
		Timeouts: config.DefaultTimeouts(),
		Local:    local,
		Remote:   remote,
		Observer: NewConsoleObserver(),
		Log:      log,
	}
}
