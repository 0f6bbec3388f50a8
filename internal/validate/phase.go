package validate

import (
	"fmt"

	"github.com/pxkube/pxkube/internal/phase"
)

// ValidationPhase runs the pre-flight checks as the first pipeline step.
type ValidationPhase struct{}

// Name implements phase.Phase.
func (*ValidationPhase) Name() string { return "validation" }

// Run executes every check; warnings are reported, required failures
// abort the deployment before anything is created.
func (*ValidationPhase) Run(ctx *phase.Context) (map[string]string, error) {
	v := NewValidator(ctx.Remote, ctx.Config, ctx.Log)
	results := v.RunAll(ctx)

	for _, warn := range results.Warnings() {
		ctx.Observer.Printf("warning: %s: %v", warn.Check.Name, warn.Err)
	}
	if err := results.Err(); err != nil {
		return nil, err
	}
	return map[string]string{"checks": fmt.Sprintf("%d", len(results.Results))}, nil
}

// Verify re-probes SSH reachability, the cheapest indicator that the
// host is still the one we validated.
func (*ValidationPhase) Verify(ctx *phase.Context, _ map[string]string) bool {
	v := NewValidator(ctx.Remote, ctx.Config, ctx.Log)
	return v.remoteProbe("pveversion")(ctx) == nil
}
