package phase

import (
	"fmt"
	"time"
)

// Options control a pipeline run.
type Options struct {
	// SkipPhases names phases to skip regardless of state.
	SkipPhases []string

	// ResumeFrom skips every phase before the named one without
	// verification, then runs normally from there.
	ResumeFrom string

	// DryRun reports what would execute without running anything or
	// touching the state document.
	DryRun bool
}

// RunAll executes the phases in order, skipping completed ones whose
// verification passes and stopping at the first failure. Phase failures
// never take the state document down with them: everything completed
// before the failure stays recorded, so the next run resumes there.
func RunAll(ctx *Context, phases []Phase, opts Options) error {
	start := time.Now()
	ctx.Observer.Printf("Running deployment pipeline with %d phases", len(phases))

	skip := make(map[string]bool, len(opts.SkipPhases))
	for _, name := range opts.SkipPhases {
		skip[name] = true
	}

	resuming := opts.ResumeFrom != ""

	for i, p := range phases {
		name := p.Name()
		label := fmt.Sprintf("%s (%d/%d)", name, i+1, len(phases))

		if resuming {
			if name != opts.ResumeFrom {
				ctx.Observer.Event(Event{Type: EventPhaseSkipped, Phase: name, Message: "before resume point"})
				continue
			}
			resuming = false
		}

		if skip[name] {
			ctx.Observer.Event(Event{Type: EventPhaseSkipped, Phase: name, Message: "skipped by request"})
			continue
		}

		if ctx.State.IsComplete(name) {
			if verified, checked := verify(ctx, p); !checked || verified {
				ctx.Observer.Event(Event{Type: EventPhaseSkipped, Phase: name, Message: "already complete"})
				continue
			}
			if opts.DryRun {
				ctx.Observer.Event(Event{Type: EventPhaseWouldRun, Phase: name, Message: "would re-run, verification failed"})
				continue
			}
			ctx.Observer.Event(Event{Type: EventPhaseInvalidated, Phase: name, Message: "verification failed, re-running"})
			if err := ctx.State.Invalidate(name); err != nil {
				return fmt.Errorf("failed to invalidate phase %s: %w", name, err)
			}
		}

		if opts.DryRun {
			ctx.Observer.Event(Event{Type: EventPhaseWouldRun, Phase: name})
			continue
		}

		ctx.Observer.Event(Event{Type: EventPhaseStarted, Phase: label})
		phaseStart := time.Now()

		details, err := runPhase(ctx, p)
		if err != nil {
			ctx.Observer.Event(Event{Type: EventPhaseFailed, Phase: name, Message: err.Error()})
			return fmt.Errorf("phase %s failed: %w", name, err)
		}

		if err := ctx.State.MarkComplete(name, details); err != nil {
			return fmt.Errorf("failed to record phase %s: %w", name, err)
		}
		ctx.Observer.Event(Event{
			Type:    EventPhaseCompleted,
			Phase:   name,
			Message: fmt.Sprintf("completed in %v", time.Since(phaseStart).Round(time.Millisecond)),
		})
	}

	if resuming {
		return fmt.Errorf("resume phase %q is not in the pipeline", opts.ResumeFrom)
	}

	ctx.Observer.Printf("Pipeline finished in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// verify runs the phase's verifier against its recorded details. The
// second return is false when the phase has no verifier, in which case
// the completion record is trusted as-is.
func verify(ctx *Context, p Phase) (verified, checked bool) {
	v, ok := p.(Verifier)
	if !ok {
		return false, false
	}
	details, _ := ctx.State.Details(p.Name())
	return v.Verify(ctx, details), true
}

// runPhase executes one phase, converting panics into errors so a bug in
// a single phase cannot corrupt the state document or skip the failure
// accounting.
func runPhase(ctx *Context, p Phase) (details map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in phase %s: %v", p.Name(), r)
		}
	}()
	return p.Run(ctx)
}
