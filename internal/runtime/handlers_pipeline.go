package runtime

import (
	"strconv"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/state"
)

func registerPipelineHandlers(rt *Runtime) {
	rt.On(eventlog.KindJobCreated, handleJobCreated)
	rt.On(eventlog.KindStepCompleted, handleStepCompleted)
	rt.On(eventlog.KindStepFailed, handleStepFailed)
	rt.On(eventlog.KindPipelineResume, handlePipelineResume)
	rt.On(eventlog.KindPipelineCancel, noop)
	rt.On(eventlog.KindPipelineRetry, handlePipelineRetry)
	rt.On(eventlog.KindPipelineSkip, handlePipelineSkip)
	rt.On(eventlog.KindShellExited, handleShellExited)
}

// handleShellExited translates a finished shell step's exit code into
// the StepCompleted/StepFailed event that drives it onward, mirroring
// how an agent step's action chain resolves to the same two outcomes.
func handleShellExited(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.ShellExited
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		job, ok := st.Jobs[e.JobID]
		if !ok || job.CurrentStep != e.Step {
			return
		}
		if e.ExitCode == 0 {
			effs = []effects.Effect{effects.Emit(eventlog.KindStepCompleted, eventlog.StepCompleted{JobID: e.JobID, Step: e.Step})}
			return
		}
		effs = []effects.Effect{effects.Emit(eventlog.KindStepFailed, eventlog.StepFailed{
			JobID: e.JobID, Step: e.Step, Reason: "shell exited " + strconv.Itoa(e.ExitCode),
		})}
	})
	return effs, nil
}

func noop(_ *Runtime, _ eventlog.Envelope) ([]effects.Effect, error) { return nil, nil }

// handleJobCreated dispatches the newly created job's entry step. Every
// job, top-level or nested (spec.md §1's pipeline step), reaches its
// first step through this one path.
func handleJobCreated(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.JobCreated
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		job, ok := st.Jobs[e.JobID]
		if !ok {
			return
		}
		jd, sd, ok := lookupStep(job, st.Runbooks, job.CurrentStep)
		if !ok {
			return
		}
		_ = jd
		effs = dispatchStep(job, sd, st.Runbooks[job.RunbookHash])
	})
	return effs, nil
}

func handleStepCompleted(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.StepCompleted
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		job, ok := st.Jobs[e.JobID]
		if !ok || job.CurrentStep != e.Step {
			return // already advanced past this step (idempotent replay)
		}
		jd, sd, ok := lookupStep(job, st.Runbooks, e.Step)
		if !ok {
			return
		}
		effs = nextStepEffects(job, jd, st.Runbooks[job.RunbookHash], sd.OnDone, false)
	})
	return effs, nil
}

func handleStepFailed(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.StepFailed
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		job, ok := st.Jobs[e.JobID]
		if !ok || job.CurrentStep != e.Step {
			return
		}
		jd, sd, ok := lookupStep(job, st.Runbooks, e.Step)
		if !ok {
			return
		}
		effs = nextStepEffects(job, jd, st.Runbooks[job.RunbookHash], sd.OnFail, true)
	})
	return effs, nil
}

// handlePipelineResume re-dispatches a job owner's current step after a
// Decision resolves in its favor or a human issues an explicit resume
// (spec.md §4.7.3). An agent-run owner produces no effects.
func handlePipelineResume(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.PipelineResume
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	if e.Owner.Kind != core.OwnerKindJob {
		return nil, nil
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		job, ok := st.Jobs[e.Owner.JobID]
		if !ok {
			return
		}
		rb, ok := st.Runbooks[job.RunbookHash]
		if !ok {
			return
		}
		jd, ok := rb.Jobs[job.Name]
		if !ok {
			return
		}
		sd, ok := jd.Steps[job.CurrentStep]
		if !ok {
			return
		}
		effs = dispatchStep(job, sd, rb)
	})
	return effs, nil
}

// handlePipelineRetry re-dispatches the action chain at trigger/chainPos
// rather than the step itself; the concrete action (nudge/gate/...) is
// resolved by resolveActionChain, which owns escalation state.
func handlePipelineRetry(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.PipelineRetry
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	return resolveActionChain(rt, e.Owner, e.Trigger, e.Category, e.ChainPos)
}

// handlePipelineSkip advances straight to target, bypassing the
// current step's own on_done/on_fail routing.
func handlePipelineSkip(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.PipelineSkip
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	if e.Owner.Kind != core.OwnerKindJob {
		return nil, nil
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		job, ok := st.Jobs[e.Owner.JobID]
		if !ok {
			return
		}
		rb, ok := st.Runbooks[job.RunbookHash]
		if !ok {
			return
		}
		jd, ok := rb.Jobs[job.Name]
		if !ok {
			return
		}
		sd, ok := jd.Steps[job.CurrentStep] // job.CurrentStep already == target post apply_pipeline
		if !ok {
			return
		}
		effs = dispatchStep(job, sd, rb)
	})
	return effs, nil
}
