package runtime

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/state"
)

func registerDecisionHandlers(rt *Runtime) {
	rt.On(eventlog.KindDecisionResolved, handleDecisionResolved)
}

// handleDecisionResolved translates a resolved Decision into the
// follow-up Pipeline* event its source and chosen option imply, per
// spec.md §4.7.3's resolution table.
func handleDecisionResolved(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.DecisionResolved
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var (
		decision core.Decision
		ok       bool
	)
	rt.Store.Read(func(st *state.State) {
		decision, ok = st.Decisions[e.DecisionID]
	})
	if !ok || e.Chosen == nil {
		return nil, nil
	}
	opt, ok := decision.Option(*e.Chosen)
	if !ok {
		return nil, nil
	}
	owner := decision.Owner

	switch decision.Source {
	case core.DecisionSourceQuestion:
		if decision.IsLastOption(*e.Chosen) {
			return []effects.Effect{effects.Emit(eventlog.KindPipelineCancel, eventlog.PipelineCancel{Owner: owner})}, nil
		}
		return []effects.Effect{effects.Emit(eventlog.KindPipelineResume, eventlog.PipelineResume{Owner: owner, Message: e.Message})}, nil

	case core.DecisionSourceIdle:
		// A bare dismiss with no distinguishing choice leaves the agent
		// running as-is; anything else resumes with the chosen nudge.
		if opt.Label == "Dismiss" {
			return nil, nil
		}
		return []effects.Effect{effects.Emit(eventlog.KindPipelineResume, eventlog.PipelineResume{Owner: owner, Message: e.Message})}, nil

	case core.DecisionSourceApproval, core.DecisionSourceGate, core.DecisionSourceError:
		switch opt.Label {
		case "Retry":
			chainPos := decision.ChainPos
			if chainPos < 0 {
				chainPos = 0
			}
			return resolveActionChain(rt, owner, decision.Trigger, decision.Category, chainPos)
		case "Skip":
			return skipEffects(rt, owner)
		case "Cancel":
			return []effects.Effect{effects.Emit(eventlog.KindPipelineCancel, eventlog.PipelineCancel{Owner: owner})}, nil
		}
	}
	return nil, nil
}

// skipEffects advances a Job owner to its current step's on_done target
// (spec.md §4.7.3's Gate/Error "Skip" outcome); an AgentRun owner has no
// step graph to skip within, so Skip degrades to Resume.
func skipEffects(rt *Runtime, owner core.OwnerID) ([]effects.Effect, error) {
	if owner.Kind != core.OwnerKindJob {
		return []effects.Effect{effects.Emit(eventlog.KindPipelineResume, eventlog.PipelineResume{Owner: owner})}, nil
	}
	var (
		target string
		step   string
	)
	rt.Store.Read(func(st *state.State) {
		job, ok := st.Jobs[owner.JobID]
		if !ok {
			return
		}
		_, sd, ok := lookupStep(job, st.Runbooks, job.CurrentStep)
		if !ok {
			return
		}
		step = job.CurrentStep
		target = sd.OnDone
	})
	switch target {
	case "", "done":
		return []effects.Effect{effects.Emit(eventlog.KindStepCompleted, eventlog.StepCompleted{JobID: owner.JobID, Step: step})}, nil
	case "fail":
		return []effects.Effect{effects.Emit(eventlog.KindStepFailed, eventlog.StepFailed{JobID: owner.JobID, Step: step, Reason: "skipped to fail"})}, nil
	default:
		return []effects.Effect{effects.Emit(eventlog.KindPipelineSkip, eventlog.PipelineSkip{Owner: owner, Target: target})}, nil
	}
}
