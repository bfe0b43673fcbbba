package state

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

// applyPipelineResume reopens a Waiting job/agent run back to Running,
// the state-side half of a decision resolution that lets the pipeline
// continue (spec.md §4.7.3 Question/Approval "proceed" outcomes). A
// Resume on something that is not Waiting is a no-op, keeping replay
// idempotent.
func applyPipelineResume(st *State, env eventlog.Envelope) error {
	var e eventlog.PipelineResume
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	switch e.Owner.Kind {
	case core.OwnerKindJob:
		j, ok := st.Jobs[e.Owner.JobID]
		if !ok || j.StepStatus != core.StepStatusWaiting {
			return nil
		}
		j.StepStatus = core.StepStatusRunning
		j.StepHistory = j.StepHistory.ReopenCurrent()
		j.UpdatedAtMS = env.AtMS
		st.Jobs[e.Owner.JobID] = j
	case core.OwnerKindAgentRun:
		r, ok := st.AgentRuns[e.Owner.AgentRunID]
		if !ok || r.Status != core.AgentRunEscalated {
			return nil
		}
		r.Status = core.AgentRunRunning
		r.UpdatedAtMS = env.AtMS
		st.AgentRuns[e.Owner.AgentRunID] = r
	}
	return nil
}

// applyPipelineCancel drives the owner to its Failed terminal state, the
// state-side half of a "Cancel" decision resolution.
func applyPipelineCancel(st *State, env eventlog.Envelope) error {
	var e eventlog.PipelineCancel
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	switch e.Owner.Kind {
	case core.OwnerKindJob:
		j, ok := st.Jobs[e.Owner.JobID]
		if !ok || j.IsTerminal() {
			return nil
		}
		j.StepStatus = core.StepStatusFailed
		j.StepHistory = j.StepHistory.CloseCurrent(env.AtMS, core.StepOutcomeFailed, "cancelled")
		j.UpdatedAtMS = env.AtMS
		st.Jobs[e.Owner.JobID] = j
	case core.OwnerKindAgentRun:
		r, ok := st.AgentRuns[e.Owner.AgentRunID]
		if !ok || r.IsTerminal() {
			return nil
		}
		r.Status = core.AgentRunFailed
		r.UpdatedAtMS = env.AtMS
		st.AgentRuns[e.Owner.AgentRunID] = r
	}
	return nil
}

// applyPipelineSkip advances a job directly to the named target step
// (spec.md §4.7.3 Gate/Error "Skip" outcome), bypassing on_fail. The
// action tracker resets exactly as a normal advance does. Standalone
// agent runs have no step graph to skip within, so a Skip against an
// AgentRun owner is treated as a Resume.
func applyPipelineSkip(st *State, env eventlog.Envelope) error {
	var e eventlog.PipelineSkip
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	switch e.Owner.Kind {
	case core.OwnerKindJob:
		j, ok := st.Jobs[e.Owner.JobID]
		if !ok {
			return nil
		}
		if j.CurrentStep == e.Target && j.StepStatus == core.StepStatusRunning {
			return nil
		}
		j.CurrentStep = e.Target
		j.StepStatus = core.StepStatusRunning
		j.StepHistory = j.StepHistory.Enter(e.Target, env.AtMS)
		j.Actions = core.NewActionTracker()
		j.UpdatedAtMS = env.AtMS
		st.Jobs[e.Owner.JobID] = j
	case core.OwnerKindAgentRun:
		r, ok := st.AgentRuns[e.Owner.AgentRunID]
		if !ok || r.Status != core.AgentRunEscalated {
			return nil
		}
		r.Status = core.AgentRunRunning
		r.UpdatedAtMS = env.AtMS
		st.AgentRuns[e.Owner.AgentRunID] = r
	}
	return nil
}

// applyActionAttempted increments the owner's action tracker at
// (trigger, chainPos), the sole mutation driving spec.md §4.7.2's
// cumulative attempts budget, and stamps LastNudgeAtMS when the
// dispatched action was a nudge (spec.md §4.7's auto-resume
// suppression window).
func applyActionAttempted(st *State, env eventlog.Envelope) error {
	var e eventlog.ActionAttempted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	switch e.Owner.Kind {
	case core.OwnerKindJob:
		j, ok := st.Jobs[e.Owner.JobID]
		if !ok {
			return nil
		}
		j.Actions = j.Actions.Increment(e.Trigger, e.ChainPos)
		if e.Action == core.ActionNudge {
			j.LastNudgeAtMS = env.AtMS
		}
		j.UpdatedAtMS = env.AtMS
		st.Jobs[e.Owner.JobID] = j
	case core.OwnerKindAgentRun:
		r, ok := st.AgentRuns[e.Owner.AgentRunID]
		if !ok {
			return nil
		}
		r.Actions = r.Actions.Increment(e.Trigger, e.ChainPos)
		if e.Action == core.ActionNudge {
			r.LastNudgeAtMS = env.AtMS
		}
		r.UpdatedAtMS = env.AtMS
		st.AgentRuns[e.Owner.AgentRunID] = r
	}
	return nil
}
