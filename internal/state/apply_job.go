package state

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

func applyJobCreated(st *State, env eventlog.Envelope) error {
	var e eventlog.JobCreated
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	if _, exists := st.Jobs[e.JobID]; exists {
		return nil // idempotent replay
	}
	job := core.Job{
		ID:            e.JobID,
		Name:          e.Name,
		Kind:          e.Kind,
		Namespace:     e.Namespace,
		Cwd:           e.Cwd,
		RunbookHash:   e.RunbookHash,
		Vars:          e.Vars.Clone(),
		CurrentStep:   e.EntryStep,
		StepStatus:    core.StepStatusRunning,
		StepHistory:   core.StepHistory{}.Enter(e.EntryStep, env.AtMS),
		WorkspaceID:   e.WorkspaceID,
		WorkspacePath: e.WorkspacePath,
		CronSource:    e.CronSource,
		Actions:       core.NewActionTracker(),
		CreatedAtMS:   env.AtMS,
		UpdatedAtMS:   env.AtMS,
	}
	st.Jobs[e.JobID] = job
	return nil
}

func applyJobAdvanced(st *State, env eventlog.Envelope) error {
	var e eventlog.JobAdvanced
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	job, ok := st.Jobs[e.JobID]
	if !ok {
		return nil
	}
	job.StepHistory = job.StepHistory.Enter(e.Step, env.AtMS)
	job.CurrentStep = e.Step
	job.StepStatus = core.StepStatusRunning
	if !e.OnFail {
		job.Actions = job.Actions.Reset()
	}
	job.UpdatedAtMS = env.AtMS
	st.Jobs[e.JobID] = job
	return nil
}

func applyJobDeleted(st *State, env eventlog.Envelope) error {
	var e eventlog.JobDeleted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	job, ok := st.Jobs[e.JobID]
	if !ok {
		return nil
	}
	owner := job.Owner()
	cascadeDeleteOwner(st, owner)
	delete(st.Jobs, e.JobID)
	return nil
}

func applyStepStarted(st *State, env eventlog.Envelope) error {
	var e eventlog.StepStarted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	job, ok := st.Jobs[e.JobID]
	if !ok {
		return nil
	}
	job.StepStatus = core.StepStatusRunning
	if e.AgentID != nil {
		job.StepHistory = job.StepHistory.SetAgent(*e.AgentID, e.AgentName)
		upsertAgent(st, *e.AgentID, core.OwnerJob(e.JobID), job.Namespace, job.WorkspacePath, env.AtMS)
	}
	job.UpdatedAtMS = env.AtMS
	st.Jobs[e.JobID] = job
	return nil
}

func applyStepCompleted(st *State, env eventlog.Envelope) error {
	var e eventlog.StepCompleted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	job, ok := st.Jobs[e.JobID]
	if !ok {
		return nil
	}
	job.StepHistory = job.StepHistory.CloseCurrent(env.AtMS, core.StepOutcomeCompleted, "")
	job.StepStatus = core.StepStatusCompleted
	job.UpdatedAtMS = env.AtMS
	st.Jobs[e.JobID] = job
	return nil
}

func applyStepFailed(st *State, env eventlog.Envelope) error {
	var e eventlog.StepFailed
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	job, ok := st.Jobs[e.JobID]
	if !ok {
		return nil
	}
	job.StepHistory = job.StepHistory.CloseCurrent(env.AtMS, core.StepOutcomeFailed, e.Reason)
	job.StepStatus = core.StepStatusFailed
	job.UpdatedAtMS = env.AtMS
	st.Jobs[e.JobID] = job
	return nil
}

func applyStepWaiting(st *State, env eventlog.Envelope) error {
	var e eventlog.StepWaiting
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	job, ok := st.Jobs[e.JobID]
	if !ok {
		return nil
	}
	job.StepHistory = job.StepHistory.CloseCurrent(env.AtMS, core.StepOutcomeWaiting, e.Reason)
	job.StepStatus = core.StepStatusWaiting
	job.UpdatedAtMS = env.AtMS
	st.Jobs[e.JobID] = job
	return nil
}

// cascadeDeleteOwner removes every agent, session and decision owned by
// owner, per spec.md §3's Job deletion cascade.
func cascadeDeleteOwner(st *State, owner core.OwnerID) {
	for id, a := range st.Agents {
		if a.Owner == owner {
			delete(st.Agents, id)
		}
	}
	for id, s := range st.Sessions {
		if s.Owner == owner {
			delete(st.Sessions, id)
		}
	}
	for id, d := range st.Decisions {
		if d.Owner == owner {
			delete(st.Decisions, id)
		}
	}
}
