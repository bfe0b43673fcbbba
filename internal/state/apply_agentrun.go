package state

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

func applyAgentRunStarted(st *State, env eventlog.Envelope) error {
	var e eventlog.AgentRunStarted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	if _, exists := st.AgentRuns[e.AgentRunID]; exists {
		return nil
	}
	run := core.AgentRun{
		ID:          e.AgentRunID,
		Name:        e.Name,
		Namespace:   e.Namespace,
		Cwd:         e.Cwd,
		RunbookHash: e.RunbookHash,
		Vars:        e.Vars.Clone(),
		Status:      core.AgentRunStarting,
		AgentID:     e.AgentID,
		Actions:     core.NewActionTracker(),
		CreatedAtMS: env.AtMS,
		UpdatedAtMS: env.AtMS,
	}
	st.AgentRuns[e.AgentRunID] = run
	upsertAgent(st, e.AgentID, run.Owner(), e.Namespace, "", env.AtMS)
	return nil
}

func applyAgentRunStatusChanged(st *State, env eventlog.Envelope) error {
	var e eventlog.AgentRunStatusChanged
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	run, ok := st.AgentRuns[e.AgentRunID]
	if !ok {
		return nil
	}
	run.Status = e.Status
	if e.Status == core.AgentRunCompleted {
		run.Actions = run.Actions.Reset()
	}
	run.UpdatedAtMS = env.AtMS
	st.AgentRuns[e.AgentRunID] = run
	return nil
}
