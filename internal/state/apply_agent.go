package state

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

// upsertAgent installs or refreshes the derived Agent record for
// agentID, used by StepStarted{agent_id=Some} and AgentRunStarted.
func upsertAgent(st *State, agentID ids.AgentID, owner core.OwnerID, ns core.Namespace, workspacePath string, atMS int64) {
	existing, ok := st.Agents[agentID]
	if ok {
		existing.Owner = owner
		existing.Namespace = ns
		existing.WorkspacePath = workspacePath
		existing.UpdatedAtMS = atMS
		st.Agents[agentID] = existing
		return
	}
	st.Agents[agentID] = core.Agent{
		ID:            agentID,
		Owner:         owner,
		Status:        core.AgentStarting,
		Namespace:     ns,
		WorkspacePath: workspacePath,
		CreatedAtMS:   atMS,
		UpdatedAtMS:   atMS,
	}
}

func applyAgentStateObserved(st *State, env eventlog.Envelope) error {
	var e eventlog.AgentStateObserved
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	agent, ok := st.Agents[e.AgentID]
	if !ok {
		return nil
	}
	agent.Status = e.State
	agent.LastExitCode = e.ExitCode
	agent.UpdatedAtMS = env.AtMS
	st.Agents[e.AgentID] = agent
	return nil
}
