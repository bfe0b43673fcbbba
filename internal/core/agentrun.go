package core

import "github.com/opus-domini/sentinel/internal/core/ids"

// AgentRunStatus is the flat lifecycle status of a standalone agent run.
type AgentRunStatus string

const (
	AgentRunStarting  AgentRunStatus = "starting"
	AgentRunRunning   AgentRunStatus = "running"
	AgentRunWaiting   AgentRunStatus = "waiting"
	AgentRunCompleted AgentRunStatus = "completed"
	AgentRunFailed    AgentRunStatus = "failed"
	AgentRunEscalated AgentRunStatus = "escalated"
)

// AgentRun is a standalone agent invocation not embedded in a pipeline
// job's step sequence, per spec.md §3.
type AgentRun struct {
	ID          ids.AgentRunID `json:"id"`
	Name        string         `json:"name"`
	Namespace   Namespace      `json:"namespace"`
	Cwd         string         `json:"cwd"`
	RunbookHash string         `json:"runbookHash"`
	Vars        Vars           `json:"vars"`
	Status      AgentRunStatus `json:"status"`
	AgentID     ids.AgentID    `json:"agentId"`

	WorkspaceID   *ids.WorkspaceID `json:"workspaceId,omitempty"`
	WorkspacePath string           `json:"workspacePath,omitempty"`
	SessionID     *ids.SessionID   `json:"sessionId,omitempty"`

	Actions ActionTracker `json:"actions"`

	// LastNudgeAtMS is when a nudge action was last dispatched to this
	// run's agent, suppressing Working-transition auto-resume within
	// nudgeGraceWindow of it (spec.md §4.7).
	LastNudgeAtMS int64 `json:"lastNudgeAtMs,omitempty"`

	CreatedAtMS int64 `json:"createdAtMs"`
	UpdatedAtMS int64 `json:"updatedAtMs"`
}

// IsTerminal reports whether the run has reached Completed or Failed.
func (r AgentRun) IsTerminal() bool {
	return r.Status == AgentRunCompleted || r.Status == AgentRunFailed
}

// Owner returns this run's OwnerID.
func (r AgentRun) Owner() OwnerID { return OwnerAgentRun(r.ID) }

// Clone returns a copy safe for concurrent reads.
func (r AgentRun) Clone() AgentRun {
	out := r
	out.Vars = r.Vars.Clone()
	out.Actions = r.Actions.clone()
	return out
}
