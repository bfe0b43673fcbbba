package core

import "github.com/opus-domini/sentinel/internal/core/ids"

// AgentStatus is the adapter-observed liveness status of a supervised
// agent process, per spec.md §3 and §4.7.
type AgentStatus string

const (
	AgentStarting AgentStatus = "starting"
	AgentRunning  AgentStatus = "running"
	AgentIdle     AgentStatus = "idle"
	AgentFailed   AgentStatus = "failed"
	AgentExited   AgentStatus = "exited"
	AgentGone     AgentStatus = "gone"
)

// IsDead reports whether status represents a process that has stopped
// running outright (as opposed to Idle/Failed, which are still alive
// and waiting on a decision), per spec.md §4.7's on_dead trigger.
func (s AgentStatus) IsDead() bool {
	return s == AgentExited || s == AgentGone
}

// Agent is the derived view of a supervised agent process, keyed by
// AgentID and populated by StepStarted{agent_id=Some} or
// AgentRunStarted. Removed on owner deletion.
type Agent struct {
	ID            ids.AgentID    `json:"id"`
	Owner         OwnerID        `json:"owner"`
	Status        AgentStatus    `json:"status"`
	SessionID     *ids.SessionID `json:"sessionId,omitempty"`
	Namespace     Namespace      `json:"namespace"`
	WorkspacePath string         `json:"workspacePath,omitempty"`

	// LastExitCode is set when Status is Exited.
	LastExitCode *int `json:"lastExitCode,omitempty"`

	CreatedAtMS int64 `json:"createdAtMs"`
	UpdatedAtMS int64 `json:"updatedAtMs"`
}

// Session is the underlying terminal-multiplexer session driving an
// agent or shell. The real process is owned by the agent adapter;
// materialized state only tracks the association.
type Session struct {
	ID          ids.SessionID `json:"id"`
	Owner       OwnerID       `json:"owner"`
	CreatedAtMS int64         `json:"createdAtMs"`
	DeletedAtMS int64         `json:"deletedAtMs,omitempty"`
}
