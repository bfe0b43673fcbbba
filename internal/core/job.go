package core

import "github.com/opus-domini/sentinel/internal/core/ids"

// StepStatus is the coarse status of a job's current step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusWaiting   StepStatus = "waiting"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// Job is a running or terminal multi-step pipeline, per spec.md §3.
type Job struct {
	ID          ids.JobID   `json:"id"`
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	Namespace   Namespace   `json:"namespace"`
	Cwd         string      `json:"cwd"`
	RunbookHash string      `json:"runbookHash"`
	Vars        Vars        `json:"vars"`
	CurrentStep string      `json:"currentStep"`
	StepStatus  StepStatus  `json:"stepStatus"`
	StepHistory StepHistory `json:"stepHistory"`

	WorkspaceID   *ids.WorkspaceID `json:"workspaceId,omitempty"`
	WorkspacePath string           `json:"workspacePath,omitempty"`
	SessionID     *ids.SessionID   `json:"sessionId,omitempty"`
	CronSource    string           `json:"cronSource,omitempty"`

	Actions ActionTracker `json:"actions"`

	// LastNudgeAtMS is when a nudge action was last dispatched to this
	// job's agent, suppressing Working-transition auto-resume within
	// nudgeGraceWindow of it (spec.md §4.7).
	LastNudgeAtMS int64 `json:"lastNudgeAtMs,omitempty"`

	CreatedAtMS int64 `json:"createdAtMs"`
	UpdatedAtMS int64 `json:"updatedAtMs"`
}

// IsTerminal reports whether the job has reached Completed or Failed.
func (j Job) IsTerminal() bool {
	return j.StepStatus == StepStatusCompleted || j.StepStatus == StepStatusFailed
}

// Owner returns this job's OwnerID, used to key agents/sessions/decisions
// it owns.
func (j Job) Owner() OwnerID { return OwnerJob(j.ID) }

// Clone returns a deep-enough copy safe for handlers to read without
// racing the next apply_event (vars and step history are copied; the
// rest are value types).
func (j Job) Clone() Job {
	out := j
	out.Vars = j.Vars.Clone()
	out.StepHistory = append(StepHistory(nil), j.StepHistory...)
	out.Actions = j.Actions.clone()
	return out
}
