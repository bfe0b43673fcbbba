// Package eventlog defines the WAL event envelope and the write-ahead
// log itself (spec.md §4.1). Every state change in the engine is first
// represented as one of the typed payloads below, wrapped in an
// Envelope, and appended to the log before materialized state is
// mutated.
package eventlog

import (
	"encoding/json"
	"fmt"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
)

// Kind discriminates the Envelope's Data payload.
type Kind string

const (
	KindJobCreated   Kind = "JobCreated"
	KindJobAdvanced  Kind = "JobAdvanced"
	KindJobDeleted   Kind = "JobDeleted"
	KindStepStarted  Kind = "StepStarted"
	KindStepCompleted Kind = "StepCompleted"
	KindStepFailed   Kind = "StepFailed"
	KindStepWaiting  Kind = "StepWaiting"

	KindAgentRunStarted       Kind = "AgentRunStarted"
	KindAgentRunStatusChanged Kind = "AgentRunStatusChanged"

	KindSessionCreated Kind = "SessionCreated"
	KindSessionDeleted Kind = "SessionDeleted"

	KindAgentStateObserved Kind = "AgentStateObserved"

	KindWorkerStarted        Kind = "WorkerStarted"
	KindWorkerStopped        Kind = "WorkerStopped"
	KindWorkerDeleted        Kind = "WorkerDeleted"
	KindWorkerPollComplete   Kind = "WorkerPollComplete"
	KindWorkerItemDispatched Kind = "WorkerItemDispatched"
	KindWorkerItemCompleted  Kind = "WorkerItemCompleted"

	KindQueueTaken              Kind = "QueueTaken"
	KindQueueFailed             Kind = "QueueFailed"
	KindQueueItemRetryScheduled Kind = "QueueItemRetryScheduled"
	KindQueueItemRetried        Kind = "QueueItemRetried"
	KindQueueItemDead           Kind = "QueueItemDead"

	KindCronStarted Kind = "CronStarted"
	KindCronStopped Kind = "CronStopped"
	KindCronFired   Kind = "CronFired"

	KindDecisionCreated  Kind = "DecisionCreated"
	KindDecisionResolved Kind = "DecisionResolved"

	KindRunbookLoaded Kind = "RunbookLoaded"

	KindTimerStart Kind = "TimerStart"
	KindShellExited Kind = "ShellExited"

	KindPipelineResume Kind = "PipelineResume"
	KindPipelineCancel Kind = "PipelineCancel"
	KindPipelineRetry  Kind = "PipelineRetry"
	KindPipelineSkip   Kind = "PipelineSkip"

	KindActionAttempted Kind = "ActionAttempted"

	KindGateResult Kind = "GateResult"
)

// Envelope is the on-disk WAL record: one JSON line per event. Seq is
// assigned by the WAL at append time and is never replayed from Data.
type Envelope struct {
	Seq   uint64          `json:"seq"`
	Kind  Kind            `json:"kind"`
	AtMS  int64           `json:"atMs"`
	Data  json.RawMessage `json:"data"`
}

// New builds an Envelope around a typed payload (Seq is left zero; the
// WAL assigns it on Append).
func New(kind Kind, atMS int64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Envelope{Kind: kind, AtMS: atMS, Data: data}, nil
}

// Decode unmarshals the envelope's Data into dst, which must be a
// pointer to the payload type matching e.Kind.
func (e Envelope) Decode(dst any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// --- Payload types, one per Kind above. ---

type JobCreated struct {
	JobID       ids.JobID     `json:"jobId"`
	Name        string        `json:"name"`
	Kind        string        `json:"kind"`
	Namespace   core.Namespace `json:"namespace"`
	Cwd         string        `json:"cwd"`
	RunbookHash string        `json:"runbookHash"`
	Vars        core.Vars     `json:"vars"`
	EntryStep   string        `json:"entryStep"`
	WorkspaceID *ids.WorkspaceID `json:"workspaceId,omitempty"`
	WorkspacePath string      `json:"workspacePath,omitempty"`
	CronSource  string        `json:"cronSource,omitempty"`
}

type JobAdvanced struct {
	JobID   ids.JobID `json:"jobId"`
	Step    string    `json:"step"`
	OnFail  bool      `json:"onFail"`
}

type JobDeleted struct {
	JobID ids.JobID `json:"jobId"`
}

type StepStarted struct {
	JobID     ids.JobID    `json:"jobId"`
	Step      string       `json:"step"`
	AgentID   *ids.AgentID `json:"agentId,omitempty"`
	AgentName string       `json:"agentName,omitempty"`
}

type StepCompleted struct {
	JobID ids.JobID `json:"jobId"`
	Step  string    `json:"step"`
}

type StepFailed struct {
	JobID  ids.JobID `json:"jobId"`
	Step   string    `json:"step"`
	Reason string    `json:"reason"`
}

type StepWaiting struct {
	JobID  ids.JobID `json:"jobId"`
	Step   string    `json:"step"`
	Reason string    `json:"reason"`
}

type AgentRunStarted struct {
	AgentRunID  ids.AgentRunID `json:"agentRunId"`
	Name        string         `json:"name"`
	Namespace   core.Namespace `json:"namespace"`
	Cwd         string         `json:"cwd"`
	RunbookHash string         `json:"runbookHash"`
	Vars        core.Vars      `json:"vars"`
	AgentID     ids.AgentID    `json:"agentId"`
}

type AgentRunStatusChanged struct {
	AgentRunID ids.AgentRunID      `json:"agentRunId"`
	Status     core.AgentRunStatus `json:"status"`
}

type SessionCreated struct {
	SessionID ids.SessionID `json:"sessionId"`
	Owner     core.OwnerID  `json:"owner"`
}

type SessionDeleted struct {
	SessionID ids.SessionID `json:"sessionId"`
}

// AgentStateObserved carries the adapter-polled liveness state for an
// agent, per spec.md §4.7.
type AgentStateObserved struct {
	AgentID  ids.AgentID      `json:"agentId"`
	State    core.AgentStatus `json:"state"`
	ExitCode *int             `json:"exitCode,omitempty"`
	Category string           `json:"category,omitempty"` // set when State == failed
}

type WorkerStarted struct {
	Name        ids.WorkerName `json:"name"`
	Namespace   core.Namespace `json:"namespace"`
	ProjectRoot string         `json:"projectRoot"`
	RunbookHash string         `json:"runbookHash"`
	Queue       ids.QueueName  `json:"queue"`
	Handler     string         `json:"handler"`
	Concurrency int            `json:"concurrency"`
}

type WorkerStopped struct {
	Name ids.WorkerName `json:"name"`
}

type WorkerDeleted struct {
	Name ids.WorkerName `json:"name"`
}

type WorkerPollComplete struct {
	Name  ids.WorkerName      `json:"name"`
	Items []map[string]string `json:"items"`
}

type WorkerItemDispatched struct {
	Worker ids.WorkerName  `json:"worker"`
	ItemID ids.QueueItemID `json:"itemId"`
	JobID  ids.JobID       `json:"jobId"`
}

type WorkerItemCompleted struct {
	Worker ids.WorkerName  `json:"worker"`
	ItemID ids.QueueItemID `json:"itemId"`
}

type QueueTaken struct {
	Queue  ids.QueueName   `json:"queue"`
	ItemID ids.QueueItemID `json:"itemId"`
	Worker ids.WorkerName  `json:"worker"`
}

type QueueFailed struct {
	Queue  ids.QueueName   `json:"queue"`
	ItemID ids.QueueItemID `json:"itemId"`
	Reason string          `json:"reason"`
}

type QueueItemRetryScheduled struct {
	Queue     ids.QueueName   `json:"queue"`
	ItemID    ids.QueueItemID `json:"itemId"`
	RetryAtMS int64           `json:"retryAtMs"`
}

// QueueItemRetried moves an item from Failed back to Pending when its
// queue-retry timer fires and the failure budget is not exhausted.
type QueueItemRetried struct {
	Queue  ids.QueueName   `json:"queue"`
	ItemID ids.QueueItemID `json:"itemId"`
}

// QueueItemDead moves an item from Failed to Dead once its retry
// attempts budget is exhausted.
type QueueItemDead struct {
	Queue  ids.QueueName   `json:"queue"`
	ItemID ids.QueueItemID `json:"itemId"`
}

type CronStarted struct {
	Name        ids.CronName   `json:"name"`
	Namespace   core.Namespace `json:"namespace"`
	Interval    string         `json:"interval"`
	Target      string         `json:"target"`
	RunbookHash string         `json:"runbookHash"`
	ProjectRoot string         `json:"projectRoot"`
	Concurrency int            `json:"concurrency"`
}

type CronStopped struct {
	Name ids.CronName `json:"name"`
}

type CronFired struct {
	Name  ids.CronName `json:"name"`
	JobID ids.JobID    `json:"jobId"`
}

type DecisionCreated struct {
	DecisionID ids.DecisionID        `json:"decisionId"`
	Source     core.DecisionSource   `json:"source"`
	Context    string                `json:"context"`
	Options    []core.DecisionOption `json:"options"`
	Owner      core.OwnerID          `json:"owner"`

	// Trigger/Category/ChainPos carry the action-chain position a
	// Retry resolution re-dispatches to (spec.md §4.7.3). ChainPos is
	// -1 when there is none (the chain ran off its end or the owner
	// could not be resolved); a Retry then restarts at position 0.
	Trigger  core.Trigger      `json:"trigger,omitempty"`
	Category core.ErrorCategory `json:"category,omitempty"`
	ChainPos int               `json:"chainPos"`
}

type DecisionResolved struct {
	DecisionID ids.DecisionID `json:"decisionId"`
	Chosen     *int           `json:"chosen,omitempty"`
	Message    string         `json:"message,omitempty"`
}

type RunbookLoaded struct {
	Hash    string       `json:"hash"`
	Version int          `json:"version"`
	Runbook core.Runbook `json:"runbook"`
}

type TimerStart struct {
	TimerID string `json:"timerId"`
}

type ShellExited struct {
	JobID      ids.JobID `json:"jobId"`
	Step       string    `json:"step"`
	ExitCode   int       `json:"exitCode"`
	StdoutTail string    `json:"stdoutTail,omitempty"`
	StderrTail string    `json:"stderrTail,omitempty"`
}

// PipelineResume/Cancel/Retry/Skip are the follow-up events a decision
// resolution translates to, per spec.md §4.7.3.
type PipelineResume struct {
	Owner   core.OwnerID `json:"owner"`
	Message string       `json:"message,omitempty"`
}

type PipelineCancel struct {
	Owner core.OwnerID `json:"owner"`
}

type PipelineRetry struct {
	Owner    core.OwnerID      `json:"owner"`
	Trigger  core.Trigger      `json:"trigger"`
	ChainPos int               `json:"chainPos"`
	Category core.ErrorCategory `json:"category,omitempty"`
}

type PipelineSkip struct {
	Owner  core.OwnerID `json:"owner"`
	Target string       `json:"target"`
}

// ActionAttempted records one dispatch of an action chain position,
// the sole driver of the action tracker's per-(trigger, chain_pos)
// attempt counts (spec.md §4.7.2).
type ActionAttempted struct {
	Owner    core.OwnerID    `json:"owner"`
	Trigger  core.Trigger    `json:"trigger"`
	ChainPos int             `json:"chainPos"`
	Action   core.ActionKind `json:"action"`
}

// GateResult reports a gate action's shell command outcome, per
// spec.md §4.7.1: exit code 0 resolves as on_done, any other exit
// opens a Gate-source Decision carrying Cmd and StderrTail as context.
type GateResult struct {
	Owner      core.OwnerID        `json:"owner"`
	Trigger    core.Trigger        `json:"trigger"`
	Category   core.ErrorCategory  `json:"category,omitempty"`
	ChainPos   int                 `json:"chainPos"`
	Cmd        string              `json:"cmd"`
	ExitCode   int                 `json:"exitCode"`
	StderrTail string              `json:"stderrTail,omitempty"`
}
