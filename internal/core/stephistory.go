package core

import "github.com/opus-domini/sentinel/internal/core/ids"

// StepOutcome is the terminal (or in-progress) disposition of a step
// history record.
type StepOutcome string

const (
	StepOutcomeRunning  StepOutcome = "running"
	StepOutcomeCompleted StepOutcome = "completed"
	StepOutcomeFailed   StepOutcome = "failed"
	StepOutcomeWaiting  StepOutcome = "waiting"
)

// StepRecord is one entry in a job's step history, per spec.md §3.
type StepRecord struct {
	StepName     string      `json:"stepName"`
	StartedAtMS  int64       `json:"startedAtMs"`
	FinishedAtMS *int64      `json:"finishedAtMs,omitempty"`
	Outcome      StepOutcome `json:"outcome"`
	Reason       string      `json:"reason,omitempty"`
	AgentID      *ids.AgentID `json:"agentId,omitempty"`
	AgentName    string      `json:"agentName,omitempty"`
}

// StepHistory is the ordered, append-only sequence of step records for a
// job. Invariants (spec.md §3, §8 property 3):
//   - the last record's StepName equals the job's current step
//   - every non-last record has FinishedAtMS set
//   - timestamps are non-decreasing
type StepHistory []StepRecord

// Last returns the most recent record, or nil if the history is empty.
func (h StepHistory) Last() *StepRecord {
	if len(h) == 0 {
		return nil
	}
	return &h[len(h)-1]
}

// Enter closes the current last record (if any, and if not already
// closed) as Completed with startedAtMS as its finish time, then appends a new
// Running record for stepName starting at startedAtMS. Re-entering the
// same step with the history already pointing at it and still Running
// (i.e. replay of an already-applied advance) is a no-op, preserving
// idempotent replay (spec.md §8 property 2).
func (h StepHistory) Enter(stepName string, startedAtMS int64) StepHistory {
	if last := h.Last(); last != nil && last.StepName == stepName && last.Outcome == StepOutcomeRunning && last.FinishedAtMS == nil {
		return h
	}
	h = h.closeLast(startedAtMS, StepOutcomeCompleted, "")
	return append(h, StepRecord{
		StepName:    stepName,
		StartedAtMS: startedAtMS,
		Outcome:     StepOutcomeRunning,
	})
}

// CloseCurrent sets the outcome/reason/finish time on the last (open)
// record without appending a new one, used for Completed/Failed/Waiting
// transitions that do not advance to another step.
func (h StepHistory) CloseCurrent(finishedAtMS int64, outcome StepOutcome, reason string) StepHistory {
	return h.closeLast(finishedAtMS, outcome, reason)
}

// ReopenCurrent clears a Waiting/Failed outcome on the last record back
// to Running, used when an agent resumes or a decision is resolved back
// into motion without creating a new step entry.
func (h StepHistory) ReopenCurrent() StepHistory {
	if len(h) == 0 {
		return h
	}
	last := &h[len(h)-1]
	last.Outcome = StepOutcomeRunning
	last.FinishedAtMS = nil
	last.Reason = ""
	return h
}

// SetAgent attaches the agent id/name to the last record, used when a
// step's agent starts.
func (h StepHistory) SetAgent(agentID ids.AgentID, agentName string) StepHistory {
	if len(h) == 0 {
		return h
	}
	last := &h[len(h)-1]
	last.AgentID = &agentID
	last.AgentName = agentName
	return h
}

func (h StepHistory) closeLast(finishedAtMS int64, outcome StepOutcome, reason string) StepHistory {
	if len(h) == 0 {
		return h
	}
	last := &h[len(h)-1]
	if last.FinishedAtMS != nil {
		// Already closed: idempotent replay, do nothing.
		return h
	}
	ts := finishedAtMS
	last.FinishedAtMS = &ts
	last.Outcome = outcome
	last.Reason = reason
	return h
}
