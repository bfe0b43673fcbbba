package core

import (
	"encoding/json"
	"fmt"

	"github.com/opus-domini/sentinel/internal/core/ids"
)

// OwnerKind discriminates the OwnerID tagged union.
type OwnerKind string

const (
	OwnerKindJob       OwnerKind = "job"
	OwnerKindAgentRun  OwnerKind = "agent_run"
)

// OwnerID is a tagged union identifying whatever owns an agent, session,
// or decision: either a Job or a standalone AgentRun. Handlers dispatch
// on Kind rather than using a Go interface, since the set is closed and
// both payloads are plain ids.
type OwnerID struct {
	Kind       OwnerKind
	JobID      ids.JobID
	AgentRunID ids.AgentRunID
}

// OwnerJob builds a Job-kind OwnerID.
func OwnerJob(id ids.JobID) OwnerID {
	return OwnerID{Kind: OwnerKindJob, JobID: id}
}

// OwnerAgentRun builds an AgentRun-kind OwnerID.
func OwnerAgentRun(id ids.AgentRunID) OwnerID {
	return OwnerID{Kind: OwnerKindAgentRun, AgentRunID: id}
}

// IsJob reports whether the owner is a Job.
func (o OwnerID) IsJob() bool { return o.Kind == OwnerKindJob }

// IsAgentRun reports whether the owner is a standalone AgentRun.
func (o OwnerID) IsAgentRun() bool { return o.Kind == OwnerKindAgentRun }

func (o OwnerID) String() string {
	switch o.Kind {
	case OwnerKindJob:
		return "job:" + o.JobID.String()
	case OwnerKindAgentRun:
		return "agent_run:" + o.AgentRunID.String()
	default:
		return "owner:unknown"
	}
}

type ownerWire struct {
	Kind       OwnerKind  `json:"kind"`
	JobID      ids.JobID  `json:"jobId,omitempty"`
	AgentRunID ids.AgentRunID `json:"agentRunId,omitempty"`
}

// MarshalJSON encodes OwnerID as {"kind": "job"|"agent_run", "jobId"|"agentRunId": "..."}.
func (o OwnerID) MarshalJSON() ([]byte, error) {
	return json.Marshal(ownerWire{Kind: o.Kind, JobID: o.JobID, AgentRunID: o.AgentRunID})
}

// UnmarshalJSON decodes OwnerID from the wire representation.
func (o *OwnerID) UnmarshalJSON(data []byte) error {
	var w ownerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode owner id: %w", err)
	}
	*o = OwnerID{Kind: w.Kind, JobID: w.JobID, AgentRunID: w.AgentRunID}
	return nil
}
