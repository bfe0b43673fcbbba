package listener

import (
	"encoding/json"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
)

// RequestType discriminates Request.
type RequestType string

const (
	ReqRunCommand    RequestType = "RunCommand"
	ReqEmit          RequestType = "Emit"
	ReqListJobs      RequestType = "ListJobs"
	ReqGetJob        RequestType = "GetJob"
	ReqListSessions  RequestType = "ListSessions"
	ReqListWorkers   RequestType = "ListWorkers"
	ReqListQueues    RequestType = "ListQueues"
	ReqListQueueItems RequestType = "ListQueueItems"
	ReqListAgents    RequestType = "ListAgents"
	ReqListCrons     RequestType = "ListCrons"
	ReqListDecisions RequestType = "ListDecisions"
	ReqGetDecision   RequestType = "GetDecision"
	ReqStatusOverview RequestType = "StatusOverview"
	ReqListOrphans   RequestType = "ListOrphans"
	ReqDismissOrphan RequestType = "DismissOrphan"
	ReqWorkerStart   RequestType = "WorkerStart"
	ReqWorkerStop    RequestType = "WorkerStop"
	ReqCronStart     RequestType = "CronStart"
	ReqCronStop      RequestType = "CronStop"
	ReqResolveDecision RequestType = "ResolveDecision"
	ReqSessionSend   RequestType = "SessionSend"
	ReqSessionKill   RequestType = "SessionKill"
	ReqSessionPeek   RequestType = "SessionPeek"
	ReqShutdown      RequestType = "Shutdown"
	ReqGetJobLogs    RequestType = "GetJobLogs"
	ReqGetAgentLogs  RequestType = "GetAgentLogs"
)

// Request is the wire envelope for every client message. Only the
// fields relevant to Type are populated; unused fields are the zero
// value and ignored by the handler.
type Request struct {
	Type RequestType `json:"type"`

	// RunCommand, per spec.md §4.10.
	ProjectRoot string            `json:"projectRoot,omitempty"`
	InvokeDir   string            `json:"invokeDir,omitempty"`
	Namespace   string            `json:"namespace,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	NamedArgs   map[string]string `json:"namedArgs,omitempty"`

	// Emit: an agent hook reporting idle/prompt/done state.
	EventKind string          `json:"eventKind,omitempty"`
	EventData json.RawMessage `json:"eventData,omitempty"`

	// Entity-scoped queries/mutations.
	JobID      ids.JobID      `json:"jobId,omitempty"`
	AgentID    ids.AgentID    `json:"agentId,omitempty"`
	WorkerName string         `json:"workerName,omitempty"`
	CronName   string         `json:"cronName,omitempty"`
	QueueName  string         `json:"queueName,omitempty"`
	DecisionID ids.DecisionID `json:"decisionId,omitempty"`

	// ResolveDecision.
	Chosen  *int   `json:"chosen,omitempty"`
	Message string `json:"message,omitempty"`

	// SessionSend.
	Input string `json:"input,omitempty"`

	// GetJobLogs/GetAgentLogs tailing.
	Lines int `json:"lines,omitempty"`
}

// Response is the wire envelope for every reply. Exactly one of Error
// or Data is meaningful: Error != "" marks a Response::Error, matching
// spec.md §7's typed Ok/Error contract.
type Response struct {
	OK          bool            `json:"ok"`
	Error       string          `json:"error,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func ok(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: true, Data: data}
}

func errorResponse(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

func errorMsg(msg string) Response {
	return Response{OK: false, Error: msg}
}

func suggestError(msg string, suggestions []string) Response {
	return Response{OK: false, Error: msg, Suggestions: suggestions}
}

// statusOverview is StatusOverview's response payload (original_source
// grounding: crates/daemon/src/listener/protocol_status.rs).
type statusOverview struct {
	Jobs      int `json:"jobs"`
	JobsLive  int `json:"jobsLive"`
	Agents    int `json:"agents"`
	Workers   int `json:"workers"`
	Crons     int `json:"crons"`
	Decisions int `json:"decisions"`
	Orphans   int `json:"orphans"`
}

// jobView flattens core.Job for the wire, same shape as materialized
// state since Job is already JSON-tagged for exactly this purpose.
type jobView = core.Job
