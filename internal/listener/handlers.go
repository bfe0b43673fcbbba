package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/state"
)

// knownCommandNames is the combined set of top-level request types and
// RunCommand sub-commands, used to compute near-match suggestions for
// an unrecognized one.
var knownCommandNames = []string{
	"run", "agent-run", "worker-start", "worker-stop", "cron-start", "cron-stop",
	string(ReqEmit), string(ReqListJobs), string(ReqGetJob), string(ReqListSessions),
	string(ReqListWorkers), string(ReqListQueues), string(ReqListQueueItems),
	string(ReqListAgents), string(ReqListCrons), string(ReqListDecisions),
	string(ReqGetDecision), string(ReqStatusOverview), string(ReqListOrphans),
	string(ReqDismissOrphan), string(ReqWorkerStart), string(ReqWorkerStop),
	string(ReqCronStart), string(ReqCronStop), string(ReqResolveDecision),
	string(ReqSessionSend), string(ReqSessionKill), string(ReqSessionPeek),
	string(ReqShutdown), string(ReqGetJobLogs), string(ReqGetAgentLogs),
}

// registerHandlers wires every Request.Type to its handler, mirroring
// the route-table registration style the engine's own dispatch table
// uses (internal/runtime.New's register*Handlers calls).
func registerHandlers(s *Server) {
	s.on(ReqRunCommand, handleRunCommand)
	s.on(ReqEmit, handleEmit)

	s.on(ReqListJobs, queryHandler((*Queries).ListJobs))
	s.on(ReqGetJob, queryHandler((*Queries).GetJob))
	s.on(ReqListSessions, queryHandler((*Queries).ListSessions))
	s.on(ReqListWorkers, queryHandler((*Queries).ListWorkers))
	s.on(ReqListQueues, queryHandler((*Queries).ListQueues))
	s.on(ReqListQueueItems, queryHandler((*Queries).ListQueueItems))
	s.on(ReqListAgents, queryHandler((*Queries).ListAgents))
	s.on(ReqListCrons, queryHandler((*Queries).ListCrons))
	s.on(ReqListDecisions, queryHandler((*Queries).ListDecisions))
	s.on(ReqGetDecision, queryHandler((*Queries).GetDecision))
	s.on(ReqStatusOverview, queryHandler((*Queries).StatusOverview))
	s.on(ReqListOrphans, queryHandler((*Queries).ListOrphans))

	s.on(ReqDismissOrphan, handleDismissOrphan)
	s.on(ReqWorkerStart, handleWorkerStart)
	s.on(ReqWorkerStop, handleWorkerStop)
	s.on(ReqCronStart, handleCronStart)
	s.on(ReqCronStop, handleCronStop)
	s.on(ReqResolveDecision, handleResolveDecision)
	s.on(ReqSessionSend, handleSessionSend)
	s.on(ReqSessionKill, handleSessionKill)
	s.on(ReqSessionPeek, queryHandler((*Queries).SessionPeek))
	s.on(ReqShutdown, handleShutdown)

	s.on(ReqGetJobLogs, contextQueryHandler((*Queries).GetJobLogs))
	s.on(ReqGetAgentLogs, contextQueryHandler((*Queries).GetAgentLogs))
}

// queryHandler adapts a read-only Queries method (which never appends
// to the WAL) into a handlerFunc.
func queryHandler(fn func(q *Queries, req Request) Response) handlerFunc {
	return func(_ context.Context, s *Server, req Request) Response {
		return fn(s.Queries, req)
	}
}

// contextQueryHandler is queryHandler for the query methods that need a
// context to bound their timeline database round-trip.
func contextQueryHandler(fn func(q *Queries, ctx context.Context, req Request) Response) handlerFunc {
	return func(ctx context.Context, s *Server, req Request) Response {
		return fn(s.Queries, ctx, req)
	}
}

// handleRunCommand dispatches spec.md §4.10's generic RunCommand
// envelope by Command name, for the handful of command verbs that
// start or stop a long-lived engine entity rather than merely query
// it.
func handleRunCommand(ctx context.Context, s *Server, req Request) Response {
	switch req.Command {
	case "run":
		return handleRunJob(s, req)
	case "agent-run":
		return handleRunAgent(s, req)
	case "worker-start":
		return handleWorkerStart(ctx, s, req)
	case "worker-stop":
		return handleWorkerStop(ctx, s, req)
	case "cron-start":
		return handleCronStart(ctx, s, req)
	case "cron-stop":
		return handleCronStop(ctx, s, req)
	default:
		return unknownCommandResponse(req)
	}
}

// handleRunJob starts a pipeline job by name, resolving it against the
// runbook already cached under req.NamedArgs["runbook_hash"] (spec.md
// §6's runbook cache).
func handleRunJob(s *Server, req Request) Response {
	if len(req.Args) == 0 {
		return errorMsg("run requires a job name argument")
	}
	jobName := req.Args[0]
	hash := req.NamedArgs["runbook_hash"]

	var (
		jd    core.JobDef
		found bool
	)
	s.Queries.store.Read(func(st *state.State) {
		rb, ok := st.Runbooks[hash]
		if !ok {
			return
		}
		jd, found = rb.Jobs[jobName]
	})
	if !found {
		similar := findSimilar(jobName, jobNamesForHash(s, hash))
		msg := fmt.Sprintf("unknown job %q", jobName)
		if len(similar) > 0 {
			msg += formatSuggestion(similar)
		}
		return suggestError(msg, similar)
	}

	vars := core.Vars{}.WithScope(core.ScopeArgs, req.NamedArgs)

	jobID := ids.NewJobID()
	if err := s.Append(eventlog.KindJobCreated, eventlog.JobCreated{
		JobID:       jobID,
		Name:        jobName,
		Kind:        "pipeline",
		Namespace:   core.Namespace(req.Namespace),
		Cwd:         req.ProjectRoot,
		RunbookHash: hash,
		Vars:        vars,
		EntryStep:   jd.EntryStep,
	}); err != nil {
		return errorResponse(err)
	}
	return ok(map[string]ids.JobID{"jobId": jobID})
}

func jobNamesForHash(s *Server, hash string) []string {
	var names []string
	s.Queries.store.Read(func(st *state.State) {
		rb, ok := st.Runbooks[hash]
		if !ok {
			return
		}
		for name := range rb.Jobs {
			names = append(names, name)
		}
	})
	return names
}

// handleRunAgent starts a standalone agent invocation (spec.md §3's
// AgentRun), outside any job's step graph.
func handleRunAgent(s *Server, req Request) Response {
	if len(req.Args) == 0 {
		return errorMsg("agent-run requires an agent name argument")
	}
	agentName := req.Args[0]
	hash := req.NamedArgs["runbook_hash"]

	var (
		ad    core.AgentDef
		found bool
	)
	s.Queries.store.Read(func(st *state.State) {
		rb, ok := st.Runbooks[hash]
		if !ok {
			return
		}
		ad, found = rb.Agents[agentName]
	})
	if !found {
		similar := findSimilar(agentName, agentNamesForHash(s, hash))
		msg := fmt.Sprintf("unknown agent %q", agentName)
		if len(similar) > 0 {
			msg += formatSuggestion(similar)
		}
		return suggestError(msg, similar)
	}

	vars := core.Vars{}.WithScope(core.ScopeArgs, req.NamedArgs)

	runID := ids.NewAgentRunID()
	agentID := ids.NewAgentID()
	if err := s.Append(eventlog.KindAgentRunStarted, eventlog.AgentRunStarted{
		AgentRunID:  runID,
		Name:        ad.Name,
		Namespace:   core.Namespace(req.Namespace),
		Cwd:         req.ProjectRoot,
		RunbookHash: hash,
		Vars:        vars,
		AgentID:     agentID,
	}); err != nil {
		return errorResponse(err)
	}
	return ok(map[string]ids.AgentRunID{"agentRunId": runID})
}

func agentNamesForHash(s *Server, hash string) []string {
	var names []string
	s.Queries.store.Read(func(st *state.State) {
		rb, ok := st.Runbooks[hash]
		if !ok {
			return
		}
		for name := range rb.Agents {
			names = append(names, name)
		}
	})
	return names
}

// handleEmit folds an agent hook's reported signal into the WAL as an
// AgentStateObserved event (spec.md §4.10's "Emit{event}" for agent
// hooks to signal idle/prompt/done).
func handleEmit(_ context.Context, s *Server, req Request) Response {
	if req.AgentID == "" {
		return errorMsg("emit requires an agentId")
	}
	var payload eventlog.AgentStateObserved
	if len(req.EventData) > 0 {
		if err := json.Unmarshal(req.EventData, &payload); err != nil {
			return errorResponse(err)
		}
	}
	payload.AgentID = req.AgentID
	if err := s.Append(eventlog.KindAgentStateObserved, payload); err != nil {
		return errorResponse(err)
	}
	return ok(nil)
}

func handleWorkerStart(_ context.Context, s *Server, req Request) Response {
	name := firstNonEmpty(req.WorkerName, argOrEmpty(req.Args, 0))
	if name == "" {
		return errorMsg("worker-start requires a name")
	}
	hash := req.NamedArgs["runbook_hash"]

	var (
		wd    core.WorkerDef
		found bool
	)
	s.Queries.store.Read(func(st *state.State) {
		rb, ok := st.Runbooks[hash]
		if !ok {
			return
		}
		wd, found = rb.Workers[name]
	})
	if !found {
		return errorMsg(fmt.Sprintf("unknown worker %q", name))
	}

	key := ids.Namespaced(req.Namespace, name)
	if err := s.Append(eventlog.KindWorkerStarted, eventlog.WorkerStarted{
		Name:        ids.WorkerName(key),
		Namespace:   core.Namespace(req.Namespace),
		ProjectRoot: req.ProjectRoot,
		RunbookHash: hash,
		Queue:       ids.QueueName(ids.Namespaced(req.Namespace, wd.Queue)),
		Handler:     wd.Handler,
		Concurrency: wd.Concurrency,
	}); err != nil {
		return errorResponse(err)
	}
	return ok(nil)
}

func handleWorkerStop(_ context.Context, s *Server, req Request) Response {
	name := firstNonEmpty(req.WorkerName, argOrEmpty(req.Args, 0))
	if name == "" {
		return errorMsg("worker-stop requires a name")
	}
	key := ids.WorkerName(ids.Namespaced(req.Namespace, name))
	if !s.Queries.workerExists(key) {
		return workerNotFoundResponse(s, req, name)
	}
	if err := s.Append(eventlog.KindWorkerStopped, eventlog.WorkerStopped{Name: key}); err != nil {
		return errorResponse(err)
	}
	return ok(nil)
}

func workerNotFoundResponse(s *Server, req Request, name string) Response {
	names, crossNamespace := s.Queries.workerNamesExcept(req.Namespace)
	msg := fmt.Sprintf("unknown worker %q", name)
	if ns, found := crossNamespace[name]; found {
		msg += formatCrossProjectSuggestion("worker stop", name, ns)
		return suggestError(msg, []string{name})
	}
	similar := findSimilar(name, names)
	if len(similar) > 0 {
		msg += formatSuggestion(similar)
	}
	return suggestError(msg, similar)
}

func handleCronStart(_ context.Context, s *Server, req Request) Response {
	name := firstNonEmpty(req.CronName, argOrEmpty(req.Args, 0))
	if name == "" {
		return errorMsg("cron-start requires a name")
	}
	hash := req.NamedArgs["runbook_hash"]

	var (
		cd    core.CronDef
		found bool
	)
	s.Queries.store.Read(func(st *state.State) {
		rb, ok := st.Runbooks[hash]
		if !ok {
			return
		}
		cd, found = rb.Crons[name]
	})
	if !found {
		return errorMsg(fmt.Sprintf("unknown cron %q", name))
	}

	key := ids.Namespaced(req.Namespace, name)
	if err := s.Append(eventlog.KindCronStarted, eventlog.CronStarted{
		Name:        ids.CronName(key),
		Namespace:   core.Namespace(req.Namespace),
		Interval:    cd.Interval,
		Target:      cd.Target,
		RunbookHash: hash,
		ProjectRoot: req.ProjectRoot,
		Concurrency: cd.Concurrency,
	}); err != nil {
		return errorResponse(err)
	}
	return ok(nil)
}

func handleCronStop(_ context.Context, s *Server, req Request) Response {
	name := firstNonEmpty(req.CronName, argOrEmpty(req.Args, 0))
	if name == "" {
		return errorMsg("cron-stop requires a name")
	}
	key := ids.CronName(ids.Namespaced(req.Namespace, name))
	if !s.Queries.cronExists(key) {
		return errorMsg(fmt.Sprintf("unknown cron %q", name))
	}
	if err := s.Append(eventlog.KindCronStopped, eventlog.CronStopped{Name: key}); err != nil {
		return errorResponse(err)
	}
	return ok(nil)
}

func handleResolveDecision(_ context.Context, s *Server, req Request) Response {
	if req.DecisionID == "" {
		return errorMsg("resolveDecision requires a decisionId")
	}
	if err := s.Append(eventlog.KindDecisionResolved, eventlog.DecisionResolved{
		DecisionID: req.DecisionID,
		Chosen:     req.Chosen,
		Message:    req.Message,
	}); err != nil {
		return errorResponse(err)
	}
	return ok(nil)
}

// handleSessionSend models an operator-initiated message to a running
// agent as the same PipelineResume an agent's own idle nudge would
// produce, so it flows through the one path that is allowed to wake a
// waiting step (spec.md §4.7.3).
func handleSessionSend(_ context.Context, s *Server, req Request) Response {
	if req.AgentID == "" {
		return errorMsg("sessionSend requires an agentId")
	}
	owner, ok := s.Queries.ownerForAgent(req.AgentID)
	if !ok {
		return errorMsg(fmt.Sprintf("unknown agent %q", req.AgentID))
	}
	if err := s.Append(eventlog.KindPipelineResume, eventlog.PipelineResume{Owner: owner, Message: req.Input}); err != nil {
		return errorResponse(err)
	}
	return ok(nil)
}

func handleSessionKill(_ context.Context, s *Server, req Request) Response {
	if req.AgentID == "" {
		return errorMsg("sessionKill requires an agentId")
	}
	owner, ok := s.Queries.ownerForAgent(req.AgentID)
	if !ok {
		return errorMsg(fmt.Sprintf("unknown agent %q", req.AgentID))
	}
	if err := s.Append(eventlog.KindPipelineCancel, eventlog.PipelineCancel{Owner: owner}); err != nil {
		return errorResponse(err)
	}
	return ok(nil)
}

func handleDismissOrphan(_ context.Context, s *Server, req Request) Response {
	id := firstNonEmpty(string(req.JobID), argOrEmpty(req.Args, 0))
	if id == "" {
		return errorMsg("dismissOrphan requires a jobId")
	}
	if !s.Queries.orphans.Dismiss(id) {
		return errorMsg(fmt.Sprintf("orphan not found: %s", id))
	}
	return ok(nil)
}

func handleShutdown(_ context.Context, s *Server, _ Request) Response {
	if s.Shutdown != nil {
		s.Shutdown()
	}
	return ok(nil)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func argOrEmpty(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
