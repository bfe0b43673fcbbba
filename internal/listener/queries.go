package listener

import (
	"context"
	"sort"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/state"
	"github.com/opus-domini/sentinel/internal/timeline"
)

// Queries answers every read-only Request against the materialized
// state, plus the orphan registry and activity timeline that live
// outside it (spec.md §4.10's query family).
type Queries struct {
	store    *state.Store
	orphans  *OrphanRegistry
	timeline timeline.Repo
}

// NewQueries returns a Queries reading from store, with orphan lookups
// served by registry and log tailing served by tl. tl may be nil, in
// which case GetJobLogs/GetAgentLogs report an error rather than panic.
func NewQueries(store *state.Store, registry *OrphanRegistry, tl timeline.Repo) *Queries {
	return &Queries{store: store, orphans: registry, timeline: tl}
}

func (q *Queries) ListJobs(req Request) Response {
	var out []core.Job
	q.store.Read(func(st *state.State) {
		for _, j := range st.Jobs {
			if req.Namespace != "" && j.Namespace != core.Namespace(req.Namespace) {
				continue
			}
			out = append(out, j)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMS < out[j].CreatedAtMS })
	return ok(out)
}

func (q *Queries) GetJob(req Request) Response {
	var (
		job   core.Job
		found bool
	)
	q.store.Read(func(st *state.State) {
		job, found = st.Jobs[req.JobID]
	})
	if !found {
		return errorMsg("job not found: " + string(req.JobID))
	}
	return ok(job)
}

func (q *Queries) ListSessions(req Request) Response {
	var out []core.Session
	q.store.Read(func(st *state.State) {
		for _, s := range st.Sessions {
			out = append(out, s)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMS < out[j].CreatedAtMS })
	return ok(out)
}

func (q *Queries) ListWorkers(req Request) Response {
	var out []core.Worker
	q.store.Read(func(st *state.State) {
		for _, w := range st.Workers {
			if req.Namespace != "" && w.Namespace != core.Namespace(req.Namespace) {
				continue
			}
			out = append(out, w)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return ok(out)
}

func (q *Queries) ListQueues(req Request) Response {
	var out []string
	q.store.Read(func(st *state.State) {
		for name := range st.Queues {
			out = append(out, string(name))
		}
	})
	sort.Strings(out)
	return ok(out)
}

func (q *Queries) ListQueueItems(req Request) Response {
	var out []core.QueueItem
	q.store.Read(func(st *state.State) {
		out = st.QueueItems(ids.QueueName(req.QueueName))
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PushedAtMS < out[j].PushedAtMS })
	return ok(out)
}

func (q *Queries) ListAgents(req Request) Response {
	var out []core.Agent
	q.store.Read(func(st *state.State) {
		for _, a := range st.Agents {
			out = append(out, a)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMS < out[j].CreatedAtMS })
	return ok(out)
}

func (q *Queries) ListCrons(req Request) Response {
	var out []core.Cron
	q.store.Read(func(st *state.State) {
		for _, c := range st.Crons {
			if req.Namespace != "" && c.Namespace != core.Namespace(req.Namespace) {
				continue
			}
			out = append(out, c)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return ok(out)
}

func (q *Queries) ListDecisions(req Request) Response {
	var out []core.Decision
	q.store.Read(func(st *state.State) {
		for _, d := range st.Decisions {
			out = append(out, d)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMS < out[j].CreatedAtMS })
	return ok(out)
}

func (q *Queries) GetDecision(req Request) Response {
	var (
		d     core.Decision
		found bool
	)
	q.store.Read(func(st *state.State) {
		d, found = st.Decisions[req.DecisionID]
	})
	if !found {
		return errorMsg("decision not found: " + string(req.DecisionID))
	}
	return ok(d)
}

func (q *Queries) StatusOverview(req Request) Response {
	var overview statusOverview
	q.store.Read(func(st *state.State) {
		overview.Jobs = len(st.Jobs)
		for _, j := range st.Jobs {
			if !j.IsTerminal() {
				overview.JobsLive++
			}
		}
		overview.Agents = len(st.Agents)
		overview.Workers = len(st.Workers)
		overview.Crons = len(st.Crons)
		overview.Decisions = len(st.Decisions)
	})
	overview.Orphans = len(q.orphans.List())
	return ok(overview)
}

// ListProjects returns the distinct namespaces with at least one job,
// worker, or cron, per spec.md §6's multi-project status view.
func (q *Queries) ListProjects(req Request) Response {
	seen := map[string]bool{}
	q.store.Read(func(st *state.State) {
		for _, j := range st.Jobs {
			seen[string(j.Namespace)] = true
		}
		for _, w := range st.Workers {
			seen[string(w.Namespace)] = true
		}
		for _, c := range st.Crons {
			seen[string(c.Namespace)] = true
		}
	})
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return ok(out)
}

func (q *Queries) ListOrphans(req Request) Response {
	return ok(q.orphans.List())
}

// SessionPeek reports the session id an agent is attached to. It
// returns no terminal content: the listener itself never shells out to
// tmux, so this query returns only the session's engine-known
// association.
func (q *Queries) SessionPeek(req Request) Response {
	if req.AgentID == "" {
		return errorMsg("sessionPeek requires an agentId")
	}
	var (
		agent core.Agent
		found bool
	)
	q.store.Read(func(st *state.State) {
		agent, found = st.Agents[req.AgentID]
	})
	if !found {
		return errorMsg("unknown agent: " + string(req.AgentID))
	}
	if agent.SessionID == nil {
		return errorMsg("agent has no active session: " + string(req.AgentID))
	}
	return ok(map[string]string{"sessionId": string(*agent.SessionID)})
}

// GetJobLogs tails the activity timeline for one job, newest first,
// per spec.md §4.10's log-tailing query family.
func (q *Queries) GetJobLogs(ctx context.Context, req Request) Response {
	if q.timeline == nil {
		return errorMsg("activity timeline is not available")
	}
	if req.JobID == "" {
		return errorMsg("getJobLogs requires a jobId")
	}
	result, err := q.timeline.SearchTimelineEvents(ctx, timeline.Query{
		Resource: "job:" + string(req.JobID),
		Limit:    req.Lines,
	})
	if err != nil {
		return errorResponse(err)
	}
	return ok(result)
}

// GetAgentLogs tails the activity timeline for one agent.
func (q *Queries) GetAgentLogs(ctx context.Context, req Request) Response {
	if q.timeline == nil {
		return errorMsg("activity timeline is not available")
	}
	if req.AgentID == "" {
		return errorMsg("getAgentLogs requires an agentId")
	}
	result, err := q.timeline.SearchTimelineEvents(ctx, timeline.Query{
		Resource: "agent:" + string(req.AgentID),
		Limit:    req.Lines,
	})
	if err != nil {
		return errorResponse(err)
	}
	return ok(result)
}

func (q *Queries) workerExists(name ids.WorkerName) bool {
	var found bool
	q.store.Read(func(st *state.State) {
		_, found = st.Workers[name]
	})
	return found
}

func (q *Queries) cronExists(name ids.CronName) bool {
	var found bool
	q.store.Read(func(st *state.State) {
		_, found = st.Crons[name]
	})
	return found
}

// workerNamesExcept returns every bare worker name outside namespace
// (for same-namespace suggestion scoring) and a map from bare name to
// the namespace it actually lives in, for cross-project suggestions
// (spec.md §4.10).
func (q *Queries) workerNamesExcept(namespace string) (names []string, crossNamespace map[string]string) {
	crossNamespace = map[string]string{}
	q.store.Read(func(st *state.State) {
		for key := range st.Workers {
			ns, bare := ids.SplitNamespaced(string(key))
			if ns == namespace {
				names = append(names, bare)
				continue
			}
			if _, exists := crossNamespace[bare]; !exists {
				crossNamespace[bare] = ns
			}
		}
	})
	return names, crossNamespace
}

// ownerForAgent resolves the OwnerID an agent belongs to, used by
// session send/kill so they can translate into PipelineResume/Cancel
// events keyed by owner rather than agent id.
func (q *Queries) ownerForAgent(id ids.AgentID) (core.OwnerID, bool) {
	var (
		owner core.OwnerID
		found bool
	)
	q.store.Read(func(st *state.State) {
		a, ok := st.Agents[id]
		if !ok {
			return
		}
		owner, found = a.Owner, true
	})
	return owner, found
}
