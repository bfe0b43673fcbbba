// Package runtime is the single async event dispatch loop of spec.md
// §4.6: await the next unprocessed WAL entry, call its handler, apply
// the returned effects, fold the original event into state, mark
// processed.
package runtime

import (
	"context"
	"log/slog"

	"github.com/opus-domini/sentinel/internal/bus"
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/scheduler"
	"github.com/opus-domini/sentinel/internal/state"
	"github.com/opus-domini/sentinel/internal/timeline"
)

// CrumbWriter keeps the crash-recovery breadcrumb sidecar for a job in
// sync with its materialized state (spec.md §6). Sync is called with
// the job's full record plus the agents it currently owns every time a
// job-affecting event is folded into state; Delete removes the
// sidecar once the job record itself is gone.
type CrumbWriter interface {
	Sync(job core.Job, agents []core.Agent) error
	Delete(jobID ids.JobID) error
}

// Handler computes the follow-up effects for an event, reading state
// under a short-lived lock. Handlers never mutate state directly
// (spec.md §4.6 "handler guarantees").
type Handler func(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error)

// Runtime owns the dispatch loop and the handler registry keyed by
// event kind, mirroring internal/api's route-table registration style
// generalized from HTTP methods to event kinds.
type Runtime struct {
	Store     *state.Store
	Wal       *eventlog.Wal
	Bus       *bus.Bus
	Reader    *bus.Reader
	Executor  *effects.Executor
	Scheduler *scheduler.Scheduler
	Log       *slog.Logger

	// Crumbs is optional; when set it is kept in sync with every
	// job-affecting event so a crash mid-run leaves enough on disk to
	// reconstruct orphaned jobs at next startup.
	Crumbs CrumbWriter

	// Timeline is optional; when set every folded event is mirrored
	// into it as a queryable activity record (spec.md §4.10's
	// GetJobLogs/GetAgentLogs), independent of the WAL's own durability.
	Timeline timeline.Repo

	handlers map[eventlog.Kind]Handler
}

// New wires a Runtime with the default handler registry.
func New(st *state.Store, wal *eventlog.Wal, b *bus.Bus, reader *bus.Reader, ex *effects.Executor, sch *scheduler.Scheduler, log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	rt := &Runtime{
		Store:     st,
		Wal:       wal,
		Bus:       b,
		Reader:    reader,
		Executor:  ex,
		Scheduler: sch,
		Log:       log,
		handlers:  map[eventlog.Kind]Handler{},
	}
	registerPipelineHandlers(rt)
	registerDecisionHandlers(rt)
	registerCronHandlers(rt)
	registerQueueHandlers(rt)
	registerAgentHandlers(rt)
	registerTimerHandlers(rt)
	return rt
}

// On registers (or replaces) the handler for kind.
func (rt *Runtime) On(kind eventlog.Kind, h Handler) {
	rt.handlers[kind] = h
}

// Run drives the dispatch loop until ctx is cancelled.
func (rt *Runtime) Run(ctx context.Context) {
	for {
		env, ok := rt.Reader.Next(ctx.Done())
		if !ok {
			return
		}
		if err := rt.process(ctx, env); err != nil {
			rt.Log.Error("dispatch failed", "kind", env.Kind, "seq", env.Seq, "err", err)
		}
	}
}

func (rt *Runtime) process(ctx context.Context, env eventlog.Envelope) error {
	var effs []effects.Effect
	if h, ok := rt.handlers[env.Kind]; ok {
		var err error
		effs, err = h(rt, env)
		if err != nil {
			return err
		}
	}
	for _, eff := range effs {
		if _, err := rt.Executor.Apply(ctx, eff); err != nil {
			rt.Log.Error("effect failed", "kind", eff.Kind, "err", err)
		}
	}
	// The crumb's job id is resolved before the fold: a SessionDeleted
	// finds its job only through the session record the fold removes.
	var (
		crumbJobID ids.JobID
		crumbOK    bool
	)
	if rt.Crumbs != nil {
		crumbJobID, crumbOK = rt.jobIDForCrumb(env)
	}
	if err := rt.Store.Apply(env); err != nil {
		return err
	}
	if rt.Crumbs != nil {
		rt.syncCrumb(env, crumbJobID, crumbOK)
	}
	rt.recordTimeline(ctx, env)
	rt.Wal.MarkProcessed(env.Seq)
	return nil
}

// jobCrumbKinds is the set of event kinds that touch a job's crumb
// sidecar (id, step, workspace, current agent sessions): every other
// kind is irrelevant to breadcrumb reconstruction and skipped without
// taking the store lock.
var jobCrumbKinds = map[eventlog.Kind]bool{
	eventlog.KindJobCreated:     true,
	eventlog.KindJobAdvanced:    true,
	eventlog.KindJobDeleted:     true,
	eventlog.KindStepStarted:    true,
	eventlog.KindStepCompleted:  true,
	eventlog.KindStepFailed:     true,
	eventlog.KindSessionCreated: true,
	eventlog.KindSessionDeleted: true,
}

func (rt *Runtime) syncCrumb(env eventlog.Envelope, jobID ids.JobID, ok bool) {
	if !jobCrumbKinds[env.Kind] {
		return
	}

	if env.Kind == eventlog.KindJobDeleted {
		var payload eventlog.JobDeleted
		if err := env.Decode(&payload); err != nil {
			rt.Log.Warn("decode JobDeleted for crumb", "err", err)
			return
		}
		if err := rt.Crumbs.Delete(payload.JobID); err != nil {
			rt.Log.Warn("delete crumb", "job", payload.JobID, "err", err)
		}
		return
	}

	if !ok {
		return
	}

	var (
		job       core.Job
		agents    []core.Agent
		jobExists bool
	)
	rt.Store.Read(func(st *state.State) {
		job, jobExists = st.Jobs[jobID]
		if jobExists {
			agents = st.AgentsOwnedBy(job.Owner())
		}
	})
	if !jobExists {
		return
	}
	if err := rt.Crumbs.Sync(job, agents); err != nil {
		rt.Log.Warn("sync crumb", "job", jobID, "err", err)
	}
}

// jobIDForCrumb extracts the job id a crumb-relevant event refers to.
// SessionCreated/SessionDeleted only carry an OwnerID, which may name
// an AgentRun instead of a Job; those are not job-breadcrumbed.
func (rt *Runtime) jobIDForCrumb(env eventlog.Envelope) (ids.JobID, bool) {
	switch env.Kind {
	case eventlog.KindJobCreated:
		var p eventlog.JobCreated
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		return p.JobID, true
	case eventlog.KindJobAdvanced:
		var p eventlog.JobAdvanced
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		return p.JobID, true
	case eventlog.KindStepStarted:
		var p eventlog.StepStarted
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		return p.JobID, true
	case eventlog.KindStepCompleted:
		var p eventlog.StepCompleted
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		return p.JobID, true
	case eventlog.KindStepFailed:
		var p eventlog.StepFailed
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		return p.JobID, true
	case eventlog.KindSessionCreated:
		var p eventlog.SessionCreated
		if err := env.Decode(&p); err != nil || !p.Owner.IsJob() {
			return "", false
		}
		return p.Owner.JobID, true
	case eventlog.KindSessionDeleted:
		// SessionDeleted carries only the session id; the owning job,
		// if any, is looked up from the still-present session record
		// before the event is folded into state removes it.
		var p eventlog.SessionDeleted
		if err := env.Decode(&p); err != nil {
			return "", false
		}
		var (
			jobID ids.JobID
			found bool
		)
		rt.Store.Read(func(st *state.State) {
			sess, ok := st.Sessions[p.SessionID]
			if ok && sess.Owner.IsJob() {
				jobID, found = sess.Owner.JobID, true
			}
		})
		return jobID, found
	default:
		return "", false
	}
}

