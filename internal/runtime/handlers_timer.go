package runtime

import (
	"strings"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/scheduler"
	"github.com/opus-domini/sentinel/internal/state"
)

func registerTimerHandlers(rt *Runtime) {
	rt.On(eventlog.KindTimerStart, handleTimerFired)
}

// handleTimerFired routes a fired timer id to its family's follow-up
// effects, per the six timer families of spec.md §4.4. A queue-poll
// fire emits a WorkerPollComplete with no items: a persisted queue then
// dispatches its pending backlog, while an external queue's list_cmd is
// not run here, so an external poll dispatches nothing.
func handleTimerFired(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.TimerStart
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	switch {
	case scheduler.IsLiveness(e.TimerID):
		return handleLivenessFired(rt, e.TimerID)
	case scheduler.IsExitDeferred(e.TimerID):
		return handleExitDeferredFired(rt, e.TimerID)
	case scheduler.IsCooldown(e.TimerID):
		return handleCooldownFired(rt, e.TimerID)
	case scheduler.IsQueueRetry(e.TimerID):
		return handleQueueRetryFired(rt, e.TimerID)
	case scheduler.IsCron(e.TimerID):
		return handleCronFireTimer(rt, e.TimerID)
	case strings.HasPrefix(e.TimerID, "queue-poll:"):
		name := ids.WorkerName(strings.TrimPrefix(e.TimerID, "queue-poll:"))
		return []effects.Effect{effects.Emit(eventlog.KindWorkerPollComplete, eventlog.WorkerPollComplete{Name: name})}, nil
	default:
		return nil, nil
	}
}

// handleLivenessFired drives the self-paced liveness poll spec.md §4.7
// describes: resolve the timer's owner token back to a live job/agent
// run, ask the adapter for its agent's current state, and re-arm the
// next tick. An owner that has since gone terminal (or disappeared
// outright) lets the timer lapse instead of re-arming, so polling never
// outlives the work it watches.
func handleLivenessFired(rt *Runtime, timerID string) ([]effects.Effect, error) {
	ownerTok, ok := scheduler.ParseLivenessTimerID(timerID)
	if !ok {
		return nil, nil
	}
	owner, ok := parseOwnerToken(ownerTok)
	if !ok {
		return nil, nil
	}
	var (
		agentID ids.AgentID
		alive   bool
	)
	rt.Store.Read(func(st *state.State) {
		switch owner.Kind {
		case core.OwnerKindJob:
			job, ok := st.Jobs[owner.JobID]
			if !ok || job.IsTerminal() {
				return
			}
			alive = true
		case core.OwnerKindAgentRun:
			run, ok := st.AgentRuns[owner.AgentRunID]
			if !ok || run.IsTerminal() {
				return
			}
			alive = true
		}
		for _, a := range st.AgentsOwnedBy(owner) {
			agentID = a.ID
			break
		}
	})
	if !alive {
		return nil, nil
	}
	effs := []effects.Effect{effects.SetTimer(timerID, livenessPollInterval)}
	if agentID != "" {
		effs = append(effs, effects.PollAgentState(agentID))
	}
	return effs, nil
}

// handleExitDeferredFired commits the on_dead exit action an agent's
// owner was given a grace window to decline (spec.md §4.7): if the
// window elapses with the owner still live, the deferred action
// resolves as a failure.
func handleExitDeferredFired(rt *Runtime, timerID string) ([]effects.Effect, error) {
	ownerTok, ok := scheduler.ParseExitDeferredTimerID(timerID)
	if !ok {
		return nil, nil
	}
	owner, ok := parseOwnerToken(ownerTok)
	if !ok {
		return nil, nil
	}
	var pending bool
	rt.Store.Read(func(st *state.State) {
		switch owner.Kind {
		case core.OwnerKindJob:
			job, ok := st.Jobs[owner.JobID]
			pending = ok && !job.IsTerminal()
		case core.OwnerKindAgentRun:
			run, ok := st.AgentRuns[owner.AgentRunID]
			pending = ok && !run.IsTerminal()
		}
	})
	if !pending {
		return nil, nil
	}
	return ownerTerminal(owner, false, "exit grace window elapsed"), nil
}

// handleCooldownFired resumes action-chain resolution at the chain
// position a cooldown was installed for (spec.md §4.7.2).
func handleCooldownFired(rt *Runtime, timerID string) ([]effects.Effect, error) {
	ownerTok, triggerTok, chainPos, ok := scheduler.ParseCooldownTimerID(timerID)
	if !ok {
		return nil, nil
	}
	owner, ok := parseOwnerToken(ownerTok)
	if !ok {
		return nil, nil
	}
	trigger, category := parseTriggerToken(triggerTok)
	return resolveActionChain(rt, owner, trigger, category, chainPos)
}

// handleQueueRetryFired moves a Failed item back to Pending once its
// cooldown elapses, provided nothing else has already moved it on.
func handleQueueRetryFired(rt *Runtime, timerID string) ([]effects.Effect, error) {
	queue, itemID, ok := scheduler.ParseQueueRetryTimerID(timerID)
	if !ok {
		return nil, nil
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		bucket, ok := st.Queues[queue]
		if !ok {
			return
		}
		item, ok := bucket[itemID]
		if !ok || item.Status != core.QueueItemFailed {
			return
		}
		effs = []effects.Effect{effects.Emit(eventlog.KindQueueItemRetried, eventlog.QueueItemRetried{Queue: queue, ItemID: itemID})}
	})
	return effs, nil
}

// handleCronFireTimer fires one cron tick: create the target job
// (subject to the concurrency cap) and re-arm the next occurrence.
func handleCronFireTimer(rt *Runtime, timerID string) ([]effects.Effect, error) {
	name, ok := scheduler.ParseCronTimerID(timerID)
	if !ok {
		return nil, nil
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		c, ok := st.Crons[name]
		if !ok || c.Status != core.CronRunning {
			return
		}
		effs = fireCron(st, c)
	})
	return effs, nil
}
