package runtime

import (
	"time"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/scheduler"
	"github.com/opus-domini/sentinel/internal/state"
)

// defaultQueuePollInterval is used when a queue's poll_every is unset,
// matching a persisted queue's recheck cadence for newly pushed items.
const defaultQueuePollInterval = 2 * time.Second

// defaultRetryCooldown is used when a queue defines no explicit retry
// cooldown but still allows retries.
const defaultRetryCooldown = 10 * time.Second

func registerQueueHandlers(rt *Runtime) {
	rt.On(eventlog.KindWorkerStarted, handleWorkerStarted)
	rt.On(eventlog.KindWorkerPollComplete, handleWorkerPollComplete)
	rt.On(eventlog.KindQueueFailed, handleQueueFailed)
}

// handleWorkerStarted arms the worker's poll timer, per spec.md §4.8.
// Persisted queues are polled on the same cadence as external ones so a
// pushed item that arrives while the worker is at capacity is picked up
// once headroom frees.
func handleWorkerStarted(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.WorkerStarted
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var (
		eff effects.Effect
		ok  bool
	)
	rt.Store.Read(func(st *state.State) {
		rb, rok := st.Runbooks[e.RunbookHash]
		if !rok {
			return
		}
		qd, qok := rb.Queues[string(e.Queue)]
		if !qok {
			return
		}
		interval := defaultQueuePollInterval
		if d, pok := parseDuration(qd.PollEvery); pok {
			interval = d
		}
		eff = effects.SetTimer(scheduler.QueuePollTimerID("", e.Name), interval)
		ok = true
	})
	if !ok {
		return nil, nil
	}
	return []effects.Effect{eff}, nil
}

// handleWorkerPollComplete reconciles a poll result against the
// worker's headroom (spec.md §4.8): external queues dispatch the raw
// items just reported; persisted queues dispatch their own pending
// backlog. Either way it re-arms the next poll.
func handleWorkerPollComplete(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.WorkerPollComplete
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		w, ok := st.Workers[e.Name]
		if !ok || w.Status != core.WorkerRunning {
			return
		}
		rb, ok := st.Runbooks[w.RunbookHash]
		if !ok {
			return
		}
		qd, ok := rb.Queues[string(w.Queue)]
		if !ok {
			return
		}
		jd, ok := rb.Jobs[w.Handler]
		if !ok {
			return
		}

		candidates := pendingItems(st, w, qd, e.Items)
		room := w.Headroom(0)
		if room > len(candidates) {
			room = len(candidates)
		}
		for i := 0; i < room; i++ {
			item := candidates[i]
			jobID := ids.NewJobID()
			vars := core.Vars{}
			for k, v := range item.Data {
				vars[core.ScopeItem+k] = v
			}
			effs = append(effs,
				effects.Emit(eventlog.KindQueueTaken, eventlog.QueueTaken{Queue: w.Queue, ItemID: item.ItemID, Worker: w.Name}),
				effects.Emit(eventlog.KindJobCreated, eventlog.JobCreated{
					JobID:       jobID,
					Name:        w.Handler,
					Kind:        "pipeline",
					Namespace:   w.Namespace,
					Cwd:         w.ProjectRoot,
					RunbookHash: w.RunbookHash,
					Vars:        vars,
					EntryStep:   jd.EntryStep,
				}),
				effects.Emit(eventlog.KindWorkerItemDispatched, eventlog.WorkerItemDispatched{Worker: w.Name, ItemID: item.ItemID, JobID: jobID}),
			)
		}

		interval := defaultQueuePollInterval
		if d, pok := parseDuration(qd.PollEvery); pok {
			interval = d
		}
		effs = append(effs, effects.SetTimer(scheduler.QueuePollTimerID("", w.Name), interval))
	})
	return effs, nil
}

// pendingItems returns the candidate items a poll should consider
// dispatching: for an external queue, the raw items carried by the
// WorkerPollComplete event (minted a fresh id when an item has no
// "id"); for a persisted queue, the items already sitting Pending
// in the WAL-backed bucket.
func pendingItems(st *state.State, w core.Worker, qd core.QueueDef, raw []map[string]string) []core.QueueItem {
	if !qd.External {
		var out []core.QueueItem
		for _, item := range st.QueueItems(w.Queue) {
			if item.Status == core.QueueItemPending {
				out = append(out, item)
			}
		}
		return out
	}
	out := make([]core.QueueItem, 0, len(raw))
	for _, data := range raw {
		itemID := data["id"]
		if itemID == "" {
			itemID = string(ids.NewQueueItemID())
		}
		out = append(out, core.QueueItem{Queue: w.Queue, ItemID: ids.QueueItemID(itemID), Data: data, Status: core.QueueItemPending})
	}
	return out
}

// handleQueueFailed schedules a retry (if the item's retry budget
// isn't exhausted) or deadletters it, per spec.md §4.8's retry policy.
// The retry config comes from whichever worker binds this item's queue.
func handleQueueFailed(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.QueueFailed
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		bucket, ok := st.Queues[e.Queue]
		if !ok {
			return
		}
		item, ok := bucket[e.ItemID]
		if !ok {
			return
		}
		retry := retryConfigFor(st, e.Queue)

		attempts := 1
		if retry != nil && retry.Attempts > 0 {
			attempts = retry.Attempts
		}
		if item.FailureCount >= attempts {
			effs = []effects.Effect{effects.Emit(eventlog.KindQueueItemDead, eventlog.QueueItemDead{Queue: e.Queue, ItemID: e.ItemID})}
			return
		}

		cooldown := defaultRetryCooldown
		if retry != nil {
			if d, pok := parseDuration(retry.Cooldown); pok {
				cooldown = d
			}
		}
		effs = []effects.Effect{
			effects.Emit(eventlog.KindQueueItemRetryScheduled, eventlog.QueueItemRetryScheduled{
				Queue: e.Queue, ItemID: e.ItemID, RetryAtMS: env.AtMS + cooldown.Milliseconds(),
			}),
			effects.SetTimer(scheduler.QueueRetryTimerID(e.Queue, e.ItemID), cooldown),
		}
	})
	return effs, nil
}

// retryConfigFor looks up the RetryConfig of whichever worker binds
// queue, running or stopped, searching its runbook's QueueDef.
func retryConfigFor(st *state.State, queue ids.QueueName) *core.RetryConfig {
	for _, w := range st.Workers {
		if w.Queue != queue {
			continue
		}
		rb, ok := st.Runbooks[w.RunbookHash]
		if !ok {
			continue
		}
		if qd, ok := rb.Queues[string(queue)]; ok {
			return qd.Retry
		}
	}
	return nil
}
