package state

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

func applyWorkerStarted(st *State, env eventlog.Envelope) error {
	var e eventlog.WorkerStarted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	existing, ok := st.Workers[e.Name]
	active := map[ids.JobID]struct{}{}
	if ok {
		// Replay preserves active_job_ids (spec.md §3, §8 scenario F).
		active = existing.ActiveJobIDs
	}
	st.Workers[e.Name] = core.Worker{
		Name:         e.Name,
		Namespace:    e.Namespace,
		ProjectRoot:  e.ProjectRoot,
		RunbookHash:  e.RunbookHash,
		Status:       core.WorkerRunning,
		Queue:        e.Queue,
		Handler:      e.Handler,
		Concurrency:  e.Concurrency,
		ActiveJobIDs: active,
		CreatedAtMS:  firstNonZero(existing.CreatedAtMS, env.AtMS),
		UpdatedAtMS:  env.AtMS,
	}
	return nil
}

func firstNonZero(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}

func applyWorkerStopped(st *State, env eventlog.Envelope) error {
	var e eventlog.WorkerStopped
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	w, ok := st.Workers[e.Name]
	if !ok {
		return nil
	}
	w.Status = core.WorkerStopped
	w.UpdatedAtMS = env.AtMS
	st.Workers[e.Name] = w
	return nil
}

func applyWorkerDeleted(st *State, env eventlog.Envelope) error {
	var e eventlog.WorkerDeleted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	delete(st.Workers, e.Name)
	return nil
}

func applyWorkerItemDispatched(st *State, env eventlog.Envelope) error {
	var e eventlog.WorkerItemDispatched
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	w, ok := st.Workers[e.Worker]
	if !ok {
		return nil
	}
	if w.ActiveJobIDs == nil {
		w.ActiveJobIDs = map[ids.JobID]struct{}{}
	}
	w.ActiveJobIDs[e.JobID] = struct{}{}
	w.UpdatedAtMS = env.AtMS
	st.Workers[e.Worker] = w
	return nil
}

func applyWorkerItemCompleted(st *State, env eventlog.Envelope) error {
	var e eventlog.WorkerItemCompleted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	w, ok := st.Workers[e.Worker]
	if ok {
		for jobID := range w.ActiveJobIDs {
			job, jok := st.Jobs[jobID]
			if jok && job.IsTerminal() {
				delete(w.ActiveJobIDs, jobID)
			}
		}
		w.UpdatedAtMS = env.AtMS
		st.Workers[e.Worker] = w
	}
	// Mark the queue item completed, if this worker serves a persisted
	// queue (external queues drop items without a QueueItem record).
	for _, q := range st.Queues {
		if item, iok := q[e.ItemID]; iok {
			item.Status = core.QueueItemCompleted
			q[e.ItemID] = item
		}
	}
	return nil
}
