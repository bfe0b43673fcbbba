package core

import "github.com/opus-domini/sentinel/internal/core/ids"

// WorkerStatus is the running/stopped lifecycle of a worker record.
type WorkerStatus string

const (
	WorkerRunning WorkerStatus = "running"
	WorkerStopped WorkerStatus = "stopped"
)

// Worker is a bound (queue, handler) pair that dispatches jobs, keyed by
// namespaced name, per spec.md §3.
type Worker struct {
	Name         ids.WorkerName `json:"name"`
	Namespace    Namespace      `json:"namespace"`
	ProjectRoot  string         `json:"projectRoot"`
	RunbookHash  string         `json:"runbookHash"`
	Status       WorkerStatus   `json:"status"`
	Queue        ids.QueueName  `json:"queue"`
	Handler      string         `json:"handler"`
	Concurrency  int            `json:"concurrency"`
	ActiveJobIDs map[ids.JobID]struct{} `json:"-"`

	CreatedAtMS int64 `json:"createdAtMs"`
	UpdatedAtMS int64 `json:"updatedAtMs"`
}

// Headroom returns the number of additional jobs this worker may
// dispatch right now, never negative.
func (w Worker) Headroom(pendingTakes int) int {
	room := w.Concurrency - len(w.ActiveJobIDs) - pendingTakes
	if room < 0 {
		return 0
	}
	return room
}

// Clone returns a copy with an independently-mutable ActiveJobIDs set.
func (w Worker) Clone() Worker {
	out := w
	out.ActiveJobIDs = make(map[ids.JobID]struct{}, len(w.ActiveJobIDs))
	for id := range w.ActiveJobIDs {
		out.ActiveJobIDs[id] = struct{}{}
	}
	return out
}

// ActiveJobIDList returns the active job ids as an independent slice in
// map iteration order, which is not defined and not stable between
// calls.
func (w Worker) ActiveJobIDList() []ids.JobID {
	out := make([]ids.JobID, 0, len(w.ActiveJobIDs))
	for id := range w.ActiveJobIDs {
		out = append(out, id)
	}
	return out
}
