package core

import "github.com/opus-domini/sentinel/internal/core/ids"

// QueueItemStatus is the lifecycle status of a persisted queue item,
// per spec.md §3.
type QueueItemStatus string

const (
	QueueItemPending   QueueItemStatus = "pending"
	QueueItemActive    QueueItemStatus = "active"
	QueueItemFailed    QueueItemStatus = "failed"
	QueueItemDead      QueueItemStatus = "dead"
	QueueItemCompleted QueueItemStatus = "completed"
)

// QueueItem is one persisted-queue entry, keyed by (namespace+queue,
// item id).
type QueueItem struct {
	Queue          ids.QueueName   `json:"queue"`
	ItemID         ids.QueueItemID `json:"itemId"`
	Data           map[string]string `json:"data"`
	Status         QueueItemStatus `json:"status"`
	AssignedWorker *ids.WorkerName `json:"assignedWorker,omitempty"`
	FailureCount   int             `json:"failureCount"`
	PushedAtMS     int64           `json:"pushedAtMs"`
}

// RetryConfig is a persisted queue's retry policy, per spec.md §4.8.
type RetryConfig struct {
	Attempts int
	Cooldown string // duration string, e.g. "10s"
}

// Clone returns a copy with an independently-mutable Data map.
func (q QueueItem) Clone() QueueItem {
	out := q
	out.Data = make(map[string]string, len(q.Data))
	for k, v := range q.Data {
		out.Data[k] = v
	}
	return out
}
