package core

import "github.com/opus-domini/sentinel/internal/core/ids"

// CronStatus is the running/stopped lifecycle of a cron record.
type CronStatus string

const (
	CronRunning CronStatus = "running"
	CronStopped CronStatus = "stopped"
)

// Cron is a scheduled job trigger, keyed by namespaced name, per
// spec.md §3 and §4.9.
type Cron struct {
	Name         ids.CronName `json:"name"`
	Namespace    Namespace    `json:"namespace"`
	Interval     string       `json:"interval"`
	Target       string       `json:"target"`
	RunbookHash  string       `json:"runbookHash"`
	ProjectRoot  string       `json:"projectRoot"`
	Status       CronStatus   `json:"status"`
	StartedAtMS  int64        `json:"startedAtMs"`
	LastFiredAtMS *int64      `json:"lastFiredAtMs,omitempty"`
	// Concurrency caps the number of simultaneously non-terminal
	// instances for this cron; the default of 1 means a fire is
	// skipped while a prior instance is still running.
	Concurrency int `json:"concurrency"`
}
