package state

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

func applyCronStarted(st *State, env eventlog.Envelope) error {
	var e eventlog.CronStarted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	existing, ok := st.Crons[e.Name]
	var lastFired *int64
	started := env.AtMS
	if ok {
		lastFired = existing.LastFiredAtMS
		started = existing.StartedAtMS
	}
	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	st.Crons[e.Name] = core.Cron{
		Name:          e.Name,
		Namespace:     e.Namespace,
		Interval:      e.Interval,
		Target:        e.Target,
		RunbookHash:   e.RunbookHash,
		ProjectRoot:   e.ProjectRoot,
		Status:        core.CronRunning,
		StartedAtMS:   started,
		LastFiredAtMS: lastFired,
		Concurrency:   concurrency,
	}
	return nil
}

func applyCronStopped(st *State, env eventlog.Envelope) error {
	var e eventlog.CronStopped
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	c, ok := st.Crons[e.Name]
	if !ok {
		return nil
	}
	c.Status = core.CronStopped
	st.Crons[e.Name] = c
	return nil
}

func applyCronFired(st *State, env eventlog.Envelope) error {
	var e eventlog.CronFired
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	c, ok := st.Crons[e.Name]
	if !ok {
		return nil
	}
	at := env.AtMS
	c.LastFiredAtMS = &at
	st.Crons[e.Name] = c
	return nil
}
