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

func registerCronHandlers(rt *Runtime) {
	rt.On(eventlog.KindCronStarted, handleCronStarted)
	rt.On(eventlog.KindCronStopped, handleCronStopped)
	rt.On(eventlog.KindCronFired, noop)
}

// handleCronStarted arms the periodic fire timer for a newly started
// (or restarted) cron record, per spec.md §4.9. e.Name is always used
// verbatim as the timer's identity; it already carries its own
// namespace prefix via ids.Namespaced, so the scheduler's own ns
// argument is left empty here.
func handleCronStarted(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.CronStarted
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	d, ok := nextCronDelay(e.Interval, time.Now())
	if !ok {
		return nil, nil
	}
	return []effects.Effect{effects.SetTimer(scheduler.CronTimerID("", e.Name), d)}, nil
}

// handleCronStopped cancels the cron's fire timer.
func handleCronStopped(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.CronStopped
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	return []effects.Effect{effects.CancelTimer(scheduler.CronTimerID("", e.Name))}, nil
}

// fireCron builds the effects for one cron tick: create the target job
// (subject to the concurrency cap) and re-arm the next occurrence. It is
// invoked from the timer-fired path in handlers_timer.go rather than
// from handleCronStarted, since the latter only runs once per start.
func fireCron(st *state.State, c core.Cron) []effects.Effect {
	effs := []effects.Effect{
		effects.Emit(eventlog.KindCronFired, eventlog.CronFired{Name: c.Name}),
	}
	if d, ok := nextCronDelay(c.Interval, time.Now()); ok {
		effs = append(effs, effects.SetTimer(scheduler.CronTimerID("", c.Name), d))
	}
	if cronAtConcurrencyCap(st, c) {
		return effs
	}
	rb, ok := st.Runbooks[c.RunbookHash]
	if !ok {
		return effs
	}
	jd, ok := rb.Jobs[c.Target]
	if !ok {
		return effs
	}
	jobID := ids.NewJobID()
	effs = append(effs, effects.Emit(eventlog.KindJobCreated, eventlog.JobCreated{
		JobID:       jobID,
		Name:        c.Target,
		Kind:        "pipeline",
		Namespace:   c.Namespace,
		Cwd:         c.ProjectRoot,
		RunbookHash: c.RunbookHash,
		Vars:        core.Vars{},
		EntryStep:   jd.EntryStep,
		CronSource:  string(c.Name),
	}))
	return effs
}

// cronAtConcurrencyCap reports whether c already has Concurrency
// non-terminal instances running, counted by matching each job's
// CronSource back to c.Name.
func cronAtConcurrencyCap(st *state.State, c core.Cron) bool {
	if c.Concurrency <= 0 {
		return false
	}
	active := 0
	for _, job := range st.Jobs {
		if job.CronSource == string(c.Name) && !job.IsTerminal() {
			active++
		}
	}
	return active >= c.Concurrency
}
