package runtime

import (
	"testing"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/scheduler"
	"github.com/opus-domini/sentinel/internal/state"
)

func TestHandleTimerFiredRoutesCooldown(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, []core.ActionDef{
		{Action: core.ActionNudge, Budget: core.Budget{Forever: true}, Message: "keep going"},
	})
	rt := &Runtime{Store: store}
	timerID := scheduler.CooldownTimerID(ownerToken(core.OwnerJob(jobID)), triggerToken(core.TriggerOnIdle, ""), 0)
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: timerID})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	if len(effs) == 0 {
		t.Fatal("expected cooldown fire to resolve the action chain")
	}
}

func TestHandleTimerFiredRoutesQueueRetry(t *testing.T) {
	t.Parallel()
	st := state.New()
	st.Queues["jobs"] = map[ids.QueueItemID]core.QueueItem{
		"i1": {Queue: "jobs", ItemID: "i1", Status: core.QueueItemFailed},
	}
	rt := &Runtime{Store: state.NewStore(st)}
	timerID := scheduler.QueueRetryTimerID("jobs", "i1")
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: timerID})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	if len(effs) != 1 || effs[0].EmitKind != eventlog.KindQueueItemRetried {
		t.Fatalf("effects = %+v, want QueueItemRetried", effs)
	}
}

func TestHandleTimerFiredIgnoresQueueRetryWhenAlreadyMoved(t *testing.T) {
	t.Parallel()
	st := state.New()
	st.Queues["jobs"] = map[ids.QueueItemID]core.QueueItem{
		"i1": {Queue: "jobs", ItemID: "i1", Status: core.QueueItemPending},
	}
	rt := &Runtime{Store: state.NewStore(st)}
	timerID := scheduler.QueueRetryTimerID("jobs", "i1")
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: timerID})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	if len(effs) != 0 {
		t.Fatalf("expected no-op once the item left Failed, got %+v", effs)
	}
}

func TestHandleTimerFiredRoutesCron(t *testing.T) {
	t.Parallel()
	st, c := cronFixture(2, 0)
	c.Status = core.CronRunning
	st.Crons = map[ids.CronName]core.Cron{c.Name: c}
	rt := &Runtime{Store: state.NewStore(st)}

	timerID := scheduler.CronTimerID("", c.Name)
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: timerID})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	var sawJobCreated bool
	for _, e := range effs {
		if e.EmitKind == eventlog.KindJobCreated {
			sawJobCreated = true
		}
	}
	if !sawJobCreated {
		t.Fatalf("expected cron fire to dispatch a job, got %+v", effs)
	}
}

func TestHandleTimerFiredIgnoresStoppedCron(t *testing.T) {
	t.Parallel()
	st, c := cronFixture(2, 0)
	c.Status = core.CronStopped
	st.Crons = map[ids.CronName]core.Cron{c.Name: c}
	rt := &Runtime{Store: state.NewStore(st)}

	timerID := scheduler.CronTimerID("", c.Name)
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: timerID})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	if len(effs) != 0 {
		t.Fatalf("expected a stopped cron not to fire, got %+v", effs)
	}
}

func TestHandleTimerFiredLivenessForUnknownJobIsNoop(t *testing.T) {
	t.Parallel()
	rt := &Runtime{Store: state.NewStore(state.New())}
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: scheduler.LivenessTimerID(ownerToken(core.OwnerJob(ids.JobID("j1"))))})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	if len(effs) != 0 {
		t.Fatalf("expected no follow-up for a job that no longer exists, got %+v", effs)
	}
}

func TestHandleLivenessFiredRearmsAndPollsLiveJob(t *testing.T) {
	t.Parallel()
	store, jobID, agentID := agentJobFixture(t, nil)
	rt := &Runtime{Store: store}
	timerID := scheduler.LivenessTimerID(ownerToken(core.OwnerJob(jobID)))
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: timerID})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	if len(effs) != 2 || effs[0].Kind != effects.KindSetTimer || effs[0].TimerID != timerID {
		t.Fatalf("effects = %+v, want [re-armed set_timer, poll_agent_state]", effs)
	}
	if effs[1].Kind != effects.KindPollAgentState || effs[1].AgentID != agentID {
		t.Fatalf("poll effect = %+v, want agent %q", effs[1], agentID)
	}
}

func TestHandleLivenessFiredStopsOnceJobIsTerminal(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, nil)
	store.Read(func(st *state.State) {
		job := st.Jobs[jobID]
		job.StepStatus = core.StepStatusCompleted
		st.Jobs[jobID] = job
	})
	rt := &Runtime{Store: store}
	timerID := scheduler.LivenessTimerID(ownerToken(core.OwnerJob(jobID)))
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: timerID})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	if len(effs) != 0 {
		t.Fatalf("expected a terminal job's liveness timer not to re-arm, got %+v", effs)
	}
}

func TestHandleExitDeferredFiredCommitsFailureWhenStillPending(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, nil)
	rt := &Runtime{Store: store}
	timerID := scheduler.ExitDeferredTimerID(ownerToken(core.OwnerJob(jobID)))
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: timerID})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	if len(effs) != 1 || effs[0].EmitKind != eventlog.KindStepFailed {
		t.Fatalf("effects = %+v, want a single StepFailed", effs)
	}
}

func TestHandleExitDeferredFiredIsNoopOnceJobIsTerminal(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, nil)
	store.Read(func(st *state.State) {
		job := st.Jobs[jobID]
		job.StepStatus = core.StepStatusCompleted
		st.Jobs[jobID] = job
	})
	rt := &Runtime{Store: store}
	timerID := scheduler.ExitDeferredTimerID(ownerToken(core.OwnerJob(jobID)))
	env := mustEnvelope(t, eventlog.KindTimerStart, eventlog.TimerStart{TimerID: timerID})
	effs, err := handleTimerFired(rt, env)
	if err != nil {
		t.Fatalf("handleTimerFired: %v", err)
	}
	if len(effs) != 0 {
		t.Fatalf("expected no-op once the job already resolved, got %+v", effs)
	}
}
