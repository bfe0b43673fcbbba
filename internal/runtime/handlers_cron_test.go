package runtime

import (
	"testing"
	"time"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/state"
)

func TestNextCronDelayAcceptsDurationAndExpression(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if d, ok := nextCronDelay("1h", now); !ok || d != time.Hour {
		t.Fatalf("duration interval = %v, %v", d, ok)
	}
	if _, ok := nextCronDelay("*/5 * * * *", now); !ok {
		t.Fatal("expected a standard cron expression to parse")
	}
	if _, ok := nextCronDelay("not a schedule", now); ok {
		t.Fatal("garbage interval should fail to parse")
	}
}

func cronFixture(concurrency int, activeNonTerminal int) (*state.State, core.Cron) {
	st := state.New()
	const hash = "h1"
	st.Runbooks[hash] = core.Runbook{Jobs: map[string]core.JobDef{
		"nightly-build": {Name: "nightly-build", EntryStep: "run", Steps: map[string]core.StepDef{
			"run": {Name: "run", Kind: core.StepKindShell, Command: "echo hi"},
		}},
	}}
	c := core.Cron{
		Name: "nightly", Target: "nightly-build", RunbookHash: hash,
		Interval: "24h", Concurrency: concurrency,
	}
	for i := 0; i < activeNonTerminal; i++ {
		jobID := ids.NewJobID()
		st.Jobs[jobID] = core.Job{
			ID: jobID, CronSource: string(c.Name), StepStatus: core.StepStatusRunning,
		}
	}
	return st, c
}

func TestFireCronDispatchesJobUnderConcurrencyCap(t *testing.T) {
	t.Parallel()
	st, c := cronFixture(2, 0)
	effs := fireCron(st, c)

	var sawFired, sawJobCreated, sawTimer bool
	for _, e := range effs {
		switch {
		case e.Kind == effects.KindEmit && e.EmitKind == eventlog.KindCronFired:
			sawFired = true
		case e.Kind == effects.KindEmit && e.EmitKind == eventlog.KindJobCreated:
			sawJobCreated = true
			data := e.EmitData.(eventlog.JobCreated)
			if data.Name != "nightly-build" || data.CronSource != "nightly" {
				t.Errorf("job created = %+v", data)
			}
		case e.Kind == effects.KindSetTimer:
			sawTimer = true
		}
	}
	if !sawFired || !sawJobCreated || !sawTimer {
		t.Fatalf("effects = %+v, want CronFired + JobCreated + re-armed timer", effs)
	}
}

func TestFireCronSkipsDispatchAtConcurrencyCap(t *testing.T) {
	t.Parallel()
	st, c := cronFixture(1, 1)
	effs := fireCron(st, c)
	for _, e := range effs {
		if e.Kind == effects.KindEmit && e.EmitKind == eventlog.KindJobCreated {
			t.Fatalf("expected no JobCreated at concurrency cap, got %+v", effs)
		}
	}
}

func TestCronAtConcurrencyCapIgnoresTerminalJobs(t *testing.T) {
	t.Parallel()
	st := state.New()
	c := core.Cron{Name: "nightly", Concurrency: 1}
	jobID := ids.NewJobID()
	st.Jobs[jobID] = core.Job{ID: jobID, CronSource: "nightly", StepStatus: core.StepStatusCompleted}
	if cronAtConcurrencyCap(st, c) {
		t.Fatal("a terminal job should not count against the concurrency cap")
	}
}
