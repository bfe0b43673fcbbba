package runtime

import (
	"testing"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/state"
)

func pipelineFixture(t *testing.T) (*state.Store, ids.JobID) {
	t.Helper()
	st := state.New()
	const hash = "h1"
	st.Runbooks[hash] = core.Runbook{Jobs: map[string]core.JobDef{
		"deploy": {Name: "deploy", EntryStep: "build", Steps: map[string]core.StepDef{
			"build": {Name: "build", Kind: core.StepKindShell, Command: "make", OnDone: "test", OnFail: "fail"},
			"test":  {Name: "test", Kind: core.StepKindShell, Command: "go test", OnDone: "done"},
		}},
	}}
	jobID := ids.NewJobID()
	st.Jobs[jobID] = core.Job{ID: jobID, Name: "deploy", RunbookHash: hash, CurrentStep: "build", Vars: core.Vars{}}
	return state.NewStore(st), jobID
}

func TestHandleJobCreatedDispatchesEntryStep(t *testing.T) {
	t.Parallel()
	store, jobID := pipelineFixture(t)
	rt := &Runtime{Store: store}
	env := mustEnvelope(t, eventlog.KindJobCreated, eventlog.JobCreated{JobID: jobID, Name: "deploy", EntryStep: "build"})
	effs, err := handleJobCreated(rt, env)
	if err != nil {
		t.Fatalf("handleJobCreated: %v", err)
	}
	if len(effs) != 1 || effs[0].Kind != effects.KindSpawnShell {
		t.Fatalf("effects = %+v", effs)
	}
}

func TestHandleStepCompletedAdvancesToOnDone(t *testing.T) {
	t.Parallel()
	store, jobID := pipelineFixture(t)
	rt := &Runtime{Store: store}
	env := mustEnvelope(t, eventlog.KindStepCompleted, eventlog.StepCompleted{JobID: jobID, Step: "build"})
	effs, err := handleStepCompleted(rt, env)
	if err != nil {
		t.Fatalf("handleStepCompleted: %v", err)
	}
	var sawAdvanced, sawSpawn bool
	for _, e := range effs {
		if e.EmitKind == eventlog.KindJobAdvanced {
			sawAdvanced = true
		}
		if e.Kind == effects.KindSpawnShell {
			sawSpawn = true
		}
	}
	if !sawAdvanced || !sawSpawn {
		t.Fatalf("effects = %+v, want advance into 'test' and dispatch it", effs)
	}
}

func TestHandleStepCompletedIgnoresStaleReplay(t *testing.T) {
	t.Parallel()
	store, jobID := pipelineFixture(t)
	rt := &Runtime{Store: store}
	// The job is still on "build"; a StepCompleted for "test" is stale.
	env := mustEnvelope(t, eventlog.KindStepCompleted, eventlog.StepCompleted{JobID: jobID, Step: "test"})
	effs, err := handleStepCompleted(rt, env)
	if err != nil {
		t.Fatalf("handleStepCompleted: %v", err)
	}
	if len(effs) != 0 {
		t.Fatalf("expected stale replay to be a no-op, got %+v", effs)
	}
}

func TestHandleStepFailedRoutesToOnFail(t *testing.T) {
	t.Parallel()
	store, jobID := pipelineFixture(t)
	rt := &Runtime{Store: store}
	env := mustEnvelope(t, eventlog.KindStepFailed, eventlog.StepFailed{JobID: jobID, Step: "build", Reason: "boom"})
	effs, err := handleStepFailed(rt, env)
	if err != nil {
		t.Fatalf("handleStepFailed: %v", err)
	}
	if len(effs) != 1 || effs[0].EmitKind != eventlog.KindStepFailed {
		t.Fatalf("effects = %+v, want a single StepFailed for the 'fail' route", effs)
	}
}

func TestHandlePipelineResumeRedispatchesCurrentStep(t *testing.T) {
	t.Parallel()
	store, jobID := pipelineFixture(t)
	rt := &Runtime{Store: store}
	env := mustEnvelope(t, eventlog.KindPipelineResume, eventlog.PipelineResume{Owner: core.OwnerJob(jobID)})
	effs, err := handlePipelineResume(rt, env)
	if err != nil {
		t.Fatalf("handlePipelineResume: %v", err)
	}
	if len(effs) != 1 || effs[0].Kind != effects.KindSpawnShell {
		t.Fatalf("effects = %+v, want the current step re-dispatched", effs)
	}
}

func TestHandlePipelineResumeIgnoresAgentRunOwner(t *testing.T) {
	t.Parallel()
	rt := &Runtime{Store: state.NewStore(state.New())}
	env := mustEnvelope(t, eventlog.KindPipelineResume, eventlog.PipelineResume{Owner: core.OwnerAgentRun(ids.AgentRunID("r1"))})
	effs, err := handlePipelineResume(rt, env)
	if err != nil {
		t.Fatalf("handlePipelineResume: %v", err)
	}
	if effs != nil {
		t.Fatalf("effects = %+v, want nil for a standalone agent run", effs)
	}
}

func TestHandlePipelineSkipDispatchesTargetStep(t *testing.T) {
	t.Parallel()
	_, jobID := pipelineFixture(t)
	// PipelineSkip fires after apply_pipeline has already moved
	// CurrentStep to the target, so set it there directly.
	st := state.New()
	const hash = "h1"
	st.Runbooks[hash] = core.Runbook{Jobs: map[string]core.JobDef{
		"deploy": {Name: "deploy", Steps: map[string]core.StepDef{
			"test": {Name: "test", Kind: core.StepKindShell, Command: "go test"},
		}},
	}}
	st.Jobs[jobID] = core.Job{ID: jobID, Name: "deploy", RunbookHash: hash, CurrentStep: "test", Vars: core.Vars{}}
	rt := &Runtime{Store: state.NewStore(st)}

	env := mustEnvelope(t, eventlog.KindPipelineSkip, eventlog.PipelineSkip{Owner: core.OwnerJob(jobID), Target: "test"})
	effs, err := handlePipelineSkip(rt, env)
	if err != nil {
		t.Fatalf("handlePipelineSkip: %v", err)
	}
	if len(effs) != 1 || effs[0].Kind != effects.KindSpawnShell {
		t.Fatalf("effects = %+v", effs)
	}
}

func TestHandleShellExitedSuccessCompletesStep(t *testing.T) {
	t.Parallel()
	store, jobID := pipelineFixture(t)
	rt := &Runtime{Store: store}
	env := mustEnvelope(t, eventlog.KindShellExited, eventlog.ShellExited{JobID: jobID, Step: "build", ExitCode: 0})
	effs, err := handleShellExited(rt, env)
	if err != nil {
		t.Fatalf("handleShellExited: %v", err)
	}
	if len(effs) != 1 || effs[0].EmitKind != eventlog.KindStepCompleted {
		t.Fatalf("effects = %+v, want StepCompleted on exit 0", effs)
	}
}

func TestHandleShellExitedFailureFailsStep(t *testing.T) {
	t.Parallel()
	store, jobID := pipelineFixture(t)
	rt := &Runtime{Store: store}
	env := mustEnvelope(t, eventlog.KindShellExited, eventlog.ShellExited{JobID: jobID, Step: "build", ExitCode: 1})
	effs, err := handleShellExited(rt, env)
	if err != nil {
		t.Fatalf("handleShellExited: %v", err)
	}
	if len(effs) != 1 || effs[0].EmitKind != eventlog.KindStepFailed {
		t.Fatalf("effects = %+v, want StepFailed on nonzero exit", effs)
	}
}

func TestHandleShellExitedIgnoresStaleStep(t *testing.T) {
	t.Parallel()
	store, jobID := pipelineFixture(t)
	rt := &Runtime{Store: store}
	env := mustEnvelope(t, eventlog.KindShellExited, eventlog.ShellExited{JobID: jobID, Step: "test", ExitCode: 0})
	effs, err := handleShellExited(rt, env)
	if err != nil {
		t.Fatalf("handleShellExited: %v", err)
	}
	if len(effs) != 0 {
		t.Fatalf("effects = %+v, want no-op for a step the job already left", effs)
	}
}
