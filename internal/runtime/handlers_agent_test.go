package runtime

import (
	"testing"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/state"
)

func TestOwnerTokenRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []core.OwnerID{
		core.OwnerJob(ids.JobID("j1")),
		core.OwnerAgentRun(ids.AgentRunID("r1")),
	}
	for _, owner := range cases {
		tok := ownerToken(owner)
		got, ok := parseOwnerToken(tok)
		if !ok || got != owner {
			t.Errorf("ownerToken(%+v) = %q, parseOwnerToken -> %+v, %v", owner, tok, got, ok)
		}
	}
}

func TestTriggerTokenRoundTrip(t *testing.T) {
	t.Parallel()
	tok := triggerToken(core.TriggerOnIdle, "")
	trig, cat := parseTriggerToken(tok)
	if trig != core.TriggerOnIdle || cat != "" {
		t.Fatalf("on_idle token = %q -> %q, %q", tok, trig, cat)
	}

	tok = triggerToken(core.TriggerOnError, core.ErrorRateLimited)
	trig, cat = parseTriggerToken(tok)
	if trig != core.TriggerOnError || cat != core.ErrorRateLimited {
		t.Fatalf("on_error token = %q -> %q, %q", tok, trig, cat)
	}
}

// agentJobFixture wires a minimal state.State with one job whose
// current step is an agent step, and returns the job id and agent id.
func agentJobFixture(t *testing.T, chain []core.ActionDef) (*state.Store, ids.JobID, ids.AgentID) {
	t.Helper()
	st := state.New()
	const hash = "hash1"
	st.Runbooks[hash] = core.Runbook{
		Hash: hash,
		Jobs: map[string]core.JobDef{
			"deploy": {Name: "deploy", EntryStep: "build", Steps: map[string]core.StepDef{
				"build": {Name: "build", Kind: core.StepKindAgent, Agent: "coder"},
			}},
		},
		Agents: map[string]core.AgentDef{
			"coder": {Name: "coder", Command: []string{"coder"}, OnIdle: chain},
		},
	}
	jobID := ids.NewJobID()
	st.Jobs[jobID] = core.Job{
		ID: jobID, Name: "deploy", RunbookHash: hash, CurrentStep: "build",
		StepStatus: core.StepStatusRunning, Vars: core.Vars{}, Actions: core.NewActionTracker(),
	}
	agentID := ids.NewAgentID()
	st.Agents[agentID] = core.Agent{ID: agentID, Owner: core.OwnerJob(jobID), Status: core.AgentIdle}
	return state.NewStore(st), jobID, agentID
}

func effectKinds(effs []effects.Effect) []effects.Kind {
	out := make([]effects.Kind, len(effs))
	for i, e := range effs {
		out[i] = e.Kind
	}
	return out
}

func TestResolveActionChainDispatchesNudge(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, []core.ActionDef{
		{Action: core.ActionNudge, Budget: core.Budget{Forever: true}, Message: "keep going"},
	})
	rt := &Runtime{Store: store}
	effs, err := resolveActionChain(rt, core.OwnerJob(jobID), core.TriggerOnIdle, "", 0)
	if err != nil {
		t.Fatalf("resolveActionChain: %v", err)
	}
	kinds := effectKinds(effs)
	if len(kinds) != 2 || kinds[0] != effects.KindEmit || kinds[1] != effects.KindSendToAgent {
		t.Fatalf("effects = %v, want [emit(ActionAttempted) send_to_agent]", kinds)
	}
}

func TestResolveActionChainFallsThroughExhaustedBudget(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, []core.ActionDef{
		{Action: core.ActionNudge, Budget: core.Budget{Count: 1}, Message: "first"},
		{Action: core.ActionNudge, Budget: core.Budget{Forever: true}, Message: "second"},
	})
	// Pre-exhaust position 0's budget.
	store.Read(func(st *state.State) {
		job := st.Jobs[jobID]
		job.Actions = job.Actions.Increment(core.TriggerOnIdle, 0)
		st.Jobs[jobID] = job
	})
	rt := &Runtime{Store: store}
	effs, err := resolveActionChain(rt, core.OwnerJob(jobID), core.TriggerOnIdle, "", 0)
	if err != nil {
		t.Fatalf("resolveActionChain: %v", err)
	}
	var sawSend bool
	for _, e := range effs {
		if e.Kind == effects.KindSendToAgent && e.Input == "second" {
			sawSend = true
		}
	}
	if !sawSend {
		t.Fatalf("expected chain to fall through to position 1's nudge, got %+v", effs)
	}
}

func TestResolveActionChainEscalatesWhenChainExhausted(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, []core.ActionDef{
		{Action: core.ActionNudge, Budget: core.Budget{Forever: true}, Message: "only"},
	})
	rt := &Runtime{Store: store}
	effs, err := resolveActionChain(rt, core.OwnerJob(jobID), core.TriggerOnIdle, "", 1) // past the end
	if err != nil {
		t.Fatalf("resolveActionChain: %v", err)
	}
	var sawDecision, sawWaiting bool
	for _, e := range effs {
		if e.Kind == effects.KindEmit && e.EmitKind == eventlog.KindDecisionCreated {
			sawDecision = true
		}
		if e.Kind == effects.KindEmit && e.EmitKind == eventlog.KindStepWaiting {
			sawWaiting = true
		}
	}
	if !sawDecision || !sawWaiting {
		t.Fatalf("expected escalate (DecisionCreated + StepWaiting), got %+v", effs)
	}
}

func TestResolveActionChainEscalatesWhenOwnerUnresolvable(t *testing.T) {
	t.Parallel()
	rt := &Runtime{Store: state.NewStore(state.New())}
	effs, err := resolveActionChain(rt, core.OwnerJob(ids.JobID("missing")), core.TriggerOnIdle, "", 0)
	if err != nil {
		t.Fatalf("resolveActionChain: %v", err)
	}
	found := false
	for _, e := range effs {
		if e.Kind == effects.KindEmit && e.EmitKind == eventlog.KindDecisionCreated {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected escalate for unresolvable owner, got %+v", effs)
	}
}

func TestDispatchActionGateRunsCommand(t *testing.T) {
	t.Parallel()
	owner := core.OwnerJob(ids.JobID("j1"))
	effs := dispatchAction(owner, ids.AgentID("a1"), "/work/j1", core.ActionDef{
		Action: core.ActionGate, GateCmd: "check.sh",
	}, core.TriggerOnDead, "", 2)
	if len(effs) != 1 || effs[0].Kind != effects.KindGateRun {
		t.Fatalf("gate effects = %+v", effs)
	}
	eff := effs[0]
	if eff.Owner != owner || eff.GateCmd != "check.sh" || eff.Cwd != "/work/j1" || eff.ChainPos != 2 {
		t.Fatalf("gate effect = %+v", eff)
	}
}

func TestHandleGateResultSuccessClosesOutOwner(t *testing.T) {
	t.Parallel()
	owner := core.OwnerJob(ids.JobID("j1"))
	env, err := eventlog.New(eventlog.KindGateResult, 0, eventlog.GateResult{Owner: owner, ExitCode: 0})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	effs, err := handleGateResult(&Runtime{}, env)
	if err != nil {
		t.Fatalf("handleGateResult: %v", err)
	}
	if len(effs) != 1 || effs[0].EmitKind != eventlog.KindStepCompleted {
		t.Fatalf("success effects = %+v", effs)
	}
}

func TestHandleGateResultFailureOpensGateDecision(t *testing.T) {
	t.Parallel()
	owner := core.OwnerJob(ids.JobID("j1"))
	env, err := eventlog.New(eventlog.KindGateResult, 0, eventlog.GateResult{
		Owner: owner, ChainPos: 2, Cmd: "check.sh", ExitCode: 1, StderrTail: "boom",
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	effs, err := handleGateResult(&Runtime{}, env)
	if err != nil {
		t.Fatalf("handleGateResult: %v", err)
	}
	if len(effs) != 2 || effs[0].EmitKind != eventlog.KindDecisionCreated {
		t.Fatalf("failure effects = %+v", effs)
	}
	data, ok := effs[0].EmitData.(eventlog.DecisionCreated)
	if !ok {
		t.Fatalf("EmitData type = %T", effs[0].EmitData)
	}
	if data.Source != core.DecisionSourceGate || data.ChainPos != 2 || data.Context != "check.sh: boom" {
		t.Fatalf("decision = %+v", data)
	}
}

func TestDispatchActionDoneAndFail(t *testing.T) {
	t.Parallel()
	owner := core.OwnerJob(ids.JobID("j1"))
	done := dispatchAction(owner, "", "", core.ActionDef{Action: core.ActionDone}, core.TriggerOnDead, "", 0)
	if len(done) != 1 || done[0].EmitKind != eventlog.KindStepCompleted {
		t.Fatalf("done effects = %+v", done)
	}
	fail := dispatchAction(owner, "", "", core.ActionDef{Action: core.ActionFail}, core.TriggerOnError, "", 0)
	if len(fail) != 1 || fail[0].EmitKind != eventlog.KindStepFailed {
		t.Fatalf("fail effects = %+v", fail)
	}
}

func TestHandleAgentWorkingClearsTimersWithoutResumingWhenNotEscalated(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, nil)
	rt := &Runtime{Store: store}
	effs, err := handleAgentWorking(rt, core.OwnerJob(jobID), 10_000)
	if err != nil {
		t.Fatalf("handleAgentWorking: %v", err)
	}
	kinds := effectKinds(effs)
	if len(kinds) != 2 || kinds[0] != effects.KindCancelTimer || kinds[1] != effects.KindCancelTimerPrefix {
		t.Fatalf("effects = %v, want [cancel_timer cancel_timer_prefix]", kinds)
	}
}

func TestHandleAgentWorkingResumesEscalatedJobOutsideNudgeGrace(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, nil)
	store.Read(func(st *state.State) {
		job := st.Jobs[jobID]
		job.StepStatus = core.StepStatusWaiting
		job.LastNudgeAtMS = 0
		st.Jobs[jobID] = job
	})
	rt := &Runtime{Store: store}
	effs, err := handleAgentWorking(rt, core.OwnerJob(jobID), nudgeGraceWindow.Milliseconds()+1)
	if err != nil {
		t.Fatalf("handleAgentWorking: %v", err)
	}
	var sawResume bool
	for _, e := range effs {
		if e.Kind == effects.KindEmit && e.EmitKind == eventlog.KindPipelineResume {
			sawResume = true
		}
	}
	if !sawResume {
		t.Fatalf("expected PipelineResume once escalated and outside the nudge grace window, got %+v", effs)
	}
}

func TestHandleAgentWorkingSuppressesResumeWithinNudgeGrace(t *testing.T) {
	t.Parallel()
	store, jobID, _ := agentJobFixture(t, nil)
	store.Read(func(st *state.State) {
		job := st.Jobs[jobID]
		job.StepStatus = core.StepStatusWaiting
		job.LastNudgeAtMS = 1_000
		st.Jobs[jobID] = job
	})
	rt := &Runtime{Store: store}
	effs, err := handleAgentWorking(rt, core.OwnerJob(jobID), 1_000+nudgeGraceWindow.Milliseconds()-1)
	if err != nil {
		t.Fatalf("handleAgentWorking: %v", err)
	}
	for _, e := range effs {
		if e.Kind == effects.KindEmit && e.EmitKind == eventlog.KindPipelineResume {
			t.Fatalf("expected resume to be suppressed within the nudge grace window, got %+v", effs)
		}
	}
}

func TestEscalateSourceByTrigger(t *testing.T) {
	t.Parallel()
	idleEffs := escalate(core.OwnerJob(ids.JobID("j1")), core.TriggerOnIdle, "", 0, "idle too long")
	data := idleEffs[0].EmitData.(eventlog.DecisionCreated)
	if data.Source != core.DecisionSourceIdle {
		t.Fatalf("idle escalate source = %q, want idle", data.Source)
	}

	errEffs := escalate(core.OwnerJob(ids.JobID("j1")), core.TriggerOnError, core.ErrorRateLimited, 1, "rate limited")
	data = errEffs[0].EmitData.(eventlog.DecisionCreated)
	if data.Source != core.DecisionSourceError || data.Category != core.ErrorRateLimited {
		t.Fatalf("error escalate = %+v", data)
	}
}
