package runtime

import (
	"strings"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/scheduler"
	"github.com/opus-domini/sentinel/internal/state"
)

func registerAgentHandlers(rt *Runtime) {
	rt.On(eventlog.KindAgentRunStarted, handleAgentRunStarted)
	rt.On(eventlog.KindAgentStateObserved, handleAgentStateObserved)
	rt.On(eventlog.KindGateResult, handleGateResult)
}

// handleGateResult closes out a gate action per spec.md §4.7.1: exit 0
// is treated exactly like an on_done action; any other exit opens a
// Gate-source Decision with the command and its stderr tail as context,
// parking owner the same way escalate does.
func handleGateResult(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.GateResult
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	if e.ExitCode == 0 {
		return ownerTerminal(e.Owner, true, ""), nil
	}
	context := e.Cmd
	if e.StderrTail != "" {
		context = e.Cmd + ": " + e.StderrTail
	}
	return gateDecision(e.Owner, e.Trigger, e.Category, e.ChainPos, context), nil
}

// gateDecision opens a Gate-source Decision and parks owner in Waiting,
// mirroring escalate's shape but for a failed gate command rather than
// an exhausted/unresolvable action chain.
func gateDecision(owner core.OwnerID, trigger core.Trigger, category core.ErrorCategory, chainPos int, context string) []effects.Effect {
	return openDecision(owner, core.DecisionSourceGate, trigger, category, chainPos, context)
}

// handleAgentRunStarted spawns the agent process backing a standalone
// run, mirroring a pipeline job's agent-kind step dispatch (spec.md §3).
// The run's Name doubles as the agent definition key: standalone runs
// have no step graph to name an agent within.
func handleAgentRunStarted(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.AgentRunStarted
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var effs []effects.Effect
	rt.Store.Read(func(st *state.State) {
		rb, ok := st.Runbooks[e.RunbookHash]
		if !ok {
			return
		}
		def, ok := rb.Agents[e.Name]
		if !ok {
			return
		}
		input := renderVars(def.Prime, e.Vars)
		owner := core.OwnerAgentRun(e.AgentRunID)
		effs = []effects.Effect{
			effects.PrepareWorkspace(e.Cwd, effects.WorkspaceAgent, e.AgentID),
			effects.SpawnAgent(e.AgentID, owner, e.Cwd, def.Command, def.Env, e.Cwd, "", input),
			effects.SetTimer(scheduler.LivenessTimerID(ownerToken(owner)), livenessPollInterval),
		}
	})
	return effs, nil
}

// handleAgentStateObserved resolves the lifecycle trigger an
// adapter-reported state transition maps to (spec.md §4.7) and dispatches
// chain position 0 of the owning job or agent run's action chain for
// that trigger. A transition back to Working doesn't drive the action
// chain at all; it clears whatever grace timers the dead/idle path armed
// and, if owner is still parked Escalated from an earlier transition,
// auto-resumes it.
func handleAgentStateObserved(rt *Runtime, env eventlog.Envelope) ([]effects.Effect, error) {
	var e eventlog.AgentStateObserved
	if err := env.Decode(&e); err != nil {
		return nil, err
	}
	var (
		owner    core.OwnerID
		trigger  core.Trigger
		category core.ErrorCategory
		working  bool
		found    bool
	)
	rt.Store.Read(func(st *state.State) {
		agent, ok := st.Agents[e.AgentID]
		if !ok {
			return
		}
		owner = agent.Owner
		switch {
		case e.State == core.AgentFailed:
			category = core.ErrorCategory(e.Category)
			if category == "" {
				category = core.ErrorOther
			}
			trigger, found = core.TriggerOnError, true
		case e.State == core.AgentIdle:
			trigger, found = core.TriggerOnIdle, true
		case e.State.IsDead():
			trigger, found = core.TriggerOnDead, true
		case e.State == core.AgentRunning:
			working = true
		default:
			// Starting: nothing to resolve yet.
		}
	})
	if working {
		return handleAgentWorking(rt, owner, env.AtMS)
	}
	if !found {
		return nil, nil
	}
	return resolveActionChain(rt, owner, trigger, category, 0)
}

// handleAgentWorking reacts to an agent reporting Working again (spec.md
// §4.7): it clears the exit-deferred grace timer an on_dead resume may
// have armed and cancels any on_idle cooldown still pending for owner,
// since both were waiting on exactly this. If owner is currently parked
// Escalated and the most recent nudge is outside nudgeGraceWindow, the
// pipeline is resumed automatically rather than left waiting on a human
// decision that working output has already overtaken.
func handleAgentWorking(rt *Runtime, owner core.OwnerID, nowMS int64) ([]effects.Effect, error) {
	effs := []effects.Effect{
		effects.CancelTimer(scheduler.ExitDeferredTimerID(ownerToken(owner))),
		effects.CancelTimerPrefix(scheduler.CooldownPrefix(ownerToken(owner), string(core.TriggerOnIdle))),
	}

	var (
		escalated   bool
		lastNudgeMS int64
	)
	rt.Store.Read(func(st *state.State) {
		switch owner.Kind {
		case core.OwnerKindJob:
			job, ok := st.Jobs[owner.JobID]
			if !ok {
				return
			}
			escalated = job.StepStatus == core.StepStatusWaiting
			lastNudgeMS = job.LastNudgeAtMS
		case core.OwnerKindAgentRun:
			run, ok := st.AgentRuns[owner.AgentRunID]
			if !ok {
				return
			}
			escalated = run.Status == core.AgentRunEscalated
			lastNudgeMS = run.LastNudgeAtMS
		}
	})
	if escalated && nowMS-lastNudgeMS >= nudgeGraceWindow.Milliseconds() {
		effs = append(effs, effects.Emit(eventlog.KindPipelineResume, eventlog.PipelineResume{Owner: owner}))
	}
	return effs, nil
}

// ownerContext is everything resolveActionChain needs about owner's
// current agent: its action chain, attempt tracker, and the live agent
// id a nudge/resume must be sent to.
type ownerContext struct {
	chain   []core.ActionDef
	tracker core.ActionTracker
	agentID ids.AgentID
	cwd     string
	ok      bool
}

func resolveOwnerContext(st *state.State, owner core.OwnerID, trigger core.Trigger, category core.ErrorCategory) ownerContext {
	switch owner.Kind {
	case core.OwnerKindJob:
		job, ok := st.Jobs[owner.JobID]
		if !ok {
			return ownerContext{}
		}
		rb, ok := st.Runbooks[job.RunbookHash]
		if !ok {
			return ownerContext{}
		}
		jd, ok := rb.Jobs[job.Name]
		if !ok {
			return ownerContext{}
		}
		sd, ok := jd.Steps[job.CurrentStep]
		if !ok || sd.Kind != core.StepKindAgent {
			return ownerContext{}
		}
		def, ok := rb.Agents[sd.Agent]
		if !ok {
			return ownerContext{}
		}
		var agentID ids.AgentID
		for _, a := range st.AgentsOwnedBy(owner) {
			agentID = a.ID
			break
		}
		return ownerContext{chain: def.ActionChain(trigger, category), tracker: job.Actions, agentID: agentID, cwd: job.Cwd, ok: true}
	case core.OwnerKindAgentRun:
		run, ok := st.AgentRuns[owner.AgentRunID]
		if !ok {
			return ownerContext{}
		}
		rb, ok := st.Runbooks[run.RunbookHash]
		if !ok {
			return ownerContext{}
		}
		def, ok := rb.Agents[run.Name]
		if !ok {
			return ownerContext{}
		}
		return ownerContext{chain: def.ActionChain(trigger, category), tracker: run.Actions, agentID: run.AgentID, cwd: run.Cwd, ok: true}
	default:
		return ownerContext{}
	}
}

// resolveActionChain implements spec.md §4.7.1/§4.7.2: find the action
// at (trigger, chainPos) in owner's current agent chain, honoring the
// attempt budget at that position before dispatching. A chain that runs
// off its end, or an unresolvable owner/agent, defaults to escalate.
func resolveActionChain(rt *Runtime, owner core.OwnerID, trigger core.Trigger, category core.ErrorCategory, chainPos int) ([]effects.Effect, error) {
	var octx ownerContext
	rt.Store.Read(func(st *state.State) {
		octx = resolveOwnerContext(st, owner, trigger, category)
	})
	if !octx.ok {
		return escalate(owner, trigger, category, -1, "agent definition unavailable"), nil
	}
	if chainPos >= len(octx.chain) {
		return escalate(owner, trigger, category, -1, "action chain exhausted"), nil
	}
	action := octx.chain[chainPos]
	if action.Budget.Exhausted(octx.tracker.Count(trigger, chainPos)) {
		return resolveActionChain(rt, owner, trigger, category, chainPos+1)
	}

	effs := []effects.Effect{
		effects.Emit(eventlog.KindActionAttempted, eventlog.ActionAttempted{
			Owner: owner, Trigger: trigger, ChainPos: chainPos, Action: action.Action,
		}),
	}
	effs = append(effs, dispatchAction(owner, octx.agentID, octx.cwd, action, trigger, category, chainPos)...)
	if d, ok := parseDuration(action.Cooldown); ok && d > 0 {
		effs = append(effs, effects.SetTimer(scheduler.CooldownTimerID(ownerToken(owner), triggerToken(trigger, category), chainPos), d))
	}
	return effs, nil
}

// dispatchAction builds the effects for one concrete action, per the
// trigger/action table in spec.md §4.7.1.
func dispatchAction(owner core.OwnerID, agentID ids.AgentID, cwd string, action core.ActionDef, trigger core.Trigger, category core.ErrorCategory, chainPos int) []effects.Effect {
	switch action.Action {
	case core.ActionNudge:
		return []effects.Effect{effects.SendToAgent(agentID, action.Message)}
	case core.ActionResume:
		if trigger == core.TriggerOnDead {
			// The session is already gone; resume means "try to
			// reconnect it" and give it exitDeferredGraceWindow to
			// come back alive before the exit commits.
			return []effects.Effect{
				effects.ReconnectAgent(agentID, owner, ""),
				effects.SetTimer(scheduler.ExitDeferredTimerID(ownerToken(owner)), exitDeferredGraceWindow),
			}
		}
		return []effects.Effect{effects.SendToAgent(agentID, "")}
	case core.ActionGate:
		return []effects.Effect{effects.GateRun(owner, trigger, category, chainPos, action.GateCmd, cwd)}
	case core.ActionDone:
		return ownerTerminal(owner, true, "")
	case core.ActionFail:
		return ownerTerminal(owner, false, "action chain routed to fail")
	case core.ActionEscalate:
		return escalate(owner, trigger, category, chainPos, "action chain escalated")
	default:
		return nil
	}
}

// ownerTerminal emits the StepCompleted/StepFailed (Job) or
// AgentRunStatusChanged (AgentRun) event that closes out owner.
func ownerTerminal(owner core.OwnerID, success bool, reason string) []effects.Effect {
	switch owner.Kind {
	case core.OwnerKindJob:
		if success {
			return []effects.Effect{effects.Emit(eventlog.KindStepCompleted, eventlog.StepCompleted{JobID: owner.JobID})}
		}
		return []effects.Effect{effects.Emit(eventlog.KindStepFailed, eventlog.StepFailed{JobID: owner.JobID, Reason: reason})}
	case core.OwnerKindAgentRun:
		status := core.AgentRunCompleted
		if !success {
			status = core.AgentRunFailed
		}
		return []effects.Effect{effects.Emit(eventlog.KindAgentRunStatusChanged, eventlog.AgentRunStatusChanged{
			AgentRunID: owner.AgentRunID, Status: status,
		})}
	default:
		return nil
	}
}

// escalate opens a human Decision and parks owner in Waiting, per
// spec.md §4.7.1's universal escalate action. chainPos is the chain
// slot a later Retry should resume at, or -1 to restart the chain from
// position 0 (the chain ran off its end, or the owner/agent definition
// could not be resolved at all).
func escalate(owner core.OwnerID, trigger core.Trigger, category core.ErrorCategory, chainPos int, context string) []effects.Effect {
	source := core.DecisionSourceError
	if trigger == core.TriggerOnIdle {
		source = core.DecisionSourceIdle
	}
	return openDecision(owner, source, trigger, category, chainPos, context)
}

// openDecision emits a DecisionCreated of source and parks owner in
// Waiting, the shared shape behind escalate (chain exhausted/
// unresolvable) and gateDecision (gate command failed).
func openDecision(owner core.OwnerID, source core.DecisionSource, trigger core.Trigger, category core.ErrorCategory, chainPos int, context string) []effects.Effect {
	effs := []effects.Effect{
		effects.Emit(eventlog.KindDecisionCreated, eventlog.DecisionCreated{
			DecisionID: ids.NewDecisionID(),
			Source:     source,
			Context:    context,
			Options:    []core.DecisionOption{{Label: "Retry"}, {Label: "Skip"}, {Label: "Cancel"}},
			Owner:      owner,
			Trigger:    trigger,
			Category:   category,
			ChainPos:   chainPos,
		}),
	}
	switch owner.Kind {
	case core.OwnerKindJob:
		effs = append(effs, effects.Emit(eventlog.KindStepWaiting, eventlog.StepWaiting{JobID: owner.JobID, Reason: context}))
	case core.OwnerKindAgentRun:
		effs = append(effs, effects.Emit(eventlog.KindAgentRunStatusChanged, eventlog.AgentRunStatusChanged{
			AgentRunID: owner.AgentRunID, Status: core.AgentRunEscalated,
		}))
	}
	return effs
}

// ownerToken renders owner as a colon-free cooldown-timer token. Needed
// because core.OwnerID.String() itself contains a colon ("job:<id>"),
// which would make a composite "cooldown:<owner>:<trigger>:<pos>" id
// ambiguous to split back apart.
func ownerToken(owner core.OwnerID) string {
	switch owner.Kind {
	case core.OwnerKindJob:
		return "job_" + string(owner.JobID)
	case core.OwnerKindAgentRun:
		return "run_" + string(owner.AgentRunID)
	default:
		return "unknown"
	}
}

// parseOwnerToken reverses ownerToken.
func parseOwnerToken(token string) (core.OwnerID, bool) {
	switch {
	case strings.HasPrefix(token, "job_"):
		return core.OwnerJob(ids.JobID(strings.TrimPrefix(token, "job_"))), true
	case strings.HasPrefix(token, "run_"):
		return core.OwnerAgentRun(ids.AgentRunID(strings.TrimPrefix(token, "run_"))), true
	default:
		return core.OwnerID{}, false
	}
}

// triggerToken renders trigger (and, for on_error, its category) as a
// single colon-free cooldown-timer token.
func triggerToken(trigger core.Trigger, category core.ErrorCategory) string {
	if trigger == core.TriggerOnError {
		return string(trigger) + "_" + string(category)
	}
	return string(trigger)
}

// parseTriggerToken reverses triggerToken.
func parseTriggerToken(token string) (core.Trigger, core.ErrorCategory) {
	prefix := string(core.TriggerOnError) + "_"
	if strings.HasPrefix(token, prefix) {
		return core.TriggerOnError, core.ErrorCategory(strings.TrimPrefix(token, prefix))
	}
	return core.Trigger(token), ""
}
