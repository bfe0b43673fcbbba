package runtime

import (
	"os"
	"strings"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/scheduler"
)

// renderVars substitutes "${scope.key}" placeholders in s from vars,
// per the ${var.name} interpolation convention runbook step templates
// use (spec.md §6 scopes: var., workspace., local., args., invoke.,
// item.).
func renderVars(s string, vars core.Vars) string {
	return os.Expand(s, func(key string) string {
		return vars[key]
	})
}

// lookupStep resolves the runbook definition backing job's current (or
// named) step. Returns false if the job's runbook or job definition has
// since been unloaded.
func lookupStep(job core.Job, runbooks map[string]core.Runbook, step string) (core.JobDef, core.StepDef, bool) {
	rb, ok := runbooks[job.RunbookHash]
	if !ok {
		return core.JobDef{}, core.StepDef{}, false
	}
	jd, ok := rb.Jobs[job.Name]
	if !ok {
		return core.JobDef{}, core.StepDef{}, false
	}
	sd, ok := jd.Steps[step]
	if !ok {
		return core.JobDef{}, core.StepDef{}, false
	}
	return jd, sd, true
}

// dispatchStep builds the effects that actually run job's named step:
// a shell spawn, an agent spawn, or a nested job creation. rb is the
// job's parsed runbook, used to resolve the agent definition for
// agent-kind steps.
func dispatchStep(job core.Job, step core.StepDef, rb core.Runbook) []effects.Effect {
	switch step.Kind {
	case core.StepKindShell:
		cmd := renderVars(step.Command, job.Vars)
		return []effects.Effect{
			effects.SpawnShell(job.ID, step.Name, cmd, job.WorkspacePath, nil),
		}
	case core.StepKindAgent:
		agentID := ids.NewAgentID()
		def := rb.Agents[step.Agent]
		input := renderVars(def.Prime, job.Vars)
		return []effects.Effect{
			effects.Emit(eventlog.KindStepStarted, eventlog.StepStarted{
				JobID: job.ID, Step: step.Name, AgentID: &agentID, AgentName: step.Agent,
			}),
			effects.PrepareWorkspace(job.WorkspacePath, effects.WorkspaceAgent, agentID),
			effects.SpawnAgent(agentID, job.Owner(), job.WorkspacePath, def.Command, def.Env, job.WorkspacePath, "", input),
			effects.SetTimer(scheduler.LivenessTimerID(ownerToken(job.Owner())), livenessPollInterval),
		}
	case core.StepKindPipeline:
		nestedID := ids.NewJobID()
		entryStep := rb.Jobs[step.Target].EntryStep
		return []effects.Effect{
			effects.Emit(eventlog.KindJobCreated, eventlog.JobCreated{
				JobID:         nestedID,
				Name:          step.Target,
				Kind:          "pipeline",
				Namespace:     job.Namespace,
				Cwd:           job.Cwd,
				RunbookHash:   job.RunbookHash,
				Vars:          job.Vars.Clone(),
				EntryStep:     entryStep,
				WorkspacePath: job.WorkspacePath,
			}),
		}
	default:
		return nil
	}
}

// nextStepEffects decides what happens when job's current step reaches
// outcome (done/fail): advance to the named next step, finalize the
// job, or (for done with no matching step def) fail closed.
func nextStepEffects(job core.Job, jd core.JobDef, rb core.Runbook, next string, onFail bool) []effects.Effect {
	next = strings.TrimSpace(next)
	if next == "" || next == "done" {
		return nil // job is already terminal via StepCompleted/StepFailed's apply
	}
	if next == "fail" {
		return []effects.Effect{
			effects.Emit(eventlog.KindStepFailed, eventlog.StepFailed{JobID: job.ID, Step: job.CurrentStep, Reason: "pipeline routed to fail"}),
		}
	}
	sd, ok := jd.Steps[next]
	if !ok {
		return []effects.Effect{
			effects.Emit(eventlog.KindStepFailed, eventlog.StepFailed{JobID: job.ID, Step: job.CurrentStep, Reason: "unknown step " + next}),
		}
	}
	effs := []effects.Effect{
		effects.Emit(eventlog.KindJobAdvanced, eventlog.JobAdvanced{JobID: job.ID, Step: next, OnFail: onFail}),
	}
	return append(effs, dispatchStep(job, sd, rb)...)
}
