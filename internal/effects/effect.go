// Package effects defines the Effect tagged union handlers return and
// the Executor that drives each variant through an adapter, emitting
// follow-up WAL events where the contract calls for one (spec.md §4.5).
package effects

import (
	"time"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

// Kind discriminates an Effect.
type Kind string

const (
	KindEmit              Kind = "emit"
	KindSpawnAgent        Kind = "spawn_agent"
	KindSendToAgent       Kind = "send_to_agent"
	KindKillAgent         Kind = "kill_agent"
	KindReconnectAgent    Kind = "reconnect_agent"
	KindSpawnShell        Kind = "spawn_shell"
	KindSetTimer          Kind = "set_timer"
	KindCancelTimer       Kind = "cancel_timer"
	KindNotify            Kind = "notify"
	KindPrepareWorkspace  Kind = "prepare_workspace"
	KindGateRun           Kind = "gate_run"
	KindPollAgentState    Kind = "poll_agent_state"
	KindCancelTimerPrefix Kind = "cancel_timer_prefix"
)

// WorkspaceMode selects what PrepareWorkspace materializes alongside
// the directory itself.
type WorkspaceMode string

const (
	WorkspacePlain WorkspaceMode = "plain"
	WorkspaceAgent WorkspaceMode = "agent" // also writes a hook settings file
)

// Effect is the tagged union consumed one at a time by the Executor.
// Only the fields relevant to Kind are populated; the rest are zero.
type Effect struct {
	Kind Kind

	// Emit
	EmitKind eventlog.Kind
	EmitData any

	// SpawnAgent / ReconnectAgent / KillAgent
	AgentID       ids.AgentID
	Owner         core.OwnerID
	WorkspacePath string
	Command       []string
	Env           map[string]string
	Cwd           string
	SessionName   string
	Input         string
	SessionID     ids.SessionID

	// SpawnShell
	JobID    ids.JobID
	Step     string
	ShellCmd string

	// SetTimer / CancelTimer
	TimerID       string
	TimerDuration time.Duration

	// Notify
	Title string
	Body  string

	// PrepareWorkspace
	Path string
	Mode WorkspaceMode

	// GateRun
	GateCmd  string
	Trigger  core.Trigger
	Category core.ErrorCategory
	ChainPos int
}

// Emit builds an Emit effect: append to the WAL and hand the event back
// for immediate in-process apply_event.
func Emit(kind eventlog.Kind, data any) Effect {
	return Effect{Kind: KindEmit, EmitKind: kind, EmitData: data}
}

// SpawnAgent builds a SpawnAgent effect.
func SpawnAgent(agentID ids.AgentID, owner core.OwnerID, workspacePath string, command []string, env map[string]string, cwd, sessionName, input string) Effect {
	return Effect{
		Kind: KindSpawnAgent, AgentID: agentID, Owner: owner, WorkspacePath: workspacePath,
		Command: command, Env: env, Cwd: cwd, SessionName: sessionName, Input: input,
	}
}

// SendToAgent builds a SendToAgent effect.
func SendToAgent(agentID ids.AgentID, input string) Effect {
	return Effect{Kind: KindSendToAgent, AgentID: agentID, Input: input}
}

// KillAgent builds a KillAgent effect. sessionID is the session being
// torn down, carried through to the SessionDeleted event the Executor
// synthesizes.
func KillAgent(agentID ids.AgentID, sessionID ids.SessionID) Effect {
	return Effect{Kind: KindKillAgent, AgentID: agentID, SessionID: sessionID}
}

// ReconnectAgent builds a ReconnectAgent effect: like SpawnAgent but
// attaches to an existing session rather than creating one.
func ReconnectAgent(agentID ids.AgentID, owner core.OwnerID, sessionName string) Effect {
	return Effect{Kind: KindReconnectAgent, AgentID: agentID, Owner: owner, SessionName: sessionName}
}

// SpawnShell builds a SpawnShell effect.
func SpawnShell(jobID ids.JobID, step, command, cwd string, env map[string]string) Effect {
	return Effect{Kind: KindSpawnShell, JobID: jobID, Step: step, ShellCmd: command, Cwd: cwd, Env: env}
}

// SetTimer builds a SetTimer effect.
func SetTimer(id string, d time.Duration) Effect {
	return Effect{Kind: KindSetTimer, TimerID: id, TimerDuration: d}
}

// CancelTimer builds a CancelTimer effect.
func CancelTimer(id string) Effect {
	return Effect{Kind: KindCancelTimer, TimerID: id}
}

// CancelTimerPrefix builds a CancelTimerPrefix effect: cancel every
// timer whose id starts with prefix, used to clear a whole family of
// cooldowns (e.g. every on_idle cooldown for one owner) without
// tracking each chain position's exact timer id.
func CancelTimerPrefix(prefix string) Effect {
	return Effect{Kind: KindCancelTimerPrefix, TimerID: prefix}
}

// Notify builds a Notify effect.
func Notify(title, body string) Effect {
	return Effect{Kind: KindNotify, Title: title, Body: body}
}

// PrepareWorkspace builds a PrepareWorkspace effect. agentID is only
// used for WorkspaceAgent: it's stamped into the generated hook
// settings file so each hook invocation reports state for the right
// agent.
func PrepareWorkspace(path string, mode WorkspaceMode, agentID ids.AgentID) Effect {
	return Effect{Kind: KindPrepareWorkspace, Path: path, Mode: mode, AgentID: agentID}
}

// GateRun builds a GateRun effect: run cmd in cwd and report the
// outcome as a GateResult event so the dispatch loop can branch on it
// (spec.md §4.7.1's gate action — success treated as on_done, failure
// opens a Gate-source Decision with the command's stderr attached).
func GateRun(owner core.OwnerID, trigger core.Trigger, category core.ErrorCategory, chainPos int, cmd, cwd string) Effect {
	return Effect{
		Kind: KindGateRun, Owner: owner, Trigger: trigger, Category: category,
		ChainPos: chainPos, GateCmd: cmd, Cwd: cwd,
	}
}

// PollAgentState builds a PollAgentState effect: ask the adapter for
// agentID's current liveness state and report it as an
// AgentStateObserved event (spec.md §4.7's liveness-timer poll).
func PollAgentState(agentID ids.AgentID) Effect {
	return Effect{Kind: KindPollAgentState, AgentID: agentID}
}
