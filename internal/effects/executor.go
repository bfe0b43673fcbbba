package effects

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

// AgentAdapter spawns, messages, kills and reconnects supervised agent
// sessions. internal/adapter provides the tmux-backed implementation.
type AgentAdapter interface {
	Spawn(ctx context.Context, agentID ids.AgentID, workspacePath string, command []string, env map[string]string, cwd, sessionName, input string) (ids.SessionID, error)
	Send(ctx context.Context, agentID ids.AgentID, input string) error
	Kill(ctx context.Context, agentID ids.AgentID) error
	Reconnect(ctx context.Context, agentID ids.AgentID, sessionName string) (ids.SessionID, error)

	// PollState reports agentID's adapter-observed liveness: Running/
	// Idle while its session is alive, Exited (with code) or
	// Gone once it isn't. category is only meaningful when status is
	// AgentFailed.
	PollState(ctx context.Context, agentID ids.AgentID) (status core.AgentStatus, exitCode *int, category string, err error)
}

// ShellRunner executes one shell step to completion and reports its
// outcome. Run is expected to block; the Executor calls it from its own
// goroutine so SpawnShell never blocks the dispatch loop.
type ShellRunner interface {
	Run(ctx context.Context, cwd, command string, env map[string]string) (exitCode int, stdoutTail, stderrTail string, err error)
}

// Notifier delivers a fire-and-forget desktop/webhook notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// WorkspacePreparer creates a job/agent-run's working directory and, for
// agent-mode workspaces, materializes the hook settings file.
type WorkspacePreparer interface {
	Prepare(ctx context.Context, path string, mode WorkspaceMode, agentID ids.AgentID) error
}

// Appender appends a payload to the WAL and returns the assigned
// envelope, used both for the Emit effect and for the events an
// adapter-driving effect synthesizes (SessionCreated, SessionDeleted,
// ShellExited).
type Appender func(kind eventlog.Kind, payload any) (eventlog.Envelope, error)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Executor drives one Effect at a time against the adapters, per
// spec.md §4.5. The shell, gate-run, agent-state-poll and notify paths
// launch their own goroutines since spawning is asynchronous by
// contract; every other effect completes synchronously.
type Executor struct {
	Agent     AgentAdapter
	Shell     ShellRunner
	Notifier  Notifier
	Workspace WorkspacePreparer
	Append    Appender
	Scheduler TimerSink
	Wake      func()
	Now       Clock
}

// TimerSink is the subset of *scheduler.Scheduler the executor needs.
type TimerSink interface {
	SetTimer(id string, d time.Duration, now time.Time)
	CancelTimer(id string)
	CancelTimersWithPrefix(prefix string)
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Apply executes one effect and returns the synthesized event envelope,
// if the effect's contract produces one (spec.md §4.5's "returns
// Option<Event>"). SpawnShell never returns one directly: its
// ShellExited event lands on the WAL from the background goroutine once
// the process finishes, and Wake is called to nudge the dispatch loop.
func (e *Executor) Apply(ctx context.Context, eff Effect) (*eventlog.Envelope, error) {
	switch eff.Kind {
	case KindEmit:
		env, err := e.Append(eff.EmitKind, eff.EmitData)
		if err != nil {
			return nil, fmt.Errorf("emit %s: %w", eff.EmitKind, err)
		}
		return &env, nil

	case KindSpawnAgent:
		sessionID, err := e.Agent.Spawn(ctx, eff.AgentID, eff.WorkspacePath, eff.Command, eff.Env, eff.Cwd, eff.SessionName, eff.Input)
		if err != nil {
			return nil, fmt.Errorf("spawn agent %s: %w", eff.AgentID, err)
		}
		env, err := e.Append(eventlog.KindSessionCreated, eventlog.SessionCreated{SessionID: sessionID, Owner: eff.Owner})
		if err != nil {
			return nil, err
		}
		return &env, nil

	case KindReconnectAgent:
		sessionID, err := e.Agent.Reconnect(ctx, eff.AgentID, eff.SessionName)
		if err != nil {
			return nil, fmt.Errorf("reconnect agent %s: %w", eff.AgentID, err)
		}
		env, err := e.Append(eventlog.KindSessionCreated, eventlog.SessionCreated{SessionID: sessionID, Owner: eff.Owner})
		if err != nil {
			return nil, err
		}
		return &env, nil

	case KindSendToAgent:
		if err := e.Agent.Send(ctx, eff.AgentID, eff.Input); err != nil {
			return nil, fmt.Errorf("send to agent %s: %w", eff.AgentID, err)
		}
		return nil, nil

	case KindKillAgent:
		if err := e.Agent.Kill(ctx, eff.AgentID); err != nil {
			return nil, fmt.Errorf("kill agent %s: %w", eff.AgentID, err)
		}
		env, err := e.Append(eventlog.KindSessionDeleted, eventlog.SessionDeleted{SessionID: eff.SessionID})
		if err != nil {
			return nil, err
		}
		return &env, nil

	case KindSpawnShell:
		e.spawnShellAsync(ctx, eff)
		return nil, nil

	case KindSetTimer:
		e.Scheduler.SetTimer(eff.TimerID, eff.TimerDuration, e.now())
		return nil, nil

	case KindCancelTimer:
		e.Scheduler.CancelTimer(eff.TimerID)
		return nil, nil

	case KindCancelTimerPrefix:
		e.Scheduler.CancelTimersWithPrefix(eff.TimerID)
		return nil, nil

	case KindNotify:
		if e.Notifier == nil {
			return nil, nil
		}
		go func() {
			if err := e.Notifier.Notify(context.Background(), eff.Title, eff.Body); err != nil {
				slog.Warn("notify failed", "err", err)
			}
		}()
		return nil, nil

	case KindPrepareWorkspace:
		if err := e.Workspace.Prepare(ctx, eff.Path, eff.Mode, eff.AgentID); err != nil {
			return nil, fmt.Errorf("prepare workspace %s: %w", eff.Path, err)
		}
		return nil, nil

	case KindGateRun:
		e.gateRunAsync(ctx, eff)
		return nil, nil

	case KindPollAgentState:
		e.pollAgentStateAsync(ctx, eff)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown effect kind %q", eff.Kind)
	}
}

// spawnShellAsync runs the shell step in the background and appends
// ShellExited once it completes, waking the dispatch loop so the
// handler reacting to it runs promptly rather than waiting for the next
// poll tick.
func (e *Executor) spawnShellAsync(ctx context.Context, eff Effect) {
	go func() {
		exitCode, stdoutTail, stderrTail, err := e.Shell.Run(ctx, eff.Cwd, eff.ShellCmd, eff.Env)
		if err != nil && exitCode == 0 {
			exitCode = -1
		}
		if _, appendErr := e.Append(eventlog.KindShellExited, eventlog.ShellExited{
			JobID:      eff.JobID,
			Step:       eff.Step,
			ExitCode:   exitCode,
			StdoutTail: stdoutTail,
			StderrTail: stderrTail,
		}); appendErr != nil {
			slog.Error("append ShellExited failed", "job", eff.JobID, "step", eff.Step, "err", appendErr)
			return
		}
		if e.Wake != nil {
			e.Wake()
		}
	}()
}

// pollAgentStateAsync asks the adapter for an agent's current liveness
// state in the background and appends AgentStateObserved with whatever
// comes back, the async shape a liveness timer's firing needs so the
// dispatch loop is never blocked on an adapter round-trip (spec.md
// §4.7's "its firing triggers a poll of the adapter-reported agent
// state").
func (e *Executor) pollAgentStateAsync(ctx context.Context, eff Effect) {
	go func() {
		status, exitCode, category, err := e.Agent.PollState(ctx, eff.AgentID)
		if err != nil {
			slog.Warn("poll agent state failed", "agent", eff.AgentID, "err", err)
			return
		}
		if _, appendErr := e.Append(eventlog.KindAgentStateObserved, eventlog.AgentStateObserved{
			AgentID: eff.AgentID, State: status, ExitCode: exitCode, Category: category,
		}); appendErr != nil {
			slog.Error("append AgentStateObserved failed", "agent", eff.AgentID, "err", appendErr)
			return
		}
		if e.Wake != nil {
			e.Wake()
		}
	}()
}

// gateRunAsync runs a gate action's shell command in the background and
// appends GateResult once it completes, same shape as spawnShellAsync:
// the dispatch loop reacts to the result on its next wake rather than
// blocking on the command here.
func (e *Executor) gateRunAsync(ctx context.Context, eff Effect) {
	go func() {
		exitCode, _, stderrTail, err := e.Shell.Run(ctx, eff.Cwd, eff.GateCmd, nil)
		if err != nil && exitCode == 0 {
			exitCode = -1
		}
		if _, appendErr := e.Append(eventlog.KindGateResult, eventlog.GateResult{
			Owner:      eff.Owner,
			Trigger:    eff.Trigger,
			Category:   eff.Category,
			ChainPos:   eff.ChainPos,
			Cmd:        eff.GateCmd,
			ExitCode:   exitCode,
			StderrTail: stderrTail,
		}); appendErr != nil {
			slog.Error("append GateResult failed", "owner", eff.Owner, "err", appendErr)
			return
		}
		if e.Wake != nil {
			e.Wake()
		}
	}()
}
