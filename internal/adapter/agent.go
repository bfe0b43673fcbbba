package adapter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/tmux"
)

// Agent supervises agent processes as tmux sessions, one session per
// AgentID (spec.md §5 "Agent records in the adapter: keyed by AgentId;
// one agent per key; concurrent spawn with the same id is a duplicate-
// id error").
type Agent struct {
	svc      tmux.Service
	stateDir string

	mu       sync.Mutex
	sessions map[ids.AgentID]ids.SessionID
	parsers  map[ids.AgentID]*SessionLogParser
}

// NewAgent returns an Agent adapter backed by the host tmux binary.
// stateDir is the $OJ_STATE_DIR root each agent's session.jsonl
// transcript is read from (spec.md §6).
func NewAgent(stateDir string) *Agent {
	return &Agent{
		stateDir: stateDir,
		sessions: map[ids.AgentID]ids.SessionID{},
		parsers:  map[ids.AgentID]*SessionLogParser{},
	}
}

// sessionLogPath returns the path to agentID's session transcript.
func (a *Agent) sessionLogPath(agentID ids.AgentID) string {
	return filepath.Join(a.stateDir, "logs", "agent", string(agentID), "session.jsonl")
}

func (a *Agent) parserFor(agentID ids.AgentID) *SessionLogParser {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.parsers[agentID]
	if !ok {
		p = NewSessionLogParser()
		a.parsers[agentID] = p
	}
	return p
}

// sessionName derives a stable, shell-safe tmux session name from an
// agent id.
func sessionName(agentID ids.AgentID) string {
	return "oj-" + strings.ReplaceAll(string(agentID), "/", "-")
}

// Spawn creates a new tmux session for agentID running command, then
// types input (if any) and presses enter.
func (a *Agent) Spawn(ctx context.Context, agentID ids.AgentID, workspacePath string, command []string, env map[string]string, cwd, wantName, input string) (ids.SessionID, error) {
	a.mu.Lock()
	if _, exists := a.sessions[agentID]; exists {
		a.mu.Unlock()
		return "", fmt.Errorf("agent %s already has a session", agentID)
	}
	name := wantName
	if name == "" {
		name = sessionName(agentID)
	}
	a.sessions[agentID] = ids.SessionID(name)
	a.mu.Unlock()

	if cwd == "" {
		cwd = workspacePath
	}
	if err := a.svc.CreateSession(ctx, name, cwd); err != nil {
		a.mu.Lock()
		delete(a.sessions, agentID)
		a.mu.Unlock()
		return "", fmt.Errorf("create tmux session %s: %w", name, err)
	}

	cmdLine := strings.Join(command, " ")
	if cmdLine != "" {
		if err := a.svc.SendKeys(ctx, name+":0.0", cmdLine, true); err != nil {
			return "", fmt.Errorf("start agent command in %s: %w", name, err)
		}
	}
	if input != "" {
		if err := a.svc.SendKeys(ctx, name+":0.0", input, true); err != nil {
			return "", fmt.Errorf("prime agent input in %s: %w", name, err)
		}
	}
	return ids.SessionID(name), nil
}

// Send types input into the agent's pane and presses enter.
func (a *Agent) Send(ctx context.Context, agentID ids.AgentID, input string) error {
	name, ok := a.sessionFor(agentID)
	if !ok {
		return fmt.Errorf("agent %s has no session", agentID)
	}
	return a.svc.SendKeys(ctx, name+":0.0", input, true)
}

// Kill terminates the agent's tmux session.
func (a *Agent) Kill(ctx context.Context, agentID ids.AgentID) error {
	name, ok := a.sessionFor(agentID)
	if !ok {
		return nil
	}
	a.mu.Lock()
	delete(a.sessions, agentID)
	delete(a.parsers, agentID)
	a.mu.Unlock()
	return a.svc.KillSession(ctx, name)
}

// Reconnect attaches to an existing tmux session surviving a daemon
// restart, verifying it is still alive.
func (a *Agent) Reconnect(ctx context.Context, agentID ids.AgentID, wantName string) (ids.SessionID, error) {
	name := wantName
	if name == "" {
		name = sessionName(agentID)
	}
	exists, err := a.svc.SessionExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("check tmux session %s: %w", name, err)
	}
	if !exists {
		return "", fmt.Errorf("tmux session %s is gone", name)
	}
	a.mu.Lock()
	a.sessions[agentID] = ids.SessionID(name)
	a.mu.Unlock()
	return ids.SessionID(name), nil
}

func (a *Agent) sessionFor(agentID ids.AgentID) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.sessions[agentID]
	return string(id), ok
}

// PollState reports agentID's adapter-observed liveness, the operation
// a liveness timer's firing drives (spec.md §4.7): Gone if its tmux
// session has disappeared, otherwise Running or Idle per the last
// complete line of its session transcript. It never reports Exited or
// Failed and never returns an exit code or error category; the
// agent-hook command reports only idle and running states.
func (a *Agent) PollState(ctx context.Context, agentID ids.AgentID) (core.AgentStatus, *int, string, error) {
	name, ok := a.sessionFor(agentID)
	if !ok {
		return core.AgentGone, nil, "", nil
	}
	exists, err := a.svc.SessionExists(ctx, name)
	if err != nil {
		return core.AgentStarting, nil, "", fmt.Errorf("check tmux session %s: %w", name, err)
	}
	if !exists {
		a.mu.Lock()
		delete(a.sessions, agentID)
		delete(a.parsers, agentID)
		a.mu.Unlock()
		return core.AgentGone, nil, "", nil
	}
	status, err := a.parserFor(agentID).Parse(a.sessionLogPath(agentID))
	if err != nil {
		return core.AgentStarting, nil, "", fmt.Errorf("parse session log for %s: %w", agentID, err)
	}
	return status, nil, "", nil
}
