package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opus-domini/sentinel/internal/core/ids"
	"github.com/opus-domini/sentinel/internal/effects"
)

// Workspace creates job/agent-run working directories and, for
// agent-mode workspaces, the hook settings file an agent CLI reads on
// startup (spec.md §4.5 PrepareWorkspace, §6 claude-settings.json).
type Workspace struct {
	// HookCommand is the CLI invocation hooks should shell out to,
	// e.g. ["oj", "agent-hook"]. Each hook entry appends its own
	// subcommand name as an argument.
	HookCommand []string
}

// NewWorkspace returns a Workspace that points generated hooks back at
// hookCommand.
func NewWorkspace(hookCommand []string) *Workspace {
	return &Workspace{HookCommand: hookCommand}
}

type hookEntry struct {
	Matcher string      `json:"matcher,omitempty"`
	Hooks   []hookEntry `json:"hooks,omitempty"`
	Type    string      `json:"type,omitempty"`
	Command string      `json:"command,omitempty"`
}

type agentSettings struct {
	Hooks map[string][]hookEntry `json:"hooks"`
}

// Prepare creates path (and parents). For effects.WorkspaceAgent it
// additionally writes .claude/settings.json inside path with Stop/Notification/
// PreToolUse/SessionStart hooks shelling back into the CLI's
// agent-hook subcommands (each carrying agentID so the daemon knows
// which agent reported), so the supervised agent reports lifecycle
// events through the same IPC surface the daemon listens on.
func (w *Workspace) Prepare(ctx context.Context, path string, mode effects.WorkspaceMode, agentID ids.AgentID) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create workspace %s: %w", path, err)
	}
	if mode != effects.WorkspaceAgent {
		return nil
	}
	return w.writeSettings(path, agentID)
}

func (w *Workspace) writeSettings(workspacePath string, agentID ids.AgentID) error {
	settings := agentSettings{Hooks: map[string][]hookEntry{
		"Stop":         {{Hooks: []hookEntry{{Type: "command", Command: w.hookCmd("stop", agentID)}}}},
		"Notification": {{Hooks: []hookEntry{{Type: "command", Command: w.hookCmd("notification", agentID)}}}},
		"PreToolUse":   {{Matcher: "*", Hooks: []hookEntry{{Type: "command", Command: w.hookCmd("pre-tool-use", agentID)}}}},
		"SessionStart": {{Hooks: []hookEntry{{Type: "command", Command: w.hookCmd("session-start", agentID)}}}},
	}}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal agent settings: %w", err)
	}
	dir := filepath.Join(workspacePath, ".claude")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (w *Workspace) hookCmd(subcommand string, agentID ids.AgentID) string {
	parts := append(append([]string(nil), w.HookCommand...), subcommand, "--agent", string(agentID))
	cmd := ""
	for i, p := range parts {
		if i > 0 {
			cmd += " "
		}
		cmd += p
	}
	return cmd
}
