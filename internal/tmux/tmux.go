// Package tmux wraps the host tmux binary as the session backend for
// supervised agent/shell processes: one tmux session per AgentID,
// created, driven, and torn down by internal/adapter (spec.md §5's
// "Agent records in the adapter: keyed by AgentId; one agent per key").
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrorKind classifies a failed tmux invocation so callers can react
// without string-matching stderr themselves.
type ErrorKind string

const (
	ErrKindNotFound          ErrorKind = "TMUX_NOT_FOUND"
	ErrKindSessionNotFound   ErrorKind = "SESSION_NOT_FOUND"
	ErrKindSessionExists     ErrorKind = "SESSION_ALREADY_EXISTS"
	ErrKindServerNotRunning  ErrorKind = "TMUX_SERVER_NOT_RUNNING"
	ErrKindCommandFailed     ErrorKind = "TMUX_COMMAND_FAILED"
	ErrKindInvalidIdentifier ErrorKind = "INVALID_IDENTIFIER"
)

type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var terr *Error
	return errors.As(err, &terr) && terr.Kind == kind
}

// CreateSession starts a new detached tmux session named name, cd'd
// into cwd if given.
func CreateSession(ctx context.Context, name, cwd string) error {
	args := []string{"new-session", "-d", "-s", name}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	_, err := run(ctx, args...)
	return err
}

// KillSession terminates the named session.
func KillSession(ctx context.Context, session string) error {
	_, err := run(ctx, "kill-session", "-t", session)
	return err
}

// SendKeys types keys into the target pane, literally (-l, so tmux
// key-table bindings never fire on the agent's own output), then
// presses enter if requested.
func SendKeys(ctx context.Context, paneID, keys string, enter bool) error {
	keys = strings.TrimSpace(keys)
	if keys != "" {
		if _, err := run(ctx, "send-keys", "-t", paneID, "-l", keys); err != nil {
			return err
		}
	}
	if enter {
		if _, err := run(ctx, "send-keys", "-t", paneID, "C-m"); err != nil {
			return err
		}
	}
	return nil
}

// CapturePaneLines returns the trailing lines of scrollback for target,
// used to tail an agent's session log (spec.md §6's session.jsonl).
func CapturePaneLines(ctx context.Context, target string, lines int) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", &Error{Kind: ErrKindInvalidIdentifier, Msg: "target is required"}
	}
	if lines <= 0 {
		lines = 80
	}
	start := fmt.Sprintf("-%d", lines)
	out, err := run(ctx, "capture-pane", "-t", target, "-p", "-S", start)
	if err != nil {
		return "", err
	}
	return out, nil
}

// SessionExists reports whether session is still alive, treating
// "not found"/"server not running" as a clean false rather than an
// error: both mean the agent is gone, not that the check failed.
func SessionExists(ctx context.Context, session string) (bool, error) {
	_, err := run(ctx, "has-session", "-t", session)
	if err != nil {
		if IsKind(err, ErrKindSessionNotFound) || IsKind(err, ErrKindServerNotRunning) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// run shells out to the tmux binary. A package variable so tests can
// substitute a fake without spawning a real process.
var run = func(ctx context.Context, args ...string) (string, error) { //nolint:gochecknoglobals // var enables test injection
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", classifyError(err, stderr.String(), args)
	}
	return stdout.String(), nil
}

func classifyError(err error, stderr string, args []string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return &Error{Kind: ErrKindNotFound, Msg: "tmux binary not found", Err: err}
	}

	msg := strings.ToLower(strings.TrimSpace(stderr))
	switch {
	case strings.Contains(msg, "can't find session"), strings.Contains(msg, "no such session"):
		return &Error{Kind: ErrKindSessionNotFound, Msg: strings.TrimSpace(stderr), Err: err}
	case strings.Contains(msg, "duplicate session"), strings.Contains(msg, "already exists"):
		return &Error{Kind: ErrKindSessionExists, Msg: strings.TrimSpace(stderr), Err: err}
	case isServerNotRunningMessage(msg):
		return &Error{Kind: ErrKindServerNotRunning, Msg: strings.TrimSpace(stderr), Err: err}
	default:
		return &Error{
			Kind: ErrKindCommandFailed,
			Msg:  fmt.Sprintf("tmux %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr)),
			Err:  err,
		}
	}
}

func isServerNotRunningMessage(msg string) bool {
	return strings.Contains(msg, "failed to connect to server") ||
		strings.Contains(msg, "can't connect to server") ||
		strings.Contains(msg, "no server running") ||
		(strings.Contains(msg, "error connecting to") && strings.Contains(msg, "no such file or directory"))
}
