// Package adapter provides the concrete collaborators the effect
// executor drives: a tmux-backed agent adapter, an embedded shell
// interpreter, an HTTP notifier, and workspace preparation.
package adapter

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// tailLimit bounds how much of a shell step's stdout/stderr is kept for
// the ShellExited event and the step failure message (spec.md §7).
const tailLimit = 4096

// Shell runs job/agent-run shell steps via an embedded POSIX
// interpreter rather than forking `/bin/sh`, so step execution needs no
// external shell binary and behaves identically across hosts.
type Shell struct{}

// NewShell returns a ready-to-use Shell.
func NewShell() *Shell { return &Shell{} }

// Run parses and interprets command in cwd with env layered over the
// process environment, returning the exit code and separate tails of
// stdout and stderr. A non-zero exit from the script itself is reported via
// exitCode, not err; err is reserved for execution failures (parse
// error, interpreter setup failure).
func (s *Shell) Run(ctx context.Context, cwd, command string, env map[string]string) (exitCode int, stdoutTail, stderrTail string, err error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return -1, "", "", fmt.Errorf("parse shell step: %w", err)
	}

	var stdout, stderr tailBuffer
	runner, err := interp.New(
		interp.StdIO(nil, &stdout, &stderr),
		interp.Dir(cwd),
		interp.Env(expand.ListEnviron(envPairs(env)...)),
	)
	if err != nil {
		return -1, "", "", fmt.Errorf("create shell interpreter: %w", err)
	}

	runErr := runner.Run(ctx, file)
	code := 0
	if runErr != nil {
		var status interp.ExitStatus
		if errorsAsExitStatus(runErr, &status) {
			code = int(status)
		} else {
			return -1, stdout.Tail(), stderr.Tail(), fmt.Errorf("run shell step: %w", runErr)
		}
	}
	return code, stdout.Tail(), stderr.Tail(), nil
}

// errorsAsExitStatus adapts errors.As for the unexported-friendly
// interp.ExitStatus type, which is itself an int implementing error.
func errorsAsExitStatus(err error, target *interp.ExitStatus) bool {
	if status, ok := err.(interp.ExitStatus); ok {
		*target = status
		return true
	}
	return false
}

func envPairs(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	return pairs
}

// tailBuffer keeps only the last tailLimit bytes written to it, so a
// chatty step never retains its entire output in memory.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n, err := t.buf.Write(p)
	if t.buf.Len() > tailLimit {
		trimmed := t.buf.Bytes()[t.buf.Len()-tailLimit:]
		t.buf = *bytes.NewBuffer(append([]byte(nil), trimmed...))
	}
	return n, err
}

func (t *tailBuffer) Tail() string { return t.buf.String() }
