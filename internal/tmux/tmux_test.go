package tmux

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func setRun(t *testing.T, fn func(ctx context.Context, args ...string) (string, error)) {
	t.Helper()
	orig := run
	run = fn
	t.Cleanup(func() { run = orig })
}

func TestCreateSession(t *testing.T) {
	t.Parallel()
	t.Run("without cwd", func(t *testing.T) {
		var gotArgs []string
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			gotArgs = args
			return "", nil
		})
		if err := CreateSession(context.Background(), "oj-1", ""); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		want := "new-session -d -s oj-1"
		if got := strings.Join(gotArgs, " "); got != want {
			t.Fatalf("args = %q, want %q", got, want)
		}
	})

	t.Run("with cwd", func(t *testing.T) {
		var gotArgs []string
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			gotArgs = args
			return "", nil
		})
		if err := CreateSession(context.Background(), "oj-1", "/repo"); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		want := "new-session -d -s oj-1 -c /repo"
		if got := strings.Join(gotArgs, " "); got != want {
			t.Fatalf("args = %q, want %q", got, want)
		}
	})

	t.Run("propagates run error", func(t *testing.T) {
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			return "", &Error{Kind: ErrKindSessionExists, Msg: "duplicate session"}
		})
		err := CreateSession(context.Background(), "oj-1", "")
		if !IsKind(err, ErrKindSessionExists) {
			t.Fatalf("err = %v, want ErrKindSessionExists", err)
		}
	})
}

func TestKillSession(t *testing.T) {
	t.Parallel()
	var gotArgs []string
	setRun(t, func(ctx context.Context, args ...string) (string, error) {
		gotArgs = args
		return "", nil
	})
	if err := KillSession(context.Background(), "oj-1"); err != nil {
		t.Fatalf("KillSession: %v", err)
	}
	want := "kill-session -t oj-1"
	if got := strings.Join(gotArgs, " "); got != want {
		t.Fatalf("args = %q, want %q", got, want)
	}
}

func TestSendKeys(t *testing.T) {
	t.Parallel()
	t.Run("keys and enter", func(t *testing.T) {
		var calls [][]string
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			calls = append(calls, args)
			return "", nil
		})
		if err := SendKeys(context.Background(), "oj-1", "echo hi", true); err != nil {
			t.Fatalf("SendKeys: %v", err)
		}
		if len(calls) != 2 {
			t.Fatalf("calls = %+v, want 2", calls)
		}
		if got := strings.Join(calls[0], " "); got != "send-keys -t oj-1 -l echo hi" {
			t.Fatalf("first call = %q", got)
		}
		if got := strings.Join(calls[1], " "); got != "send-keys -t oj-1 C-m" {
			t.Fatalf("second call = %q", got)
		}
	})

	t.Run("empty keys skips literal send", func(t *testing.T) {
		var calls [][]string
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			calls = append(calls, args)
			return "", nil
		})
		if err := SendKeys(context.Background(), "oj-1", "   ", true); err != nil {
			t.Fatalf("SendKeys: %v", err)
		}
		if len(calls) != 1 {
			t.Fatalf("calls = %+v, want only the enter keypress", calls)
		}
	})

	t.Run("no enter", func(t *testing.T) {
		var calls [][]string
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			calls = append(calls, args)
			return "", nil
		})
		if err := SendKeys(context.Background(), "oj-1", "abc", false); err != nil {
			t.Fatalf("SendKeys: %v", err)
		}
		if len(calls) != 1 {
			t.Fatalf("calls = %+v, want only the literal send", calls)
		}
	})
}

func TestCapturePaneLines(t *testing.T) {
	t.Parallel()
	t.Run("defaults line count", func(t *testing.T) {
		var gotArgs []string
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			gotArgs = args
			return "output\n", nil
		})
		out, err := CapturePaneLines(context.Background(), "oj-1", 0)
		if err != nil {
			t.Fatalf("CapturePaneLines: %v", err)
		}
		if out != "output\n" {
			t.Fatalf("out = %q", out)
		}
		want := "capture-pane -t oj-1 -p -S -80"
		if got := strings.Join(gotArgs, " "); got != want {
			t.Fatalf("args = %q, want %q", got, want)
		}
	})

	t.Run("custom line count", func(t *testing.T) {
		var gotArgs []string
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			gotArgs = args
			return "", nil
		})
		if _, err := CapturePaneLines(context.Background(), "oj-1", 25); err != nil {
			t.Fatalf("CapturePaneLines: %v", err)
		}
		want := "capture-pane -t oj-1 -p -S -25"
		if got := strings.Join(gotArgs, " "); got != want {
			t.Fatalf("args = %q, want %q", got, want)
		}
	})

	t.Run("rejects empty target", func(t *testing.T) {
		_, err := CapturePaneLines(context.Background(), "  ", 10)
		if !IsKind(err, ErrKindInvalidIdentifier) {
			t.Fatalf("err = %v, want ErrKindInvalidIdentifier", err)
		}
	})
}

func TestSessionExists(t *testing.T) {
	t.Parallel()
	t.Run("true", func(t *testing.T) {
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			return "", nil
		})
		ok, err := SessionExists(context.Background(), "oj-1")
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v, want true/nil", ok, err)
		}
	})

	t.Run("false on session not found", func(t *testing.T) {
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			return "", &Error{Kind: ErrKindSessionNotFound}
		})
		ok, err := SessionExists(context.Background(), "oj-1")
		if err != nil || ok {
			t.Fatalf("ok=%v err=%v, want false/nil", ok, err)
		}
	})

	t.Run("false on server not running", func(t *testing.T) {
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			return "", &Error{Kind: ErrKindServerNotRunning}
		})
		ok, err := SessionExists(context.Background(), "oj-1")
		if err != nil || ok {
			t.Fatalf("ok=%v err=%v, want false/nil", ok, err)
		}
	})

	t.Run("propagates other errors", func(t *testing.T) {
		setRun(t, func(ctx context.Context, args ...string) (string, error) {
			return "", &Error{Kind: ErrKindCommandFailed}
		})
		_, err := SessionExists(context.Background(), "oj-1")
		if !IsKind(err, ErrKindCommandFailed) {
			t.Fatalf("err = %v, want ErrKindCommandFailed", err)
		}
	})
}

func TestErrorString(t *testing.T) {
	t.Parallel()
	e := &Error{Kind: ErrKindCommandFailed, Msg: "boom"}
	if e.Error() != "boom" {
		t.Fatalf("Error() = %q", e.Error())
	}
	wrapped := &Error{Kind: ErrKindCommandFailed, Err: errors.New("inner")}
	if wrapped.Error() != "inner" {
		t.Fatalf("Error() = %q, want fallback to wrapped err", wrapped.Error())
	}
	bare := &Error{Kind: ErrKindCommandFailed}
	if bare.Error() != string(ErrKindCommandFailed) {
		t.Fatalf("Error() = %q, want kind fallback", bare.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("inner")
	e := &Error{Kind: ErrKindCommandFailed, Err: inner}
	if !errors.Is(e, inner) {
		t.Fatal("expected errors.Is to unwrap to inner")
	}
}

func TestIsKind(t *testing.T) {
	t.Parallel()
	if IsKind(errors.New("plain"), ErrKindCommandFailed) {
		t.Fatal("plain error must not match any Kind")
	}
	if !IsKind(&Error{Kind: ErrKindNotFound}, ErrKindNotFound) {
		t.Fatal("expected matching Kind")
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		err    error
		stderr string
		want   ErrorKind
	}{
		{"binary missing", exec.ErrNotFound, "", ErrKindNotFound},
		{"session not found", errors.New("exit 1"), "can't find session: oj-1", ErrKindSessionNotFound},
		{"no such session", errors.New("exit 1"), "no such session", ErrKindSessionNotFound},
		{"duplicate session", errors.New("exit 1"), "duplicate session: oj-1", ErrKindSessionExists},
		{"already exists", errors.New("exit 1"), "session already exists", ErrKindSessionExists},
		{"server not running", errors.New("exit 1"), "failed to connect to server", ErrKindServerNotRunning},
		{"generic failure", errors.New("exit 1"), "something else broke", ErrKindCommandFailed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classifyError(tc.err, tc.stderr, []string{"has-session"})
			if !IsKind(got, tc.want) {
				t.Fatalf("classifyError(%q) kind = %v, want %v", tc.stderr, got, tc.want)
			}
		})
	}
}

func TestIsServerNotRunningMessage(t *testing.T) {
	t.Parallel()
	cases := []struct {
		msg  string
		want bool
	}{
		{"failed to connect to server", true},
		{"can't connect to server /tmp/tmux-0/default", true},
		{"no server running on /tmp/tmux-0/default", true},
		{"error connecting to /tmp/tmux-0/default (no such file or directory)", true},
		{"error connecting to /tmp/tmux-0/default (permission denied)", false},
		{"unrelated error", false},
	}
	for _, tc := range cases {
		if got := isServerNotRunningMessage(tc.msg); got != tc.want {
			t.Fatalf("isServerNotRunningMessage(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}
