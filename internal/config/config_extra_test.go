package config

import (
	"errors"
	"os/user"
	"path/filepath"
	"testing"
)

func TestParseBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		wantV  bool
		wantOK bool
	}{
		{"true", "true", true, true},
		{"TRUE", "TRUE", true, true},
		{"yes", "yes", true, true},
		{"1", "1", true, true},
		{"on", "on", true, true},
		{"false", "false", false, true},
		{"FALSE", "FALSE", false, true},
		{"no", "no", false, true},
		{"0", "0", false, true},
		{"off", "off", false, true},
		{"invalid", "maybe", false, false},
		{"empty", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, ok := parseBool(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("parseBool(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if v != tt.wantV {
				t.Fatalf("parseBool(%q) = %v, want %v", tt.input, v, tt.wantV)
			}
		})
	}
}

func TestLoadFallsBackToCurrentUserHome(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	t.Setenv("HOME", "")

	originalHomeFn := osUserHomeDir
	originalCurrentFn := osCurrentUser
	t.Cleanup(func() {
		osUserHomeDir = originalHomeFn
		osCurrentUser = originalCurrentFn
	})

	osUserHomeDir = func() (string, error) {
		return "", errors.New("home unavailable")
	}
	osCurrentUser = func() (*user.User, error) {
		return &user.User{HomeDir: dir}, nil
	}

	cfg := Load()
	want := filepath.Join(dir, ".local", "state", "oddjobs")
	if cfg.StateDir != want {
		t.Fatalf("StateDir = %q, want %q", cfg.StateDir, want)
	}
}

func TestLoadFallsBackToTempDirWhenHomeUnavailable(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	t.Setenv("HOME", "")

	originalHomeFn := osUserHomeDir
	originalCurrentFn := osCurrentUser
	originalGeteuidFn := osGeteuid
	originalTempDirFn := osTempDir
	t.Cleanup(func() {
		osUserHomeDir = originalHomeFn
		osCurrentUser = originalCurrentFn
		osGeteuid = originalGeteuidFn
		osTempDir = originalTempDirFn
	})

	osUserHomeDir = func() (string, error) {
		return "", errors.New("home unavailable")
	}
	osCurrentUser = func() (*user.User, error) {
		return nil, errors.New("user unavailable")
	}
	osGeteuid = func() int {
		return 1000
	}
	osTempDir = func() string {
		return dir
	}

	cfg := Load()
	want := filepath.Join(dir, "oddjobs")
	if cfg.StateDir != want {
		t.Fatalf("StateDir = %q, want %q", cfg.StateDir, want)
	}
}

func TestResolveHomeDirRootFallback(t *testing.T) {
	originalGeteuidFn := osGeteuid
	originalHomeFn := osUserHomeDir
	originalCurrentFn := osCurrentUser
	t.Cleanup(func() {
		osGeteuid = originalGeteuidFn
		osUserHomeDir = originalHomeFn
		osCurrentUser = originalCurrentFn
	})

	t.Setenv("HOME", "")
	osUserHomeDir = func() (string, error) { return "", errors.New("unavailable") }
	osCurrentUser = func() (*user.User, error) { return nil, errors.New("unavailable") }
	osGeteuid = func() int { return 0 }

	home, err := resolveHomeDir()
	if err != nil {
		t.Fatalf("resolveHomeDir: %v", err)
	}
	if home != "/root" && home != "/var/root" {
		t.Fatalf("resolveHomeDir = %q, want a root fallback", home)
	}
}
