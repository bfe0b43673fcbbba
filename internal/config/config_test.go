package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearOJEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OJ_STATE_DIR", "XDG_STATE_HOME", "OJ_TIMER_CHECK_MS", "OJ_WATCHER_POLL_MS",
		"OJ_SESSION_POLL_MS", "OJ_PROMPT_POLL_MS", "OJ_RUN_WAIT_MS", "OJ_BUS_EMIT",
		"OJ_LOG_LEVEL", "OJ_NOTIFY_URL", "NO_COLOR", "COLOR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `log_level = "debug"
notify_url = "http://localhost:9000/hook"
timer_check_ms = 2000
bus_emit = false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	m := loadTOML(path)
	if m["log_level"] != "debug" {
		t.Errorf("log_level = %v, want debug", m["log_level"])
	}
	if m["notify_url"] != "http://localhost:9000/hook" {
		t.Errorf("notify_url = %v", m["notify_url"])
	}
}

func TestLoadTOMLMissing(t *testing.T) {
	m := loadTOML("/nonexistent/path/config.toml")
	if len(m) != 0 {
		t.Errorf("expected empty map for missing file, got %v", m)
	}
}

func TestLoadTOMLMalformedFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("this is not = [ valid toml"), 0o600); err != nil {
		t.Fatal(err)
	}
	m := loadTOML(path)
	if len(m) != 0 {
		t.Errorf("expected empty map for malformed file, got %v", m)
	}
}

func TestLoadUsesStateDirFromEnv(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	t.Setenv("OJ_STATE_DIR", dir)

	cfg := Load()
	if cfg.StateDir != dir {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, dir)
	}
	if cfg.SockPath != filepath.Join(dir, "daemon.sock") {
		t.Errorf("SockPath = %q", cfg.SockPath)
	}
}

func TestLoadUsesXDGStateHome(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	cfg := Load()
	want := filepath.Join(dir, "oddjobs")
	if cfg.StateDir != want {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, want)
	}
}

func TestLoadUsesConfigFile(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `log_level = "warn"
notify_url = "http://example.invalid/hook"
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OJ_STATE_DIR", dir)

	cfg := Load()
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.NotifyURL != "http://example.invalid/hook" {
		t.Errorf("NotifyURL = %q", cfg.NotifyURL)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte(`log_level = "warn"`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OJ_STATE_DIR", dir)
	t.Setenv("OJ_LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (env should win)", cfg.LogLevel)
	}
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	t.Setenv("OJ_STATE_DIR", dir)

	_ = Load()

	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	if !strings.Contains(string(data), "OJ_STATE_DIR") {
		t.Error("expected default config to document OJ_STATE_DIR")
	}
}

func TestLoadDoesNotOverwriteExistingConfig(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte(`log_level = "error"`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OJ_STATE_DIR", dir)

	cfg := Load()
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (existing file preserved)", cfg.LogLevel)
	}
}

func TestDurationEnvOverridesMilliseconds(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	t.Setenv("OJ_STATE_DIR", dir)
	t.Setenv("OJ_TIMER_CHECK_MS", "2500")

	cfg := Load()
	if cfg.TimerCheckInterval != 2500*time.Millisecond {
		t.Errorf("TimerCheckInterval = %v, want 2500ms", cfg.TimerCheckInterval)
	}
}

func TestDurationFileFallsBackOnGarbage(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte(`timer_check_ms = -5`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OJ_STATE_DIR", dir)

	cfg := Load()
	if cfg.TimerCheckInterval != 1*time.Second {
		t.Errorf("TimerCheckInterval = %v, want default 1s for invalid value", cfg.TimerCheckInterval)
	}
}

func TestBusEmitDefaultsTrue(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	t.Setenv("OJ_STATE_DIR", dir)

	cfg := Load()
	if !cfg.BusEmit {
		t.Error("BusEmit default should be true")
	}
}

func TestBusEmitFalseFromEnv(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	t.Setenv("OJ_STATE_DIR", dir)
	t.Setenv("OJ_BUS_EMIT", "false")

	cfg := Load()
	if cfg.BusEmit {
		t.Error("BusEmit should be false")
	}
}

func TestNoColorEnv(t *testing.T) {
	clearOJEnv(t)
	dir := t.TempDir()
	t.Setenv("OJ_STATE_DIR", dir)
	t.Setenv("NO_COLOR", "1")

	cfg := Load()
	if !cfg.NoColor {
		t.Error("NoColor should be true when NO_COLOR is set")
	}
}

func TestReadRawEnvOrFileNilMap(t *testing.T) {
	t.Setenv("TEST_RAW_NIL_MAP_KEY", "")
	got := readRawEnvOrFile("TEST_RAW_NIL_MAP_KEY", "key", nil)
	if got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
