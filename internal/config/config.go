// Package config loads daemon configuration from OJ_* environment
// variables with a config.toml fallback, following the teacher's
// env-first-then-file precedence.
package config

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable the daemon reads at startup.
type Config struct {
	StateDir string
	SockPath string

	TimerCheckInterval time.Duration
	WatcherPollInterval time.Duration
	SessionPollInterval time.Duration
	PromptPollInterval  time.Duration
	RunWait             time.Duration

	BusEmit bool

	LogLevel string
	NoColor  bool

	NotifyURL string
	HookCommand []string
}

var (
	osUserHomeDir = os.UserHomeDir
	osCurrentUser = user.Current
	osGeteuid     = os.Geteuid
	osTempDir     = os.TempDir
)

const defaultConfigContent = `# Odd Jobs daemon configuration.
# All values shown are defaults. Uncomment and edit to customize.

# Directory holding the WAL, snapshot, and unix socket.
# Environment variable: OJ_STATE_DIR
# state_dir = "~/.local/state/oddjobs"

# Liveness/timer check interval.
# Environment variable: OJ_TIMER_CHECK_MS
# timer_check_ms = 1000

# Session watcher poll interval.
# Environment variable: OJ_WATCHER_POLL_MS
# watcher_poll_ms = 1000

# Prompt/pane poll interval.
# Environment variable: OJ_PROMPT_POLL_MS
# prompt_poll_ms = 500

# Queue poll interval used by workers.
# Environment variable: OJ_SESSION_POLL_MS
# session_poll_ms = 1000

# How long a synchronous "run" IPC request waits before returning early.
# Environment variable: OJ_RUN_WAIT_MS
# run_wait_ms = 30000

# Whether to wake the event bus on every emitted event (set false only
# for debugging the polling fallback).
# Environment variable: OJ_BUS_EMIT
# bus_emit = true

# Log level: debug, info, warn, error.
# log_level = "info"

# Webhook URL for Notify effects. Empty disables notifications.
# notify_url = ""
`

// Load reads the environment, falling back to config.toml under the
// resolved state directory, and returns a fully populated Config.
func Load() Config {
	cfg := Config{
		TimerCheckInterval:  1 * time.Second,
		WatcherPollInterval: 1 * time.Second,
		SessionPollInterval: 1 * time.Second,
		PromptPollInterval:  500 * time.Millisecond,
		RunWait:             30 * time.Second,
		BusEmit:             true,
		LogLevel:            "info",
		HookCommand:         []string{"oj", "agent-hook"},
	}

	cfg.StateDir = resolveStateDir()
	cfg.SockPath = filepath.Join(cfg.StateDir, "daemon.sock")

	configPath := filepath.Join(cfg.StateDir, "config.toml")
	ensureDefaultConfig(configPath)

	file := loadTOML(configPath)
	applyCoreConfig(&cfg, file)

	cfg.NoColor = readBoolEnvOrFile("NO_COLOR", "", file, false)
	if v := strings.TrimSpace(os.Getenv("COLOR")); v != "" {
		if parsed, ok := parseBool(v); ok {
			cfg.NoColor = !parsed
		}
	}

	return cfg
}

// resolveStateDir follows spec.md §6: OJ_STATE_DIR, then an
// XDG_STATE_HOME-derived path, then a HOME-derived fallback, then a
// temp-dir last resort for restricted service environments.
func resolveStateDir() string {
	if v := strings.TrimSpace(os.Getenv("OJ_STATE_DIR")); v != "" {
		return v
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "oddjobs")
	}
	if home, err := resolveHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "oddjobs")
	}
	return filepath.Join(osTempDir(), "oddjobs")
}

func ensureDefaultConfig(configPath string) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		writeDefaultConfig(configPath)
	}
}

func applyCoreConfig(cfg *Config, file map[string]any) {
	if cfg == nil {
		return
	}

	cfg.TimerCheckInterval = readDurationMSEnvOrFile("OJ_TIMER_CHECK_MS", "timer_check_ms", file, cfg.TimerCheckInterval)
	cfg.WatcherPollInterval = readDurationMSEnvOrFile("OJ_WATCHER_POLL_MS", "watcher_poll_ms", file, cfg.WatcherPollInterval)
	cfg.SessionPollInterval = readDurationMSEnvOrFile("OJ_SESSION_POLL_MS", "session_poll_ms", file, cfg.SessionPollInterval)
	cfg.PromptPollInterval = readDurationMSEnvOrFile("OJ_PROMPT_POLL_MS", "prompt_poll_ms", file, cfg.PromptPollInterval)
	cfg.RunWait = readDurationMSEnvOrFile("OJ_RUN_WAIT_MS", "run_wait_ms", file, cfg.RunWait)

	cfg.BusEmit = readBoolEnvOrFile("OJ_BUS_EMIT", "bus_emit", file, cfg.BusEmit)

	if level := readRawEnvOrFile("OJ_LOG_LEVEL", "log_level", file); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}
	if url := readRawEnvOrFile("OJ_NOTIFY_URL", "notify_url", file); url != "" {
		cfg.NotifyURL = url
	}
}

func readRawEnvOrFile(envKey, fileKey string, file map[string]any) string {
	if envKey != "" {
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			return v
		}
	}
	if file == nil || fileKey == "" {
		return ""
	}
	if v, ok := file[fileKey]; ok {
		return strings.TrimSpace(toString(v))
	}
	return ""
}

func readBoolEnvOrFile(envKey, fileKey string, file map[string]any, fallback bool) bool {
	raw := readRawEnvOrFile(envKey, fileKey, file)
	if raw == "" {
		return fallback
	}
	if parsed, ok := parseBool(raw); ok {
		return parsed
	}
	return fallback
}

func readDurationMSEnvOrFile(envKey, fileKey string, file map[string]any, fallback time.Duration) time.Duration {
	raw := readRawEnvOrFile(envKey, fileKey, file)
	if raw == "" {
		return fallback
	}
	ms, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// loadTOML reads config.toml into a flat key->value map. Returns an
// empty map if the file does not exist or fails to parse: a broken
// config file falls back to defaults rather than failing startup.
func loadTOML(path string) map[string]any {
	m := make(map[string]any)
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// writeDefaultConfig creates the config file with commented-out
// defaults. Best-effort: errors are silently ignored.
func writeDefaultConfig(path string) {
	_ = os.MkdirAll(filepath.Dir(path), 0o700)
	_ = os.WriteFile(path, []byte(defaultConfigContent), 0o600) //nolint:gosec // fixed content, not user input
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func resolveHomeDir() (string, error) {
	if home := strings.TrimSpace(os.Getenv("HOME")); home != "" {
		return home, nil
	}
	if home, err := osUserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return strings.TrimSpace(home), nil
	}
	if current, err := osCurrentUser(); err == nil && current != nil {
		if home := strings.TrimSpace(current.HomeDir); home != "" {
			return home, nil
		}
	}
	if osGeteuid() == 0 {
		// System services may run without HOME set.
		if runtime.GOOS == "darwin" {
			return "/var/root", nil
		}
		return "/root", nil
	}
	return "", errors.New("home directory not found")
}
