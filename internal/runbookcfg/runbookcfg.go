// Package runbookcfg loads runbook files (TOML) into core.Runbook and
// computes the content-addressed hash the engine uses to detect
// changes across reloads (spec.md §4.1 "Runbook cache").
package runbookcfg

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"github.com/opus-domini/sentinel/internal/core"
)

// fileAction mirrors core.ActionDef with TOML-friendly field names.
type fileAction struct {
	Action   string `toml:"action"`
	Budget   string `toml:"budget"` // "forever" or a positive integer, as a string
	Cooldown string `toml:"cooldown"`
	GateCmd  string `toml:"gate_cmd"`
	Message  string `toml:"message"`
}

type fileAgent struct {
	Command []string              `toml:"command"`
	Env     map[string]string     `toml:"env"`
	Prime   string                `toml:"prime"`
	OnIdle  []fileAction          `toml:"on_idle"`
	OnDead  []fileAction          `toml:"on_dead"`
	OnError map[string][]fileAction `toml:"on_error"`
}

type fileStep struct {
	Kind    string `toml:"kind"`
	Command string `toml:"command"`
	Agent   string `toml:"agent"`
	Target  string `toml:"target"`
	OnDone  string `toml:"on_done"`
	OnFail  string `toml:"on_fail"`
}

type fileJob struct {
	EntryStep string              `toml:"entry_step"`
	Steps     map[string]fileStep `toml:"steps"`
}

type fileRetry struct {
	Attempts int    `toml:"attempts"`
	Cooldown string `toml:"cooldown"`
}

type fileQueue struct {
	External  bool       `toml:"external"`
	ListCmd   string     `toml:"list_cmd"`
	TakeCmd   string     `toml:"take_cmd"`
	PollEvery string     `toml:"poll_every"`
	Retry     *fileRetry `toml:"retry"`
}

type fileWorker struct {
	Queue       string `toml:"queue"`
	Handler     string `toml:"handler"`
	Concurrency int    `toml:"concurrency"`
}

type fileCron struct {
	Interval    string `toml:"interval"`
	Target      string `toml:"target"`
	Concurrency int    `toml:"concurrency"`
}

// fileRunbook is the TOML document shape. Version defaults to 1 when
// absent, matching a runbook file with no explicit schema version.
type fileRunbook struct {
	Version int                  `toml:"version"`
	Locals  map[string]string    `toml:"locals"`
	Jobs    map[string]fileJob   `toml:"jobs"`
	Agents  map[string]fileAgent `toml:"agents"`
	Queues  map[string]fileQueue `toml:"queues"`
	Workers map[string]fileWorker `toml:"workers"`
	Crons   map[string]fileCron  `toml:"crons"`
}

// Load reads and parses the runbook file at path, returning a
// core.Runbook with Hash populated from the canonical JSON encoding of
// its contents.
func Load(path string) (core.Runbook, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied config, not untrusted input
	if err != nil {
		return core.Runbook{}, fmt.Errorf("read runbook %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw TOML bytes into a core.Runbook.
func Parse(data []byte) (core.Runbook, error) {
	var fr fileRunbook
	if err := toml.Unmarshal(data, &fr); err != nil {
		return core.Runbook{}, fmt.Errorf("parse runbook toml: %w", err)
	}
	if fr.Version == 0 {
		fr.Version = 1
	}

	rb := core.Runbook{
		Version: fr.Version,
		Locals:  fr.Locals,
		Jobs:    make(map[string]core.JobDef, len(fr.Jobs)),
		Agents:  make(map[string]core.AgentDef, len(fr.Agents)),
		Queues:  make(map[string]core.QueueDef, len(fr.Queues)),
		Workers: make(map[string]core.WorkerDef, len(fr.Workers)),
		Crons:   make(map[string]core.CronDef, len(fr.Crons)),
	}

	for name, j := range fr.Jobs {
		steps := make(map[string]core.StepDef, len(j.Steps))
		for sname, s := range j.Steps {
			steps[sname] = core.StepDef{
				Name:    sname,
				Kind:    core.StepKind(s.Kind),
				Command: s.Command,
				Agent:   s.Agent,
				Target:  s.Target,
				OnDone:  s.OnDone,
				OnFail:  s.OnFail,
			}
		}
		rb.Jobs[name] = core.JobDef{Name: name, EntryStep: j.EntryStep, Steps: steps}
	}

	for name, a := range fr.Agents {
		onError := make(map[core.ErrorCategory][]core.ActionDef, len(a.OnError))
		for cat, chain := range a.OnError {
			onError[core.ErrorCategory(cat)] = convertChain(chain)
		}
		rb.Agents[name] = core.AgentDef{
			Name:    name,
			Command: a.Command,
			Env:     a.Env,
			Prime:   a.Prime,
			OnIdle:  convertChain(a.OnIdle),
			OnDead:  convertChain(a.OnDead),
			OnError: onError,
		}
	}

	for name, q := range fr.Queues {
		var retry *core.RetryConfig
		if q.Retry != nil {
			retry = &core.RetryConfig{Attempts: q.Retry.Attempts, Cooldown: q.Retry.Cooldown}
		}
		rb.Queues[name] = core.QueueDef{
			Name:      name,
			External:  q.External,
			ListCmd:   q.ListCmd,
			TakeCmd:   q.TakeCmd,
			PollEvery: q.PollEvery,
			Retry:     retry,
		}
	}

	for name, w := range fr.Workers {
		rb.Workers[name] = core.WorkerDef{
			Name:        name,
			Queue:       w.Queue,
			Handler:     w.Handler,
			Concurrency: w.Concurrency,
		}
	}

	for name, c := range fr.Crons {
		if err := validateInterval(c.Interval); err != nil {
			return core.Runbook{}, fmt.Errorf("cron %s: %w", name, err)
		}
		rb.Crons[name] = core.CronDef{
			Name:        name,
			Interval:    c.Interval,
			Target:      c.Target,
			Concurrency: c.Concurrency,
		}
	}

	hash, err := Hash(rb)
	if err != nil {
		return core.Runbook{}, err
	}
	rb.Hash = hash
	return rb, nil
}

func convertChain(chain []fileAction) []core.ActionDef {
	if chain == nil {
		return nil
	}
	out := make([]core.ActionDef, len(chain))
	for i, a := range chain {
		out[i] = core.ActionDef{
			Action:   core.ActionKind(a.Action),
			Budget:   parseBudget(a.Budget),
			Cooldown: a.Cooldown,
			GateCmd:  a.GateCmd,
			Message:  a.Message,
		}
	}
	return out
}

// validateInterval rejects a cron record's interval at load time rather
// than at its first fire: it must parse either as a plain duration
// ("24h") or a standard five-field cron expression ("*/5 * * * *").
func validateInterval(interval string) error {
	if _, err := time.ParseDuration(interval); err == nil {
		return nil
	}
	if _, err := cron.ParseStandard(interval); err != nil {
		return fmt.Errorf("invalid interval %q: not a duration or cron expression: %w", interval, err)
	}
	return nil
}

func parseBudget(raw string) core.Budget {
	if raw == "" || raw == "forever" {
		return core.Budget{Forever: true}
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n <= 0 {
		return core.Budget{Forever: true}
	}
	return core.Budget{Count: n}
}

// Hash computes spec.md §4.1's content-addressed runbook hash: SHA-256
// of the canonical JSON encoding of the parsed runbook, with the Hash
// field itself excluded so the value does not depend on a prior hash.
func Hash(rb core.Runbook) (string, error) {
	rb.Hash = ""
	data, err := json.Marshal(rb)
	if err != nil {
		return "", fmt.Errorf("canonicalize runbook: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
