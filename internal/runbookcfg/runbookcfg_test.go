package runbookcfg

import (
	"strings"
	"testing"

	"github.com/opus-domini/sentinel/internal/core"
)

const sampleToml = `
version = 1

[locals]
project = "demo"

[jobs.build]
entry_step = "compile"

[jobs.build.steps.compile]
kind = "shell"
command = "go build ./..."
on_done = "done"
on_fail = "fail"

[agents.reviewer]
command = ["claude", "code"]
prime = "review the diff"

[[agents.reviewer.on_idle]]
action = "nudge"
budget = "3"
message = "keep going"

[[agents.reviewer.on_idle]]
action = "escalate"
budget = "forever"

[queues.inbox]
external = false

[queues.inbox.retry]
attempts = 3
cooldown = "10s"

[workers.main]
queue = "inbox"
handler = "build"
concurrency = 2

[crons.nightly]
interval = "24h"
target = "build"
concurrency = 1
`

func TestParseRunbook(t *testing.T) {
	rb, err := Parse([]byte(sampleToml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rb.Version != 1 {
		t.Errorf("Version = %d, want 1", rb.Version)
	}
	if rb.Locals["project"] != "demo" {
		t.Errorf("Locals[project] = %q", rb.Locals["project"])
	}
	job, ok := rb.Jobs["build"]
	if !ok {
		t.Fatal("missing job build")
	}
	if job.EntryStep != "compile" {
		t.Errorf("EntryStep = %q", job.EntryStep)
	}
	step := job.Steps["compile"]
	if step.Kind != core.StepKindShell || step.Command != "go build ./..." {
		t.Errorf("step = %+v", step)
	}

	agent, ok := rb.Agents["reviewer"]
	if !ok {
		t.Fatal("missing agent reviewer")
	}
	if len(agent.OnIdle) != 2 {
		t.Fatalf("OnIdle len = %d, want 2", len(agent.OnIdle))
	}
	if agent.OnIdle[0].Budget.Forever || agent.OnIdle[0].Budget.Count != 3 {
		t.Errorf("OnIdle[0].Budget = %+v", agent.OnIdle[0].Budget)
	}
	if !agent.OnIdle[1].Budget.Forever {
		t.Error("OnIdle[1].Budget should be forever")
	}

	queue, ok := rb.Queues["inbox"]
	if !ok || queue.Retry == nil || queue.Retry.Attempts != 3 {
		t.Errorf("queue = %+v", queue)
	}

	worker, ok := rb.Workers["main"]
	if !ok || worker.Concurrency != 2 {
		t.Errorf("worker = %+v", worker)
	}

	cron, ok := rb.Crons["nightly"]
	if !ok || cron.Interval != "24h" {
		t.Errorf("cron = %+v", cron)
	}

	if rb.Hash == "" || len(rb.Hash) != 64 {
		t.Errorf("Hash = %q, want 64 hex chars", rb.Hash)
	}
}

func TestHashIsStableAndContentAddressed(t *testing.T) {
	rb1, err := Parse([]byte(sampleToml))
	if err != nil {
		t.Fatal(err)
	}
	rb2, err := Parse([]byte(sampleToml))
	if err != nil {
		t.Fatal(err)
	}
	if rb1.Hash != rb2.Hash {
		t.Error("identical input should produce identical hash")
	}

	changed := strings.Replace(sampleToml, "go build ./...", "go vet ./...", 1)
	rb3, err := Parse([]byte(changed))
	if err != nil {
		t.Fatal(err)
	}
	if rb3.Hash == rb1.Hash {
		t.Error("changed input should produce a different hash")
	}
}

func TestHashExcludesItself(t *testing.T) {
	rb, err := Parse([]byte(sampleToml))
	if err != nil {
		t.Fatal(err)
	}
	withHash := rb
	rehash, err := Hash(withHash)
	if err != nil {
		t.Fatal(err)
	}
	if rehash != rb.Hash {
		t.Errorf("re-hashing an already-hashed runbook should be stable: got %q want %q", rehash, rb.Hash)
	}
}

func TestParseInvalidTOML(t *testing.T) {
	_, err := Parse([]byte("not = [ valid"))
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/runbook.toml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
