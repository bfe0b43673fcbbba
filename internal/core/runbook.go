package core

// This file defines the parsed-runbook data structure the engine treats
// as an opaque input, per spec.md §1 ("Runbook file parsing... treat the
// parsed runbook as an input data structure"). A real implementation
// would build this from TOML/HCL/JSON source files; internal/runbookcfg
// provides a thin TOML loader as the concrete collaborator.

// ActionKind enumerates the actions an agent trigger's chain position
// may dispatch, per spec.md §4.7.1.
type ActionKind string

const (
	ActionNudge    ActionKind = "nudge"
	ActionDone     ActionKind = "done"
	ActionFail     ActionKind = "fail"
	ActionEscalate ActionKind = "escalate"
	ActionResume   ActionKind = "resume"
	ActionGate     ActionKind = "gate"
)

// ValidForTrigger reports whether kind may appear in the action chain
// for the given trigger, per the table in spec.md §4.7.1.
func (kind ActionKind) ValidForTrigger(trigger Trigger) bool {
	switch trigger {
	case TriggerOnIdle:
		switch kind {
		case ActionNudge, ActionDone, ActionEscalate, ActionFail, ActionGate:
			return true
		}
	case TriggerOnDead:
		switch kind {
		case ActionDone, ActionResume, ActionEscalate, ActionFail, ActionGate:
			return true
		}
	case TriggerOnError:
		switch kind {
		case ActionFail, ActionResume, ActionEscalate, ActionGate:
			return true
		}
	}
	return false
}

// ActionDef is one position in an agent trigger's action chain.
type ActionDef struct {
	Action   ActionKind
	Budget   Budget
	Cooldown string // duration string, empty for none
	GateCmd  string // shell command, only for ActionGate
	Message  string // nudge text, only for ActionNudge
}

// ErrorCategory classifies an agent Failed(reason) observation, per
// spec.md §4.7.
type ErrorCategory string

const (
	ErrorRateLimited ErrorCategory = "rate_limited"
	ErrorUnauthorized ErrorCategory = "unauthorized"
	ErrorOutOfCredits ErrorCategory = "out_of_credits"
	ErrorNoInternet  ErrorCategory = "no_internet"
	ErrorOther       ErrorCategory = "other"
)

// AgentDef is an agent directive from the runbook: its spawn command and
// its on_idle/on_dead/on_error action chains.
type AgentDef struct {
	Name    string
	Command []string
	Env     map[string]string
	Prime   string

	OnIdle  []ActionDef
	OnDead  []ActionDef
	// OnError is keyed by ErrorCategory; the "other" key is the catch-all.
	OnError map[ErrorCategory][]ActionDef
}

// ActionChain returns the action chain for trigger/category. For
// on_idle/on_dead, category is ignored.
func (a AgentDef) ActionChain(trigger Trigger, category ErrorCategory) []ActionDef {
	switch trigger {
	case TriggerOnIdle:
		return a.OnIdle
	case TriggerOnDead:
		return a.OnDead
	case TriggerOnError:
		if chain, ok := a.OnError[category]; ok {
			return chain
		}
		return a.OnError[ErrorOther]
	}
	return nil
}

// StepKind discriminates a step's run mode.
type StepKind string

const (
	StepKindShell    StepKind = "shell"
	StepKindAgent    StepKind = "agent"
	StepKindPipeline StepKind = "pipeline"
)

// StepDef is one node in a job pipeline's step graph.
type StepDef struct {
	Name    string
	Kind    StepKind
	Command string // shell command template, StepKindShell
	Agent   string // agent definition name, StepKindAgent
	Target  string // nested job name, StepKindPipeline

	OnDone string // next step name, or "done"
	OnFail string // next step name, or "fail"
}

// JobDef is a named pipeline: an ordered set of steps keyed by name,
// plus the entry step.
type JobDef struct {
	Name      string
	EntryStep string
	Steps     map[string]StepDef
}

// QueueDef describes a queue: persisted (backed by WAL-stored items) or
// external (backed by list/take shell commands).
type QueueDef struct {
	Name       string
	External   bool
	ListCmd    string
	TakeCmd    string
	PollEvery  string // duration string, external queues only
	Retry      *RetryConfig
}

// WorkerDef binds a queue to a job handler.
type WorkerDef struct {
	Name        string
	Queue       string
	Handler     string
	Concurrency int
}

// CronDef schedules a job on an interval.
type CronDef struct {
	Name        string
	Interval    string
	Target      string
	Concurrency int
}

// Runbook is the fully parsed input structure the engine consumes.
// Locals are eagerly evaluated (including `$(...)` substitutions) by
// the out-of-scope runbook parser before this structure is constructed.
type Runbook struct {
	Hash    string
	Version int
	Jobs    map[string]JobDef
	Agents  map[string]AgentDef
	Queues  map[string]QueueDef
	Workers map[string]WorkerDef
	Crons   map[string]CronDef
	Locals  map[string]string
}
