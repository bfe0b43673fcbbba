package core

import "fmt"

// Trigger names the agent-lifecycle event class an action chain responds
// to, per spec.md §4.7.
type Trigger string

const (
	TriggerOnIdle  Trigger = "on_idle"
	TriggerOnDead  Trigger = "on_dead"
	TriggerOnError Trigger = "on_error"
)

// Signal is the last agent-reported disposition recorded by the action
// tracker, used to render status and to feed decision building.
type Signal string

const (
	SignalComplete Signal = "complete"
	SignalEscalate Signal = "escalate"
	SignalContinue Signal = "continue"
)

// AgentSignal pairs a Signal with an optional freeform message, as last
// reported by the agent (e.g. via a hook emitting an Emit{} IPC request).
type AgentSignal struct {
	Signal  Signal `json:"signal"`
	Message string `json:"message,omitempty"`
}

// chainKey formats the "trigger:chain_pos" key the attempt map is keyed
// by, per spec.md §3.
func chainKey(trigger Trigger, chainPos int) string {
	return fmt.Sprintf("%s:%d", trigger, chainPos)
}

// ActionTracker accumulates per-chain-position attempt counts for a job
// or agent run, plus the last agent signal observed. It is embedded in
// Job and AgentRun and is the sole record of cumulative retry budgets
// across on_fail recovery cycles (spec.md §4.7.2, §8 property 4).
type ActionTracker struct {
	Attempts    map[string]int `json:"attempts,omitempty"`
	LastSignal  *AgentSignal   `json:"lastSignal,omitempty"`
}

// NewActionTracker returns an empty tracker.
func NewActionTracker() ActionTracker {
	return ActionTracker{Attempts: map[string]int{}}
}

// Count returns the number of times the action at (trigger, chainPos)
// has been dispatched.
func (t ActionTracker) Count(trigger Trigger, chainPos int) int {
	if t.Attempts == nil {
		return 0
	}
	return t.Attempts[chainKey(trigger, chainPos)]
}

// Increment returns a copy of t with the (trigger, chainPos) counter
// incremented by one.
func (t ActionTracker) Increment(trigger Trigger, chainPos int) ActionTracker {
	out := t.clone()
	out.Attempts[chainKey(trigger, chainPos)]++
	return out
}

// WithSignal returns a copy of t with the last agent signal replaced.
func (t ActionTracker) WithSignal(sig AgentSignal) ActionTracker {
	out := t.clone()
	s := sig
	out.LastSignal = &s
	return out
}

// Reset returns a zeroed tracker, used on on_done transitions (spec.md
// §4.7.2, §8 property 4).
func (t ActionTracker) Reset() ActionTracker {
	return NewActionTracker()
}

func (t ActionTracker) clone() ActionTracker {
	out := ActionTracker{Attempts: make(map[string]int, len(t.Attempts))}
	for k, v := range t.Attempts {
		out.Attempts[k] = v
	}
	out.LastSignal = t.LastSignal
	return out
}

// Budget is the attempts allowance for one action in a chain. Forever
// means the action is never exhausted and the engine never falls
// through to the next chain position.
type Budget struct {
	Forever bool
	Count   int
}

// Exhausted reports whether attemptsSoFar has consumed the budget.
func (b Budget) Exhausted(attemptsSoFar int) bool {
	if b.Forever {
		return false
	}
	return attemptsSoFar >= b.Count
}
