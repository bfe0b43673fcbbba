// Package state holds the materialized, in-memory aggregate of every
// entity in the engine (spec.md §3) and the sole mutator, apply_event
// (spec.md §4.6). Handlers read state under a short-lived lock and
// compute effects; only the runtime's Store.Apply mutates it.
package state

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
)

// State is the full materialized aggregate. All maps are keyed by the
// entity's natural id.
type State struct {
	Jobs      map[ids.JobID]core.Job
	AgentRuns map[ids.AgentRunID]core.AgentRun
	Agents    map[ids.AgentID]core.Agent
	Sessions  map[ids.SessionID]core.Session
	Workers   map[ids.WorkerName]core.Worker
	// Queues is keyed by queue name, then by item id.
	Queues    map[ids.QueueName]map[ids.QueueItemID]core.QueueItem
	Crons     map[ids.CronName]core.Cron
	Decisions map[ids.DecisionID]core.Decision
	// Runbooks caches parsed runbooks by content hash (spec.md §6).
	Runbooks map[string]core.Runbook
}

// New returns an empty materialized state, the starting point for both
// a brand-new daemon and WAL replay from seq 0.
func New() *State {
	return &State{
		Jobs:      map[ids.JobID]core.Job{},
		AgentRuns: map[ids.AgentRunID]core.AgentRun{},
		Agents:    map[ids.AgentID]core.Agent{},
		Sessions:  map[ids.SessionID]core.Session{},
		Workers:   map[ids.WorkerName]core.Worker{},
		Queues:    map[ids.QueueName]map[ids.QueueItemID]core.QueueItem{},
		Crons:     map[ids.CronName]core.Cron{},
		Decisions: map[ids.DecisionID]core.Decision{},
		Runbooks:  map[string]core.Runbook{},
	}
}

// Clone returns a deep-enough copy for a snapshot or a read-only query,
// safe to use without racing concurrent apply_event calls on the
// original.
func (s *State) Clone() *State {
	out := New()
	for k, v := range s.Jobs {
		out.Jobs[k] = v.Clone()
	}
	for k, v := range s.AgentRuns {
		out.AgentRuns[k] = v.Clone()
	}
	for k, v := range s.Agents {
		out.Agents[k] = v
	}
	for k, v := range s.Sessions {
		out.Sessions[k] = v
	}
	for k, v := range s.Workers {
		out.Workers[k] = v.Clone()
	}
	for q, items := range s.Queues {
		cp := make(map[ids.QueueItemID]core.QueueItem, len(items))
		for id, item := range items {
			cp[id] = item.Clone()
		}
		out.Queues[q] = cp
	}
	for k, v := range s.Crons {
		out.Crons[k] = v
	}
	for k, v := range s.Decisions {
		out.Decisions[k] = v
	}
	for k, v := range s.Runbooks {
		out.Runbooks[k] = v
	}
	return out
}

// QueueItems returns a snapshot slice of every item in the given queue.
func (s *State) QueueItems(q ids.QueueName) []core.QueueItem {
	items := s.Queues[q]
	out := make([]core.QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}

// AgentsOwnedBy returns every Agent record owned by owner.
func (s *State) AgentsOwnedBy(owner core.OwnerID) []core.Agent {
	var out []core.Agent
	for _, a := range s.Agents {
		if a.Owner == owner {
			out = append(out, a)
		}
	}
	return out
}

// SessionsOwnedBy returns every Session owned by owner.
func (s *State) SessionsOwnedBy(owner core.OwnerID) []core.Session {
	var out []core.Session
	for _, sess := range s.Sessions {
		if sess.Owner == owner {
			out = append(out, sess)
		}
	}
	return out
}

// DecisionsOwnedBy returns every Decision owned by owner.
func (s *State) DecisionsOwnedBy(owner core.OwnerID) []core.Decision {
	var out []core.Decision
	for _, d := range s.Decisions {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	return out
}
