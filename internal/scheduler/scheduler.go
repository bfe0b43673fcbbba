// Package scheduler tracks the engine's pending timers: a map from
// opaque string id to deadline, protected by its own lock and polled by
// the runtime loop for a sleep deadline (spec.md §4.4).
package scheduler

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Scheduler is a timer map. SetTimer and CancelTimer are single map
// operations; FiredTimers and NextDeadline scan every pending timer, so
// fire-collection costs O(n) in the number of pending timers, not in
// the number that expired.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]time.Time
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{timers: map[string]time.Time{}}
}

// SetTimer overwrites the deadline for id. An existing entry with the
// same id is lost, per spec.md §4.4.
func (s *Scheduler) SetTimer(id string, d time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[id] = now.Add(d)
}

// CancelTimer removes id, if present.
func (s *Scheduler) CancelTimer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, id)
}

// CancelTimersWithPrefix removes every timer whose id has the given
// prefix, used to cancel every chain position's cooldown for one
// owner/trigger together (see CooldownPrefix).
func (s *Scheduler) CancelTimersWithPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.timers {
		if strings.HasPrefix(id, prefix) {
			delete(s.timers, id)
		}
	}
}

// FiredTimers removes and returns every timer id whose deadline is at
// or before now, sorted so a given set of expirations always yields
// the same order within one call (spec.md §4.4 "deterministic per
// call").
func (s *Scheduler) FiredTimers(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fired []string
	for id, deadline := range s.timers {
		if !deadline.After(now) {
			fired = append(fired, id)
		}
	}
	sort.Strings(fired)
	for _, id := range fired {
		delete(s.timers, id)
	}
	return fired
}

// NextDeadline returns the earliest pending deadline and true, or the
// zero time and false if no timers are pending. The runtime loop uses
// this to size its sleep between wake-ups.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var min time.Time
	found := false
	for _, deadline := range s.timers {
		if !found || deadline.Before(min) {
			min = deadline
			found = true
		}
	}
	return min, found
}
