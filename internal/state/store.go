package state

import (
	"sync"

	"github.com/opus-domini/sentinel/internal/eventlog"
)

// Store wraps a *State behind an interior-mutability lock, per spec.md
// §3's ownership summary: the engine's dispatch loop is the exclusive
// writer (via Apply), while handlers and IPC queries take a short read
// lock.
type Store struct {
	mu sync.RWMutex
	st *State
}

// NewStore wraps the given state (New() for an empty daemon, or a
// snapshot's state on restart).
func NewStore(st *State) *Store {
	if st == nil {
		st = New()
	}
	return &Store{st: st}
}

// Read invokes fn with a read lock held. fn must not retain st beyond
// the call, and must not call back into Store.
func (s *Store) Read(fn func(st *State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

// Clone returns a deep copy of the current state, suitable for a
// snapshot write or a query response that outlives the lock.
func (s *Store) Clone() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Clone()
}

// Apply mutates state for env under the write lock. It is the only
// method that may change Store's state, matching spec.md §4.6's
// "apply_event is the sole mutator" invariant. It must never be called
// while an await/suspension point is outstanding (spec.md §5).
func (s *Store) Apply(env eventlog.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Apply(s.st, env)
}

// Replace swaps the underlying state wholesale, used when a snapshot
// load reconstructs state ahead of WAL replay.
func (s *Store) Replace(st *State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == nil {
		st = New()
	}
	s.st = st
}
