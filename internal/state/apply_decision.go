package state

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

func applyDecisionCreated(st *State, env eventlog.Envelope) error {
	var e eventlog.DecisionCreated
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	if _, ok := st.Decisions[e.DecisionID]; ok {
		return nil
	}
	st.Decisions[e.DecisionID] = core.Decision{
		ID:          e.DecisionID,
		Source:      e.Source,
		Context:     e.Context,
		Options:     e.Options,
		Owner:       e.Owner,
		Trigger:     e.Trigger,
		Category:    e.Category,
		ChainPos:    e.ChainPos,
		CreatedAtMS: env.AtMS,
	}
	return nil
}

// applyDecisionResolved is idempotent: once Chosen is set, replaying the
// same resolution (or any later one) is a no-op, matching the
// resolve-once semantics of spec.md §4.7.3.
func applyDecisionResolved(st *State, env eventlog.Envelope) error {
	var e eventlog.DecisionResolved
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	d, ok := st.Decisions[e.DecisionID]
	if !ok || d.IsResolved() {
		return nil
	}
	d.Chosen = e.Chosen
	d.Message = e.Message
	at := env.AtMS
	d.ResolvedAtMS = &at
	st.Decisions[e.DecisionID] = d
	return nil
}
