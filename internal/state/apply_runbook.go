package state

import "github.com/opus-domini/sentinel/internal/eventlog"

// applyRunbookLoaded installs a parsed runbook into the content-addressed
// cache (spec.md §6): replay rebuilds the cache from the WAL exactly as
// it was built the first time, so no separate persistence path is
// needed for the parsed form.
func applyRunbookLoaded(st *State, env eventlog.Envelope) error {
	var e eventlog.RunbookLoaded
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	if _, ok := st.Runbooks[e.Hash]; ok {
		return nil
	}
	st.Runbooks[e.Hash] = e.Runbook
	return nil
}
