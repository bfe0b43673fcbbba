package state

import (
	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/eventlog"
)

func applySessionCreated(st *State, env eventlog.Envelope) error {
	var e eventlog.SessionCreated
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	if _, exists := st.Sessions[e.SessionID]; exists {
		return nil
	}
	st.Sessions[e.SessionID] = core.Session{
		ID:          e.SessionID,
		Owner:       e.Owner,
		CreatedAtMS: env.AtMS,
	}
	// Attach to whichever agent this session belongs to, if one exists
	// for the same owner (keeps AgentRecord.SessionID populated).
	for id, a := range st.Agents {
		if a.Owner == e.Owner && a.SessionID == nil {
			sid := e.SessionID
			a.SessionID = &sid
			st.Agents[id] = a
		}
	}
	return nil
}

func applySessionDeleted(st *State, env eventlog.Envelope) error {
	var e eventlog.SessionDeleted
	if err := env.Decode(&e); err != nil {
		return decodeErr(env.Kind, err)
	}
	sess, ok := st.Sessions[e.SessionID]
	if !ok {
		return nil
	}
	for id, a := range st.Agents {
		if a.SessionID != nil && *a.SessionID == e.SessionID {
			a.SessionID = nil
			st.Agents[id] = a
		}
	}
	_ = sess
	delete(st.Sessions, e.SessionID)
	return nil
}
