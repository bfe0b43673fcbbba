// Package ids defines the opaque string identifier types shared across
// the engine. Every entity id is a distinct Go type so handlers cannot
// accidentally compare a JobID to a SessionID, but at the wire level each
// is just a string.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// JobID identifies a running or terminal pipeline job.
type JobID string

// AgentRunID identifies a standalone agent invocation.
type AgentRunID string

// AgentID identifies a supervised agent process, independent of whether
// it backs a Job step or an AgentRun.
type AgentID string

// SessionID identifies the underlying terminal-multiplexer session.
type SessionID string

// WorkerName identifies a worker record, namespaced as "{ns}/{name}" or
// bare "{name}" for the default namespace.
type WorkerName string

// CronName identifies a cron record, namespaced like WorkerName.
type CronName string

// QueueName identifies a queue, namespaced like WorkerName.
type QueueName string

// QueueItemID identifies one item within a queue.
type QueueItemID string

// DecisionID identifies an awaiting-or-resolved human decision.
type DecisionID string

// WorkspaceID identifies a job's workspace directory or git worktree.
type WorkspaceID string

func (id JobID) String() string       { return string(id) }
func (id AgentRunID) String() string  { return string(id) }
func (id AgentID) String() string     { return string(id) }
func (id SessionID) String() string   { return string(id) }
func (id WorkerName) String() string  { return string(id) }
func (id CronName) String() string    { return string(id) }
func (id QueueName) String() string   { return string(id) }
func (id QueueItemID) String() string { return string(id) }
func (id DecisionID) String() string  { return string(id) }
func (id WorkspaceID) String() string { return string(id) }

// Short truncates an id to n runes for compact UI display, adding no
// ellipsis (callers that want one append it themselves).
func Short(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

// NewJobID returns a new random job id.
func NewJobID() JobID { return JobID(uuid.NewString()) }

// NewAgentRunID returns a new random agent-run id.
func NewAgentRunID() AgentRunID { return AgentRunID(uuid.NewString()) }

// NewAgentID returns a new random agent id.
func NewAgentID() AgentID { return AgentID(uuid.NewString()) }

// NewSessionID returns a new random session id.
func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

// NewDecisionID returns a new random decision id.
func NewDecisionID() DecisionID { return DecisionID(uuid.NewString()) }

// NewQueueItemID returns a new random queue item id, used to mint an id
// for an externally-polled item that carried none of its own.
func NewQueueItemID() QueueItemID { return QueueItemID(uuid.NewString()) }

// Namespaced joins a namespace and bare name into the "{ns}/{name}"
// convention used by WorkerName, CronName and QueueName. An empty
// namespace yields the bare name.
func Namespaced(namespace, name string) string {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}

// SplitNamespaced reverses Namespaced, returning ("", name) when the key
// carries no namespace prefix.
func SplitNamespaced(key string) (namespace, name string) {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}
