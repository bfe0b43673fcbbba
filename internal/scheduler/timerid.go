package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opus-domini/sentinel/internal/core/ids"
)

// The six timer id families named in spec.md §4.4. Ids are opaque
// strings on the wire but always built and parsed through these
// constructors so a typo in a literal "liveness:" prefix can never
// silently fail to match.

// LivenessTimerID returns the liveness-poll timer id for a job/agent-run
// owner, identified by its colon-free owner token (see runtime's
// ownerToken), so the id can be split back apart unambiguously.
func LivenessTimerID(ownerToken string) string {
	return "liveness:" + ownerToken
}

// ParseLivenessTimerID reverses LivenessTimerID, returning the owner
// token the caller encoded it with.
func ParseLivenessTimerID(timerID string) (ownerToken string, ok bool) {
	rest := strings.TrimPrefix(timerID, "liveness:")
	if rest == timerID {
		return "", false
	}
	return rest, true
}

// ExitDeferredTimerID returns the timer id for the deferred-exit grace
// window an agent's owner is given after declining an on_dead exit
// action, identified by the same colon-free owner token as
// LivenessTimerID.
func ExitDeferredTimerID(ownerToken string) string {
	return "exit-deferred:" + ownerToken
}

// ParseExitDeferredTimerID reverses ExitDeferredTimerID.
func ParseExitDeferredTimerID(timerID string) (ownerToken string, ok bool) {
	rest := strings.TrimPrefix(timerID, "exit-deferred:")
	if rest == timerID {
		return "", false
	}
	return rest, true
}

// CooldownTimerID returns the timer id for an action chain's cooldown
// before its next retry, scoped to (owner token, trigger token, chain
// position). Both tokens are colon-free so the id can be split back
// apart unambiguously by ParseCooldownTimerID.
func CooldownTimerID(ownerToken, triggerToken string, chainPos int) string {
	return fmt.Sprintf("cooldown:%s:%s:%d", ownerToken, triggerToken, chainPos)
}

// CooldownPrefix returns the id prefix shared by every chain position's
// cooldown for (owner token, trigger token), letting every cooldown
// from one trigger's chain be cancelled together without tracking
// which chain positions actually got one armed.
func CooldownPrefix(ownerToken, triggerToken string) string {
	return fmt.Sprintf("cooldown:%s:%s:", ownerToken, triggerToken)
}

// ParseCooldownTimerID reverses CooldownTimerID.
func ParseCooldownTimerID(timerID string) (ownerToken, triggerToken string, chainPos int, ok bool) {
	parts := strings.Split(timerID, ":")
	if len(parts) != 4 || parts[0] != "cooldown" {
		return "", "", 0, false
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, false
	}
	return parts[1], parts[2], n, true
}

// QueueRetryTimerID returns the timer id for a failed queue item's
// scheduled retry.
func QueueRetryTimerID(queue ids.QueueName, itemID ids.QueueItemID) string {
	return fmt.Sprintf("queue-retry:%s:%s", queue, itemID)
}

// ParseQueueRetryTimerID reverses QueueRetryTimerID, assuming queue names
// never contain a colon (they are namespaced with '/', per Namespaced).
func ParseQueueRetryTimerID(timerID string) (queue ids.QueueName, itemID ids.QueueItemID, ok bool) {
	rest := strings.TrimPrefix(timerID, "queue-retry:")
	if rest == timerID {
		return "", "", false
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return ids.QueueName(parts[0]), ids.QueueItemID(parts[1]), true
}

// ParseCronTimerID reverses CronTimerID, returning the (possibly
// namespaced) cron name.
func ParseCronTimerID(timerID string) (ids.CronName, bool) {
	rest := strings.TrimPrefix(timerID, "cron:")
	if rest == timerID {
		return "", false
	}
	return ids.CronName(rest), true
}

// QueuePollTimerID returns the queue poll timer id for a worker (armed
// for persisted and external queues alike), namespaced when ns is
// non-empty.
func QueuePollTimerID(ns string, workerName ids.WorkerName) string {
	if ns == "" {
		return "queue-poll:" + string(workerName)
	}
	return fmt.Sprintf("queue-poll:%s/%s", ns, workerName)
}

// CronTimerID returns the cron-fire timer id, namespaced when ns is
// non-empty.
func CronTimerID(ns string, cronName ids.CronName) string {
	if ns == "" {
		return "cron:" + string(cronName)
	}
	return fmt.Sprintf("cron:%s/%s", ns, cronName)
}

// family extracts the colon-delimited prefix of a timer id, e.g.
// "liveness" from "liveness:job-123".
func family(timerID string) string {
	if i := strings.IndexByte(timerID, ':'); i >= 0 {
		return timerID[:i]
	}
	return timerID
}

// IsLiveness reports whether timerID belongs to the liveness family.
func IsLiveness(timerID string) bool { return family(timerID) == "liveness" }

// IsCooldown reports whether timerID belongs to the cooldown family.
func IsCooldown(timerID string) bool { return family(timerID) == "cooldown" }

// IsQueueRetry reports whether timerID belongs to the queue-retry family.
func IsQueueRetry(timerID string) bool { return family(timerID) == "queue-retry" }

// IsExitDeferred reports whether timerID belongs to the exit-deferred
// family.
func IsExitDeferred(timerID string) bool { return family(timerID) == "exit-deferred" }

// IsCron reports whether timerID belongs to the cron family.
func IsCron(timerID string) bool { return family(timerID) == "cron" }
