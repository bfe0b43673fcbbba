package state

import (
	"fmt"
	"log/slog"

	"github.com/opus-domini/sentinel/internal/eventlog"
)

// Apply is the sole mutator of materialized state (spec.md §4.6).
// Every handler-dispatched event eventually reaches here, in WAL
// sequence order. Unknown-entity references are silently ignored and an
// unknown event kind is logged and skipped (spec.md §7 "Internal
// invariant violation"), so one bad event never wedges the dispatch
// loop.
func Apply(st *State, env eventlog.Envelope) error {
	switch env.Kind {
	case eventlog.KindJobCreated:
		return applyJobCreated(st, env)
	case eventlog.KindJobAdvanced:
		return applyJobAdvanced(st, env)
	case eventlog.KindJobDeleted:
		return applyJobDeleted(st, env)
	case eventlog.KindStepStarted:
		return applyStepStarted(st, env)
	case eventlog.KindStepCompleted:
		return applyStepCompleted(st, env)
	case eventlog.KindStepFailed:
		return applyStepFailed(st, env)
	case eventlog.KindStepWaiting:
		return applyStepWaiting(st, env)

	case eventlog.KindAgentRunStarted:
		return applyAgentRunStarted(st, env)
	case eventlog.KindAgentRunStatusChanged:
		return applyAgentRunStatusChanged(st, env)

	case eventlog.KindSessionCreated:
		return applySessionCreated(st, env)
	case eventlog.KindSessionDeleted:
		return applySessionDeleted(st, env)
	case eventlog.KindAgentStateObserved:
		return applyAgentStateObserved(st, env)

	case eventlog.KindWorkerStarted:
		return applyWorkerStarted(st, env)
	case eventlog.KindWorkerStopped:
		return applyWorkerStopped(st, env)
	case eventlog.KindWorkerDeleted:
		return applyWorkerDeleted(st, env)
	case eventlog.KindWorkerPollComplete:
		return nil // pure trigger; the poll handler reads state directly
	case eventlog.KindWorkerItemDispatched:
		return applyWorkerItemDispatched(st, env)
	case eventlog.KindWorkerItemCompleted:
		return applyWorkerItemCompleted(st, env)

	case eventlog.KindQueueTaken:
		return applyQueueTaken(st, env)
	case eventlog.KindQueueFailed:
		return applyQueueFailed(st, env)
	case eventlog.KindQueueItemRetryScheduled:
		return applyQueueItemRetryScheduled(st, env)
	case eventlog.KindQueueItemRetried:
		return applyQueueItemRetried(st, env)
	case eventlog.KindQueueItemDead:
		return applyQueueItemDead(st, env)

	case eventlog.KindCronStarted:
		return applyCronStarted(st, env)
	case eventlog.KindCronStopped:
		return applyCronStopped(st, env)
	case eventlog.KindCronFired:
		return applyCronFired(st, env)

	case eventlog.KindDecisionCreated:
		return applyDecisionCreated(st, env)
	case eventlog.KindDecisionResolved:
		return applyDecisionResolved(st, env)

	case eventlog.KindRunbookLoaded:
		return applyRunbookLoaded(st, env)

	case eventlog.KindTimerStart, eventlog.KindShellExited:
		// Pure triggers: they carry no persistent entity state of their
		// own: the handlers that react to them emit the events (above)
		// that do.
		return nil

	case eventlog.KindPipelineResume:
		return applyPipelineResume(st, env)
	case eventlog.KindPipelineCancel:
		return applyPipelineCancel(st, env)
	case eventlog.KindPipelineRetry:
		return nil // retry re-dispatches an action chain; no state of its own
	case eventlog.KindPipelineSkip:
		return applyPipelineSkip(st, env)

	case eventlog.KindActionAttempted:
		return applyActionAttempted(st, env)

	default:
		slog.Warn("apply_event: unknown event kind", "kind", env.Kind, "seq", env.Seq)
		return nil
	}
}

func decodeErr(kind eventlog.Kind, err error) error {
	return fmt.Errorf("apply %s: %w", kind, err)
}
