package runtime

import (
	"context"

	"github.com/opus-domini/sentinel/internal/eventlog"
	"github.com/opus-domini/sentinel/internal/timeline"
)

// timelineSeverityByKind marks the event kinds that represent a
// failure, so the secondary activity index can be filtered by
// severity without re-parsing every payload.
var timelineSeverityByKind = map[eventlog.Kind]string{
	eventlog.KindStepFailed:   timeline.SeverityError,
	eventlog.KindQueueFailed:  timeline.SeverityError,
	eventlog.KindQueueItemDead: timeline.SeverityError,
	eventlog.KindStepWaiting:  timeline.SeverityWarn,
}

// recordTimeline mirrors every folded event into the queryable activity
// index, best-effort: a timeline write failure never blocks the
// dispatch loop or the event's own processing.
func (rt *Runtime) recordTimeline(ctx context.Context, env eventlog.Envelope) {
	if rt.Timeline == nil {
		return
	}
	resource, message := rt.describeForTimeline(env)
	severity := timelineSeverityByKind[env.Kind]
	_, err := rt.Timeline.InsertTimelineEvent(ctx, timeline.EventWrite{
		Source:    "engine",
		EventType: string(env.Kind),
		Severity:  severity,
		Resource:  resource,
		Message:   message,
	})
	if err != nil {
		rt.Log.Warn("record timeline event", "kind", env.Kind, "err", err)
	}
}

// describeForTimeline extracts a resource key ("job:<id>", "agent:<id>",
// ...) and a short human-readable message from an event's payload, for
// GetJobLogs/GetAgentLogs-style lookups. Kinds this doesn't recognize
// still get recorded, just without a resource key to filter by.
func (rt *Runtime) describeForTimeline(env eventlog.Envelope) (resource, message string) {
	switch env.Kind {
	case eventlog.KindJobCreated:
		var p eventlog.JobCreated
		_ = env.Decode(&p)
		return "job:" + string(p.JobID), "job " + p.Name + " created"
	case eventlog.KindJobAdvanced:
		var p eventlog.JobAdvanced
		_ = env.Decode(&p)
		return "job:" + string(p.JobID), "job advanced to step " + p.Step
	case eventlog.KindJobDeleted:
		var p eventlog.JobDeleted
		_ = env.Decode(&p)
		return "job:" + string(p.JobID), "job deleted"
	case eventlog.KindStepStarted:
		var p eventlog.StepStarted
		_ = env.Decode(&p)
		return "job:" + string(p.JobID), "step " + p.Step + " started"
	case eventlog.KindStepCompleted:
		var p eventlog.StepCompleted
		_ = env.Decode(&p)
		return "job:" + string(p.JobID), "step " + p.Step + " completed"
	case eventlog.KindStepFailed:
		var p eventlog.StepFailed
		_ = env.Decode(&p)
		return "job:" + string(p.JobID), "step " + p.Step + " failed: " + p.Reason
	case eventlog.KindStepWaiting:
		var p eventlog.StepWaiting
		_ = env.Decode(&p)
		return "job:" + string(p.JobID), "step " + p.Step + " waiting: " + p.Reason
	case eventlog.KindAgentRunStarted:
		var p eventlog.AgentRunStarted
		_ = env.Decode(&p)
		return "agentRun:" + string(p.AgentRunID), "agent run " + p.Name + " started"
	case eventlog.KindAgentRunStatusChanged:
		var p eventlog.AgentRunStatusChanged
		_ = env.Decode(&p)
		return "agentRun:" + string(p.AgentRunID), "agent run status changed to " + string(p.Status)
	case eventlog.KindAgentStateObserved:
		var p eventlog.AgentStateObserved
		_ = env.Decode(&p)
		return "agent:" + string(p.AgentID), "agent observed as " + string(p.State)
	case eventlog.KindWorkerStarted:
		var p eventlog.WorkerStarted
		_ = env.Decode(&p)
		return "worker:" + string(p.Name), "worker started"
	case eventlog.KindWorkerStopped:
		var p eventlog.WorkerStopped
		_ = env.Decode(&p)
		return "worker:" + string(p.Name), "worker stopped"
	case eventlog.KindQueueFailed:
		var p eventlog.QueueFailed
		_ = env.Decode(&p)
		return "queue:" + string(p.Queue), "queue item failed: " + p.Reason
	case eventlog.KindQueueItemDead:
		var p eventlog.QueueItemDead
		_ = env.Decode(&p)
		return "queue:" + string(p.Queue), "queue item exhausted retries"
	case eventlog.KindCronStarted:
		var p eventlog.CronStarted
		_ = env.Decode(&p)
		return "cron:" + string(p.Name), "cron started"
	case eventlog.KindCronFired:
		var p eventlog.CronFired
		_ = env.Decode(&p)
		return "cron:" + string(p.Name), "cron fired job " + string(p.JobID)
	case eventlog.KindDecisionCreated:
		var p eventlog.DecisionCreated
		_ = env.Decode(&p)
		return "decision:" + string(p.DecisionID), "decision requested: " + p.Context
	case eventlog.KindDecisionResolved:
		var p eventlog.DecisionResolved
		_ = env.Decode(&p)
		return "decision:" + string(p.DecisionID), "decision resolved"
	default:
		return "", string(env.Kind)
	}
}
