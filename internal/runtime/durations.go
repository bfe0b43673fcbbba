package runtime

import (
	"time"

	"github.com/robfig/cron/v3"
)

// livenessPollInterval is the re-arm period for an agent's liveness
// timer, per spec.md §4.7.
const livenessPollInterval = 5 * time.Second

// exitDeferredGraceWindow is how long an on_dead resume action waits
// for its agent to come back before the deferred exit commits
// (spec.md §4.7).
const exitDeferredGraceWindow = 20 * time.Second

// nudgeGraceWindow suppresses auto-resume-on-Working for this long
// after a nudge is dispatched, so a brief Working blip right after a
// user-triggered nudge doesn't immediately flip the owner back out of
// Escalated (spec.md §4.7).
const nudgeGraceWindow = 15 * time.Second

// parseDuration parses a runbook duration string such as "10s" or "2m".
// Empty and "forever" both mean "no duration" (no cooldown configured).
func parseDuration(s string) (time.Duration, bool) {
	if s == "" || s == "forever" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}

// nextCronDelay computes the delay until a cron record's next fire,
// measured from now. A plain duration ("24h") re-arms on a fixed
// period; anything else is parsed as a standard five-field cron
// expression ("*/5 * * * *") and the delay is until its next
// occurrence, per spec.md §4.9.
func nextCronDelay(interval string, now time.Time) (time.Duration, bool) {
	if d, ok := parseDuration(interval); ok {
		return d, true
	}
	sched, err := cron.ParseStandard(interval)
	if err != nil {
		return 0, false
	}
	return sched.Next(now).Sub(now), true
}
