package app

import (
	"time"

	"assessment-engine/internal/domain"
)

// TimeGovernor decides expiry on demand. Nothing runs in the background: every read or write
// against an attempt asks the governor first.
type TimeGovernor struct{}

// Deadline returns started_at + time limit. ok is false for unlimited attempts. A zero limit
// puts the deadline at started_at.
func (g TimeGovernor) Deadline(a domain.Attempt) (deadline time.Time, ok bool) {
	if a.Settings.TimeLimitSeconds == nil {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(*a.Settings.TimeLimitSeconds) * time.Second), true
}

// Expired reports whether an in_progress attempt is past its deadline at now.
func (g TimeGovernor) Expired(a domain.Attempt, now time.Time) bool {
	if a.State != domain.AttemptInProgress {
		return false
	}
	deadline, ok := g.Deadline(a)
	if !ok {
		return false
	}
	return !now.Before(deadline)
}

// Remaining returns whole seconds left, or nil when the attempt is unlimited or finished.
func (g TimeGovernor) Remaining(a domain.Attempt, now time.Time) *int {
	if a.State != domain.AttemptInProgress {
		return nil
	}
	deadline, ok := g.Deadline(a)
	if !ok {
		return nil
	}
	left := int(deadline.Sub(now) / time.Second)
	if left < 0 {
		left = 0
	}
	return &left
}
