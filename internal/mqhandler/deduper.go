package mqhandler

import "context"

// deduper is satisfied by *util.Deduper.
type deduper interface {
	AcquireOnce(ctx context.Context, handler string, eventID string) bool
	Release(ctx context.Context, handler string, eventID string)
}

// streakMilestones are the current-streak lengths worth announcing.
var streakMilestones = map[int]bool{7: true, 30: true, 100: true, 365: true}
