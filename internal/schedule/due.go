package schedule

import (
	"strconv"
	"time"
)

// ClampEvery enforces MinEvery.
func ClampEvery(d time.Duration) time.Duration {
	if d < MinEvery {
		return MinEvery
	}
	return d
}

// IsDue reports whether s should run at now.
func IsDue(s *Schedule, now time.Time) bool {
	return s != nil && s.Active && !s.Paused && !s.NextRunAt.After(now)
}

// NextRun advances next by every while it is not after now, at most
// CatchUpCap times. If that is not enough, it snaps to now+every and
// reports how many further intervals the cap declined to walk.
func NextRun(next time.Time, every time.Duration, now time.Time) (time.Time, int) {
	every = ClampEvery(every)
	for i := 0; i < CatchUpCap && !next.After(now); i++ {
		next = next.Add(every)
	}
	if next.After(now) {
		return next, 0
	}
	dropped := int((now.Sub(next) + every - 1) / every)
	return now.Add(every), dropped
}

// SafeNext returns next pushed out to at least now+SafetyDelay.
func SafeNext(next, now time.Time) time.Time {
	floor := now.Add(SafetyDelay)
	if next.Before(floor) {
		return floor
	}
	return next
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
