package auth

import "time"

const (
	LockThreshold = 5
	LockDuration  = 900 * time.Second
)

// LockState is a user's brute-force counter and lock deadline. It only changes
// through OnFailure and OnSuccess, so the lock deadline is present exactly when
// the counter has reached LockThreshold.
type LockState struct {
	failureCount int
	lockUntil    *time.Time
}

// RestoreLockState rebuilds a state loaded from persistence.
func RestoreLockState(failureCount int, lockUntil *time.Time) LockState {
	if failureCount < 0 {
		failureCount = 0
	}
	state := LockState{failureCount: failureCount}
	if lockUntil != nil {
		until := lockUntil.UTC()
		state.lockUntil = &until
	}
	return state
}

func (s LockState) FailureCount() int {
	return s.failureCount
}

func (s LockState) LockUntil() (time.Time, bool) {
	if s.lockUntil == nil {
		return time.Time{}, false
	}
	return *s.lockUntil, true
}

func (s LockState) IsLocked(now time.Time) bool {
	return s.lockUntil != nil && now.Before(*s.lockUntil)
}

// OnFailure counts one failed attempt and starts a lock once the threshold is reached.
func (s LockState) OnFailure(now time.Time) LockState {
	next := LockState{failureCount: s.failureCount + 1, lockUntil: s.lockUntil}
	if next.failureCount >= LockThreshold {
		until := now.UTC().Add(LockDuration)
		next.lockUntil = &until
	}
	return next
}

func (s LockState) OnSuccess() LockState {
	return LockState{}
}
