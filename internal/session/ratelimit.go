package session

import "time"

// ShouldDispatch reports whether a snapshot arriving at now may be
// highlighted immediately, given the previous dispatch time and the
// configured minimum interval. A pure function so the debounce policy is
// testable without a running loop.
func ShouldDispatch(now, lastDispatch time.Time, minInterval time.Duration) bool {
	if lastDispatch.IsZero() {
		return true
	}
	return now.Sub(lastDispatch) >= minInterval
}

// FlushDelay returns how long a suppressed snapshot must wait before the
// trailing flush may run. Zero or negative means it is already due.
func FlushDelay(now, lastDispatch time.Time, minInterval time.Duration) time.Duration {
	return lastDispatch.Add(minInterval).Sub(now)
}
