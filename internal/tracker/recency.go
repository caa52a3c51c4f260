package tracker

import "time"

// RecentlyActive reports whether last falls inside the lookback window
// ending at now (inclusive boundary).
//
// A nil timestamp means "unknown" and is never recent. A timestamp in the
// future (clock skew) is never recent either; call sites log that as an
// anomaly rather than failing.
func RecentlyActive(last *time.Time, now time.Time, window time.Duration) bool {
	if last == nil {
		return false
	}
	d := now.Sub(*last)
	return d >= 0 && d <= window
}
