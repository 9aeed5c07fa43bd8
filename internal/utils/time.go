package utils

import (
	"time"
)

// UnixTimeToTime converts a Unix timestamp to a UTC time.Time
func UnixTimeToTime(unixTime int64) time.Time {
	return time.Unix(unixTime, 0).UTC()
}

// ClampDuration keeps d within [min, max].
func ClampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
