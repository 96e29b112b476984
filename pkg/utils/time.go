package utils

import "time"

// NowRFC3339 returns the current time in RFC3339 format
func NowRFC3339() string {
	return time.Now().Format(time.RFC3339)
}

// ParseRFC3339 parses a time string in RFC3339 format
func ParseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// NowEpochSeconds returns the current time as a Unix epoch-seconds integer,
// the unit TTL attributes are defined in.
func NowEpochSeconds() int64 {
	return time.Now().Unix()
}

// EpochSecondsToTime converts a TTL attribute's epoch-seconds value to a time.Time.
func EpochSecondsToTime(epochSeconds int64) time.Time {
	return time.Unix(epochSeconds, 0).UTC()
}

// IsExpired reports whether an epoch-seconds TTL value has passed relative to now.
func IsExpired(epochSeconds, now int64) bool {
	return epochSeconds <= now
}
