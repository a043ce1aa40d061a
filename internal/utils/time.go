package utils

import (
	"time"
)

const (
	layoutDateTime = "2006-01-02 15:04:05"
)

// NowUTC returns current time in UTC, truncated to the precision MySQL DATETIME keeps.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FormatDateTime formats time to "YYYY-MM-DD HH:MM:SS" in UTC.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(layoutDateTime)
}
