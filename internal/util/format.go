package util //nolint:revive // package name util hosts shared formatting helpers used by the admin CLI

import (
	"strconv"
	"time"
)

// FormatDuration formats a duration for display. Returns "-" for zero or negative durations
// and truncates to milliseconds.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// FormatPercent renders part/total as a percentage with one decimal, or "-" when total is zero.
func FormatPercent(part, total int) string {
	if total <= 0 {
		return "-"
	}
	return strconv.FormatFloat(float64(part)*100/float64(total), 'f', 1, 64) + "%"
}
