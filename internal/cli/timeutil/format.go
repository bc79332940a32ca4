// Package timeutil formats the timestamps and durations shown by the CLI.
package timeutil

import (
	"fmt"
	"time"
)

// LocalTimeFormat is the layout used for local times.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// Uptime renders d as "3d 4h 5m 6s", dropping leading zero units.
func Uptime(d time.Duration) string {
	s := int64(d.Round(time.Second) / time.Second)
	days, s := s/86400, s%86400
	hours, s := s/3600, s%3600
	mins, secs := s/60, s%60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, mins, secs)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// Seconds renders a grace period given in seconds, e.g. "360s (6m0s)".
func Seconds(n int64) string {
	return fmt.Sprintf("%ds (%s)", n, time.Duration(n)*time.Second)
}

// LocalTime converts an RFC 3339 timestamp to local time. Unparseable input
// is returned unchanged.
func LocalTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format(LocalTimeFormat)
}
