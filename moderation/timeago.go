package moderation

import (
	"strconv"
	"strings"
	"time"
)

// TimeAgo renders the elapsed time between then and now as a list of units,
// largest first, e.g. "2 days, 3 hours, 1 minute, 40 seconds".
func TimeAgo(then, now time.Time) string {
	total := int(now.Sub(then) / time.Second)
	if total < 0 {
		total = 0
	}

	seconds := total % 60
	parts := make([]string, 0, 4)
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}
	if total >= 60 {
		total = (total - seconds) / 60
		minutes := total % 60
		if minutes > 0 {
			parts = append([]string{plural(minutes, "minute")}, parts...)
		}
		if total >= 60 {
			total = (total - minutes) / 60
			hours := total % 24
			if hours > 0 {
				parts = append([]string{plural(hours, "hour")}, parts...)
			}
			if total >= 24 {
				days := (total - hours) / 24
				if days > 0 {
					parts = append([]string{plural(days, "day")}, parts...)
				}
			}
		}
	}
	if len(parts) == 0 {
		return "0 seconds"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
