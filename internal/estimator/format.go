package estimator

import "fmt"

// FormatMinutes renders a duration in minutes as e.g. "2 hours 30 minutes".
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return "0 minutes"
	}

	hours, mins := minutes/60, minutes%60
	switch {
	case hours > 0 && mins > 0:
		return fmt.Sprintf("%d %s %d %s", hours, plural(hours, "hour"), mins, plural(mins, "minute"))
	case hours > 0:
		return fmt.Sprintf("%d %s", hours, plural(hours, "hour"))
	default:
		return fmt.Sprintf("%d %s", mins, plural(mins, "minute"))
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
