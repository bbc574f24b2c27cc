// Package maintenance decides whether an event is suppressed by a maintenance window.
package maintenance

import (
	"strings"
	"time"

	"github.com/spec-kit/alertbridge/internal/domain"
)

const day = 24 * time.Hour

// Suppressed reports whether an event arriving at now must be suppressed.
// The global flag wins unconditionally; otherwise any matching window suppresses.
// Windows that fail to parse never match.
func Suppressed(now time.Time, windows []domain.MaintenanceWindow, global bool) bool {
	_, ok := Match(now, windows, global)
	return ok
}

// Match is Suppressed that also returns a description of what matched.
func Match(now time.Time, windows []domain.MaintenanceWindow, global bool) (string, bool) {
	if global {
		return "global maintenance mode", true
	}
	now = now.UTC()
	for _, w := range windows {
		if windowActive(now, w) {
			return describe(w), true
		}
	}
	return "", false
}

func windowActive(now time.Time, w domain.MaintenanceWindow) bool {
	switch w.Type {
	case domain.WindowAlways:
		return true
	case domain.WindowDaily:
		return clockInRange(now, w.Start, w.End)
	case domain.WindowWeekly:
		if !dayListed(now.Weekday(), w.Days) {
			return false
		}
		return clockInRange(now, w.Start, w.End)
	case domain.WindowOnce:
		start, err := time.Parse(time.RFC3339, w.Start)
		if err != nil {
			return false
		}
		end, err := time.Parse(time.RFC3339, w.End)
		if err != nil {
			return false
		}
		return !now.Before(start.UTC()) && now.Before(end.UTC())
	}
	return false
}

// clockInRange compares time of day only. An end earlier than start wraps midnight.
func clockInRange(now time.Time, startStr, endStr string) bool {
	start, err := domain.ParseClock(startStr)
	if err != nil {
		return false
	}
	end, err := domain.ParseClock(endStr)
	if err != nil {
		return false
	}
	t := now.Sub(now.Truncate(day))
	if end < start {
		return t >= start || t < end
	}
	return t >= start && t < end
}

func dayListed(wd time.Weekday, days []string) bool {
	want := strings.ToLower(wd.String()[:3])
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if len(d) >= 3 && d[:3] == want {
			return true
		}
	}
	return false
}

func describe(w domain.MaintenanceWindow) string {
	switch w.Type {
	case domain.WindowAlways:
		return "endpoint maintenance flag"
	case domain.WindowWeekly:
		return "weekly window " + strings.Join(w.Days, ",") + " " + w.Start + "-" + w.End
	}
	return string(w.Type) + " window " + w.Start + "-" + w.End
}
