package controller

import (
	"fmt"
	"time"

	stablev1alpha1 "github.com/stevenplatt/k8s-controller/api/v1alpha1"
)

// inMaintenanceWindow reports whether t falls inside the policy's window.
// A nil window means cycles may start at any time. End before Start means
// the window spans midnight; the early-morning portion of an overnight
// window belongs to the day it started.
func inMaintenanceWindow(w *stablev1alpha1.MaintenanceWindow, t time.Time) (bool, error) {
	if w == nil {
		return true, nil
	}

	loc := time.UTC
	if w.Timezone != "" {
		l, err := time.LoadLocation(w.Timezone)
		if err != nil {
			return false, fmt.Errorf("invalid timezone %q: %w", w.Timezone, err)
		}
		loc = l
	}

	now := t.In(loc)

	start, err := time.ParseInLocation("15:04", w.Start, loc)
	if err != nil {
		return false, fmt.Errorf("invalid window start %q: %w", w.Start, err)
	}
	end, err := time.ParseInLocation("15:04", w.End, loc)
	if err != nil {
		return false, fmt.Errorf("invalid window end %q: %w", w.End, err)
	}

	start = time.Date(now.Year(), now.Month(), now.Day(), start.Hour(), start.Minute(), 0, 0, loc)
	end = time.Date(now.Year(), now.Month(), now.Day(), end.Hour(), end.Minute(), 0, 0, loc)

	isOvernight := end.Before(start)

	if len(w.Days) > 0 {
		checkDay := int(now.Weekday())
		if isOvernight && now.Before(end) {
			// Early-morning portion of an overnight window: the window
			// opened the previous day, so check that day.
			checkDay = (checkDay + 6) % 7
		}
		dayAllowed := false
		for _, d := range w.Days {
			if d == checkDay {
				dayAllowed = true
				break
			}
		}
		if !dayAllowed {
			return false, nil
		}
	}

	if isOvernight {
		return now.After(start) || now.Before(end), nil
	}
	return now.After(start) && now.Before(end), nil
}
