// Package schedule decides whether a moment in time falls inside the
// configured send window. The scheduler consults it on every tick; due
// work outside the window is left alone until the window reopens.
package schedule

import (
	"fmt"
	"time"
)

// Window is the interval of local wall-clock hours during which sends
// are allowed. StartHour is inclusive and EndHour is exclusive, so a
// 9 to 17 window permits sends from 09:00:00 up to 16:59:59.
type Window struct {
	StartHour      int
	EndHour        int
	Location       *time.Location
	SendOnWeekends bool
	holidays       map[string]struct{}
}

// NewWindow builds a send window. Holidays are calendar dates in the
// window's timezone on which sending is blocked regardless of hour.
func NewWindow(startHour, endHour int, tz string, sendOnWeekends bool, holidays []time.Time) (*Window, error) {
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return nil, fmt.Errorf("invalid send window hours: start=%d end=%d", startHour, endHour)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid send window timezone %q: %w", tz, err)
	}

	days := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		days[h.Format("2006-01-02")] = struct{}{}
	}

	return &Window{
		StartHour:      startHour,
		EndHour:        endHour,
		Location:       loc,
		SendOnWeekends: sendOnWeekends,
		holidays:       days,
	}, nil
}

// Contains reports whether t falls inside the send window.
func (w *Window) Contains(t time.Time) bool {
	local := t.In(w.Location)

	if !w.SendOnWeekends {
		switch local.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}

	if _, holiday := w.holidays[local.Format("2006-01-02")]; holiday {
		return false
	}

	hour := local.Hour()
	return hour >= w.StartHour && hour < w.EndHour
}

// AlwaysOpen is a window that permits sending at any time. Used in tests
// and when no window is configured.
type AlwaysOpen struct{}

func (AlwaysOpen) Contains(time.Time) bool { return true }
