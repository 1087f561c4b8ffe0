// ============================================================================
// Sending Window Gate
// ============================================================================
//
// Package: internal/window
// File: window.go
// Purpose: Decides whether an instant falls inside a campaign's sending window
//
// Evaluation order:
//   1. nil window                      -> allowed
//   2. start or end missing/malformed  -> allowed
//   3. time of day: start <= now < end (minutes since local midnight)
//   4. weekday: empty set allows every day, otherwise must be a member
//   5. result = time check AND day check
//
// The gate is fail-open and never returns an error. Windows with end <= start
// are rejected by config validation; here they simply never match.
//
// ============================================================================

package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
)

// ErrInvalidClock is returned by ParseClock for anything that is not "HH:mm"
var ErrInvalidClock = errors.New("invalid clock value, want HH:mm")

// ParseClock converts "HH:mm" into minutes since midnight
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, okH := twoDigits(s[0], s[1])
	m, okM := twoDigits(s[3], s[4])
	if !okH || !okM || h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// minuteOfDay returns minutes since midnight in the instant's own location
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// bounds returns the parsed window bounds, ok=false when the time-of-day
// portion should be treated as unset
func bounds(w *types.SendingWindow) (start, end int, ok bool) {
	if w == nil || w.StartTime == "" || w.EndTime == "" {
		return 0, 0, false
	}
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return 0, 0, false
	}
	end, err = ParseClock(w.EndTime)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// IsWithinSendingWindow reports whether instant is inside w
func IsWithinSendingWindow(w *types.SendingWindow, instant time.Time) bool {
	if w == nil {
		return true
	}
	start, end, ok := bounds(w)
	if !ok {
		return true
	}

	now := minuteOfDay(instant)
	inTime := start <= now && now < end

	return inTime && dayAllowed(w.Days, instant.Weekday())
}

func dayAllowed(days []int, wd time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if d == int(wd) {
			return true
		}
	}
	return false
}

// NextOpening returns the earliest instant at or after from at which the
// window is open. ok is false when the window can never open (end <= start
// or no valid weekday), in which case callers fall back to polling.
func NextOpening(w *types.SendingWindow, from time.Time) (time.Time, bool) {
	if IsWithinSendingWindow(w, from) {
		return from, true
	}
	start, end, _ := bounds(w)
	if end <= start {
		return time.Time{}, false
	}

	midnight := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	// Eight days covers every weekday starting from today.
	for i := 0; i < 8; i++ {
		day := midnight.AddDate(0, 0, i)
		if !dayAllowed(w.Days, day.Weekday()) {
			continue
		}
		open := day.Add(time.Duration(start) * time.Minute)
		if !open.Before(from) {
			return open, true
		}
	}
	return time.Time{}, false
}
