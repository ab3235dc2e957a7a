package model

import (
	"fmt"
	"time"
)

// WindowKind distinguishes the three date-filter shapes the operator UI can
// select: a single day, a whole month, or an arbitrary range.
type WindowKind int

const (
	WindowDay WindowKind = iota
	WindowMonth
	WindowRange
)

// DateWindow is the currently viewed date filter. Start and End are local
// dates at midnight; End is inclusive.
type DateWindow struct {
	Kind  WindowKind
	Start time.Time
	End   time.Time
}

// Day returns a single-day window.
func Day(t time.Time) DateWindow {
	d := midnight(t)
	return DateWindow{Kind: WindowDay, Start: d, End: d}
}

// Month returns a whole-month window for the month containing t.
func Month(t time.Time) DateWindow {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return DateWindow{Kind: WindowMonth, Start: first, End: first.AddDate(0, 1, -1)}
}

// Range returns an arbitrary inclusive range window.
func Range(start, end time.Time) DateWindow {
	return DateWindow{Kind: WindowRange, Start: midnight(start), End: midnight(end)}
}

// Key returns the cache-key fragment for this window.
func (w DateWindow) Key() string {
	switch w.Kind {
	case WindowDay:
		return w.Start.Format("2006-01-02")
	case WindowMonth:
		return w.Start.Format("2006-01")
	default:
		return fmt.Sprintf("%s_%s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
	}
}

// IncludesToday reports whether the local current date falls inside the
// window. Side effects (beep, flash, print) only fire when it does.
func (w DateWindow) IncludesToday(now time.Time) bool {
	today := midnight(now)
	return !today.Before(w.Start) && !today.After(w.End)
}

// QueryRange returns the ISO start/end bounds for the order-fetch URL.
// End is exclusive (midnight of the following day).
func (w DateWindow) QueryRange() (string, string) {
	return w.Start.Format(time.RFC3339), w.End.AddDate(0, 0, 1).Format(time.RFC3339)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
