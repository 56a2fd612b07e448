package calendar

import "time"

// Verdict is the result of a window check.
type Verdict int

const (
	Open Verdict = iota
	OutsideHours
	ClosedHoliday
)

// Window is the daily local calling window [Start, End) measured from local midnight.
type Window struct {
	Cal   *Calendar
	Start time.Duration
	End   time.Duration
}

func NewWindow(cal *Calendar, start, end time.Duration) Window {
	return Window{Cal: cal, Start: start, End: end}
}

// Check evaluates the window for a phone's area code at instant now.
// Holiday takes precedence over hours.
func (w Window) Check(areaCode string, now time.Time) Verdict {
	loc := w.Cal.TimezoneFor(areaCode)
	local := now.In(loc)
	if w.Cal.IsHoliday(local) {
		return ClosedHoliday
	}
	start, end := w.bounds(local)
	if local.Before(start) || !local.Before(end) {
		return OutsideHours
	}
	return Open
}

// Allows is Check == Open.
func (w Window) Allows(areaCode string, now time.Time) bool {
	return w.Check(areaCode, now) == Open
}

// Bounds returns today's window in the phone's local zone.
func (w Window) Bounds(areaCode string, now time.Time) (start, end time.Time) {
	local := now.In(w.Cal.TimezoneFor(areaCode))
	return w.bounds(local)
}

func (w Window) bounds(local time.Time) (time.Time, time.Time) {
	return wallClock(local, w.Start), wallClock(local, w.End)
}

// wallClock builds the local time offset after midnight through time.Date so
// DST transition days keep 08:00 at 08:00.
func wallClock(local time.Time, offset time.Duration) time.Time {
	y, m, d := local.Date()
	h := int(offset / time.Hour)
	min := int((offset % time.Hour) / time.Minute)
	return time.Date(y, m, d, h, min, 0, 0, local.Location())
}
