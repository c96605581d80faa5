package common

import "time"

// StartOfDay returns midnight (00:00:00) of t's calendar day in t's own location.
// Recurrence windows are calendar days of the reference date, so the location of the
// reference date decides where a day starts.
//
// Example:
//   - Input: 2025-10-17 14:23:45 +0200
//   - Output: 2025-10-17 00:00:00 +0200
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfNextDay returns midnight of the day after t, in t's location.
// Uses calendar arithmetic, so DST days of 23 or 25 hours are handled.
func StartOfNextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether the calendar date of a, read in a's own location, is the
// calendar date of ref. Stored dates such as dismissals are date-only values, so a
// is never shifted into ref's zone.
func SameDay(a, ref time.Time) bool {
	ay, am, ad := a.Date()
	ry, rm, rd := ref.Date()
	return ay == ry && am == rm && ad == rd
}

// DaysBetween returns the number of calendar days from start to end (negative if end
// is before start). Each side is read as the date it carries in its own location.
func DaysBetween(start, end time.Time) int {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	s := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	e := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}

// DaysInMonth returns the number of days in t's month.
func DaysInMonth(t time.Time) int {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
