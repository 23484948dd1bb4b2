package timeutil

import "time"

func StartOfDay(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, value.Location())
}

// CalendarDay returns the UTC midnight of the calendar day value falls on in
// its own location.
func CalendarDay(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b, ignoring the time of
// day. It is negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(CalendarDay(b).Sub(CalendarDay(a)).Hours() / 24)
}
