// utils/dates.go
package utils

import (
	"math"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	// EndOfDayClock sorts after every HH:MM value of the day.
	EndOfDayClock = "24:00"
)

func BeginningOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func DaysBetween(start, end time.Time) int {
	start = BeginningOfDay(start)
	end = BeginningOfDay(end)
	// Round: days around a DST change are 23 or 25 hours long.
	return int(math.Round(end.Sub(start).Hours() / 24))
}

// DateKey formats t's calendar date in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// TomorrowKey is the calendar date after t's date in loc. It steps by
// calendar day rather than 24h so DST transitions do not skip a date.
func TomorrowKey(t time.Time, loc *time.Location) string {
	return BeginningOfDay(t.In(loc)).AddDate(0, 0, 1).Format(DateLayout)
}

// ClockWindow is a half-open [From, To) range of HH:MM start times on Date.
type ClockWindow struct {
	Date string
	From string
	To   string
}

// NearTimeWindow returns the window [now, now+length) on now's date in loc,
// at minute granularity: From is now's minute and To is rounded up to the
// next whole minute, so a start time less than length away is never cut
// off. A window that would run past midnight is capped at the end of the
// day.
func NearTimeWindow(now time.Time, length time.Duration, loc *time.Location) ClockWindow {
	local := now.In(loc)
	end := local.Add(length)
	if rem := time.Duration(end.Second())*time.Second + time.Duration(end.Nanosecond()); rem > 0 {
		end = end.Add(time.Minute - rem)
	}

	w := ClockWindow{
		Date: local.Format(DateLayout),
		From: local.Format(ClockLayout),
		To:   end.Format(ClockLayout),
	}
	if end.Format(DateLayout) != w.Date {
		w.To = EndOfDayClock
	}
	return w
}

// Contains reports whether an HH:MM start time on date falls in the window.
func (w ClockWindow) Contains(date, clock string) bool {
	return date == w.Date && clock >= w.From && clock < w.To
}
