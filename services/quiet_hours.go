package services

import "time"

// QuietHours gates every send: reminders only go out while the local hour is
// in [StartHour, EndHour).
type QuietHours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

func (q QuietHours) IsWithinAllowedWindow(now time.Time) bool {
	loc := q.Location
	if loc == nil {
		loc = time.Local
	}
	h := now.In(loc).Hour()
	return h >= q.StartHour && h < q.EndHour
}
