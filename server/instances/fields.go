package instances

import (
	"time"

	"github.com/cyp0633/librecur/server/storage"
)

// julianEpoch is the Julian day number of 1970-01-01.
const julianEpoch = 2440588

// JulianDay returns the Julian day number of the calendar date of t in t's zone.
func JulianDay(t time.Time) int {
	y, m, d := t.Date()
	days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	return int(days) + julianEpoch
}

// DayStart returns midnight of the given Julian day in loc.
func DayStart(julianDay int, loc *time.Location) time.Time {
	return time.Date(1970, time.January, 1+julianDay-julianEpoch, 0, 0, 0, 0, loc)
}

// DayRange converts an inclusive Julian day range to the instant range
// [start of startDay, start of endDay+1) in loc.
func DayRange(startDay, endDay int, loc *time.Location) (time.Time, time.Time) {
	return DayStart(startDay, loc), DayStart(endDay+1, loc)
}

// ComputeTimezoneDependentFields fills the day and minute fields of inst
// from its instants. All-day instances use UTC; others use local. An
// instance ending exactly at midnight is reported as ending at minute 1440
// of the previous day.
func ComputeTimezoneDependentFields(inst *storage.Instance, allDay bool, local *time.Location) {
	loc := local
	if allDay || loc == nil {
		loc = time.UTC
	}
	begin := inst.Begin.In(loc)
	end := inst.End.In(loc)

	inst.StartDay = JulianDay(begin)
	inst.StartMinute = begin.Hour()*60 + begin.Minute()
	inst.EndDay = JulianDay(end)
	inst.EndMinute = end.Hour()*60 + end.Minute()

	if inst.EndMinute == 0 && inst.EndDay > inst.StartDay {
		inst.EndMinute = 24 * 60
		inst.EndDay--
	}
}
