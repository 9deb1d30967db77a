package recurrence

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// ExtractRecurrenceInfoFromComponent extracts recurrence information from an iCal component.
// Multiple RRULE properties become one rule set.
func ExtractRecurrenceInfoFromComponent(comp *ical.Component) (RecurrenceInfo, error) {
	var lines []string
	for _, prop := range comp.Props[ical.PropRecurrenceRule] {
		if prop.Value != "" {
			lines = append(lines, prop.Value)
		}
	}

	var rdates, exdates, exdays []time.Time
	for _, prop := range comp.Props[ical.PropRecurrenceDates] {
		timed, days := parseDateList(prop.Value, prop.Params)
		rdates = append(rdates, timed...)
		rdates = append(rdates, days...)
	}
	for _, prop := range comp.Props[ical.PropExceptionDates] {
		timed, days := parseDateList(prop.Value, prop.Params)
		exdates = append(exdates, timed...)
		exdays = append(exdays, days...)
	}

	info, err := ParseRecurrenceInfo(strings.Join(lines, "\n"), rdates, exdates)
	if err != nil {
		return RecurrenceInfo{}, err
	}
	info.ExcludedDays = exdays
	return info, nil
}

// ExtractRecurrenceID returns the RECURRENCE-ID of an override component
func ExtractRecurrenceID(comp *ical.Component) (time.Time, bool) {
	prop := comp.Props.Get("RECURRENCE-ID")
	if prop == nil || prop.Value == "" {
		return time.Time{}, false
	}
	t, err := parseDateTime(prop.Value, prop.Params)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ExtractBasicTimeInfoFromComponent extracts start and end times from an iCal component
func ExtractBasicTimeInfoFromComponent(comp *ical.Component) (start, end time.Time, allDay, hasTime bool) {
	if comp.Props.Get(ical.PropDateTimeStart) == nil {
		return
	}
	dtstart, err := comp.Props.DateTime(ical.PropDateTimeStart, nil)
	if err != nil {
		return
	}
	start = dtstart
	hasTime = true
	allDay = isDateValue(comp.Props.Get(ical.PropDateTimeStart))

	if comp.Props.Get(ical.PropDateTimeEnd) != nil {
		dtend, err := comp.Props.DateTime(ical.PropDateTimeEnd, nil)
		if err != nil {
			hasTime = false
			return
		}
		end = dtend

		// An all-day event whose DTEND equals its DTSTART lasts one day.
		if allDay && !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
	} else if durationProp := comp.Props.Get(ical.PropDuration); durationProp != nil {
		duration, err := durationProp.Duration()
		if err != nil {
			hasTime = false
			return
		}
		end = start.Add(duration)
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	} else {
		end = start
	}

	return start, end, allDay, hasTime
}

func isDateValue(prop *ical.Prop) bool {
	if prop == nil {
		return false
	}
	if strings.EqualFold(prop.Params.Get("VALUE"), "DATE") {
		return true
	}
	return len(prop.Value) == 8
}

// parseDateList parses an RDATE or EXDATE value list into date-time values
// and date-only values. Date-only values are midnight UTC.
func parseDateList(value string, params ical.Params) (timed, days []time.Time) {
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		t, err := parseDateTime(field, params)
		if err != nil {
			continue
		}
		if isDateOnly(field, params) {
			days = append(days, t)
		} else {
			timed = append(timed, t)
		}
	}
	return timed, days
}

func isDateOnly(value string, params ical.Params) bool {
	return strings.EqualFold(params.Get("VALUE"), "DATE") || len(value) == 8
}

// parseDateTime parses a date-time string from iCalendar properties
func parseDateTime(value string, params ical.Params) (time.Time, error) {
	if isDateOnly(value, params) {
		t, err := time.Parse("20060102", value)
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	if strings.HasSuffix(value, "Z") {
		return time.Parse("20060102T150405Z", value)
	}

	loc := time.UTC
	if tzid := params.Get("TZID"); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	return time.ParseInLocation("20060102T150405", value, loc)
}
