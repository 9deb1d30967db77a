package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cyp0633/librecur/server/recurrence"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

const productID = "-//librecur//Go Recurrence Engine//EN"

// EventToComponent renders an event as a VEVENT component. Only the first
// line of a multi-rule RRULE is kept.
func EventToComponent(ev *Event, attendees []*Attendee) *ical.Component {
	event := ical.NewEvent()
	uid := ev.UID
	if ev.IsException() && ev.OriginalSyncID != "" {
		uid = ev.OriginalSyncID
	}
	if uid != "" {
		event.Props.SetText(ical.PropUID, uid)
	}
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	setText := func(name, value string) {
		if value != "" {
			event.Props.SetText(name, value)
		}
	}
	setText(ical.PropSummary, ev.Title)
	setText(ical.PropDescription, ev.Description)
	setText(ical.PropLocation, ev.Location)
	if ev.Organizer != "" {
		event.Props.SetText(ical.PropOrganizer, "mailto:"+ev.Organizer)
	}
	event.Props.SetText(ical.PropStatus, ev.Status.String())

	setTime := func(name string, t time.Time, allDay bool) {
		if allDay {
			event.Props.SetDate(name, t)
		} else {
			event.Props.SetDateTime(name, t)
		}
	}
	setTime(ical.PropDateTimeStart, ev.DTStart, ev.AllDay)
	if end, ok := ev.DTEnd.Get(); ok {
		setTime(ical.PropDateTimeEnd, end, ev.AllDay)
	} else if ev.Duration != "" {
		if d, err := recurrence.ParseDuration(ev.Duration); err == nil {
			prop := ical.NewProp(ical.PropDuration)
			prop.SetDuration(d)
			event.Props.Set(prop)
		}
	}

	// A component carries at most one RRULE; further rule lines are not written.
	for _, line := range strings.Split(ev.RRule, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			prop := ical.NewProp(ical.PropRecurrenceRule)
			prop.Value = line
			event.Props.Set(prop)
			break
		}
	}
	addDates := func(name string, dates []time.Time, dateOnly bool) {
		if len(dates) == 0 {
			return
		}
		layout := "20060102T150405Z"
		if dateOnly {
			layout = "20060102"
		}
		values := make([]string, len(dates))
		for i, d := range dates {
			values[i] = d.UTC().Format(layout)
		}
		prop := ical.NewProp(name)
		if dateOnly {
			prop.Params.Set("VALUE", "DATE")
		}
		prop.Value = strings.Join(values, ",")
		event.Props.Add(prop)
	}
	addDates(ical.PropRecurrenceDates, ev.RDates, false)
	addDates(ical.PropExceptionDates, ev.ExDates, false)
	addDates(ical.PropExceptionDates, ev.ExDateDays, true)

	if orig, ok := ev.OriginalInstanceTime.Get(); ok {
		prop := ical.NewProp("RECURRENCE-ID")
		if ev.OriginalAllDay {
			prop.Params.Set("VALUE", "DATE")
			prop.Value = orig.UTC().Format("20060102")
		} else {
			prop.Value = orig.UTC().Format("20060102T150405Z")
		}
		event.Props.Set(prop)
	}

	for _, a := range attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = "mailto:" + a.Email
		if a.Name != "" {
			prop.Params.Set("CN", a.Name)
		}
		event.Props.Add(prop)
	}

	return event.Component
}

// EventFromComponent converts a VEVENT into an event of the given calendar.
// Overrides carrying RECURRENCE-ID become exceptions keyed by the series UID.
func EventFromComponent(comp *ical.Component, calendarID int64) (*Event, error) {
	if comp.Name != ical.CompEvent {
		return nil, &Error{Type: ErrInvalidInput, Message: "component is not a VEVENT: " + comp.Name}
	}

	start, end, allDay, ok := recurrence.ExtractBasicTimeInfoFromComponent(comp)
	if !ok {
		return nil, &Error{Type: ErrInvalidInput, Message: "event has no usable DTSTART"}
	}
	info, err := recurrence.ExtractRecurrenceInfoFromComponent(comp)
	if err != nil {
		return nil, &Error{Type: ErrInvalidInput, Message: "bad recurrence", Err: err}
	}

	text := func(name string) string {
		v, _ := comp.Props.Text(name)
		return v
	}
	ev := &Event{
		CalendarID:  calendarID,
		UID:         text(ical.PropUID),
		Title:       text(ical.PropSummary),
		Description: text(ical.PropDescription),
		Location:    text(ical.PropLocation),
		DTStart:     start,
		AllDay:      allDay,
		TimeZone:    "UTC",
		Status:      parseStatus(text(ical.PropStatus)),
		RDates:      info.RDATE,
		ExDates:     info.EXDATE,
		ExDateDays:  info.ExcludedDays,
	}
	if prop := comp.Props.Get(ical.PropOrganizer); prop != nil {
		ev.Organizer = strings.TrimPrefix(strings.ToLower(prop.Value), "mailto:")
	}
	if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil && !allDay {
		if tzid := prop.Params.Get("TZID"); tzid != "" {
			ev.TimeZone = tzid
		}
	}
	if info.Rules != nil {
		ev.RRule = info.Rules.String()
	}

	if ev.IsRecurring() {
		ev.Duration = recurrence.FormatDuration(end.Sub(start), allDay)
	} else {
		ev.DTEnd = mo.Some(end)
	}

	ev.SyncID = ev.UID
	if recurrenceID, ok := recurrence.ExtractRecurrenceID(comp); ok {
		ev.SyncID = ev.UID + "/" + recurrenceID.UTC().Format("20060102T150405Z")
		ev.OriginalSyncID = ev.UID
		ev.OriginalInstanceTime = mo.Some(recurrenceID)
		ev.OriginalAllDay = allDay
	}

	return ev, nil
}

// AttendeesFromComponent extracts ATTENDEE properties as child rows
func AttendeesFromComponent(comp *ical.Component) []*Attendee {
	var out []*Attendee
	for _, prop := range comp.Props[ical.PropAttendee] {
		a := &Attendee{
			Email: strings.TrimPrefix(strings.ToLower(prop.Value), "mailto:"),
			Name:  prop.Params.Get("CN"),
		}
		switch strings.ToUpper(prop.Params.Get("PARTSTAT")) {
		case "ACCEPTED":
			a.Status = AttendeeStatusAccepted
		case "DECLINED":
			a.Status = AttendeeStatusDeclined
		case "TENTATIVE":
			a.Status = AttendeeStatusTentative
		case "NEEDS-ACTION":
			a.Status = AttendeeStatusInvited
		}
		out = append(out, a)
	}
	return out
}

func parseStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "CONFIRMED":
		return StatusConfirmed
	case "CANCELLED", "CANCELED":
		return StatusCanceled
	default:
		return StatusTentative
	}
}

// EventsToICS encodes events as one VCALENDAR document
func EventsToICS(events []*Event) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, ev := range events {
		cal.Children = append(cal.Children, EventToComponent(ev, nil))
	}
	return encodeCalendar(cal)
}

// InstanceToComponent renders one occurrence of ev as a standalone VEVENT.
// Occurrences of a series carry a RECURRENCE-ID equal to their start.
func InstanceToComponent(inst Instance, ev *Event) *ical.Component {
	occ := ev.Clone()
	occ.RRule, occ.RDates, occ.ExDates, occ.ExDateDays = "", nil, nil, nil
	occ.DTStart = inst.Begin
	occ.DTEnd = mo.Some(inst.End)
	occ.Duration = ""
	if ev.IsRecurring() {
		if !ev.IsException() {
			occ.OriginalSyncID = ""
		}
		occ.OriginalInstanceTime = mo.Some(inst.Begin)
		occ.OriginalAllDay = ev.AllDay
	}
	return EventToComponent(occ, nil)
}

// InstancesToICS encodes instances as one VCALENDAR document. Instances whose
// event is missing from events are skipped.
func InstancesToICS(instances []Instance, events map[int64]*Event) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, inst := range instances {
		ev, ok := events[inst.EventID]
		if !ok {
			continue
		}
		cal.Children = append(cal.Children, InstanceToComponent(inst, ev))
	}
	return encodeCalendar(cal)
}

func encodeCalendar(cal *ical.Calendar) (string, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.String(), nil
}

// ParsedEvent is an event decoded from iCalendar data with its attendees
type ParsedEvent struct {
	Event     *Event
	Attendees []*Attendee
}

// ICSToEvents decodes every VEVENT of every VCALENDAR in r
func ICSToEvents(r io.Reader, calendarID int64) ([]ParsedEvent, error) {
	dec := ical.NewDecoder(r)

	var out []ParsedEvent
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}
		for _, child := range cal.Children {
			if child.Name != ical.CompEvent {
				continue
			}
			ev, err := EventFromComponent(child, calendarID)
			if err != nil {
				return nil, err
			}
			out = append(out, ParsedEvent{Event: ev, Attendees: AttendeesFromComponent(child)})
		}
	}
	if len(out) == 0 {
		return nil, &Error{Type: ErrInvalidInput, Message: "no events found in calendar"}
	}
	return out, nil
}
