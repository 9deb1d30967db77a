package server

import (
	"context"
	"fmt"
	"time"

	"github.com/cyp0633/librecur/server/auth"
	"github.com/cyp0633/librecur/server/instances"
	"github.com/cyp0633/librecur/server/recurrence"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// InsertEvent validates, normalizes and stores a new event, then refreshes
// the instances of its calendar. ev receives the assigned id and the
// normalized fields.
//
// Only sync adapters may set SyncID. Rule errors are returned as
// *recurrence.InvalidRuleError and nothing is stored.
func (p *Provider) InsertEvent(ctx context.Context, ev *storage.Event) (int64, error) {
	if ev.CalendarID == 0 {
		return 0, &MissingRequiredFieldError{Field: "calendar_id"}
	}
	unlock := p.tracker.Lock(ev.CalendarID)
	defer unlock()

	if !auth.IsSyncAdapter(ctx) {
		ev.SyncID = ""
	}
	if err := p.prepare(ctx, ev); err != nil {
		return 0, err
	}
	if err := p.store.CreateEvent(ctx, ev); err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	p.logger.Debug("event inserted",
		"event_id", ev.ID,
		"calendar_id", ev.CalendarID,
		"kind", ev.Kind().String())

	return ev.ID, p.afterWriteLocked(ctx, ev)
}

// UpdateEvent replaces a stored event with ev and refreshes the instances of
// its calendar. Events cannot move between calendars.
func (p *Provider) UpdateEvent(ctx context.Context, ev *storage.Event) error {
	existing, err := p.store.GetEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	if existing.CalendarID != ev.CalendarID {
		return &InvalidEventError{Reason: "an event cannot move between calendars"}
	}
	unlock := p.tracker.Lock(ev.CalendarID)
	defer unlock()

	if !auth.IsSyncAdapter(ctx) {
		ev.SyncID = existing.SyncID
	}
	if err := p.prepare(ctx, ev); err != nil {
		return err
	}
	if err := p.store.UpdateEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to update event %d: %w", ev.ID, err)
	}
	p.logger.Debug("event updated",
		"event_id", ev.ID,
		"calendar_id", ev.CalendarID)

	return p.afterWriteLocked(ctx, ev)
}

// DeleteEvent deletes an event together with its exceptions. Sync adapters
// and events never synced are removed outright; otherwise the rows are
// marked deleted and dirty for the adapter to pick up.
func (p *Provider) DeleteEvent(ctx context.Context, id int64) error {
	existing, err := p.store.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	unlock := p.tracker.Lock(existing.CalendarID)
	defer unlock()

	cal, err := p.store.GetCalendar(ctx, existing.CalendarID)
	if err != nil {
		return err
	}
	if err := p.checkAccess(ctx, cal); err != nil {
		return err
	}
	if err := p.deleteLocked(ctx, existing); err != nil {
		return err
	}
	return p.tracker.RefreshLocked(ctx, existing.CalendarID)
}

// DeleteEventsByAccount removes every event in the account's calendars and
// resets their tracked ranges. It returns the number of events removed.
func (p *Provider) DeleteEventsByAccount(ctx context.Context, account string) (int, error) {
	cals, err := p.store.ListCalendars(ctx, storage.CalendarFilter{AccountName: mo.Some(account)})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, cal := range cals {
		if err := p.checkAccess(ctx, cal); err != nil {
			return total, err
		}
		n, err := p.clearCalendar(ctx, cal.ID)
		total += n
		if err != nil {
			return total, err
		}
	}
	p.logger.Info("account events deleted",
		"account", account,
		"calendars", len(cals),
		"events", total)
	return total, nil
}

func (p *Provider) clearCalendar(ctx context.Context, calendarID int64) (int, error) {
	unlock := p.tracker.Lock(calendarID)
	defer unlock()

	n, err := p.store.DeleteEvents(ctx, storage.EventFilter{CalendarIDs: []int64{calendarID}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete events of calendar %d: %w", calendarID, err)
	}
	return n, p.tracker.ResetLocked(ctx, calendarID)
}

// Event returns one stored event
func (p *Provider) Event(ctx context.Context, id int64) (*storage.Event, error) {
	return p.store.GetEvent(ctx, id)
}

// Events lists stored events matching filter
func (p *Provider) Events(ctx context.Context, filter storage.EventFilter) ([]*storage.Event, error) {
	return p.store.ListEvents(ctx, filter)
}

// deleteLocked removes ev and the exceptions attached to it.
func (p *Provider) deleteLocked(ctx context.Context, ev *storage.Event) error {
	self := storage.EventFilter{IDs: []int64{ev.ID}}
	exceptions := storage.EventFilter{
		CalendarIDs: []int64{ev.CalendarID},
		OriginalID:  mo.Some(ev.ID),
	}

	if auth.IsSyncAdapter(ctx) || ev.SyncID == "" {
		for _, f := range []storage.EventFilter{exceptions, self} {
			if _, err := p.store.DeleteEvents(ctx, f); err != nil {
				return fmt.Errorf("failed to delete event %d: %w", ev.ID, err)
			}
		}
		return nil
	}

	mark := func(e *storage.Event) {
		e.Deleted = true
		e.Dirty = true
	}
	for _, f := range []storage.EventFilter{exceptions, self} {
		if _, err := p.store.UpdateEvents(ctx, f, mark); err != nil {
			return fmt.Errorf("failed to mark event %d deleted: %w", ev.ID, err)
		}
	}
	return nil
}

// afterWriteLocked links exceptions that arrived before ev and re-expands
// the calendar's tracked range.
func (p *Provider) afterWriteLocked(ctx context.Context, ev *storage.Event) error {
	if !ev.IsException() && ev.SyncID != "" {
		n, err := instances.BackfillOriginalIDs(ctx, p.store, ev)
		if err != nil {
			return err
		}
		if n > 0 {
			p.logger.Debug("exceptions linked to master",
				"event_id", ev.ID,
				"sync_id", ev.SyncID,
				"count", n)
		}
	}
	if err := p.tracker.RefreshLocked(ctx, ev.CalendarID); err != nil {
		return fmt.Errorf("event %d stored but instances not refreshed: %w", ev.ID, err)
	}
	return nil
}

// prepare validates ev and normalizes it into its stored form.
func (p *Provider) prepare(ctx context.Context, ev *storage.Event) error {
	syncAdapter := auth.IsSyncAdapter(ctx)

	cal, err := p.store.GetCalendar(ctx, ev.CalendarID)
	if err != nil {
		if storage.IsNotFound(err) {
			return &MissingRequiredFieldError{Field: "calendar_id"}
		}
		return err
	}
	if err := p.checkAccess(ctx, cal); err != nil {
		return err
	}

	if ev.DTStart.IsZero() {
		return &MissingRequiredFieldError{Field: "dtstart"}
	}
	if ev.TimeZone == "" {
		if !syncAdapter {
			return &MissingRequiredFieldError{Field: "timezone"}
		}
		ev.TimeZone = cal.TimeZone
	}

	info, err := ev.Recurrence()
	if err != nil {
		p.logger.Warn("recurrence rejected",
			"calendar_id", ev.CalendarID,
			"rrule", ev.RRule,
			"error", err)
		return err
	}

	if err := normalizeTimes(ev, syncAdapter); err != nil {
		return err
	}

	loc, err := p.zones.Resolve(ev.TimeZone)
	if ev.AllDay {
		loc, err = time.UTC, nil
	}
	if err != nil {
		if !syncAdapter {
			return &InvalidEventError{Reason: err.Error()}
		}
		loc = time.UTC
	}
	if err := p.setLastDate(ev, info, loc); err != nil {
		return err
	}

	if !syncAdapter {
		if ev.UID == "" {
			ev.UID = uuid.NewString()
		}
		ev.Dirty = true
	}

	if ev.OriginalInstanceTime.IsPresent() {
		if err := instances.ResolveOriginal(ctx, p.store, ev); err != nil {
			return fmt.Errorf("failed to resolve master of exception: %w", err)
		}
	}
	return nil
}

// normalizeTimes enforces exactly one of DTEND and DURATION: recurring
// events keep a DURATION, the rest a DTEND. All-day events are moved to UTC
// midnight with whole-day durations.
func normalizeTimes(ev *storage.Event, syncAdapter bool) error {
	hasEnd := ev.DTEnd.IsPresent()
	hasDuration := ev.Duration != ""
	if hasEnd && hasDuration {
		return &InvalidEventError{Reason: "dtend and duration cannot both be set"}
	}

	if ev.AllDay {
		ev.TimeZone = "UTC"
		ev.DTStart = utcDate(ev.DTStart)
		if end, ok := ev.DTEnd.Get(); ok {
			ev.DTEnd = mo.Some(utcDate(end))
		}
	}

	switch {
	case ev.IsRecurring() && hasEnd:
		ev.Duration = recurrence.FormatDuration(ev.DTEnd.MustGet().Sub(ev.DTStart), ev.AllDay)
		ev.DTEnd = mo.None[time.Time]()
	case ev.IsRecurring() && !hasDuration && !syncAdapter:
		return &MissingRequiredFieldError{Field: "duration"}
	case !ev.IsRecurring() && hasDuration:
		d, err := recurrence.ParseDuration(ev.Duration)
		if err != nil {
			return &InvalidEventError{Reason: err.Error()}
		}
		ev.DTEnd = mo.Some(ev.DTStart.Add(d))
		ev.Duration = ""
	case !ev.IsRecurring() && !hasEnd && !syncAdapter:
		return &MissingRequiredFieldError{Field: "dtend"}
	}

	if ev.AllDay && ev.Duration != "" {
		d, err := recurrence.ParseDuration(ev.Duration)
		if err != nil {
			return &InvalidEventError{Reason: err.Error()}
		}
		ev.Duration = recurrence.FormatDuration(recurrence.WholeDays(d), true)
	}

	span, err := ev.Span()
	if err != nil {
		return &InvalidEventError{Reason: err.Error()}
	}
	if span < 0 {
		return &InvalidEventError{Reason: "event ends before it starts"}
	}
	return nil
}

// setLastDate stores the end of the event's last occurrence, or clears it
// for series that never end.
func (p *Provider) setLastDate(ev *storage.Event, info recurrence.RecurrenceInfo, loc *time.Location) error {
	span, err := ev.Span()
	if err != nil {
		return &InvalidEventError{Reason: err.Error()}
	}
	if !ev.IsRecurring() {
		ev.LastDate = mo.Some(ev.DTStart.Add(span))
		return nil
	}

	last, bounded, err := p.engine.LastOccurrence(info, ev.DTStart.In(loc))
	if err != nil {
		return err
	}
	if !bounded {
		ev.LastDate = mo.None[time.Time]()
		return nil
	}
	ev.LastDate = mo.Some(last.Add(span))
	return nil
}

// utcDate returns midnight UTC of t's calendar date in t's own zone.
func utcDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Child rows

// AddAttendee attaches an attendee to an existing event
func (p *Provider) AddAttendee(ctx context.Context, a *storage.Attendee) error {
	if _, err := p.store.GetEvent(ctx, a.EventID); err != nil {
		return err
	}
	return p.store.CreateAttendee(ctx, a)
}

// Attendees lists the attendees of an event
func (p *Provider) Attendees(ctx context.Context, eventID int64) ([]*storage.Attendee, error) {
	return p.store.ListAttendees(ctx, eventID)
}

// AddReminder attaches a reminder to an existing event
func (p *Provider) AddReminder(ctx context.Context, r *storage.Reminder) error {
	if _, err := p.store.GetEvent(ctx, r.EventID); err != nil {
		return err
	}
	return p.store.CreateReminder(ctx, r)
}

// Reminders lists the reminders of an event
func (p *Provider) Reminders(ctx context.Context, eventID int64) ([]*storage.Reminder, error) {
	return p.store.ListReminders(ctx, eventID)
}

// AddExtendedProperty attaches a name/value pair to an existing event
func (p *Provider) AddExtendedProperty(ctx context.Context, prop *storage.ExtendedProperty) error {
	if _, err := p.store.GetEvent(ctx, prop.EventID); err != nil {
		return err
	}
	return p.store.CreateExtendedProperty(ctx, prop)
}

// ExtendedProperties lists the extended properties of an event
func (p *Provider) ExtendedProperties(ctx context.Context, eventID int64) ([]*storage.ExtendedProperty, error) {
	return p.store.ListExtendedProperties(ctx, eventID)
}
