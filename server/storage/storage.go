package storage

import (
	"context"
)

// Storage persists calendars, events, their child rows, the materialized
// instance table and per-calendar range metadata. Implementations return
// *Error values; a missing row is reported with ErrNotFound.
//
// Writers are serialized per calendar by the caller, so implementations only
// need to make each individual call atomic.
type Storage interface {
	// GetCalendar retrieves a calendar by id.
	GetCalendar(ctx context.Context, id int64) (*Calendar, error)
	// ListCalendars returns calendars matching filter, ordered by id.
	ListCalendars(ctx context.Context, filter CalendarFilter) ([]*Calendar, error)
	// CreateCalendar stores a new calendar and assigns its ID.
	CreateCalendar(ctx context.Context, cal *Calendar) error
	// UpdateCalendar replaces an existing calendar.
	UpdateCalendar(ctx context.Context, cal *Calendar) error
	// DeleteCalendar removes a calendar together with its events, their
	// child rows, its instances and its range metadata.
	DeleteCalendar(ctx context.Context, id int64) error

	// GetEvent retrieves an event by id.
	GetEvent(ctx context.Context, id int64) (*Event, error)
	// ListEvents returns events matching filter, ordered by id.
	ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error)
	// CreateEvent stores a new event and assigns its ID.
	CreateEvent(ctx context.Context, ev *Event) error
	// UpdateEvent replaces an existing event.
	UpdateEvent(ctx context.Context, ev *Event) error
	// UpdateEvents applies fn to every event matching filter and returns how many changed.
	UpdateEvents(ctx context.Context, filter EventFilter, fn func(*Event)) (int, error)
	// DeleteEvents removes every event matching filter along with its child
	// rows and instances, and returns how many events were removed.
	DeleteEvents(ctx context.Context, filter EventFilter) (int, error)

	ListAttendees(ctx context.Context, eventID int64) ([]*Attendee, error)
	CreateAttendee(ctx context.Context, a *Attendee) error
	ListReminders(ctx context.Context, eventID int64) ([]*Reminder, error)
	CreateReminder(ctx context.Context, r *Reminder) error
	ListExtendedProperties(ctx context.Context, eventID int64) ([]*ExtendedProperty, error)
	CreateExtendedProperty(ctx context.Context, p *ExtendedProperty) error

	// ReplaceInstances atomically replaces every instance of a calendar.
	ReplaceInstances(ctx context.Context, calendarID int64, instances []Instance) error
	// ListInstances returns instances matching filter, ordered by begin then event id.
	ListInstances(ctx context.Context, filter InstanceFilter) ([]Instance, error)

	// GetRangeWindow returns the tracked range of a calendar. A calendar that
	// has never been expanded yields a zero RangeWindow and no error.
	GetRangeWindow(ctx context.Context, calendarID int64) (RangeWindow, error)
	PutRangeWindow(ctx context.Context, w RangeWindow) error
	DeleteRangeWindow(ctx context.Context, calendarID int64) error
}
