package storage

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cyp0633/librecur/server/recurrence"
	"github.com/samber/mo"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a storage error of type ErrNotFound
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Type == ErrNotFound
}

// Status is the event status column
type Status int

const (
	StatusTentative Status = iota
	StatusConfirmed
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusCanceled:
		return "CANCELLED"
	default:
		return "TENTATIVE"
	}
}

// AttendeeStatus is the participation status of an attendee
type AttendeeStatus int

const (
	AttendeeStatusNone AttendeeStatus = iota
	AttendeeStatusAccepted
	AttendeeStatusDeclined
	AttendeeStatusInvited
	AttendeeStatusTentative
)

// Calendar is a container of events belonging to one account
type Calendar struct {
	ID          int64
	AccountName string
	AccountType string
	Name        string
	DisplayName string
	Color       string
	TimeZone    string
	AccessLevel int
	Visible     bool
	SyncEvents  bool
	Created     time.Time
	Modified    time.Time
}

// EventKind classifies a stored event by which of its fields are set
type EventKind int

const (
	KindPlain EventKind = iota
	KindMaster
	KindException
)

func (k EventKind) String() string {
	switch k {
	case KindMaster:
		return "master"
	case KindException:
		return "exception"
	default:
		return "plain"
	}
}

// Event is one stored row: a plain event, a recurring master, or an exception
// overriding one (or, when it carries its own rule, every following)
// occurrence of a master.
type Event struct {
	ID         int64
	CalendarID int64
	SyncID     string
	UID        string

	Title       string
	Description string
	Location    string
	Organizer   string
	ColorKey    string

	Status             Status
	SelfAttendeeStatus AttendeeStatus
	AccessLevel        int
	Availability       int

	DTStart  time.Time
	DTEnd    mo.Option[time.Time]
	Duration string
	TimeZone string
	AllDay   bool

	RRule   string
	RDates  []time.Time
	ExDates []time.Time

	// ExDateDays are date-only EXDATEs at midnight UTC
	ExDateDays []time.Time

	OriginalID           mo.Option[int64]
	OriginalSyncID       string
	OriginalInstanceTime mo.Option[time.Time]
	OriginalAllDay       bool

	// LastDate is the end of the last occurrence; absent for unbounded series
	LastDate mo.Option[time.Time]

	Dirty    bool
	Deleted  bool
	Created  time.Time
	Modified time.Time
}

// IsRecurring reports whether the event carries recurrence data
func (e *Event) IsRecurring() bool {
	return e.RRule != "" || len(e.RDates) > 0
}

// IsException reports whether the event overrides an occurrence of a master
func (e *Event) IsException() bool {
	return e.OriginalInstanceTime.IsPresent() && (e.OriginalID.IsPresent() || e.OriginalSyncID != "")
}

// Kind classifies the event
func (e *Event) Kind() EventKind {
	switch {
	case e.IsException():
		return KindException
	case e.IsRecurring():
		return KindMaster
	default:
		return KindPlain
	}
}

// Recurrence parses the event's recurrence fields
func (e *Event) Recurrence() (recurrence.RecurrenceInfo, error) {
	info, err := recurrence.ParseRecurrenceInfo(e.RRule, e.RDates, e.ExDates)
	if err != nil {
		return recurrence.RecurrenceInfo{}, err
	}
	info.ExcludedDays = e.ExDateDays
	return info, nil
}

// Span returns the length of one occurrence: DTEND-DTSTART when DTEND is set,
// otherwise the parsed DURATION, otherwise zero.
func (e *Event) Span() (time.Duration, error) {
	if end, ok := e.DTEnd.Get(); ok {
		return end.Sub(e.DTStart), nil
	}
	if e.Duration == "" {
		return 0, nil
	}
	return recurrence.ParseDuration(e.Duration)
}

// Clone returns a deep copy of the event
func (e *Event) Clone() *Event {
	c := *e
	c.RDates = slices.Clone(e.RDates)
	c.ExDates = slices.Clone(e.ExDates)
	c.ExDateDays = slices.Clone(e.ExDateDays)
	return &c
}

// Attendee is a child row of an event
type Attendee struct {
	ID           int64
	EventID      int64
	Name         string
	Email        string
	Status       AttendeeStatus
	Relationship int
	Type         int
}

// Reminder is a child row of an event
type Reminder struct {
	ID      int64
	EventID int64
	Minutes int
	Method  int
}

// ExtendedProperty is a child row of an event
type ExtendedProperty struct {
	ID      int64
	EventID int64
	Name    string
	Value   string
}

// Instance is one materialized occurrence. Day and minute fields are
// computed in the local zone of the expansion, or UTC for all-day events.
type Instance struct {
	EventID     int64
	CalendarID  int64
	Begin       time.Time
	End         time.Time
	StartDay    int
	EndDay      int
	StartMinute int
	EndMinute   int
}

// RangeWindow records which instant range of a calendar is materialized in
// the instance table, and for which local zone.
type RangeWindow struct {
	CalendarID int64
	Min        time.Time
	Max        time.Time
	TimeZone   string
}

// Tracking reports whether any range has been expanded
func (w RangeWindow) Tracking() bool {
	return w.Max.After(w.Min)
}

// Covers reports whether [start, end) lies within the tracked range
func (w RangeWindow) Covers(start, end time.Time) bool {
	return w.Tracking() && !start.Before(w.Min) && !end.After(w.Max)
}

// Grow returns the smallest range containing both w and [start, end).
func (w RangeWindow) Grow(start, end time.Time) RangeWindow {
	if !w.Tracking() {
		w.Min, w.Max = start, end
		return w
	}
	if start.Before(w.Min) {
		w.Min = start
	}
	if end.After(w.Max) {
		w.Max = end
	}
	return w
}
