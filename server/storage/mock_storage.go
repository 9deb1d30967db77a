package storage

import (
	"context"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

var _ Storage = (*MockStorage)(nil)

func (m *MockStorage) GetCalendar(ctx context.Context, id int64) (*Calendar, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Calendar), args.Error(1)
}

func (m *MockStorage) ListCalendars(ctx context.Context, filter CalendarFilter) ([]*Calendar, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Calendar), args.Error(1)
}

func (m *MockStorage) CreateCalendar(ctx context.Context, cal *Calendar) error {
	return m.Called(ctx, cal).Error(0)
}

func (m *MockStorage) UpdateCalendar(ctx context.Context, cal *Calendar) error {
	return m.Called(ctx, cal).Error(0)
}

func (m *MockStorage) DeleteCalendar(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStorage) GetEvent(ctx context.Context, id int64) (*Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Event), args.Error(1)
}

func (m *MockStorage) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Event), args.Error(1)
}

func (m *MockStorage) CreateEvent(ctx context.Context, ev *Event) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockStorage) UpdateEvent(ctx context.Context, ev *Event) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockStorage) UpdateEvents(ctx context.Context, filter EventFilter, fn func(*Event)) (int, error) {
	args := m.Called(ctx, filter, fn)
	return args.Int(0), args.Error(1)
}

func (m *MockStorage) DeleteEvents(ctx context.Context, filter EventFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockStorage) ListAttendees(ctx context.Context, eventID int64) ([]*Attendee, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Attendee), args.Error(1)
}

func (m *MockStorage) CreateAttendee(ctx context.Context, a *Attendee) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockStorage) ListReminders(ctx context.Context, eventID int64) ([]*Reminder, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Reminder), args.Error(1)
}

func (m *MockStorage) CreateReminder(ctx context.Context, r *Reminder) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockStorage) ListExtendedProperties(ctx context.Context, eventID int64) ([]*ExtendedProperty, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ExtendedProperty), args.Error(1)
}

func (m *MockStorage) CreateExtendedProperty(ctx context.Context, p *ExtendedProperty) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockStorage) ReplaceInstances(ctx context.Context, calendarID int64, instances []Instance) error {
	return m.Called(ctx, calendarID, instances).Error(0)
}

func (m *MockStorage) ListInstances(ctx context.Context, filter InstanceFilter) ([]Instance, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Instance), args.Error(1)
}

func (m *MockStorage) GetRangeWindow(ctx context.Context, calendarID int64) (RangeWindow, error) {
	args := m.Called(ctx, calendarID)
	return args.Get(0).(RangeWindow), args.Error(1)
}

func (m *MockStorage) PutRangeWindow(ctx context.Context, w RangeWindow) error {
	return m.Called(ctx, w).Error(0)
}

func (m *MockStorage) DeleteRangeWindow(ctx context.Context, calendarID int64) error {
	return m.Called(ctx, calendarID).Error(0)
}

// --- Helper methods for creating test data ---

// NewMockCalendar creates a test Calendar with basic properties
func NewMockCalendar(id int64, account, timezone string) *Calendar {
	return &Calendar{
		ID:          id,
		AccountName: account,
		AccountType: "LOCAL",
		Name:        account,
		DisplayName: account,
		Color:       "#FF9500",
		TimeZone:    timezone,
		Visible:     true,
		SyncEvents:  true,
	}
}

// NewMockEvent creates a test plain event with a fixed end
func NewMockEvent(id, calendarID int64, title string, start, end time.Time) *Event {
	return &Event{
		ID:         id,
		CalendarID: calendarID,
		UID:        "uid-" + title,
		Title:      title,
		DTStart:    start,
		DTEnd:      mo.Some(end),
		TimeZone:   start.Location().String(),
		Status:     StatusConfirmed,
	}
}

// NewMockSeries creates a test recurring master with a stored duration
func NewMockSeries(id, calendarID int64, title string, start time.Time, duration, rrule string) *Event {
	return &Event{
		ID:         id,
		CalendarID: calendarID,
		UID:        "uid-" + title,
		Title:      title,
		DTStart:    start,
		Duration:   duration,
		RRule:      rrule,
		TimeZone:   start.Location().String(),
		Status:     StatusConfirmed,
	}
}

// --- Convenience methods for setting up common test scenarios ---

// SetupCalendarWithEvents expects one calendar lookup and one listing of its events
func (m *MockStorage) SetupCalendarWithEvents(cal *Calendar, events []*Event) {
	m.On("GetCalendar", mock.Anything, cal.ID).Return(cal, nil)
	m.ExpectedCalls = removeMatchingCalls(m.ExpectedCalls, "ListEvents")
	m.On("ListEvents", mock.Anything, mock.MatchedBy(func(f EventFilter) bool {
		return len(f.CalendarIDs) == 1 && f.CalendarIDs[0] == cal.ID
	})).Return(events, nil)
}

// Helper to remove existing mock calls for a method
func removeMatchingCalls(calls []*mock.Call, method string) []*mock.Call {
	result := make([]*mock.Call, 0, len(calls))
	for _, call := range calls {
		if call.Method == method {
			continue
		}
		result = append(result, call)
	}
	return result
}
