// memory based implementation for testing purposes
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cyp0633/librecur/server/storage"
)

// Store implements storage.Storage interface using in-memory maps
type Store struct {
	mu         sync.RWMutex
	nextID     int64
	calendars  map[int64]*storage.Calendar
	events     map[int64]*storage.Event
	attendees  map[int64][]*storage.Attendee         // key: event id
	reminders  map[int64][]*storage.Reminder         // key: event id
	properties map[int64][]*storage.ExtendedProperty // key: event id
	instances  map[int64][]storage.Instance          // key: calendar id
	ranges     map[int64]storage.RangeWindow         // key: calendar id
}

var _ storage.Storage = (*Store)(nil)

// New creates a new in-memory storage
func New() *Store {
	return &Store{
		calendars:  make(map[int64]*storage.Calendar),
		events:     make(map[int64]*storage.Event),
		attendees:  make(map[int64][]*storage.Attendee),
		reminders:  make(map[int64][]*storage.Reminder),
		properties: make(map[int64][]*storage.ExtendedProperty),
		instances:  make(map[int64][]storage.Instance),
		ranges:     make(map[int64]storage.RangeWindow),
	}
}

func (s *Store) newID() int64 {
	s.nextID++
	return s.nextID
}

func notFound(what string) error {
	return &storage.Error{
		Type:    storage.ErrNotFound,
		Message: what + " not found",
	}
}

// Calendar operations

func (s *Store) GetCalendar(_ context.Context, id int64) (*storage.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.calendars[id]
	if !ok {
		return nil, notFound("calendar")
	}
	c := *cal
	return &c, nil
}

func (s *Store) ListCalendars(_ context.Context, filter storage.CalendarFilter) ([]*storage.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var calendars []*storage.Calendar
	for _, cal := range s.calendars {
		if filter.Matches(cal) {
			c := *cal
			calendars = append(calendars, &c)
		}
	}
	slices.SortFunc(calendars, func(a, b *storage.Calendar) int { return cmp.Compare(a.ID, b.ID) })
	return calendars, nil
}

func (s *Store) CreateCalendar(_ context.Context, cal *storage.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cal.ID != 0 {
		if _, exists := s.calendars[cal.ID]; exists {
			return &storage.Error{
				Type:    storage.ErrAlreadyExists,
				Message: "calendar already exists",
			}
		}
		s.nextID = max(s.nextID, cal.ID)
	} else {
		cal.ID = s.newID()
	}

	now := time.Now()
	cal.Created = now
	cal.Modified = now
	c := *cal
	s.calendars[cal.ID] = &c

	return nil
}

func (s *Store) UpdateCalendar(_ context.Context, cal *storage.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calendars[cal.ID]; !exists {
		return notFound("calendar")
	}

	cal.Modified = time.Now()
	c := *cal
	s.calendars[cal.ID] = &c

	return nil
}

func (s *Store) DeleteCalendar(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calendars[id]; !exists {
		return notFound("calendar")
	}

	delete(s.calendars, id)
	for eventID, ev := range s.events {
		if ev.CalendarID == id {
			s.deleteEventLocked(eventID)
		}
	}
	delete(s.instances, id)
	delete(s.ranges, id)

	return nil
}

// Event operations

func (s *Store) GetEvent(_ context.Context, id int64) (*storage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, notFound("event")
	}
	return ev.Clone(), nil
}

func (s *Store) ListEvents(_ context.Context, filter storage.EventFilter) ([]*storage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*storage.Event
	for _, ev := range s.events {
		if filter.Matches(ev) {
			events = append(events, ev.Clone())
		}
	}
	slices.SortFunc(events, func(a, b *storage.Event) int { return cmp.Compare(a.ID, b.ID) })
	return events, nil
}

func (s *Store) CreateEvent(_ context.Context, ev *storage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calendars[ev.CalendarID]; !exists {
		return notFound("calendar")
	}
	if ev.ID != 0 {
		if _, exists := s.events[ev.ID]; exists {
			return &storage.Error{
				Type:    storage.ErrAlreadyExists,
				Message: "event already exists",
			}
		}
		s.nextID = max(s.nextID, ev.ID)
	} else {
		ev.ID = s.newID()
	}

	now := time.Now()
	ev.Created = now
	ev.Modified = now
	s.events[ev.ID] = ev.Clone()

	return nil
}

func (s *Store) UpdateEvent(_ context.Context, ev *storage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[ev.ID]; !exists {
		return notFound("event")
	}
	if _, exists := s.calendars[ev.CalendarID]; !exists {
		return notFound("calendar")
	}

	ev.Modified = time.Now()
	s.events[ev.ID] = ev.Clone()

	return nil
}

func (s *Store) UpdateEvents(_ context.Context, filter storage.EventFilter, fn func(*storage.Event)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for id, ev := range s.events {
		if !filter.Matches(ev) {
			continue
		}
		updated := ev.Clone()
		fn(updated)
		updated.ID = id
		updated.Modified = now
		s.events[id] = updated
		n++
	}
	return n, nil
}

func (s *Store) DeleteEvents(_ context.Context, filter storage.EventFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, ev := range s.events {
		if filter.Matches(ev) {
			s.deleteEventLocked(id)
			n++
		}
	}
	return n, nil
}

// deleteEventLocked removes an event, its child rows and its instances.
func (s *Store) deleteEventLocked(id int64) {
	ev, ok := s.events[id]
	if !ok {
		return
	}
	delete(s.events, id)
	delete(s.attendees, id)
	delete(s.reminders, id)
	delete(s.properties, id)
	s.instances[ev.CalendarID] = slices.DeleteFunc(s.instances[ev.CalendarID], func(inst storage.Instance) bool {
		return inst.EventID == id
	})
}

// Child rows

func (s *Store) ListAttendees(_ context.Context, eventID int64) ([]*storage.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRows(s.attendees[eventID]), nil
}

func (s *Store) CreateAttendee(_ context.Context, a *storage.Attendee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[a.EventID]; !exists {
		return notFound("event")
	}
	a.ID = s.newID()
	c := *a
	s.attendees[a.EventID] = append(s.attendees[a.EventID], &c)
	return nil
}

func (s *Store) ListReminders(_ context.Context, eventID int64) ([]*storage.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRows(s.reminders[eventID]), nil
}

func (s *Store) CreateReminder(_ context.Context, r *storage.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[r.EventID]; !exists {
		return notFound("event")
	}
	r.ID = s.newID()
	c := *r
	s.reminders[r.EventID] = append(s.reminders[r.EventID], &c)
	return nil
}

func (s *Store) ListExtendedProperties(_ context.Context, eventID int64) ([]*storage.ExtendedProperty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRows(s.properties[eventID]), nil
}

func (s *Store) CreateExtendedProperty(_ context.Context, p *storage.ExtendedProperty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[p.EventID]; !exists {
		return notFound("event")
	}
	p.ID = s.newID()
	c := *p
	s.properties[p.EventID] = append(s.properties[p.EventID], &c)
	return nil
}

func cloneRows[T any](rows []*T) []*T {
	out := make([]*T, len(rows))
	for i, r := range rows {
		c := *r
		out[i] = &c
	}
	return out
}

// Instances and range metadata

func (s *Store) ReplaceInstances(_ context.Context, calendarID int64, instances []storage.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calendars[calendarID]; !exists {
		return notFound("calendar")
	}
	if len(instances) == 0 {
		delete(s.instances, calendarID)
		return nil
	}
	s.instances[calendarID] = slices.Clone(instances)
	return nil
}

func (s *Store) ListInstances(_ context.Context, filter storage.InstanceFilter) ([]storage.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Instance
	for _, rows := range s.instances {
		for _, inst := range rows {
			if filter.Matches(inst) {
				out = append(out, inst)
			}
		}
	}
	slices.SortFunc(out, func(a, b storage.Instance) int {
		if c := a.Begin.Compare(b.Begin); c != 0 {
			return c
		}
		return cmp.Compare(a.EventID, b.EventID)
	})
	return out, nil
}

func (s *Store) GetRangeWindow(_ context.Context, calendarID int64) (storage.RangeWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if w, ok := s.ranges[calendarID]; ok {
		return w, nil
	}
	return storage.RangeWindow{CalendarID: calendarID}, nil
}

func (s *Store) PutRangeWindow(_ context.Context, w storage.RangeWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calendars[w.CalendarID]; !exists {
		return notFound("calendar")
	}
	s.ranges[w.CalendarID] = w
	return nil
}

func (s *Store) DeleteRangeWindow(_ context.Context, calendarID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ranges, calendarID)
	return nil
}
