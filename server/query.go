package server

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cyp0633/librecur/server/instances"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/samber/mo"
)

// SortOrder selects the primary ordering of instance rows. Rows that tie
// are ordered by begin, then event id.
type SortOrder int

const (
	SortByBegin SortOrder = iota
	SortByEnd
	SortByTitle
	SortByStartDay
)

// InstanceQuery selects the instances overlapping [Begin, End)
type InstanceQuery struct {
	Begin       time.Time
	End         time.Time
	CalendarIDs []int64 // empty means every calendar
	Sort        SortOrder
}

// DayQuery selects the instances touching the Julian days
// [StartDay, EndDay] of the provider's local zone
type DayQuery struct {
	StartDay    int
	EndDay      int
	CalendarIDs []int64
	Sort        SortOrder
}

// InstanceRow is one instance joined with the event it came from
type InstanceRow struct {
	storage.Instance
	Event *storage.Event
}

// Instances returns the instances overlapping the query range, expanding
// calendars whose tracked range does not cover it yet.
func (p *Provider) Instances(ctx context.Context, q InstanceQuery) ([]InstanceRow, error) {
	if !q.Begin.Before(q.End) {
		return nil, &InvalidQueryError{Reason: "begin must be before end"}
	}
	calendarIDs, err := p.ensure(ctx, q.CalendarIDs, q.Begin, q.End)
	if err != nil {
		return nil, err
	}
	insts, err := p.store.ListInstances(ctx, storage.InstanceFilter{
		CalendarIDs: calendarIDs,
		Begin:       mo.Some(q.Begin),
		End:         mo.Some(q.End),
	})
	if err != nil {
		return nil, err
	}
	return p.join(ctx, insts, q.Sort)
}

// InstancesByDay returns the instances whose day span intersects the query's
// days. The expanded range is one day wider on each side so that all-day
// instances, whose days are counted in UTC, are not missed.
func (p *Provider) InstancesByDay(ctx context.Context, q DayQuery) ([]InstanceRow, error) {
	if q.StartDay > q.EndDay {
		return nil, &InvalidQueryError{Reason: "start day must not be after end day"}
	}
	begin, end := instances.DayRange(q.StartDay-1, q.EndDay+1, p.local)
	calendarIDs, err := p.ensure(ctx, q.CalendarIDs, begin, end)
	if err != nil {
		return nil, err
	}
	insts, err := p.store.ListInstances(ctx, storage.InstanceFilter{
		CalendarIDs: calendarIDs,
		StartDay:    mo.Some(q.StartDay),
		EndDay:      mo.Some(q.EndDay),
	})
	if err != nil {
		return nil, err
	}
	return p.join(ctx, insts, q.Sort)
}

// Search is Instances restricted to events matching every token of text.
func (p *Provider) Search(ctx context.Context, q InstanceQuery, text string) ([]InstanceRow, error) {
	rows, err := p.Instances(ctx, q)
	if err != nil {
		return nil, err
	}
	return p.filterText(ctx, rows, text)
}

// SearchByDay is InstancesByDay restricted to events matching every token
// of text.
func (p *Provider) SearchByDay(ctx context.Context, q DayQuery, text string) ([]InstanceRow, error) {
	rows, err := p.InstancesByDay(ctx, q)
	if err != nil {
		return nil, err
	}
	return p.filterText(ctx, rows, text)
}

// ExportInstances renders the instances of q as an iCalendar document with
// one standalone VEVENT per occurrence.
func (p *Provider) ExportInstances(ctx context.Context, q InstanceQuery) (string, error) {
	rows, err := p.Instances(ctx, q)
	if err != nil {
		return "", err
	}
	insts := make([]storage.Instance, len(rows))
	events := make(map[int64]*storage.Event)
	for i, row := range rows {
		insts[i] = row.Instance
		events[row.EventID] = row.Event
	}
	return storage.InstancesToICS(insts, events)
}

func (p *Provider) filterText(ctx context.Context, rows []InstanceRow, text string) ([]InstanceRow, error) {
	tokens := instances.TokenizeSearchQuery(text)
	if len(tokens) == 0 {
		return rows, nil
	}

	matches := make(map[int64]bool)
	out := rows[:0]
	for _, row := range rows {
		ok, seen := matches[row.EventID]
		if !seen {
			attendees, err := p.store.ListAttendees(ctx, row.EventID)
			if err != nil {
				return nil, err
			}
			ok = instances.MatchesAll(tokens, row.Event, attendees)
			matches[row.EventID] = ok
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// ensure makes sure every selected calendar is expanded over [begin, end)
// and returns the selected calendar ids.
func (p *Provider) ensure(ctx context.Context, calendarIDs []int64, begin, end time.Time) ([]int64, error) {
	if len(calendarIDs) == 0 {
		cals, err := p.store.ListCalendars(ctx, storage.CalendarFilter{})
		if err != nil {
			return nil, err
		}
		for _, cal := range cals {
			calendarIDs = append(calendarIDs, cal.ID)
		}
	}

	for _, id := range calendarIDs {
		stop := end
		if p.defaultWindow > 0 {
			w, err := p.tracker.Window(ctx, id)
			if err != nil {
				return nil, err
			}
			if !w.Tracking() && begin.Add(p.defaultWindow).After(stop) {
				stop = begin.Add(p.defaultWindow)
			}
		}
		if err := p.tracker.Ensure(ctx, id, begin, stop); err != nil {
			return nil, err
		}
	}
	return calendarIDs, nil
}

// join attaches each instance's event and orders the rows.
func (p *Provider) join(ctx context.Context, insts []storage.Instance, order SortOrder) ([]InstanceRow, error) {
	if len(insts) == 0 {
		return nil, nil
	}

	var ids []int64
	for _, inst := range insts {
		ids = append(ids, inst.EventID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	events, err := p.store.ListEvents(ctx, storage.EventFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*storage.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	rows := make([]InstanceRow, 0, len(insts))
	for _, inst := range insts {
		ev, ok := byID[inst.EventID]
		if !ok {
			// Removed between expansion and read.
			continue
		}
		rows = append(rows, InstanceRow{Instance: inst, Event: ev})
	}

	slices.SortStableFunc(rows, func(a, b InstanceRow) int {
		var c int
		switch order {
		case SortByEnd:
			c = a.End.Compare(b.End)
		case SortByTitle:
			c = strings.Compare(strings.ToLower(a.Event.Title), strings.ToLower(b.Event.Title))
		case SortByStartDay:
			c = cmp.Or(cmp.Compare(a.StartDay, b.StartDay), cmp.Compare(a.StartMinute, b.StartMinute))
		}
		if c != 0 {
			return c
		}
		return cmp.Or(a.Begin.Compare(b.Begin), cmp.Compare(a.EventID, b.EventID))
	})
	return rows, nil
}
