package storage

import (
	"slices"
	"time"

	"github.com/samber/mo"
)

// CalendarFilter selects calendars. Unset fields match everything.
type CalendarFilter struct {
	IDs         []int64           // any of
	AccountName mo.Option[string] // account_name = ?
	Visible     mo.Option[bool]   // visible = ?
}

// Matches reports whether cal satisfies every set predicate
func (f CalendarFilter) Matches(cal *Calendar) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, cal.ID) {
		return false
	}
	if v, ok := f.AccountName.Get(); ok && cal.AccountName != v {
		return false
	}
	if v, ok := f.Visible.Get(); ok && cal.Visible != v {
		return false
	}
	return true
}

// EventFilter is a conjunction of column predicates over events.
// Unset fields match everything.
type EventFilter struct {
	IDs             []int64           // _id IN (...)
	CalendarIDs     []int64           // calendar_id IN (...)
	SyncID          mo.Option[string] // _sync_id = ?
	OriginalID      mo.Option[int64]  // original_id = ?
	OriginalSyncID  mo.Option[string] // original_sync_id = ?
	OriginalIDUnset bool              // original_id IS NULL
	Deleted         mo.Option[bool]   // deleted = ?
	Exception       mo.Option[bool]   // original_instance_time IS [NOT] NULL

	// StartsBefore keeps events with dtstart < StartsBefore.
	StartsBefore mo.Option[time.Time]
	// EndsAfter keeps events whose last occurrence ends at or after EndsAfter.
	// Events without a last date are unbounded and always kept.
	EndsAfter mo.Option[time.Time]
}

// Matches reports whether ev satisfies every set predicate
func (f EventFilter) Matches(ev *Event) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, ev.ID) {
		return false
	}
	if len(f.CalendarIDs) > 0 && !slices.Contains(f.CalendarIDs, ev.CalendarID) {
		return false
	}
	if v, ok := f.SyncID.Get(); ok && ev.SyncID != v {
		return false
	}
	if v, ok := f.OriginalID.Get(); ok {
		if id, set := ev.OriginalID.Get(); !set || id != v {
			return false
		}
	}
	if v, ok := f.OriginalSyncID.Get(); ok && ev.OriginalSyncID != v {
		return false
	}
	if f.OriginalIDUnset && ev.OriginalID.IsPresent() {
		return false
	}
	if v, ok := f.Deleted.Get(); ok && ev.Deleted != v {
		return false
	}
	if v, ok := f.Exception.Get(); ok && ev.OriginalInstanceTime.IsPresent() != v {
		return false
	}
	if v, ok := f.StartsBefore.Get(); ok && !ev.DTStart.Before(v) {
		return false
	}
	if v, ok := f.EndsAfter.Get(); ok {
		if last, bounded := ev.LastDate.Get(); bounded && last.Before(v) {
			return false
		}
	}
	return true
}

// InstanceFilter selects materialized instances
type InstanceFilter struct {
	CalendarIDs []int64

	// Begin and End select instances overlapping [Begin, End)
	Begin mo.Option[time.Time]
	End   mo.Option[time.Time]

	// StartDay and EndDay select instances whose Julian day span intersects
	// [StartDay, EndDay]
	StartDay mo.Option[int]
	EndDay   mo.Option[int]
}

// Matches reports whether inst satisfies every set predicate
func (f InstanceFilter) Matches(inst Instance) bool {
	if len(f.CalendarIDs) > 0 && !slices.Contains(f.CalendarIDs, inst.CalendarID) {
		return false
	}
	if v, ok := f.End.Get(); ok && !inst.Begin.Before(v) {
		return false
	}
	if v, ok := f.Begin.Get(); ok {
		// Zero-length instances at the window start still count.
		if !inst.End.After(v) && inst.Begin.Before(v) {
			return false
		}
	}
	if v, ok := f.StartDay.Get(); ok && inst.EndDay < v {
		return false
	}
	if v, ok := f.EndDay.Get(); ok && inst.StartDay > v {
		return false
	}
	return true
}

// Overlaps reports whether an occurrence [begin, end) intersects [start, stop).
// A zero-length occurrence overlaps when start <= begin < stop.
func Overlaps(begin, end, start, stop time.Time) bool {
	if !begin.Before(stop) {
		return false
	}
	return end.After(start) || !begin.Before(start)
}
