package server

import (
	"context"
	"fmt"
	"time"

	"github.com/cyp0633/librecur/server/recurrence"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/samber/mo"
)

// ExceptionOverrides describes how one occurrence of a master changes.
// Unset options keep the master's value.
type ExceptionOverrides struct {
	// OriginalInstanceTime is the start the occurrence would have had.
	OriginalInstanceTime time.Time

	DTStart  mo.Option[time.Time]
	Duration mo.Option[string]
	AllDay   mo.Option[bool]

	Status             mo.Option[storage.Status]
	SelfAttendeeStatus mo.Option[storage.AttendeeStatus]
	Title              mo.Option[string]
	Description        mo.Option[string]
	Location           mo.Option[string]
	ColorKey           mo.Option[string]

	// RRule, when set, replaces the occurrence and every following one
	// with a series of its own.
	RRule mo.Option[string]
}

// CreateException overrides one occurrence of a recurring master and returns
// the id of the event that now carries it.
//
// Without a rule a single exception is inserted: it copies the master's
// displayable fields but none of its child rows or sync identity, starts as
// tentative unless told otherwise, and lasts the master's duration. With a
// rule the occurrence and all that follow are replaced: at the master's
// first occurrence the master itself is rewritten and its id returned,
// otherwise a forward exception is inserted.
func (p *Provider) CreateException(ctx context.Context, masterID int64, ov ExceptionOverrides) (int64, error) {
	master, err := p.store.GetEvent(ctx, masterID)
	if err != nil {
		return 0, err
	}
	unlock := p.tracker.Lock(master.CalendarID)
	defer unlock()

	// Re-read under the calendar lock.
	master, err = p.store.GetEvent(ctx, masterID)
	if err != nil {
		return 0, err
	}
	if master.IsException() {
		return 0, &InvalidExceptionError{Reason: fmt.Sprintf("event %d is itself an exception", masterID)}
	}
	if !master.IsRecurring() {
		return 0, &InvalidExceptionError{Reason: fmt.Sprintf("event %d does not recur", masterID)}
	}
	if master.Deleted {
		return 0, &InvalidExceptionError{Reason: fmt.Sprintf("event %d is deleted", masterID)}
	}
	if ov.OriginalInstanceTime.IsZero() {
		return 0, &MissingRequiredFieldError{Field: "original_instance_time"}
	}

	if rule, ok := ov.RRule.Get(); ok && rule != "" {
		if _, err := recurrence.ParseRuleSet(rule); err != nil {
			return 0, err
		}
		if ov.OriginalInstanceTime.Equal(master.DTStart) {
			return p.rewriteMasterLocked(ctx, master, ov)
		}
	}

	ex := newException(master, ov)
	if err := p.prepare(ctx, ex); err != nil {
		return 0, err
	}
	if err := p.store.CreateEvent(ctx, ex); err != nil {
		return 0, fmt.Errorf("failed to insert exception: %w", err)
	}
	p.logger.Debug("exception created",
		"event_id", ex.ID,
		"master_id", master.ID,
		"original_instance_time", ov.OriginalInstanceTime,
		"forward", ex.IsRecurring())

	return ex.ID, p.afterWriteLocked(ctx, ex)
}

// rewriteMasterLocked applies a rule-carrying override at the first
// occurrence to the master itself.
func (p *Provider) rewriteMasterLocked(ctx context.Context, master *storage.Event, ov ExceptionOverrides) (int64, error) {
	updated := master.Clone()
	applyOverrides(updated, ov)
	if d, ok := ov.Duration.Get(); ok {
		updated.Duration = d
	}
	if err := p.prepare(ctx, updated); err != nil {
		return 0, err
	}
	if err := p.store.UpdateEvent(ctx, updated); err != nil {
		return 0, fmt.Errorf("failed to update event %d: %w", master.ID, err)
	}
	p.logger.Debug("master rewritten from its first occurrence",
		"event_id", master.ID)
	return master.ID, p.afterWriteLocked(ctx, updated)
}

// newException builds the row for an exception of master. The result is
// not yet validated.
func newException(master *storage.Event, ov ExceptionOverrides) *storage.Event {
	ex := &storage.Event{
		CalendarID:  master.CalendarID,
		UID:         master.UID,
		Title:       master.Title,
		Description: master.Description,
		Location:    master.Location,
		Organizer:   master.Organizer,
		ColorKey:    master.ColorKey,
		AccessLevel: master.AccessLevel,

		Availability: master.Availability,
		TimeZone:     master.TimeZone,
		AllDay:       master.AllDay,
		Status:       storage.StatusTentative,

		OriginalID:           mo.Some(master.ID),
		OriginalSyncID:       master.SyncID,
		OriginalInstanceTime: mo.Some(ov.OriginalInstanceTime),
		OriginalAllDay:       master.AllDay,
	}
	ex.DTStart = ov.OriginalInstanceTime
	applyOverrides(ex, ov)

	duration := ov.Duration.OrElse(master.Duration)
	if rule, ok := ov.RRule.Get(); ok && rule != "" {
		ex.Status = ov.Status.OrElse(master.Status)
		ex.Duration = duration
		return ex
	}
	if d, err := recurrence.ParseDuration(duration); err == nil {
		ex.DTEnd = mo.Some(ex.DTStart.Add(d))
	} else {
		// prepare reports the bad duration
		ex.Duration = duration
	}
	return ex
}

func applyOverrides(ev *storage.Event, ov ExceptionOverrides) {
	if v, ok := ov.DTStart.Get(); ok {
		ev.DTStart = v
	}
	if v, ok := ov.AllDay.Get(); ok {
		ev.AllDay = v
	}
	if v, ok := ov.Status.Get(); ok {
		ev.Status = v
	}
	if v, ok := ov.SelfAttendeeStatus.Get(); ok {
		ev.SelfAttendeeStatus = v
	}
	if v, ok := ov.Title.Get(); ok {
		ev.Title = v
	}
	if v, ok := ov.Description.Get(); ok {
		ev.Description = v
	}
	if v, ok := ov.Location.Get(); ok {
		ev.Location = v
	}
	if v, ok := ov.ColorKey.Get(); ok {
		ev.ColorKey = v
	}
	if v, ok := ov.RRule.Get(); ok {
		ev.RRule = v
	}
}

// DeleteException removes an exception of masterID, restoring the
// occurrence it overrode.
func (p *Provider) DeleteException(ctx context.Context, masterID, exceptionID int64) error {
	ex, err := p.store.GetEvent(ctx, exceptionID)
	if err != nil {
		return err
	}
	if id, ok := ex.OriginalID.Get(); !ok || id != masterID {
		return &InvalidExceptionError{Reason: fmt.Sprintf("event %d is not an exception of event %d", exceptionID, masterID)}
	}

	unlock := p.tracker.Lock(ex.CalendarID)
	defer unlock()

	cal, err := p.store.GetCalendar(ctx, ex.CalendarID)
	if err != nil {
		return err
	}
	if err := p.checkAccess(ctx, cal); err != nil {
		return err
	}
	if err := p.deleteLocked(ctx, ex); err != nil {
		return err
	}
	return p.tracker.RefreshLocked(ctx, ex.CalendarID)
}
