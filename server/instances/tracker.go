package instances

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cyp0633/librecur/server/storage"
	"github.com/samber/mo"
)

// Tracker keeps each calendar's materialized instances in step with the
// range of instants that queries have asked for. The tracked range only
// grows; writes re-expand it without growing it.
//
// Callers serialize work on a calendar with Lock. Methods ending in Locked
// expect the lock to be held.
type Tracker struct {
	store    storage.Storage
	expander *Expander
	logger   *slog.Logger

	locks sync.Map // calendar id -> *sync.Mutex
}

// TrackerOption configures a Tracker
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger for the tracker
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a tracker that materializes instances into store
func NewTracker(store storage.Storage, expander *Expander, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:    store,
		expander: expander,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lock acquires the calendar's writer lock and returns its release function.
func (t *Tracker) Lock(calendarID int64) func() {
	v, _ := t.locks.LoadOrStore(calendarID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Ensure makes sure the instances of calendarID overlapping [start, end) are
// materialized, growing the tracked range when needed.
func (t *Tracker) Ensure(ctx context.Context, calendarID int64, start, end time.Time) error {
	unlock := t.Lock(calendarID)
	defer unlock()
	return t.EnsureLocked(ctx, calendarID, start, end)
}

// EnsureLocked is Ensure for callers already holding the calendar's lock.
func (t *Tracker) EnsureLocked(ctx context.Context, calendarID int64, start, end time.Time) error {
	if !start.Before(end) {
		return nil
	}
	current, err := t.store.GetRangeWindow(ctx, calendarID)
	if err != nil {
		return fmt.Errorf("failed to read range of calendar %d: %w", calendarID, err)
	}

	zone := t.expander.LocalZone().String()
	if current.Covers(start, end) && current.TimeZone == zone {
		return nil
	}

	next := current
	if current.TimeZone != zone {
		// Day and minute fields were computed for another zone; start over.
		next = storage.RangeWindow{CalendarID: calendarID}
	}
	next = next.Grow(start, end)
	next.CalendarID = calendarID

	if err := t.expandLocked(ctx, next); err != nil {
		return err
	}
	t.logger.Info("instance range grown",
		"calendar_id", calendarID,
		"min", next.Min,
		"max", next.Max)
	return nil
}

// RefreshLocked re-expands the calendar's tracked range after its events
// changed. An untracked calendar is left alone.
func (t *Tracker) RefreshLocked(ctx context.Context, calendarID int64) error {
	current, err := t.store.GetRangeWindow(ctx, calendarID)
	if err != nil {
		return fmt.Errorf("failed to read range of calendar %d: %w", calendarID, err)
	}
	if !current.Tracking() {
		return nil
	}
	current.CalendarID = calendarID
	return t.expandLocked(ctx, current)
}

// ResetLocked drops the calendar's instances and returns it to the
// untracked state.
func (t *Tracker) ResetLocked(ctx context.Context, calendarID int64) error {
	if err := t.store.ReplaceInstances(ctx, calendarID, nil); err != nil {
		return fmt.Errorf("failed to clear instances of calendar %d: %w", calendarID, err)
	}
	if err := t.store.DeleteRangeWindow(ctx, calendarID); err != nil {
		return fmt.Errorf("failed to reset range of calendar %d: %w", calendarID, err)
	}
	return nil
}

// Window returns the tracked range of a calendar
func (t *Tracker) Window(ctx context.Context, calendarID int64) (storage.RangeWindow, error) {
	return t.store.GetRangeWindow(ctx, calendarID)
}

// loadEvents reads the events that can place instances in w. Rows are
// preselected by DTSTART and LAST_DATE. Every exception of the calendar is
// read as well, since an exception moved out of w still hides an occurrence
// inside it, together with the series those exceptions belong to.
func (t *Tracker) loadEvents(ctx context.Context, w storage.RangeWindow) ([]*storage.Event, error) {
	calendar := []int64{w.CalendarID}
	var out []*storage.Event
	seen := make(map[int64]bool)
	add := func(events []*storage.Event) {
		for _, ev := range events {
			if !seen[ev.ID] {
				seen[ev.ID] = true
				out = append(out, ev)
			}
		}
	}

	inWindow, err := t.store.ListEvents(ctx, storage.EventFilter{
		CalendarIDs:  calendar,
		StartsBefore: mo.Some(w.Max),
		EndsAfter:    mo.Some(w.Min),
	})
	if err != nil {
		return nil, err
	}
	add(inWindow)

	exceptions, err := t.store.ListEvents(ctx, storage.EventFilter{CalendarIDs: calendar, Exception: mo.Some(true)})
	if err != nil {
		return nil, err
	}
	add(exceptions)

	var masterIDs []int64
	var masterSyncIDs []string
	for _, ex := range exceptions {
		if id, ok := ex.OriginalID.Get(); ok {
			if !seen[id] && !slices.Contains(masterIDs, id) {
				masterIDs = append(masterIDs, id)
			}
		} else if ex.OriginalSyncID != "" && !slices.Contains(masterSyncIDs, ex.OriginalSyncID) {
			masterSyncIDs = append(masterSyncIDs, ex.OriginalSyncID)
		}
	}
	if len(masterIDs) > 0 {
		masters, err := t.store.ListEvents(ctx, storage.EventFilter{IDs: masterIDs, CalendarIDs: calendar})
		if err != nil {
			return nil, err
		}
		add(masters)
	}
	for _, syncID := range masterSyncIDs {
		masters, err := t.store.ListEvents(ctx, storage.EventFilter{CalendarIDs: calendar, SyncID: mo.Some(syncID)})
		if err != nil {
			return nil, err
		}
		add(masters)
	}
	return out, nil
}

// expandLocked recomputes the calendar's instances over w and records w.
// The range is written last, so a failure leaves the old range in place.
func (t *Tracker) expandLocked(ctx context.Context, w storage.RangeWindow) error {
	events, err := t.loadEvents(ctx, w)
	if err != nil {
		return fmt.Errorf("failed to load events of calendar %d: %w", w.CalendarID, err)
	}

	instances, err := t.expander.Expand(events, w.Min, w.Max)
	if err != nil {
		return fmt.Errorf("failed to expand calendar %d: %w", w.CalendarID, err)
	}

	if err := t.store.ReplaceInstances(ctx, w.CalendarID, instances); err != nil {
		return fmt.Errorf("failed to store instances of calendar %d: %w", w.CalendarID, err)
	}

	w.TimeZone = t.expander.LocalZone().String()
	if err := t.store.PutRangeWindow(ctx, w); err != nil {
		return fmt.Errorf("failed to store range of calendar %d: %w", w.CalendarID, err)
	}

	t.logger.Debug("calendar expanded",
		"calendar_id", w.CalendarID,
		"min", w.Min,
		"max", w.Max,
		"instances", len(instances))
	return nil
}
