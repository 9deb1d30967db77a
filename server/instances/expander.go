package instances

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/cyp0633/librecur/server/recurrence"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/samber/mo"
)

// Expander turns stored events into the instances overlapping a window.
// Expansion depends only on the events passed in and the expander's zones.
type Expander struct {
	engine *recurrence.Engine
	zones  recurrence.TimeZoneResolver
	local  *time.Location
	logger *slog.Logger
}

// OccurrenceLimitError is returned when a series has more occurrences in the
// window than the engine's MaxOccurrencesPerEvent allows. No partial instance
// table is produced.
type OccurrenceLimitError struct {
	EventID int64
	Limit   int
}

func (e *OccurrenceLimitError) Error() string {
	return fmt.Sprintf("event %d has more than %d occurrences in the window", e.EventID, e.Limit)
}

// Option configures an Expander
type Option func(*Expander)

// WithLogger sets the logger for the expander
func WithLogger(logger *slog.Logger) Option {
	return func(x *Expander) {
		x.logger = logger
	}
}

// WithLocalTimeZone sets the zone in which day and minute fields of timed
// instances are computed
func WithLocalTimeZone(loc *time.Location) Option {
	return func(x *Expander) {
		x.local = loc
	}
}

// WithTimeZoneResolver sets how event zone identifiers are resolved
func WithTimeZoneResolver(r recurrence.TimeZoneResolver) Option {
	return func(x *Expander) {
		x.zones = r
	}
}

// NewExpander creates an expander backed by engine
func NewExpander(engine *recurrence.Engine, opts ...Option) *Expander {
	x := &Expander{
		engine: engine,
		zones:  recurrence.NewLocationResolver(),
		local:  time.UTC,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// LocalZone returns the zone used for day and minute fields
func (x *Expander) LocalZone() *time.Location {
	return x.local
}

// Expand returns every instance of events overlapping [windowStart, windowEnd),
// ordered by begin then event id.
//
// Masters are expanded through the recurrence engine. Exceptions are attached
// to their master by original id, or by (original sync id, calendar) when the
// id is not yet known, and then:
//   - a single exception hides the master occurrence at its original time and
//     contributes its own instance;
//   - a canceled or deleted exception only hides that occurrence;
//   - a forward exception ends the master at its original time and is
//     expanded as a series of its own.
//
// Exceptions whose master is not among events are emitted as standalone
// events unless canceled. Deleted events contribute nothing.
func (x *Expander) Expand(events []*storage.Event, windowStart, windowEnd time.Time) ([]storage.Instance, error) {
	window := recurrence.Window{Start: windowStart, End: windowEnd}
	if !windowStart.Before(windowEnd) {
		return nil, nil
	}

	var series, exceptions, plain []*storage.Event
	for _, ev := range events {
		switch {
		case ev.IsException():
			exceptions = append(exceptions, ev)
			if ev.IsRecurring() {
				series = append(series, ev)
			}
		case ev.IsRecurring():
			series = append(series, ev)
		default:
			plain = append(plain, ev)
		}
	}

	link := newLinker(series)
	attached := make(map[int64][]*storage.Event)
	var orphans []*storage.Event
	for _, ex := range exceptions {
		if m, ok := link.master(ex); ok && m.ID != ex.ID {
			attached[m.ID] = append(attached[m.ID], ex)
			continue
		}
		orphans = append(orphans, ex)
	}

	var result out
	for _, s := range series {
		if s.IsException() || s.Deleted {
			continue
		}
		if err := x.expandSeries(s, attached, window, mo.None[time.Time](), &result); err != nil {
			return nil, err
		}
	}

	// Orphans behave like plain events or masters of their own.
	for _, ex := range orphans {
		if ex.Deleted || ex.Status == storage.StatusCanceled {
			continue
		}
		var err error
		if ex.IsRecurring() {
			err = x.expandSeries(ex, attached, window, mo.None[time.Time](), &result)
		} else {
			err = x.emitFixed(ex, window, &result)
		}
		if err != nil {
			return nil, err
		}
	}

	for _, ex := range exceptions {
		if Classify(ex) != ExceptionSingle {
			continue
		}
		m, linked := link.master(ex)
		if !linked || m.ID == ex.ID || hidden(m) {
			continue
		}
		if err := x.emitFixed(ex, window, &result); err != nil {
			return nil, err
		}
	}

	for _, ev := range plain {
		if ev.Deleted {
			continue
		}
		if err := x.emitFixed(ev, window, &result); err != nil {
			return nil, err
		}
	}

	slices.SortFunc(result, func(a, b storage.Instance) int {
		if c := a.Begin.Compare(b.Begin); c != 0 {
			return c
		}
		return cmp.Compare(a.EventID, b.EventID)
	})
	return result, nil
}

type out []storage.Instance

// hidden reports whether nothing of a series is shown: the master is deleted,
// or it is a canceled forward exception.
func hidden(s *storage.Event) bool {
	return s.Deleted || (s.IsException() && s.Status == storage.StatusCanceled)
}

// expandSeries emits the occurrences of s that are not overridden, then
// recurses into its forward exceptions. Occurrences at or after segmentEnd
// belong to a later segment of the series.
func (x *Expander) expandSeries(s *storage.Event, attached map[int64][]*storage.Event, window recurrence.Window, segmentEnd mo.Option[time.Time], result *out) error {
	idx := BuildIndex(attached[s.ID])

	span, err := s.Span()
	if err != nil {
		return fmt.Errorf("event %d: bad duration %q: %w", s.ID, s.Duration, err)
	}
	info, err := s.Recurrence()
	if err != nil {
		return fmt.Errorf("event %d: %w", s.ID, err)
	}

	stop := window.End
	if b, ok := idx.Boundary().Get(); ok && b.Before(stop) {
		stop = b
	}
	if b, ok := segmentEnd.Get(); ok && b.Before(stop) {
		stop = b
	}

	dtstart := s.DTStart.In(x.seriesZone(s))
	expansion, err := x.engine.Occurrences(info, dtstart, recurrence.Window{Start: window.Start.Add(-span), End: stop})
	if err != nil {
		return fmt.Errorf("event %d: %w", s.ID, err)
	}
	if expansion.Truncated {
		x.logger.Warn("occurrence cap reached, expansion refused",
			"event_id", s.ID,
			"calendar_id", s.CalendarID,
			"count", len(expansion.Starts))
		return &OccurrenceLimitError{EventID: s.ID, Limit: len(expansion.Starts)}
	}

	for _, begin := range expansion.Starts {
		if _, overridden := idx.Lookup(begin); overridden {
			continue
		}
		end := begin.Add(span)
		if !storage.Overlaps(begin, end, window.Start, window.End) {
			continue
		}
		*result = append(*result, x.instance(s, begin, end))
	}

	forwards := idx.Forwards()
	for i, f := range forwards {
		if f.Deleted || f.Status == storage.StatusCanceled {
			continue
		}
		next := segmentEnd
		if i+1 < len(forwards) {
			next = forwards[i+1].OriginalInstanceTime
		}
		if err := x.expandSeries(f, attached, window, next, result); err != nil {
			return err
		}
	}
	return nil
}

// emitFixed emits the single instance of a non-recurring event.
func (x *Expander) emitFixed(ev *storage.Event, window recurrence.Window, result *out) error {
	span, err := ev.Span()
	if err != nil {
		return fmt.Errorf("event %d: bad duration %q: %w", ev.ID, ev.Duration, err)
	}
	begin := ev.DTStart
	end := begin.Add(span)
	if storage.Overlaps(begin, end, window.Start, window.End) {
		*result = append(*result, x.instance(ev, begin, end))
	}
	return nil
}

func (x *Expander) instance(ev *storage.Event, begin, end time.Time) storage.Instance {
	inst := storage.Instance{
		EventID:    ev.ID,
		CalendarID: ev.CalendarID,
		Begin:      begin,
		End:        end,
	}
	ComputeTimezoneDependentFields(&inst, ev.AllDay, x.local)
	return inst
}

// seriesZone is the zone in which a series' wall-clock rule is evaluated.
func (x *Expander) seriesZone(ev *storage.Event) *time.Location {
	if ev.AllDay {
		return time.UTC
	}
	loc, err := x.zones.Resolve(ev.TimeZone)
	if err != nil {
		x.logger.Warn("unknown event time zone, using UTC",
			"event_id", ev.ID,
			"timezone", ev.TimeZone,
			"error", err)
		return time.UTC
	}
	return loc
}
