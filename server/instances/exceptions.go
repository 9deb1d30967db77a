package instances

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cyp0633/librecur/server/storage"
	"github.com/samber/mo"
)

// ExceptionKind says how an exception affects its master's occurrence
type ExceptionKind int

const (
	// ExceptionSingle replaces one occurrence with the exception's own times.
	ExceptionSingle ExceptionKind = iota
	// ExceptionCancellation removes one occurrence.
	ExceptionCancellation
	// ExceptionForward ends the master at the original occurrence and
	// continues the series from the exception's own start and rule.
	ExceptionForward
)

func (k ExceptionKind) String() string {
	switch k {
	case ExceptionCancellation:
		return "cancellation"
	case ExceptionForward:
		return "forward"
	default:
		return "single"
	}
}

// Classify determines the kind of an exception row. A row carrying its own
// rule is a forward exception even when canceled; it then truncates the
// master without continuing it.
func Classify(ex *storage.Event) ExceptionKind {
	switch {
	case ex.RRule != "":
		return ExceptionForward
	case ex.Deleted || ex.Status == storage.StatusCanceled:
		return ExceptionCancellation
	default:
		return ExceptionSingle
	}
}

// ExceptionIndex maps the original occurrence times of one master to the
// exceptions overriding them.
type ExceptionIndex struct {
	byTime   map[int64]*storage.Event
	forwards []*storage.Event
}

func instantKey(t time.Time) int64 {
	return t.UnixMilli()
}

// BuildIndex indexes the exceptions of one master. When two exceptions claim
// the same original time, the one with the higher id wins.
func BuildIndex(exceptions []*storage.Event) *ExceptionIndex {
	idx := &ExceptionIndex{byTime: make(map[int64]*storage.Event, len(exceptions))}
	for _, ex := range exceptions {
		orig, ok := ex.OriginalInstanceTime.Get()
		if !ok {
			continue
		}
		key := instantKey(orig)
		if prev, dup := idx.byTime[key]; dup && prev.ID > ex.ID {
			continue
		}
		idx.byTime[key] = ex
	}
	for _, ex := range idx.byTime {
		if Classify(ex) == ExceptionForward {
			idx.forwards = append(idx.forwards, ex)
		}
	}
	slices.SortFunc(idx.forwards, func(a, b *storage.Event) int {
		return a.OriginalInstanceTime.MustGet().Compare(b.OriginalInstanceTime.MustGet())
	})
	return idx
}

// Lookup returns the exception overriding the occurrence originally at t
func (x *ExceptionIndex) Lookup(t time.Time) (*storage.Event, bool) {
	ex, ok := x.byTime[instantKey(t)]
	return ex, ok
}

// Boundary returns the original time of the earliest forward exception.
// Occurrences of the master at or after it are not generated.
func (x *ExceptionIndex) Boundary() mo.Option[time.Time] {
	if len(x.forwards) == 0 {
		return mo.None[time.Time]()
	}
	return x.forwards[0].OriginalInstanceTime
}

// Forwards returns the forward exceptions ordered by original time
func (x *ExceptionIndex) Forwards() []*storage.Event {
	return x.forwards
}

// Len returns the number of indexed exceptions
func (x *ExceptionIndex) Len() int {
	return len(x.byTime)
}

type syncKey struct {
	calendarID int64
	syncID     string
}

// linker resolves which master an exception belongs to: by original id when
// set, otherwise by (original sync id, calendar).
type linker struct {
	byID   map[int64]*storage.Event
	bySync map[syncKey]*storage.Event
}

func newLinker(series []*storage.Event) *linker {
	l := &linker{
		byID:   make(map[int64]*storage.Event, len(series)),
		bySync: make(map[syncKey]*storage.Event),
	}
	for _, s := range series {
		l.byID[s.ID] = s
		if s.SyncID != "" && !s.IsException() {
			key := syncKey{calendarID: s.CalendarID, syncID: s.SyncID}
			if prev, dup := l.bySync[key]; !dup || s.ID < prev.ID {
				l.bySync[key] = s
			}
		}
	}
	return l
}

func (l *linker) master(ex *storage.Event) (*storage.Event, bool) {
	if id, ok := ex.OriginalID.Get(); ok {
		m, found := l.byID[id]
		return m, found
	}
	if ex.OriginalSyncID == "" {
		return nil, false
	}
	m, found := l.bySync[syncKey{calendarID: ex.CalendarID, syncID: ex.OriginalSyncID}]
	return m, found
}

// BackfillOriginalIDs links exceptions that were written before their master.
// Every exception in the master's calendar whose original sync id equals the
// master's sync id and whose original id is unset gets the master's id.
func BackfillOriginalIDs(ctx context.Context, store storage.Storage, master *storage.Event) (int, error) {
	if master.SyncID == "" || master.IsException() {
		return 0, nil
	}
	n, err := store.UpdateEvents(ctx, storage.EventFilter{
		CalendarIDs:     []int64{master.CalendarID},
		OriginalSyncID:  mo.Some(master.SyncID),
		OriginalIDUnset: true,
	}, func(ev *storage.Event) {
		ev.OriginalID = mo.Some(master.ID)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to backfill exceptions of event %d: %w", master.ID, err)
	}
	return n, nil
}

// ResolveOriginal fills the missing half of an exception's link to its
// master: the original id from (original sync id, calendar), or the original
// sync id from the original id. A master that is not stored yet leaves the
// exception unlinked until BackfillOriginalIDs runs for it.
func ResolveOriginal(ctx context.Context, store storage.Storage, ex *storage.Event) error {
	if id, ok := ex.OriginalID.Get(); ok {
		if ex.OriginalSyncID != "" {
			return nil
		}
		master, err := store.GetEvent(ctx, id)
		if err != nil {
			if storage.IsNotFound(err) {
				return nil
			}
			return err
		}
		ex.OriginalSyncID = master.SyncID
		return nil
	}
	if ex.OriginalSyncID == "" {
		return nil
	}

	masters, err := store.ListEvents(ctx, storage.EventFilter{
		CalendarIDs: []int64{ex.CalendarID},
		SyncID:      mo.Some(ex.OriginalSyncID),
	})
	if err != nil {
		return err
	}
	masters = slices.DeleteFunc(masters, func(ev *storage.Event) bool { return ev.IsException() })
	if len(masters) == 0 {
		return nil
	}
	first := slices.MinFunc(masters, func(a, b *storage.Event) int { return cmp.Compare(a.ID, b.ID) })
	ex.OriginalID = mo.Some(first.ID)
	return nil
}
