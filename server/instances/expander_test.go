package instances

import (
	"testing"
	"time"

	"github.com/cyp0633/librecur/server/recurrence"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExpander(opts ...Option) *Expander {
	return NewExpander(recurrence.NewEngineWithConfig(recurrence.DisabledCacheConfig), opts...)
}

func weekly(id int64, start time.Time, rule string) *storage.Event {
	ev := storage.NewMockSeries(id, 1, "weekly", start, "P3600S", rule)
	ev.SyncID = "weekly-sync"
	return ev
}

func exceptionOf(id int64, master *storage.Event, original time.Time) *storage.Event {
	return &storage.Event{
		ID:                   id,
		CalendarID:           master.CalendarID,
		Title:                master.Title,
		TimeZone:             master.TimeZone,
		OriginalID:           mo.Some(master.ID),
		OriginalSyncID:       master.SyncID,
		OriginalInstanceTime: mo.Some(original),
		DTStart:              original,
		DTEnd:                mo.Some(original.Add(time.Hour)),
		Status:               storage.StatusConfirmed,
	}
}

func begins(instances []storage.Instance) []time.Time {
	out := make([]time.Time, len(instances))
	for i, inst := range instances {
		out[i] = inst.Begin
	}
	return out
}

func assertBegins(t *testing.T, expected []time.Time, instances []storage.Instance) {
	t.Helper()
	actual := begins(instances)
	require.Len(t, actual, len(expected), "begins: %v", actual)
	for i := range expected {
		assert.True(t, expected[i].Equal(actual[i]), "instance %d: expected %v, got %v", i, expected[i], actual[i])
	}
}

func TestExpand_BiweeklyTwoWeekdays(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	master := storage.NewMockSeries(1, 1, "biweekly", time.Date(2003, 8, 5, 9, 0, 0, 0, la),
		"P3600S", "FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=TU,SU;WKST=SU")
	x := newTestExpander(WithLocalTimeZone(la))

	got, err := x.Expand([]*storage.Event{master},
		time.Date(2003, 8, 5, 0, 0, 0, 0, la),
		time.Date(2003, 9, 1, 0, 0, 0, 0, la))
	require.NoError(t, err)

	assertBegins(t, []time.Time{
		time.Date(2003, 8, 5, 9, 0, 0, 0, la),
		time.Date(2003, 8, 17, 9, 0, 0, 0, la),
		time.Date(2003, 8, 19, 9, 0, 0, 0, la),
		time.Date(2003, 8, 31, 9, 0, 0, 0, la),
	}, got)
	for _, inst := range got {
		assert.Equal(t, int64(1), inst.EventID)
		assert.Equal(t, 9*60, inst.StartMinute)
		assert.Equal(t, 10*60, inst.EndMinute)
	}
}

func TestExpand_Exceptions(t *testing.T) {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	windowStart := start.AddDate(0, 0, -1)
	windowEnd := start.AddDate(0, 0, 5*7)
	week := func(n int) time.Time { return start.AddDate(0, 0, 7*(n-1)) }

	t.Run("no exceptions", func(t *testing.T) {
		master := weekly(1, start, "FREQ=WEEKLY;WKST=MO")
		got, err := newTestExpander().Expand([]*storage.Event{master}, windowStart, windowEnd)
		require.NoError(t, err)
		assertBegins(t, []time.Time{week(1), week(2), week(3), week(4), week(5)}, got)
	})

	t.Run("single exception moves one occurrence", func(t *testing.T) {
		master := weekly(1, start, "FREQ=WEEKLY;WKST=MO")
		ex := exceptionOf(2, master, week(2))
		ex.DTStart = week(2).Add(time.Hour)
		ex.DTEnd = mo.Some(week(2).Add(2 * time.Hour))

		got, err := newTestExpander().Expand([]*storage.Event{master, ex}, windowStart, windowEnd)
		require.NoError(t, err)
		require.Len(t, got, 5)

		assert.Equal(t, int64(2), got[1].EventID)
		assert.Equal(t, 11*60, got[1].StartMinute)
		for _, i := range []int{0, 2, 3, 4} {
			assert.Equal(t, int64(1), got[i].EventID)
			assert.Equal(t, 10*60, got[i].StartMinute)
		}
	})

	t.Run("cancellation removes one occurrence", func(t *testing.T) {
		master := weekly(1, start, "FREQ=WEEKLY;WKST=MO")
		ex := exceptionOf(2, master, week(4))
		ex.Status = storage.StatusCanceled

		got, err := newTestExpander().Expand([]*storage.Event{master, ex}, windowStart, windowEnd)
		require.NoError(t, err)
		assertBegins(t, []time.Time{week(1), week(2), week(3), week(5)}, got)
	})

	t.Run("deleted exception removes one occurrence", func(t *testing.T) {
		master := weekly(1, start, "FREQ=WEEKLY;WKST=MO")
		ex := exceptionOf(2, master, week(3))
		ex.Deleted = true

		got, err := newTestExpander().Expand([]*storage.Event{master, ex}, windowStart, windowEnd)
		require.NoError(t, err)
		assertBegins(t, []time.Time{week(1), week(2), week(4), week(5)}, got)
	})

	t.Run("exception moved out of the window still hides its occurrence", func(t *testing.T) {
		master := weekly(1, start, "FREQ=WEEKLY;WKST=MO")
		ex := exceptionOf(2, master, week(5))
		ex.DTStart = week(8)
		ex.DTEnd = mo.Some(week(8).Add(time.Hour))

		got, err := newTestExpander().Expand([]*storage.Event{master, ex}, windowStart, windowEnd)
		require.NoError(t, err)
		assertBegins(t, []time.Time{week(1), week(2), week(3), week(4)}, got)
	})

	t.Run("forward exception replaces the tail", func(t *testing.T) {
		master := weekly(1, start, "FREQ=WEEKLY;WKST=MO")
		fwd := exceptionOf(2, master, week(3))
		fwd.DTStart = week(3).Add(2 * time.Hour)
		fwd.DTEnd = mo.None[time.Time]()
		fwd.Duration = "P3600S"
		fwd.RRule = "FREQ=WEEKLY;COUNT=2;WKST=MO"

		got, err := newTestExpander().Expand([]*storage.Event{master, fwd}, windowStart, windowEnd)
		require.NoError(t, err)
		require.Len(t, got, 4)

		assert.Equal(t, got[0].StartMinute, got[1].StartMinute)
		assert.Equal(t, got[2].StartMinute, got[3].StartMinute)
		assert.NotEqual(t, got[0].StartMinute, got[2].StartMinute)
		assert.Equal(t, []int64{1, 1, 2, 2}, []int64{got[0].EventID, got[1].EventID, got[2].EventID, got[3].EventID})
	})

	t.Run("canceled forward exception only truncates", func(t *testing.T) {
		master := weekly(1, start, "FREQ=WEEKLY;WKST=MO")
		fwd := exceptionOf(2, master, week(3))
		fwd.RRule = "FREQ=WEEKLY;COUNT=2;WKST=MO"
		fwd.Status = storage.StatusCanceled

		got, err := newTestExpander().Expand([]*storage.Event{master, fwd}, windowStart, windowEnd)
		require.NoError(t, err)
		assertBegins(t, []time.Time{week(1), week(2)}, got)
	})

	t.Run("later forward exception bounds an earlier one", func(t *testing.T) {
		master := weekly(1, start, "FREQ=WEEKLY;WKST=MO")
		first := exceptionOf(2, master, week(2))
		first.DTEnd = mo.None[time.Time]()
		first.Duration = "P3600S"
		first.RRule = "FREQ=WEEKLY;WKST=MO"
		second := exceptionOf(3, master, week(4))
		second.DTEnd = mo.None[time.Time]()
		second.Duration = "P3600S"
		second.RRule = "FREQ=WEEKLY;WKST=MO"

		got, err := newTestExpander().Expand([]*storage.Event{master, first, second}, windowStart, windowEnd)
		require.NoError(t, err)
		assertBegins(t, []time.Time{week(1), week(2), week(3), week(4), week(5)}, got)
		assert.Equal(t, []int64{1, 2, 2, 3, 3}, []int64{got[0].EventID, got[1].EventID, got[2].EventID, got[3].EventID, got[4].EventID})
	})

	t.Run("deleted master hides its exceptions", func(t *testing.T) {
		master := weekly(1, start, "FREQ=WEEKLY;WKST=MO")
		master.Deleted = true
		ex := exceptionOf(2, master, week(2))

		got, err := newTestExpander().Expand([]*storage.Event{master, ex}, windowStart, windowEnd)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestExpand_SyncIDCorrelation(t *testing.T) {
	start := time.Date(1987, 8, 9, 12, 0, 0, 0, time.UTC)
	master := storage.NewMockSeries(1, 1, "daily", start, "P3600S", "FREQ=DAILY;COUNT=10;WKST=MO")
	master.SyncID = "MagicSyncId"

	unlinked := func(id, calendarID int64, original time.Time) *storage.Event {
		return &storage.Event{
			ID:                   id,
			CalendarID:           calendarID,
			OriginalSyncID:       "MagicSyncId",
			OriginalInstanceTime: mo.Some(original),
			DTStart:              original.Add(30 * time.Minute),
			DTEnd:                mo.Some(original.Add(90 * time.Minute)),
		}
	}

	events := []*storage.Event{
		unlinked(2, 1, start.AddDate(0, 0, 1)),
		master,
		unlinked(3, 1, start.AddDate(0, 0, 3)),
		unlinked(4, 2, start.AddDate(0, 0, 5)),
	}

	got, err := newTestExpander().Expand(events, start, start.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Len(t, got, 11)

	ids := map[int64]int{}
	for _, inst := range got {
		ids[inst.EventID]++
	}
	assert.Equal(t, 8, ids[1])
	assert.Equal(t, 1, ids[2])
	assert.Equal(t, 1, ids[3])
	// The calendar 2 row has no master in its calendar and stands alone.
	assert.Equal(t, 1, ids[4])
	for _, inst := range got {
		if inst.EventID == 4 {
			assert.Equal(t, int64(2), inst.CalendarID, "orphan keeps its own calendar")
		}
	}
}

func TestExpand_PlainEvents(t *testing.T) {
	windowStart := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"inside", windowStart.Add(time.Hour), windowStart.Add(2 * time.Hour), true},
		{"straddles start", windowStart.Add(-time.Hour), windowStart.Add(time.Hour), true},
		{"ends at start", windowStart.Add(-time.Hour), windowStart, false},
		{"zero length at start", windowStart, windowStart, true},
		{"starts at end", windowEnd, windowEnd.Add(time.Hour), false},
		{"before", windowStart.Add(-3 * time.Hour), windowStart.Add(-2 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := storage.NewMockEvent(1, 1, tt.name, tt.start, tt.end)
			got, err := newTestExpander().Expand([]*storage.Event{ev}, windowStart, windowEnd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}

	t.Run("deleted plain events are skipped", func(t *testing.T) {
		ev := storage.NewMockEvent(1, 1, "gone", windowStart.Add(time.Hour), windowStart.Add(2*time.Hour))
		ev.Deleted = true
		got, err := newTestExpander().Expand([]*storage.Event{ev}, windowStart, windowEnd)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestExpand_OrderingAndIdempotence(t *testing.T) {
	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	events := []*storage.Event{
		storage.NewMockEvent(5, 1, "late", at.Add(time.Hour), at.Add(2*time.Hour)),
		storage.NewMockEvent(4, 1, "tie b", at, at.Add(time.Hour)),
		storage.NewMockSeries(3, 1, "series", at, "P1800S", "FREQ=DAILY;COUNT=3;WKST=MO"),
	}
	x := newTestExpander()

	first, err := x.Expand(events, at.AddDate(0, 0, -1), at.AddDate(0, 0, 7))
	require.NoError(t, err)
	second, err := x.Expand(events, at.AddDate(0, 0, -1), at.AddDate(0, 0, 7))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 5)
	assert.Equal(t, []int64{3, 4, 5, 3, 3}, []int64{
		first[0].EventID, first[1].EventID, first[2].EventID, first[3].EventID, first[4].EventID,
	})
}

func TestExpand_MultiRule(t *testing.T) {
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) // Monday
	master := storage.NewMockSeries(1, 1, "multi", start, "P600S",
		"FREQ=WEEKLY;COUNT=2;BYDAY=MO;WKST=MO\nFREQ=WEEKLY;COUNT=2;BYDAY=WE;WKST=MO")

	got, err := newTestExpander().Expand([]*storage.Event{master}, start, start.AddDate(0, 1, 0))
	require.NoError(t, err)
	assertBegins(t, []time.Time{
		start,
		start.AddDate(0, 0, 2),
		start.AddDate(0, 0, 7),
		start.AddDate(0, 0, 9),
	}, got)
}

func TestExpand_AllDay(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	start := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	master := storage.NewMockSeries(1, 1, "holiday", start, "P1D", "FREQ=YEARLY;WKST=MO")
	master.AllDay = true
	master.TimeZone = "UTC"

	got, err := newTestExpander(WithLocalTimeZone(tokyo)).Expand([]*storage.Event{master},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)

	inst := got[0]
	assert.Equal(t, JulianDay(start), inst.StartDay)
	assert.Equal(t, inst.StartDay, inst.EndDay)
	assert.Equal(t, 0, inst.StartMinute)
	assert.Equal(t, 1440, inst.EndMinute)
}

func TestExpand_Errors(t *testing.T) {
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	t.Run("bad rule", func(t *testing.T) {
		master := storage.NewMockSeries(1, 1, "bad", start, "P600S", "FREQ=OFTEN;WKST=MO")
		_, err := newTestExpander().Expand([]*storage.Event{master}, start, start.AddDate(0, 0, 7))
		var ruleErr *recurrence.InvalidRuleError
		assert.ErrorAs(t, err, &ruleErr)
	})

	t.Run("bad duration", func(t *testing.T) {
		master := storage.NewMockSeries(1, 1, "bad", start, "P1X", "FREQ=DAILY;WKST=MO")
		_, err := newTestExpander().Expand([]*storage.Event{master}, start, start.AddDate(0, 0, 7))
		assert.Error(t, err)
	})

	t.Run("empty window", func(t *testing.T) {
		master := storage.NewMockSeries(1, 1, "ok", start, "P600S", "FREQ=DAILY;WKST=MO")
		got, err := newTestExpander().Expand([]*storage.Event{master}, start, start)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestExpand_UnknownZoneFallsBackToUTC(t *testing.T) {
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	master := storage.NewMockSeries(1, 1, "zone", start, "P600S", "FREQ=DAILY;COUNT=2;WKST=MO")
	master.TimeZone = "Mars/Olympus_Mons"

	got, err := newTestExpander().Expand([]*storage.Event{master}, start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	assertBegins(t, []time.Time{start, start.AddDate(0, 0, 1)}, got)
}
