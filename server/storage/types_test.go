package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKind(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		event    Event
		expected EventKind
	}{
		{
			name:     "plain",
			event:    Event{DTStart: start, DTEnd: mo.Some(start.Add(time.Hour))},
			expected: KindPlain,
		},
		{
			name:     "master with rule",
			event:    Event{DTStart: start, Duration: "P3600S", RRule: "FREQ=DAILY"},
			expected: KindMaster,
		},
		{
			name:     "master with rdates only",
			event:    Event{DTStart: start, Duration: "P3600S", RDates: []time.Time{start.AddDate(0, 0, 1)}},
			expected: KindMaster,
		},
		{
			name:     "exception linked by id",
			event:    Event{DTStart: start, OriginalID: mo.Some(int64(1)), OriginalInstanceTime: mo.Some(start)},
			expected: KindException,
		},
		{
			name:     "exception linked by sync id only",
			event:    Event{DTStart: start, OriginalSyncID: "abc", OriginalInstanceTime: mo.Some(start)},
			expected: KindException,
		},
		{
			name:     "forward exception carries a rule",
			event:    Event{DTStart: start, RRule: "FREQ=DAILY", OriginalID: mo.Some(int64(1)), OriginalInstanceTime: mo.Some(start)},
			expected: KindException,
		},
		{
			name:     "original time without a link is plain",
			event:    Event{DTStart: start, DTEnd: mo.Some(start), OriginalInstanceTime: mo.Some(start)},
			expected: KindPlain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.event.Kind())
		})
	}
}

func TestEventSpan(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	d, err := (&Event{DTStart: start, DTEnd: mo.Some(start.Add(90 * time.Minute))}).Span()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	d, err = (&Event{DTStart: start, Duration: "P7200S"}).Span()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)

	d, err = (&Event{DTStart: start}).Span()
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = (&Event{DTStart: start, Duration: "bogus"}).Span()
	assert.Error(t, err)
}

func TestEventClone(t *testing.T) {
	ev := &Event{ID: 1, ExDates: []time.Time{time.Unix(0, 0)}, ExDateDays: []time.Time{time.Unix(0, 0)}}
	c := ev.Clone()
	c.ExDates[0] = time.Unix(100, 0)
	c.ExDateDays[0] = time.Unix(100, 0)
	c.ID = 2
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, time.Unix(0, 0), ev.ExDates[0])
	assert.Equal(t, time.Unix(0, 0), ev.ExDateDays[0])
}

func TestRangeWindow(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var empty RangeWindow
	assert.False(t, empty.Tracking())
	assert.False(t, empty.Covers(jan, feb))

	w := empty.Grow(jan, feb)
	assert.True(t, w.Tracking())
	assert.True(t, w.Covers(jan, feb))
	assert.True(t, w.Covers(jan.AddDate(0, 0, 5), jan.AddDate(0, 0, 6)))
	assert.False(t, w.Covers(jan, mar))

	grown := w.Grow(feb, mar)
	assert.Equal(t, jan, grown.Min)
	assert.Equal(t, mar, grown.Max)

	// Growing never shrinks.
	same := grown.Grow(feb, feb.AddDate(0, 0, 1))
	assert.Equal(t, grown, same)
}

func TestError(t *testing.T) {
	inner := fmt.Errorf("disk full")
	err := fmt.Errorf("wrapped: %w", &Error{Type: ErrNotFound, Message: "event not found", Err: inner})

	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, inner)
	assert.False(t, IsNotFound(&Error{Type: ErrInvalidInput}))
	assert.Equal(t, "not_found: event not found", (&Error{Type: ErrNotFound, Message: "event not found"}).Error())
}
