package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantErr  bool
		validate func(t *testing.T, r *Rule)
	}{
		{
			name:  "weekly with interval and byday",
			input: "FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=TU,SU;WKST=SU",
			validate: func(t *testing.T, r *Rule) {
				assert.Equal(t, Weekly, r.Freq)
				assert.Equal(t, 2, r.Interval)
				assert.Equal(t, 4, r.Count)
				assert.Equal(t, time.Sunday, r.Wkst)
				assert.Equal(t, []WeekdayNum{{Weekday: time.Tuesday}, {Weekday: time.Sunday}}, r.ByDay)
				assert.True(t, r.Bounded())
			},
		},
		{
			name:  "defaults",
			input: "FREQ=DAILY",
			validate: func(t *testing.T, r *Rule) {
				assert.Equal(t, 1, r.Interval)
				assert.Equal(t, time.Monday, r.Wkst)
				assert.False(t, r.Bounded())
			},
		},
		{
			name:  "rrule prefix and lowercase",
			input: "RRULE:freq=monthly;byday=-1fr",
			validate: func(t *testing.T, r *Rule) {
				assert.Equal(t, Monthly, r.Freq)
				assert.Equal(t, []WeekdayNum{{Weekday: time.Friday, N: -1}}, r.ByDay)
			},
		},
		{
			name:  "utc until",
			input: "FREQ=YEARLY;UNTIL=20301231T235959Z;BYMONTH=1,7",
			validate: func(t *testing.T, r *Rule) {
				assert.Equal(t, time.Date(2030, 12, 31, 23, 59, 59, 0, time.UTC), r.Until)
				assert.Equal(t, []int{1, 7}, r.ByMonth)
				assert.True(t, r.Bounded())
			},
		},
		{
			name:  "x-name parts are ignored",
			input: "FREQ=DAILY;X-VENDOR=1",
			validate: func(t *testing.T, r *Rule) {
				assert.Equal(t, Daily, r.Freq)
			},
		},
		{name: "unknown frequency", input: "FREQ=OFTEN;WKST=MO", wantErr: true},
		{name: "hourly is not supported", input: "FREQ=HOURLY", wantErr: true},
		{name: "missing freq", input: "COUNT=3", wantErr: true},
		{name: "count and until", input: "FREQ=DAILY;COUNT=3;UNTIL=20200101T000000Z", wantErr: true},
		{name: "duplicate part", input: "FREQ=DAILY;FREQ=WEEKLY", wantErr: true},
		{name: "zero interval", input: "FREQ=DAILY;INTERVAL=0", wantErr: true},
		{name: "bad weekday", input: "FREQ=WEEKLY;BYDAY=XX", wantErr: true},
		{name: "bad ordinal", input: "FREQ=MONTHLY;BYDAY=0MO", wantErr: true},
		{name: "month out of range", input: "FREQ=YEARLY;BYMONTH=13", wantErr: true},
		{name: "missing equals", input: "FREQ=DAILY;COUNT", wantErr: true},
		{name: "unknown part", input: "FREQ=DAILY;FOO=1", wantErr: true},
		{name: "empty", input: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRule(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				var ruleErr *InvalidRuleError
				assert.ErrorAs(t, err, &ruleErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, r)
		})
	}
}

func TestRuleStringRoundTrip(t *testing.T) {
	inputs := []string{
		"FREQ=WEEKLY;COUNT=4;INTERVAL=2;BYDAY=TU,SU;WKST=SU",
		"FREQ=MONTHLY;BYDAY=-1FR;WKST=MO",
		"FREQ=YEARLY;UNTIL=20301231T235959Z;BYMONTH=1,7;WKST=MO",
		"FREQ=DAILY;UNTIL=20200105;WKST=MO",
	}
	for _, in := range inputs {
		r, err := ParseRule(in)
		require.NoError(t, err)
		assert.Equal(t, in, r.String())
	}
}

func TestParseRuleSet(t *testing.T) {
	t.Run("multiple rules", func(t *testing.T) {
		rs, err := ParseRuleSet("FREQ=DAILY;WKST=MO;COUNT=5\nFREQ=WEEKLY;WKST=SU;COUNT=5")
		require.NoError(t, err)
		require.Len(t, rs.Rules, 2)
		assert.True(t, rs.Bounded())
	})

	t.Run("one unbounded rule makes the set unbounded", func(t *testing.T) {
		rs, err := ParseRuleSet("FREQ=DAILY;COUNT=5\n\nFREQ=WEEKLY")
		require.NoError(t, err)
		require.Len(t, rs.Rules, 2)
		assert.False(t, rs.Bounded())
	})

	t.Run("one bad line fails the set", func(t *testing.T) {
		_, err := ParseRuleSet("FREQ=DAILY;COUNT=5\nFREQ=OFTEN")
		var ruleErr *InvalidRuleError
		require.ErrorAs(t, err, &ruleErr)
		assert.Equal(t, "FREQ=OFTEN", ruleErr.Rule)
	})

	t.Run("blank", func(t *testing.T) {
		_, err := ParseRuleSet("\n\n")
		assert.Error(t, err)
	})
}

func TestUntilFloatingUsesSeriesZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	r, err := ParseRule("FREQ=DAILY;UNTIL=20240103T090000")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 3, 9, 0, 0, 0, loc), r.untilIn(loc))

	dateOnly, err := ParseRule("FREQ=DAILY;UNTIL=20240103")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 3, 23, 59, 59, 0, loc), dateOnly.untilIn(loc))
}
