package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{input: "PT1H", expected: time.Hour},
		{input: "P1D", expected: 24 * time.Hour},
		{input: "P1W", expected: 7 * 24 * time.Hour},
		{input: "P1DT2H30M15S", expected: 26*time.Hour + 30*time.Minute + 15*time.Second},
		{input: "P3600S", expected: time.Hour},
		{input: "P7200S", expected: 2 * time.Hour},
		{input: "-PT15M", expected: -15 * time.Minute},
		{input: "+PT0S", expected: 0},
		{input: "p1d", expected: 24 * time.Hour},
		{input: "", wantErr: true},
		{input: "1H", wantErr: true},
		{input: "P", wantErr: true},
		{input: "PT", expected: 0},
		{input: "P1X", wantErr: true},
		{input: "P1", wantErr: true},
		{input: "PH", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "P3600S", FormatDuration(time.Hour, false))
	assert.Equal(t, "P86400S", FormatDuration(24*time.Hour, false))
	assert.Equal(t, "P1D", FormatDuration(24*time.Hour, true))
	assert.Equal(t, "P90000S", FormatDuration(25*time.Hour, true))
}

func TestWholeDays(t *testing.T) {
	assert.Equal(t, 24*time.Hour, WholeDays(time.Second))
	assert.Equal(t, 24*time.Hour, WholeDays(24*time.Hour))
	assert.Equal(t, 48*time.Hour, WholeDays(25*time.Hour))
	assert.Equal(t, time.Duration(0), WholeDays(0))
}
