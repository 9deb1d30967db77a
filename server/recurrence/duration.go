package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// ParseDuration parses an RFC 5545 duration such as "PT1H" or "P1D".
// The lenient forms "P3600S" and "P1H" (time units without 'T') are accepted too.
func ParseDuration(s string) (time.Duration, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}
	sign := time.Duration(1)
	switch v[0] {
	case '-':
		sign = -1
		v = v[1:]
	case '+':
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") || len(v) < 2 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	v = v[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, c := range v {
		switch {
		case c >= '0' && c <= '9':
			num += string(c)
			continue
		case c == 'T':
			if num != "" || inTime {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			inTime = true
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		num = ""
		switch c {
		case 'W':
			total += time.Duration(n) * 7 * day
		case 'D':
			total += time.Duration(n) * day
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, c)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q: trailing number", s)
	}
	return sign * total, nil
}

// FormatDuration renders d in the stored form: "P<n>D" for whole days of an
// all-day event, "P<n>S" otherwise.
func FormatDuration(d time.Duration, allDay bool) string {
	if allDay && d%day == 0 {
		return fmt.Sprintf("P%dD", int64(d/day))
	}
	return fmt.Sprintf("P%dS", int64(d/time.Second))
}

// WholeDays rounds a stored duration up to whole days. Durations of all-day
// events given in seconds ("P<n>S") are normalized with it.
func WholeDays(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return (d + day - 1) / day * day
}
