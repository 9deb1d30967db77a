package recurrence

import (
	"iter"
	"slices"
	"time"

	"github.com/teambition/rrule-go"
)

// source is one ascending stream of candidate starts.
type source struct {
	next func() (time.Time, bool)
	head time.Time
	ok   bool
}

func (s *source) advance() {
	s.head, s.ok = s.next()
}

func sliceSource(ts []time.Time) *source {
	sorted := slices.Clone(ts)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	i := 0
	s := &source{next: func() (time.Time, bool) {
		if i >= len(sorted) {
			return time.Time{}, false
		}
		t := sorted[i]
		i++
		return t, true
	}}
	s.advance()
	return s
}

// Generate yields, in ascending order and without duplicates, every occurrence
// start of the series anchored at dtstart that lies in window. dtstart must
// already carry the series' zone; wall-clock fields of the rule are evaluated
// in that zone.
//
// COUNT is counted from dtstart regardless of the window. The sequence is
// lazy and may be ranged over any number of times.
func Generate(info RecurrenceInfo, dtstart time.Time, window Window) (iter.Seq[time.Time], error) {
	var rules []*rrule.RRule
	if info.Rules != nil {
		for _, r := range info.Rules.Rules {
			rr, err := rrule.NewRRule(r.option(dtstart))
			if err != nil {
				return nil, &InvalidRuleError{Rule: r.String(), Reason: err.Error()}
			}
			rules = append(rules, rr)
		}
	}

	return func(yield func(time.Time) bool) {
		sources := make([]*source, 0, len(rules)+1)
		for _, rr := range rules {
			s := &source{next: rr.Iterator()}
			s.advance()
			sources = append(sources, s)
		}
		extra := info.RDATE
		if len(rules) == 0 {
			extra = append([]time.Time{dtstart}, extra...)
		}
		if len(extra) > 0 {
			sources = append(sources, sliceSource(extra))
		}

		for {
			var min time.Time
			found := false
			for _, s := range sources {
				if s.ok && (!found || s.head.Before(min)) {
					min, found = s.head, true
				}
			}
			if !found || !min.Before(window.End) {
				return
			}
			for _, s := range sources {
				for s.ok && s.head.Equal(min) {
					s.advance()
				}
			}
			if min.Before(window.Start) || isExcluded(min, info.EXDATE, info.ExcludedDays) {
				continue
			}
			if !yield(min) {
				return
			}
		}
	}, nil
}

// Last returns the final occurrence start of a bounded series. It reports
// false for unbounded series.
func Last(info RecurrenceInfo, dtstart time.Time) (time.Time, bool, error) {
	if !info.Bounded() {
		return time.Time{}, false, nil
	}
	seq, err := Generate(info, dtstart, Window{Start: dtstart, End: maxTime})
	if err != nil {
		return time.Time{}, false, err
	}
	var last time.Time
	found := false
	for t := range seq {
		last, found = t, true
	}
	return last, found, nil
}

var maxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// isExcluded checks t against the exact EXDATE instants and the date-only
// EXDATE days
func isExcluded(t time.Time, exdates, days []time.Time) bool {
	for _, exdate := range exdates {
		if t.Equal(exdate) {
			return true
		}
	}
	if len(days) == 0 {
		return false
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for _, exday := range days {
		if day.Equal(exday) {
			return true
		}
	}
	return false
}
