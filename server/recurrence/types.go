package recurrence

import (
	"time"
)

// RecurrenceInfo contains all recurrence-related information for a series
type RecurrenceInfo struct {
	Rules  *RuleSet    // Parsed RRULE lines, nil for RDATE-only series
	RDATE  []time.Time // Additional recurrence dates
	EXDATE []time.Time // Exception dates (excluded occurrences)

	// ExcludedDays holds date-only EXDATEs as midnight UTC. Each removes every
	// occurrence on that calendar day.
	ExcludedDays []time.Time
}

// ParseRecurrenceInfo parses the stored rule text and attaches the date lists.
// An empty rule yields a nil rule set.
func ParseRecurrenceInfo(rrule string, rdates, exdates []time.Time) (RecurrenceInfo, error) {
	info := RecurrenceInfo{RDATE: rdates, EXDATE: exdates}
	if rrule == "" {
		return info, nil
	}
	rules, err := ParseRuleSet(rrule)
	if err != nil {
		return RecurrenceInfo{}, err
	}
	info.Rules = rules
	return info, nil
}

// IsRecurring reports whether the info describes more than the anchor occurrence.
func (i RecurrenceInfo) IsRecurring() bool {
	return i.Rules != nil || len(i.RDATE) > 0
}

// Bounded reports whether the series has a last occurrence.
func (i RecurrenceInfo) Bounded() bool {
	return i.Rules == nil || i.Rules.Bounded()
}

func (i RecurrenceInfo) ruleText() string {
	if i.Rules == nil {
		return ""
	}
	return i.Rules.String()
}

// Window is a half-open instant range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
