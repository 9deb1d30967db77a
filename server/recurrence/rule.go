package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency is the FREQ part of a recurrence rule.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

var rruleFrequencies = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// indexed by time.Weekday
var rruleWeekdays = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// WeekdayNum is one BYDAY entry. N is the ordinal (e.g. -1 for "last"); zero means every such weekday.
type WeekdayNum struct {
	Weekday time.Weekday
	N       int
}

func (w WeekdayNum) String() string {
	code := strings.ToUpper(w.Weekday.String()[:2])
	if w.N == 0 {
		return code
	}
	return strconv.Itoa(w.N) + code
}

// Rule is a single parsed RRULE.
type Rule struct {
	Freq       Frequency
	Interval   int
	Count      int
	Until      time.Time
	Wkst       time.Weekday
	ByDay      []WeekdayNum
	ByMonth    []int
	ByMonthDay []int
	ByYearDay  []int
	ByWeekNo   []int
	ByHour     []int
	ByMinute   []int
	BySecond   []int
	BySetPos   []int

	// untilFloating is set when UNTIL carried no zone designator; it is then
	// read in the zone of the series start.
	untilFloating bool
	untilDate     bool
}

// InvalidRuleError reports a recurrence rule that could not be parsed.
type InvalidRuleError struct {
	Rule   string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid recurrence rule %q: %s", e.Rule, e.Reason)
}

// ParseRule parses one RRULE value such as "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,SU".
// An optional "RRULE:" prefix is accepted.
func ParseRule(s string) (*Rule, error) {
	raw := strings.TrimSpace(s)
	body := raw
	if len(body) >= 6 && strings.EqualFold(body[:6], "RRULE:") {
		body = body[6:]
	}
	if body == "" {
		return nil, &InvalidRuleError{Rule: raw, Reason: "empty rule"}
	}

	r := &Rule{Interval: 1, Wkst: time.Monday}
	seen := make(map[string]bool)
	fail := func(format string, args ...any) (*Rule, error) {
		return nil, &InvalidRuleError{Rule: raw, Reason: fmt.Sprintf(format, args...)}
	}

	for _, part := range strings.Split(body, ";") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return fail("part %q is missing '='", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if seen[key] {
			return fail("part %s was specified twice", key)
		}
		seen[key] = true

		var err error
		switch key {
		case "FREQ":
			f := Frequency(strings.ToUpper(value))
			if _, known := rruleFrequencies[f]; !known {
				return fail("unsupported frequency %q", value)
			}
			r.Freq = f
		case "INTERVAL":
			r.Interval, err = parsePositive(value)
		case "COUNT":
			r.Count, err = parsePositive(value)
		case "UNTIL":
			err = r.parseUntil(value)
		case "WKST":
			d, known := weekdayCodes[strings.ToUpper(value)]
			if !known {
				return fail("bad WKST %q", value)
			}
			r.Wkst = d
		case "BYDAY":
			r.ByDay, err = parseByDay(value)
		case "BYMONTH":
			r.ByMonth, err = parseIntList(value, 1, 12, false)
		case "BYMONTHDAY":
			r.ByMonthDay, err = parseIntList(value, 1, 31, true)
		case "BYYEARDAY":
			r.ByYearDay, err = parseIntList(value, 1, 366, true)
		case "BYWEEKNO":
			r.ByWeekNo, err = parseIntList(value, 1, 53, true)
		case "BYHOUR":
			r.ByHour, err = parseIntList(value, 0, 23, false)
		case "BYMINUTE":
			r.ByMinute, err = parseIntList(value, 0, 59, false)
		case "BYSECOND":
			r.BySecond, err = parseIntList(value, 0, 60, false)
		case "BYSETPOS":
			r.BySetPos, err = parseIntList(value, 1, 366, true)
		default:
			if strings.HasPrefix(key, "X-") {
				continue
			}
			return fail("unknown part %s", key)
		}
		if err != nil {
			return fail("%s: %v", key, err)
		}
	}

	if r.Freq == "" {
		return fail("FREQ is required")
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return fail("COUNT and UNTIL are mutually exclusive")
	}
	return r, nil
}

func (r *Rule) parseUntil(value string) error {
	v := strings.ToUpper(value)
	switch {
	case len(v) == 8:
		t, err := time.ParseInLocation("20060102", v, time.UTC)
		if err != nil {
			return err
		}
		r.Until, r.untilFloating, r.untilDate = t, true, true
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return err
		}
		r.Until = t
	default:
		t, err := time.ParseInLocation("20060102T150405", v, time.UTC)
		if err != nil {
			return err
		}
		r.Until, r.untilFloating = t, true
	}
	return nil
}

func parsePositive(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func parseIntList(value string, min, max int, signed bool) ([]int, error) {
	var out []int
	for _, field := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		abs := n
		if abs < 0 {
			if !signed {
				return nil, fmt.Errorf("negative value %d not allowed", n)
			}
			abs = -abs
		}
		if abs < min || abs > max {
			return nil, fmt.Errorf("value %d out of range", n)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseByDay(value string) ([]WeekdayNum, error) {
	var out []WeekdayNum
	for _, field := range strings.Split(value, ",") {
		field = strings.ToUpper(strings.TrimSpace(field))
		if len(field) < 2 {
			return nil, fmt.Errorf("bad weekday %q", field)
		}
		code := field[len(field)-2:]
		day, ok := weekdayCodes[code]
		if !ok {
			return nil, fmt.Errorf("bad weekday %q", field)
		}
		w := WeekdayNum{Weekday: day}
		if prefix := field[:len(field)-2]; prefix != "" {
			n, err := strconv.Atoi(prefix)
			if err != nil || n == 0 || n < -53 || n > 53 {
				return nil, fmt.Errorf("bad weekday ordinal %q", field)
			}
			w.N = n
		}
		out = append(out, w)
	}
	return out, nil
}

// Bounded reports whether the rule produces a finite number of occurrences.
func (r *Rule) Bounded() bool {
	return r.Count > 0 || !r.Until.IsZero()
}

// String renders the rule in canonical part order.
func (r *Rule) String() string {
	parts := []string{"FREQ=" + string(r.Freq)}
	switch {
	case r.Count > 0:
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	case r.untilDate:
		parts = append(parts, "UNTIL="+r.Until.Format("20060102"))
	case r.untilFloating:
		parts = append(parts, "UNTIL="+r.Until.Format("20060102T150405"))
	case !r.Until.IsZero():
		parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
	}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		days := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			days[i] = d.String()
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	for _, p := range []struct {
		name   string
		values []int
	}{
		{"BYMONTH", r.ByMonth},
		{"BYMONTHDAY", r.ByMonthDay},
		{"BYYEARDAY", r.ByYearDay},
		{"BYWEEKNO", r.ByWeekNo},
		{"BYHOUR", r.ByHour},
		{"BYMINUTE", r.ByMinute},
		{"BYSECOND", r.BySecond},
		{"BYSETPOS", r.BySetPos},
	} {
		if len(p.values) == 0 {
			continue
		}
		fields := make([]string, len(p.values))
		for i, v := range p.values {
			fields[i] = strconv.Itoa(v)
		}
		parts = append(parts, p.name+"="+strings.Join(fields, ","))
	}
	parts = append(parts, "WKST="+WeekdayNum{Weekday: r.Wkst}.String())
	return strings.Join(parts, ";")
}

// option converts the rule into rrule-go options anchored at dtstart.
func (r *Rule) option(dtstart time.Time) rrule.ROption {
	opt := rrule.ROption{
		Freq:       rruleFrequencies[r.Freq],
		Dtstart:    dtstart,
		Interval:   r.Interval,
		Count:      r.Count,
		Wkst:       rruleWeekdays[r.Wkst],
		Bymonth:    r.ByMonth,
		Bymonthday: r.ByMonthDay,
		Byyearday:  r.ByYearDay,
		Byweekno:   r.ByWeekNo,
		Byhour:     r.ByHour,
		Byminute:   r.ByMinute,
		Bysecond:   r.BySecond,
		Bysetpos:   r.BySetPos,
	}
	for _, d := range r.ByDay {
		w := rruleWeekdays[d.Weekday]
		if d.N != 0 {
			w = w.Nth(d.N)
		}
		opt.Byweekday = append(opt.Byweekday, w)
	}
	if !r.Until.IsZero() {
		opt.Until = r.untilIn(dtstart.Location())
	}
	return opt
}

func (r *Rule) untilIn(loc *time.Location) time.Time {
	if !r.untilFloating {
		return r.Until
	}
	y, m, d := r.Until.Date()
	if r.untilDate {
		return time.Date(y, m, d, 23, 59, 59, 0, loc)
	}
	return time.Date(y, m, d, r.Until.Hour(), r.Until.Minute(), r.Until.Second(), 0, loc)
}

// RuleSet is the newline-separated list of rules stored on one event.
// Occurrences of a set are the union of the occurrences of its rules.
type RuleSet struct {
	Rules []*Rule
}

// ParseRuleSet splits s on newlines and parses each non-empty line.
func ParseRuleSet(s string) (*RuleSet, error) {
	set := &RuleSet{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r, err := ParseRule(line)
		if err != nil {
			return nil, err
		}
		set.Rules = append(set.Rules, r)
	}
	if len(set.Rules) == 0 {
		return nil, &InvalidRuleError{Rule: s, Reason: "no rules"}
	}
	return set, nil
}

// Bounded reports whether every rule in the set is bounded.
func (rs *RuleSet) Bounded() bool {
	for _, r := range rs.Rules {
		if !r.Bounded() {
			return false
		}
	}
	return true
}

func (rs *RuleSet) String() string {
	lines := make([]string, len(rs.Rules))
	for i, r := range rs.Rules {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}
