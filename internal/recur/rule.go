package recur

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Rule is a parsed recurrence rule in the RRULE key=value encoding.
// Only the keys the sync core understands are retained: FREQ, INTERVAL,
// COUNT, UNTIL, BYDAY, BYMONTHDAY, BYMONTH.
type Rule struct {
	Freq     string
	Interval int
	Count    int

	Until    time.Time
	HasUntil bool

	ByDay      []time.Weekday
	ByMonthDay []int
	ByMonth    []time.Month

	// Raw is the original rule string, kept for round-tripping onto
	// remote events.
	Raw string
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

// ParseRule parses a semicolon-separated key=value recurrence rule.
// Unknown keys are ignored; malformed values for known keys are errors.
// A leading "RRULE:" prefix is tolerated.
func ParseRule(s string) (Rule, error) {
	raw := strings.TrimSpace(s)
	body := strings.TrimPrefix(raw, "RRULE:")
	if body == "" {
		return Rule{}, errors.New("empty recurrence rule")
	}

	rule := Rule{Interval: 1, Raw: raw}

	for _, part := range strings.Split(body, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return Rule{}, fmt.Errorf("malformed rule component %q", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "FREQ":
			rule.Freq = strings.ToUpper(value)
		case "INTERVAL":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid INTERVAL %q", value)
			}
			rule.Interval = n
		case "COUNT":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid COUNT %q", value)
			}
			rule.Count = n
		case "UNTIL":
			t, err := parseUntil(value)
			if err != nil {
				return Rule{}, fmt.Errorf("invalid UNTIL %q: %w", value, err)
			}
			rule.Until = t
			rule.HasUntil = true
		case "BYDAY":
			for _, code := range strings.Split(value, ",") {
				wd, ok := weekdayCodes[strings.ToUpper(strings.TrimSpace(code))]
				if !ok {
					return Rule{}, fmt.Errorf("invalid BYDAY code %q", code)
				}
				rule.ByDay = append(rule.ByDay, wd)
			}
		case "BYMONTHDAY":
			for _, ds := range strings.Split(value, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(ds))
				if err != nil || n < 1 || n > 31 {
					return Rule{}, fmt.Errorf("invalid BYMONTHDAY %q", ds)
				}
				rule.ByMonthDay = append(rule.ByMonthDay, n)
			}
			sort.Ints(rule.ByMonthDay)
		case "BYMONTH":
			for _, ms := range strings.Split(value, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(ms))
				if err != nil || n < 1 || n > 12 {
					return Rule{}, fmt.Errorf("invalid BYMONTH %q", ms)
				}
				rule.ByMonth = append(rule.ByMonth, time.Month(n))
			}
		default:
			// Keys like WKST or BYSETPOS are not interpreted.
		}
	}

	if rule.Freq == "" {
		return Rule{}, errors.New("recurrence rule has no FREQ")
	}
	return rule, nil
}

// parseUntil accepts the compact RRULE forms and the plain calendar
// date form.
func parseUntil(v string) (time.Time, error) {
	layouts := []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized UNTIL format")
}

// monthAllowed reports whether date passes the BYMONTH filter.
func (r Rule) monthAllowed(t time.Time) bool {
	if len(r.ByMonth) == 0 {
		return true
	}
	for _, m := range r.ByMonth {
		if t.Month() == m {
			return true
		}
	}
	return false
}

// matchesDay reports whether t's weekday is in the BYDAY set.
func (r Rule) matchesDay(t time.Time) bool {
	for _, wd := range r.ByDay {
		if t.Weekday() == wd {
			return true
		}
	}
	return false
}
