package recur

import (
	"testing"
	"time"
)

func TestParseRuleBasic(t *testing.T) {
	r, err := ParseRule("FREQ=WEEKLY;INTERVAL=2;COUNT=10;BYDAY=MO,WE,FR")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Freq != "WEEKLY" {
		t.Errorf("freq: got %q", r.Freq)
	}
	if r.Interval != 2 {
		t.Errorf("interval: got %d", r.Interval)
	}
	if r.Count != 10 {
		t.Errorf("count: got %d", r.Count)
	}
	want := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	if len(r.ByDay) != len(want) {
		t.Fatalf("byday: got %v", r.ByDay)
	}
	for i := range want {
		if r.ByDay[i] != want[i] {
			t.Errorf("byday[%d]: got %v, want %v", i, r.ByDay[i], want[i])
		}
	}
}

func TestParseRulePrefixAndDefaults(t *testing.T) {
	r, err := ParseRule("RRULE:FREQ=DAILY")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Freq != "DAILY" || r.Interval != 1 || r.Count != 0 || r.HasUntil {
		t.Errorf("unexpected defaults: %+v", r)
	}
	if r.Raw != "RRULE:FREQ=DAILY" {
		t.Errorf("raw: got %q", r.Raw)
	}
}

func TestParseRuleUntilForms(t *testing.T) {
	for _, v := range []string{"20240315", "20240315T000000Z", "2024-03-15"} {
		r, err := ParseRule("FREQ=DAILY;UNTIL=" + v)
		if err != nil {
			t.Fatalf("UNTIL=%s: %v", v, err)
		}
		if !r.HasUntil {
			t.Fatalf("UNTIL=%s: HasUntil false", v)
		}
		if got := r.Until.Format("2006-01-02"); got != "2024-03-15" {
			t.Errorf("UNTIL=%s: got %s", v, got)
		}
	}
}

func TestParseRuleByMonthAndMonthDay(t *testing.T) {
	r, err := ParseRule("FREQ=MONTHLY;BYMONTHDAY=15,1;BYMONTH=6,7")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// BYMONTHDAY is kept sorted for the next-day jump.
	if len(r.ByMonthDay) != 2 || r.ByMonthDay[0] != 1 || r.ByMonthDay[1] != 15 {
		t.Errorf("bymonthday: got %v", r.ByMonthDay)
	}
	if len(r.ByMonth) != 2 || r.ByMonth[0] != time.June || r.ByMonth[1] != time.July {
		t.Errorf("bymonth: got %v", r.ByMonth)
	}
}

func TestParseRuleUnknownKeysIgnored(t *testing.T) {
	r, err := ParseRule("FREQ=WEEKLY;WKST=MO;BYSETPOS=1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Freq != "WEEKLY" {
		t.Errorf("freq: got %q", r.Freq)
	}
}

func TestParseRuleErrors(t *testing.T) {
	cases := []string{
		"",
		"INTERVAL=2",          // no FREQ
		"FREQ=DAILY;COUNT=0",  // COUNT below 1
		"FREQ=DAILY;INTERVAL=x",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=MONTHLY;BYMONTHDAY=40",
		"FREQ=MONTHLY;BYMONTH=13",
		"FREQ=DAILY;UNTIL=notadate",
	}
	for _, c := range cases {
		if _, err := ParseRule(c); err == nil {
			t.Errorf("ParseRule(%q): expected error", c)
		}
	}
}
