package model

import (
	"testing"
	"time"
)

func TestParseDateValue(t *testing.T) {
	loc := time.UTC

	cases := []struct {
		in      string
		want    string
		hasTime bool
	}{
		{"2024-01-02", "2024-01-02 00:00", false},
		{"2024-01-02T09:30", "2024-01-02 09:30", true},
		{"2024-01-02 09:30", "2024-01-02 09:30", true},
		{"2024-01-02T09:30:15", "2024-01-02 09:30", true},
		{"2024-01-02T09:30:00Z", "2024-01-02 09:30", true},
		{" 2024-01-02 ", "2024-01-02 00:00", false},
	}
	for _, c := range cases {
		dv, err := ParseDateValue(c.in, loc)
		if err != nil {
			t.Errorf("ParseDateValue(%q): %v", c.in, err)
			continue
		}
		if got := dv.Time.Format("2006-01-02 15:04"); got != c.want {
			t.Errorf("ParseDateValue(%q): got %s, want %s", c.in, got, c.want)
		}
		if dv.HasTime != c.hasTime {
			t.Errorf("ParseDateValue(%q): HasTime=%v, want %v", c.in, dv.HasTime, c.hasTime)
		}
	}
}

func TestParseDateValueErrors(t *testing.T) {
	for _, in := range []string{"", "  ", "not-a-date", "01/02/2024"} {
		if _, err := ParseDateValue(in, time.UTC); err == nil {
			t.Errorf("ParseDateValue(%q): expected error", in)
		}
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := NewRecord("tasks/review")
	rec.Set(FieldTitle, "Review")
	rec.Set(FieldRecurring, true)
	rec.Set(FieldRecurrenceRules, []any{"FREQ=DAILY", "FREQ=WEEKLY"})

	if rec.String(FieldTitle) != "Review" {
		t.Errorf("title: got %q", rec.String(FieldTitle))
	}
	if rec.String("missing") != "" {
		t.Errorf("missing field: got %q", rec.String("missing"))
	}
	if !rec.Bool(FieldRecurring, false) {
		t.Error("recurring: got false")
	}
	if !rec.Bool("missing", true) {
		t.Error("missing bool should return default")
	}

	// []any from a yaml decode is normalized to []string.
	rules := rec.Strings(FieldRecurrenceRules)
	if len(rules) != 2 || rules[0] != "FREQ=DAILY" {
		t.Errorf("rules: got %v", rules)
	}

	rec.Set(FieldRecurrenceRules, "FREQ=DAILY")
	if rules := rec.Strings(FieldRecurrenceRules); len(rules) != 1 {
		t.Errorf("scalar rule: got %v", rules)
	}
}

func TestRecordStringFromTimeValue(t *testing.T) {
	// yaml.v3 decodes unquoted frontmatter dates into time.Time; the
	// accessor must render those, not the time.Time Stringer output.
	rec := NewRecord("note")
	rec.Set(FieldDueDate, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	if got := rec.String(FieldDueDate); got != "2024-01-05" {
		t.Errorf("date-only: got %q", got)
	}

	rec.Set(FieldLastSync, time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC))
	if got := rec.String(FieldLastSync); got != "2024-01-05T10:30:00Z" {
		t.Errorf("timestamp: got %q", got)
	}
}

func TestRecordDateFromTimeValue(t *testing.T) {
	rec := NewRecord("note")
	rec.Set(FieldDueDate, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	dv, ok := rec.Date(FieldDueDate)
	if !ok {
		t.Fatal("date not recognized")
	}
	if dv.HasTime {
		t.Error("midnight value counted as having a time-of-day")
	}
	if dv.DateOnly() != "2024-01-05" {
		t.Errorf("date: got %s", dv.DateOnly())
	}

	rec.Set(FieldDueDate, time.Date(2024, 1, 5, 14, 0, 0, 0, time.UTC))
	dv, ok = rec.Date(FieldDueDate)
	if !ok || !dv.HasTime {
		t.Errorf("timestamp value: got %+v ok=%v", dv, ok)
	}
}

func TestRecordSetAllocates(t *testing.T) {
	var rec Record
	rec.Set(FieldTitle, "late init")
	if rec.String(FieldTitle) != "late init" {
		t.Error("Set on zero-value record lost the field")
	}
}

func TestOccurrenceID(t *testing.T) {
	d := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	if got := OccurrenceID("tasks/standup", d); got != "tasks/standup-2024-01-08" {
		t.Errorf("got %q", got)
	}
}

func TestItemUnwrap(t *testing.T) {
	master := NewRecord("standup")
	master.Set(FieldTitle, "Standup")

	concrete := ConcreteItem(master)
	if concrete.IsOccurrence() {
		t.Error("concrete item reports occurrence")
	}
	if concrete.Unwrap().ID != "standup" {
		t.Errorf("unwrap: got %q", concrete.Unwrap().ID)
	}

	occ := VirtualOccurrence{
		ID:     OccurrenceID("standup", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)),
		BaseID: "standup",
		Master: master,
		Date:   time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
	}
	item := OccurrenceItem(occ)
	if !item.IsOccurrence() {
		t.Error("occurrence item not recognized")
	}
	// Unwrap always resolves to the owning master record.
	if item.Unwrap().ID != "standup" {
		t.Errorf("unwrap: got %q", item.Unwrap().ID)
	}
	got, ok := item.Occurrence()
	if !ok || got.ID != "standup-2024-01-08" {
		t.Errorf("occurrence: got %+v ok=%v", got, ok)
	}
}
