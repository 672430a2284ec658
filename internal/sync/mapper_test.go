package sync

import (
	"errors"
	"testing"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"notecal/internal/model"
)

func TestToRecordFieldsTimedEvent(t *testing.T) {
	ev := &calendar.Event{
		Id:      "e1",
		Summary: "Standup",
		Start:   &calendar.EventDateTime{DateTime: "2024-01-02T09:00:00Z"},
		End:     &calendar.EventDateTime{DateTime: "2024-01-02T09:30:00Z"},
		Updated: "2024-01-02T10:00:00Z",
	}

	fields, err := ToRecordFields(ev, time.UTC)
	if err != nil {
		t.Fatalf("ToRecordFields: %v", err)
	}

	want := map[string]any{
		model.FieldTitle:         "Standup",
		model.FieldStartTime:     "09:00",
		model.FieldEndTime:       "09:30",
		model.FieldDueDate:       "2024-01-02",
		model.FieldRemoteEventID: "e1",
		model.FieldAllDay:        false,
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s: got %v, want %v", k, fields[k], v)
		}
	}
}

func TestToRecordFieldsAllDay(t *testing.T) {
	ev := &calendar.Event{
		Id:      "e2",
		Summary: "Holiday",
		Start:   &calendar.EventDateTime{Date: "2024-07-04"},
		End:     &calendar.EventDateTime{Date: "2024-07-05"},
	}
	fields, err := ToRecordFields(ev, time.UTC)
	if err != nil {
		t.Fatalf("ToRecordFields: %v", err)
	}
	if fields[model.FieldAllDay] != true {
		t.Errorf("all-day: got %v", fields[model.FieldAllDay])
	}
	if fields[model.FieldDueDate] != "2024-07-04" {
		t.Errorf("due-date: got %v", fields[model.FieldDueDate])
	}
	if _, ok := fields[model.FieldStartTime]; ok {
		t.Error("all-day event should carry no start-time")
	}
}

func TestToRecordFieldsMasterID(t *testing.T) {
	occ := &calendar.Event{
		Id:               "e3_20240101",
		RecurringEventId: "e3",
		Summary:          "Weekly",
		Start:            &calendar.EventDateTime{Date: "2024-01-01"},
		End:              &calendar.EventDateTime{Date: "2024-01-02"},
	}
	fields, err := ToRecordFields(occ, time.UTC)
	if err != nil {
		t.Fatalf("ToRecordFields: %v", err)
	}
	// The stored id must be the master's, never the occurrence's.
	if fields[model.FieldRemoteEventID] != "e3" {
		t.Errorf("remote-event-id: got %v", fields[model.FieldRemoteEventID])
	}
	if fields[model.FieldRecurring] != true {
		t.Errorf("recurring: got %v", fields[model.FieldRecurring])
	}
}

func TestToRecordFieldsUntitled(t *testing.T) {
	ev := &calendar.Event{
		Id:    "e4",
		Start: &calendar.EventDateTime{Date: "2024-01-01"},
		End:   &calendar.EventDateTime{Date: "2024-01-02"},
	}
	fields, err := ToRecordFields(ev, time.UTC)
	if err != nil {
		t.Fatalf("ToRecordFields: %v", err)
	}
	if fields[model.FieldTitle] != PlaceholderTitle {
		t.Errorf("title: got %v", fields[model.FieldTitle])
	}
}

func TestToRemoteEventStartEndPair(t *testing.T) {
	rec := model.NewRecord("r1")
	rec.Set(model.FieldTitle, "Offsite")
	rec.Set(model.FieldStartDate, "2024-05-01")
	rec.Set(model.FieldEndDate, "2024-05-03")

	ev, err := ToRemoteEvent(rec, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	if ev.Start.Date != "2024-05-01" {
		t.Errorf("start: got %q", ev.Start.Date)
	}
	// The remote convention is an exclusive end date.
	if ev.End.Date != "2024-05-04" {
		t.Errorf("end: got %q", ev.End.Date)
	}
}

func TestToRemoteEventDueDateWithClockFields(t *testing.T) {
	rec := model.NewRecord("r2")
	rec.Set(model.FieldTitle, "Standup")
	rec.Set(model.FieldDueDate, "2024-01-02")
	rec.Set(model.FieldStartTime, "09:00")
	rec.Set(model.FieldEndTime, "09:30")

	ev, err := ToRemoteEvent(rec, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	if ev.Start.DateTime != "2024-01-02T09:00:00Z" {
		t.Errorf("start: got %q", ev.Start.DateTime)
	}
	if ev.End.DateTime != "2024-01-02T09:30:00Z" {
		t.Errorf("end: got %q", ev.End.DateTime)
	}
}

func TestToRemoteEventInvalidClock(t *testing.T) {
	for _, clock := range []string{"24:00", "12:60", "9am", "-1:30"} {
		rec := model.NewRecord("r3")
		rec.Set(model.FieldDueDate, "2024-01-02")
		rec.Set(model.FieldStartTime, clock)
		rec.Set(model.FieldEndTime, "10:00")

		_, err := ToRemoteEvent(rec, time.UTC)
		if err == nil {
			t.Errorf("clock %q: expected validation error", clock)
			continue
		}
		if KindOf(err) != KindValidation {
			t.Errorf("clock %q: kind %s, want VALIDATION_ERROR", clock, KindOf(err))
		}
	}
}

func TestToRemoteEventBareDueDate(t *testing.T) {
	rec := model.NewRecord("r4")
	rec.Set(model.FieldDueDate, "2024-03-01")

	ev, err := ToRemoteEvent(rec, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	if ev.Start.Date != "2024-03-01" || ev.End.Date != "2024-03-02" {
		t.Errorf("all-day bounds: got %q/%q", ev.Start.Date, ev.End.Date)
	}
}

func TestToRemoteEventDueDateWithTime(t *testing.T) {
	rec := model.NewRecord("r5")
	rec.Set(model.FieldDueDate, "2024-03-01T14:00")

	ev, err := ToRemoteEvent(rec, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	// A time-of-day on the bare due date means a one-hour timed event.
	if ev.Start.DateTime != "2024-03-01T14:00:00Z" {
		t.Errorf("start: got %q", ev.Start.DateTime)
	}
	if ev.End.DateTime != "2024-03-01T15:00:00Z" {
		t.Errorf("end: got %q", ev.End.DateTime)
	}
}

func TestToRemoteEventTimeValuedDueDate(t *testing.T) {
	// A due date decoded from unquoted frontmatter arrives as time.Time,
	// not string; it must still map like case (c).
	rec := model.NewRecord("rent")
	rec.Set(model.FieldTitle, "Pay rent")
	rec.Set(model.FieldDueDate, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))

	ev, err := ToRemoteEvent(rec, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	if ev.Start.Date != "2024-01-05" || ev.End.Date != "2024-01-06" {
		t.Errorf("all-day bounds: got %q/%q", ev.Start.Date, ev.End.Date)
	}
}

func TestToRemoteEventNoTiming(t *testing.T) {
	rec := model.NewRecord("r6")
	rec.Set(model.FieldTitle, "Just a note")

	_, err := ToRemoteEvent(rec, time.UTC)
	if err == nil {
		t.Fatal("expected validation error for record without timing")
	}
	var se *Error
	if !errors.As(err, &se) || se.Kind != KindValidation {
		t.Errorf("got %v, want VALIDATION_ERROR", err)
	}
}

func TestToRemoteEventTitleFallback(t *testing.T) {
	rec := model.NewRecord("r7")
	rec.Set(model.FieldName, "from-name")
	rec.Set(model.FieldDueDate, "2024-01-01")
	ev, err := ToRemoteEvent(rec, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	if ev.Summary != "from-name" {
		t.Errorf("summary: got %q", ev.Summary)
	}

	rec2 := model.NewRecord("r8")
	rec2.Set(model.FieldDueDate, "2024-01-01")
	ev2, err := ToRemoteEvent(rec2, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	if ev2.Summary != PlaceholderTitle {
		t.Errorf("summary: got %q", ev2.Summary)
	}
}

func TestToRemoteEventRecurrence(t *testing.T) {
	rec := model.NewRecord("r9")
	rec.Set(model.FieldDueDate, "2024-01-01")
	rec.Set(model.FieldRecurring, true)
	rec.Set(model.FieldRecurrenceRules, []string{"FREQ=WEEKLY;BYDAY=MO"})

	ev, err := ToRemoteEvent(rec, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	if len(ev.Recurrence) != 1 || ev.Recurrence[0] != "RRULE:FREQ=WEEKLY;BYDAY=MO" {
		t.Errorf("recurrence: got %v", ev.Recurrence)
	}
}

func TestRoundTripAllDay(t *testing.T) {
	ev := &calendar.Event{
		Id:      "rt1",
		Summary: "Holiday",
		Start:   &calendar.EventDateTime{Date: "2024-07-04"},
		End:     &calendar.EventDateTime{Date: "2024-07-05"},
	}
	fields, err := ToRecordFields(ev, time.UTC)
	if err != nil {
		t.Fatalf("ToRecordFields: %v", err)
	}

	back, err := ToRemoteEvent(model.Record{ID: "rt1", Fields: fields}, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	if back.Start.Date != "2024-07-04" {
		t.Errorf("round-trip start: got %q", back.Start.Date)
	}
	if back.Start.DateTime != "" {
		t.Error("round-trip turned all-day into timed event")
	}
}

func TestRoundTripTimed(t *testing.T) {
	ev := &calendar.Event{
		Id:      "rt2",
		Summary: "Standup",
		Start:   &calendar.EventDateTime{DateTime: "2024-01-02T09:00:00Z"},
		End:     &calendar.EventDateTime{DateTime: "2024-01-02T09:30:00Z"},
	}
	fields, err := ToRecordFields(ev, time.UTC)
	if err != nil {
		t.Fatalf("ToRecordFields: %v", err)
	}

	back, err := ToRemoteEvent(model.Record{ID: "rt2", Fields: fields}, time.UTC)
	if err != nil {
		t.Fatalf("ToRemoteEvent: %v", err)
	}
	start, err := time.Parse(time.RFC3339, back.Start.DateTime)
	if err != nil {
		t.Fatalf("parse start: %v", err)
	}
	end, err := time.Parse(time.RFC3339, back.End.DateTime)
	if err != nil {
		t.Fatalf("parse end: %v", err)
	}
	// Start and end must survive the round trip to the minute.
	if start.Format("2006-01-02 15:04") != "2024-01-02 09:00" {
		t.Errorf("start drifted: %v", start)
	}
	if end.Format("2006-01-02 15:04") != "2024-01-02 09:30" {
		t.Errorf("end drifted: %v", end)
	}
}

func TestIsCalendarEventAndShouldSync(t *testing.T) {
	plain := model.NewRecord("n1")
	plain.Set(model.FieldTitle, "no dates")
	if IsCalendarEvent(plain) {
		t.Error("record without dates counted as calendar event")
	}

	due := model.NewRecord("n2")
	due.Set(model.FieldDueDate, "2024-01-01")
	if !IsCalendarEvent(due) || !ShouldSync(due) {
		t.Error("due-date record should be a syncable calendar event")
	}

	startOnly := model.NewRecord("n3")
	startOnly.Set(model.FieldStartDate, "2024-01-01")
	if IsCalendarEvent(startOnly) {
		t.Error("start date without end date is not a calendar event")
	}

	disabled := model.NewRecord("n4")
	disabled.Set(model.FieldDueDate, "2024-01-01")
	disabled.Set(model.FieldSyncEnabled, false)
	if ShouldSync(disabled) {
		t.Error("sync-enabled=false record should not sync")
	}
}

func TestResolveConflict(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	if got := ResolveConflict(t1, t0); got != UseLocal {
		t.Errorf("newer local: got %v", got)
	}
	if got := ResolveConflict(t0, t1); got != UseRemote {
		t.Errorf("newer remote: got %v", got)
	}
	// Exact equality is a manual conflict, never a silent merge.
	if got := ResolveConflict(t0, t0); got != Manual {
		t.Errorf("equal timestamps: got %v", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		`Team: sync/review?`:  "Team syncreview",
		"  spaced   out  ":    "spaced out",
		`<>|*"`:               "untitled",
		"plain title":         "plain title",
		"dots...":             "dots",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Errorf("SanitizeFileName(%q): got %q, want %q", in, got, want)
		}
	}
}
