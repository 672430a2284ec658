package sync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"notecal/internal/model"
)

// PlaceholderTitle is used for title-less remote events and records.
const PlaceholderTitle = "Untitled event"

const (
	clockLayout     = "15:04"
	dateLayout      = "2006-01-02"
	localDateLayout = "2006-01-02T15:04"
)

// Resolution is the outcome of comparing the two sides of a conflict.
type Resolution int

const (
	// UseLocal means the record's edit is strictly newer.
	UseLocal Resolution = iota
	// UseRemote means the remote event's edit is strictly newer.
	UseRemote
	// Manual means neither side is strictly newer; the conflict is
	// flagged for the user rather than silently merged.
	Manual
)

// ResolveConflict compares the two modification timestamps with strict
// greater-than semantics. Exact equality yields Manual.
func ResolveConflict(recordModifiedAt, eventModifiedAt time.Time) Resolution {
	switch {
	case recordModifiedAt.After(eventModifiedAt):
		return UseLocal
	case eventModifiedAt.After(recordModifiedAt):
		return UseRemote
	default:
		return Manual
	}
}

// IsCalendarEvent reports whether the record carries enough date
// information to be an event: a start/end date pair or a due date.
func IsCalendarEvent(rec model.Record) bool {
	if rec.String(model.FieldDueDate) != "" {
		return true
	}
	return rec.String(model.FieldStartDate) != "" && rec.String(model.FieldEndDate) != ""
}

// ShouldSync reports whether the record is an eligible sync candidate:
// a calendar event whose explicit sync-enabled flag (default true) is
// not false.
func ShouldSync(rec model.Record) bool {
	return IsCalendarEvent(rec) && rec.Bool(model.FieldSyncEnabled, true)
}

// eventIsAllDay reports whether the remote event's boundaries carry only
// a calendar date, no time-of-day.
func eventIsAllDay(ev *calendar.Event) bool {
	return ev.Start != nil && ev.Start.Date != ""
}

// MasterEventID resolves the id a record should store: the master event
// id for occurrences, the event's own id otherwise.
func MasterEventID(ev *calendar.Event) string {
	if ev.RecurringEventId != "" {
		return ev.RecurringEventId
	}
	return ev.Id
}

// ToRecordFields translates a remote event into a freshly-computed field
// map. No merge with existing record state happens here; the engine
// overlays these fields one layer up.
func ToRecordFields(ev *calendar.Event, loc *time.Location) (map[string]any, error) {
	if ev == nil {
		return nil, newError(KindValidation, "map remote event", fmt.Errorf("event is nil"))
	}
	if loc == nil {
		loc = time.Local
	}

	fields := make(map[string]any)

	title := ev.Summary
	if title == "" {
		title = PlaceholderTitle
	}
	fields[model.FieldTitle] = title
	if ev.Description != "" {
		fields[model.FieldDescription] = ev.Description
	}
	if ev.Location != "" {
		fields[model.FieldLocation] = ev.Location
	}

	fields[model.FieldRemoteEventID] = MasterEventID(ev)

	recurring := len(ev.Recurrence) > 0 || ev.RecurringEventId != ""
	if recurring {
		fields[model.FieldRecurring] = true
		if len(ev.Recurrence) > 0 {
			rules := make([]string, len(ev.Recurrence))
			copy(rules, ev.Recurrence)
			fields[model.FieldRecurrenceRules] = rules
		}
	}

	if eventIsAllDay(ev) {
		fields[model.FieldAllDay] = true
		fields[model.FieldDueDate] = ev.Start.Date
		return fields, nil
	}

	if ev.Start == nil || ev.Start.DateTime == "" || ev.End == nil || ev.End.DateTime == "" {
		return nil, newError(KindValidation, "map remote event",
			fmt.Errorf("event %s has no usable start/end", ev.Id))
	}
	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return nil, newError(KindValidation, "map remote event",
			fmt.Errorf("event %s start: %w", ev.Id, err))
	}
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	if err != nil {
		return nil, newError(KindValidation, "map remote event",
			fmt.Errorf("event %s end: %w", ev.Id, err))
	}
	start = start.In(loc)
	end = end.In(loc)

	fields[model.FieldAllDay] = false
	fields[model.FieldDueDate] = start.Format(dateLayout)
	fields[model.FieldStartTime] = start.Format(clockLayout)
	fields[model.FieldEndTime] = end.Format(clockLayout)
	fields[model.FieldStartDate] = start.Format(localDateLayout)
	fields[model.FieldEndDate] = end.Format(localDateLayout)

	return fields, nil
}

// ToRemoteEvent translates a record into a partial remote event body.
// Timing is resolved through four mutually exclusive cases, tried in
// order:
//
//	(a) explicit start-date + end-date pair
//	(b) due-date plus start-time/end-time clock fields
//	(c) a bare due-date alone
//	(d) none of the above: a validation error, never a silent default
func ToRemoteEvent(rec model.Record, loc *time.Location) (*calendar.Event, error) {
	if loc == nil {
		loc = time.Local
	}

	ev := &calendar.Event{Summary: recordTitle(rec)}
	if d := rec.String(model.FieldDescription); d != "" {
		ev.Description = d
	}
	if l := rec.String(model.FieldLocation); l != "" {
		ev.Location = l
	}

	if err := resolveTiming(rec, loc, ev); err != nil {
		return nil, err
	}

	if rec.Bool(model.FieldRecurring, false) {
		for _, rule := range rec.Strings(model.FieldRecurrenceRules) {
			rule = strings.TrimSpace(rule)
			if rule == "" {
				continue
			}
			if !strings.HasPrefix(strings.ToUpper(rule), "RRULE:") {
				rule = "RRULE:" + rule
			}
			ev.Recurrence = append(ev.Recurrence, rule)
		}
	}

	return ev, nil
}

// recordTitle falls back through title, name, and the placeholder.
func recordTitle(rec model.Record) string {
	if t := rec.String(model.FieldTitle); t != "" {
		return t
	}
	if n := rec.String(model.FieldName); n != "" {
		return n
	}
	return PlaceholderTitle
}

func resolveTiming(rec model.Record, loc *time.Location, ev *calendar.Event) error {
	// Case (a): explicit start-date + end-date pair.
	start, haveStart := parseRecordDate(rec, model.FieldStartDate, loc)
	end, haveEnd := parseRecordDate(rec, model.FieldEndDate, loc)
	if haveStart && haveEnd {
		if start.HasTime || end.HasTime {
			setTimed(ev, start.Time, end.Time)
		} else {
			// All-day: the remote convention is an exclusive end date.
			setAllDay(ev, start.Time, end.Time.AddDate(0, 0, 1))
		}
		return nil
	}

	due, haveDue := parseRecordDate(rec, model.FieldDueDate, loc)
	if !haveDue {
		// Case (d): no timing information was derivable.
		return newError(KindValidation, "map record "+rec.ID,
			fmt.Errorf("record has neither start/end dates nor a due date"))
	}

	// Case (b): due-date plus paired clock-time fields.
	startClock := rec.String(model.FieldStartTime)
	endClock := rec.String(model.FieldEndTime)
	if startClock != "" && endClock != "" {
		sh, sm, err := parseClock(startClock)
		if err != nil {
			return newError(KindValidation, "map record "+rec.ID, err)
		}
		eh, em, err := parseClock(endClock)
		if err != nil {
			return newError(KindValidation, "map record "+rec.ID, err)
		}
		day := due.Time
		setTimed(ev,
			time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, loc),
			time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, loc))
		return nil
	}

	// Case (c): a bare due date.
	if due.HasTime {
		setTimed(ev, due.Time, due.Time.Add(time.Hour))
		return nil
	}
	setAllDay(ev, due.Time, due.Time.AddDate(0, 0, 1))
	return nil
}

func parseRecordDate(rec model.Record, field string, loc *time.Location) (model.DateValue, bool) {
	s := rec.String(field)
	if s == "" {
		return model.DateValue{}, false
	}
	dv, err := model.ParseDateValue(s, loc)
	if err != nil {
		return model.DateValue{}, false
	}
	return dv, true
}

// parseClock parses an HH:MM clock value with range validation.
func parseClock(s string) (hour, minute int, err error) {
	hs, ms, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, 0, fmt.Errorf("invalid clock time %q", s)
	}
	hour, herr := strconv.Atoi(hs)
	minute, merr := strconv.Atoi(ms)
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid clock time %q", s)
	}
	return hour, minute, nil
}

func setTimed(ev *calendar.Event, start, end time.Time) {
	ev.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)}
	ev.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)}
}

func setAllDay(ev *calendar.Event, start, endExclusive time.Time) {
	ev.Start = &calendar.EventDateTime{Date: start.Format(dateLayout)}
	ev.End = &calendar.EventDateTime{Date: endExclusive.Format(dateLayout)}
}
