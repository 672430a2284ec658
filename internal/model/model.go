package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Well-known record field names. Records are free-form field maps; the
// sync core only interprets the fields below.
const (
	FieldTitle       = "title"
	FieldName        = "name"
	FieldDescription = "description"
	FieldLocation    = "location"

	FieldDueDate   = "due-date"
	FieldStartDate = "start-date"
	FieldEndDate   = "end-date"
	FieldStartTime = "start-time"
	FieldEndTime   = "end-time"
	FieldAllDay    = "all-day"

	FieldRecurring       = "recurring"
	FieldRecurrenceRules = "recurrence-rules"

	FieldRemoteEventID    = "remote-event-id"
	FieldRemoteCalendarID = "remote-calendar-id"
	FieldSyncEnabled      = "remote-sync-enabled"
	FieldLastSync         = "remote-last-sync"
)

// Record is a local note-backed entity: a stable identifier derived from
// its storage location plus a free-form attribute map. The record store
// owns creation and destruction; the sync engine only reads records and
// requests mutations through the store.
type Record struct {
	ID     string
	Fields map[string]any
}

// NewRecord returns a Record with an initialized field map.
func NewRecord(id string) Record {
	return Record{ID: id, Fields: make(map[string]any)}
}

// String returns the named field as a string, or "" when absent or not
// string-like. yaml.v3 decodes unquoted frontmatter dates into
// time.Time, so those are rendered back into the layouts ParseDateValue
// accepts rather than falling into the Stringer case.
func (r Record) String(name string) string {
	switch v := r.Fields[name].(type) {
	case string:
		return v
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// Bool returns the named field as a bool, or def when absent or not a
// bool.
func (r Record) Bool(name string, def bool) bool {
	if v, ok := r.Fields[name].(bool); ok {
		return v
	}
	return def
}

// Strings returns the named field as a list of strings. A scalar string
// is returned as a one-element list.
func (r Record) Strings(name string) []string {
	switch v := r.Fields[name].(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Set stores a field value, allocating the map if needed.
func (r *Record) Set(name string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[name] = value
}

// Date returns the named field parsed as a DateValue. A time.Time
// value (an unquoted yaml date) is taken as-is; midnight counts as
// date-only.
func (r Record) Date(name string) (DateValue, bool) {
	if v, ok := r.Fields[name].(time.Time); ok {
		hasTime := v.Hour() != 0 || v.Minute() != 0 || v.Second() != 0
		return DateValue{Time: v, HasTime: hasTime}, true
	}
	s := r.String(name)
	if s == "" {
		return DateValue{}, false
	}
	dv, err := ParseDateValue(s, time.Local)
	if err != nil {
		return DateValue{}, false
	}
	return dv, true
}

// DateValue is a parsed date field. HasTime records whether the source
// value carried a time-of-day component, which decides all-day handling.
type DateValue struct {
	Time    time.Time
	HasTime bool
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseDateValue parses a calendar date or date-time string. Layouts
// without a zone are interpreted in loc.
func ParseDateValue(s string, loc *time.Location) (DateValue, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateValue{}, errors.New("empty date value")
	}
	if loc == nil {
		loc = time.Local
	}

	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return DateValue{Time: t, HasTime: false}, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return DateValue{Time: t, HasTime: true}, nil
		}
	}
	return DateValue{}, fmt.Errorf("unrecognized date value %q", s)
}

// DateOnly formats the value's calendar date.
func (d DateValue) DateOnly() string {
	return d.Time.Format("2006-01-02")
}

// VirtualOccurrence is a derived, non-persisted view of one date
// instance of a recurring record. It is regenerated for the requested
// window on every sync or render pass and never independently mutated;
// edits must be redirected to the master record.
type VirtualOccurrence struct {
	// ID is baseID plus the occurrence date, unique within a window.
	ID string

	// BaseID is the owning record's identifier.
	BaseID string

	// Master is the owning record.
	Master Record

	// Date is the occurrence date (midnight, local to the expansion).
	Date time.Time
}

// OccurrenceID builds the derived identifier for one occurrence.
func OccurrenceID(baseID string, date time.Time) string {
	return baseID + "-" + date.Format("2006-01-02")
}

// Item is the tagged union handed across the core boundary by UI
// callbacks: either a concrete record or a virtual occurrence of one.
type Item struct {
	record     Record
	occurrence *VirtualOccurrence
}

// ConcreteItem wraps a plain record.
func ConcreteItem(r Record) Item {
	return Item{record: r}
}

// OccurrenceItem wraps a virtual occurrence.
func OccurrenceItem(o VirtualOccurrence) Item {
	return Item{occurrence: &o}
}

// IsOccurrence reports whether the item is a virtual occurrence.
func (it Item) IsOccurrence() bool {
	return it.occurrence != nil
}

// Unwrap resolves the item to the mutable master record. This is the
// single unwrap step before any mutation path: occurrences always
// resolve to their owning record.
func (it Item) Unwrap() Record {
	if it.occurrence != nil {
		return it.occurrence.Master
	}
	return it.record
}

// Occurrence returns the wrapped occurrence, if any.
func (it Item) Occurrence() (VirtualOccurrence, bool) {
	if it.occurrence == nil {
		return VirtualOccurrence{}, false
	}
	return *it.occurrence, true
}
