// Package ics serializes the local calendar record set into an
// iCalendar payload, so external clients can subscribe to the note
// calendar without going through the remote service.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "notecal/internal/log"
	"notecal/internal/model"
	"notecal/internal/sync"
)

const prodID = "-//notecal//calendar export//EN"

// Export renders all calendar-event records into a VCALENDAR payload.
// Records that cannot be mapped are logged and skipped; a partial
// export is preferable to none.
func Export(records []model.Record, loc *time.Location, now time.Time) (string, error) {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	exported := 0
	for _, rec := range records {
		if !sync.IsCalendarEvent(rec) {
			continue
		}
		if err := addEvent(cal, rec, loc, now); err != nil {
			appLog.Warn("skipping record in ics export", "record", rec.ID, "err", err)
			continue
		}
		exported++
	}

	appLog.Debug("ics export complete", "records", len(records), "events", exported)
	return cal.Serialize(), nil
}

// addEvent maps one record through the shared event mapper, so the
// export carries exactly the timing semantics the sync engine pushes
// remotely.
func addEvent(cal *ical.Calendar, rec model.Record, loc *time.Location, now time.Time) error {
	remote, err := sync.ToRemoteEvent(rec, loc)
	if err != nil {
		return err
	}

	ve := cal.AddEvent(uidFor(rec))
	ve.SetDtStampTime(now.UTC())
	ve.SetSummary(remote.Summary)
	if remote.Description != "" {
		ve.SetDescription(remote.Description)
	}
	if remote.Location != "" {
		ve.SetLocation(remote.Location)
	}

	if remote.Start.Date != "" {
		start, err := time.ParseInLocation("2006-01-02", remote.Start.Date, loc)
		if err != nil {
			return fmt.Errorf("parse all-day start: %w", err)
		}
		end, err := time.ParseInLocation("2006-01-02", remote.End.Date, loc)
		if err != nil {
			return fmt.Errorf("parse all-day end: %w", err)
		}
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(end)
	} else {
		start, err := time.Parse(time.RFC3339, remote.Start.DateTime)
		if err != nil {
			return fmt.Errorf("parse start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, remote.End.DateTime)
		if err != nil {
			return fmt.Errorf("parse end: %w", err)
		}
		ve.SetStartAt(start)
		ve.SetEndAt(end)
	}

	for _, rule := range remote.Recurrence {
		ve.AddRrule(trimRrulePrefix(rule))
	}
	return nil
}

// uidFor derives a stable UID: the remote event id when the record has
// been synced, the record id otherwise.
func uidFor(rec model.Record) string {
	if id := rec.String(model.FieldRemoteEventID); id != "" {
		return id
	}
	return rec.ID + "@notecal"
}

func trimRrulePrefix(rule string) string {
	const prefix = "RRULE:"
	if len(rule) >= len(prefix) && rule[:len(prefix)] == prefix {
		return rule[len(prefix):]
	}
	return rule
}
