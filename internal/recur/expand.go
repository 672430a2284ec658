package recur

import (
	"errors"
	"time"

	appLog "notecal/internal/log"
	"notecal/internal/model"
)

// windowPad widens the visible window by one day on both ends so that
// boundary occurrences survive timezone skew between the note store and
// the remote calendar.
const windowPad = 24 * time.Hour

// Expand produces the ordered occurrence dates of rule within
// [winStart, winEnd], anchored on anchor. It is a pure function of its
// inputs: callers re-expand per (record, window) pair on every pass and
// never cache results across window changes.
//
// Semantics:
//
//   - The anchor itself is included when it falls inside the padded
//     window [winStart-1d, winEnd+1d].
//   - Iteration advances from the anchor by FREQ/INTERVAL. WEEKLY with
//     BYDAY jumps to the next listed weekday, honoring INTERVAL across
//     week boundaries; MONTHLY with BYMONTHDAY jumps to the next listed
//     day-of-month, clamped to the days in the target month.
//   - Expansion stops once COUNT occurrences have been consumed, the
//     cursor passes UNTIL, or the cursor passes winEnd plus one year
//     (hard safety bound for malformed rules).
//   - BYMONTH filters generated dates out of the result, but a filtered
//     date still consumes one COUNT slot.
//
// An unknown FREQ stops expansion immediately with a logged partial
// result; it is not an error.
func Expand(rule Rule, anchor, winStart, winEnd time.Time) []time.Time {
	out := make([]time.Time, 0, 8)

	loStart := dateOf(winStart).Add(-windowPad)
	hiEnd := dateOf(winEnd).Add(windowPad)
	hardStop := dateOf(winEnd).AddDate(1, 0, 0)

	current := dateOf(anchor)
	emitted := 0

	for {
		if rule.HasUntil && current.After(dateOf(rule.Until)) {
			break
		}
		if current.After(hardStop) {
			break
		}

		// Every visited date consumes a COUNT slot, whether or not the
		// BYMONTH filter lets it through.
		emitted++
		if rule.monthAllowed(current) && !current.Before(loStart) && !current.After(hiEnd) {
			out = append(out, current)
		}
		if rule.Count > 0 && emitted >= rule.Count {
			break
		}

		next, ok := advance(rule, current)
		if !ok {
			appLog.Warn("recurrence expansion stopped on unknown FREQ",
				"freq", rule.Freq, "rule", rule.Raw)
			break
		}
		if !next.After(current) {
			// Defensive: a non-advancing cursor would loop forever.
			appLog.Error("recurrence cursor failed to advance",
				errors.New("stuck cursor"), "rule", rule.Raw, "at", current.Format("2006-01-02"))
			break
		}
		current = next
	}

	return out
}

// advance moves the cursor one step per the rule's FREQ/INTERVAL.
// It returns ok=false for an unknown FREQ.
func advance(rule Rule, current time.Time) (time.Time, bool) {
	switch rule.Freq {
	case "DAILY":
		return current.AddDate(0, 0, rule.Interval), true

	case "WEEKLY":
		if len(rule.ByDay) == 0 {
			return current.AddDate(0, 0, 7*rule.Interval), true
		}
		return nextByDay(rule, current), true

	case "MONTHLY":
		if len(rule.ByMonthDay) == 0 {
			return current.AddDate(0, rule.Interval, 0), true
		}
		return nextByMonthDay(rule, current), true

	case "YEARLY":
		return current.AddDate(rule.Interval, 0, 0), true

	default:
		return time.Time{}, false
	}
}

// nextByDay finds the next date after current whose weekday is listed in
// BYDAY. Crossing into a new week (weeks starting Monday) skips
// INTERVAL-1 additional weeks.
func nextByDay(rule Rule, current time.Time) time.Time {
	for i := 1; i <= 7; i++ {
		cand := current.AddDate(0, 0, i)
		if !rule.matchesDay(cand) {
			continue
		}
		if rule.Interval > 1 && mondayIndex(cand) <= mondayIndex(current) {
			// Wrapped past the week boundary: apply the interval gap.
			cand = cand.AddDate(0, 0, 7*(rule.Interval-1))
		}
		return cand
	}
	// BYDAY was non-empty yet nothing matched within a week; cannot
	// happen with valid codes, but never stall the cursor.
	return current.AddDate(0, 0, 7*rule.Interval)
}

// nextByMonthDay finds the next date after current matching a BYMONTHDAY
// entry, looking first in the current month and then in the month
// INTERVAL steps ahead, clamping to the target month's length.
func nextByMonthDay(rule Rule, current time.Time) time.Time {
	for _, day := range rule.ByMonthDay {
		if day > current.Day() {
			clamped := clampDay(current.Year(), current.Month(), day)
			if clamped > current.Day() {
				return time.Date(current.Year(), current.Month(), clamped, 0, 0, 0, 0, current.Location())
			}
		}
	}

	first := time.Date(current.Year(), current.Month(), 1, 0, 0, 0, 0, current.Location())
	next := first.AddDate(0, rule.Interval, 0)
	day := clampDay(next.Year(), next.Month(), rule.ByMonthDay[0])
	return time.Date(next.Year(), next.Month(), day, 0, 0, 0, 0, next.Location())
}

// clampDay limits day to the number of days in (year, month).
func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

// mondayIndex maps a weekday to 0..6 with Monday as 0, used for week
// boundary detection.
func mondayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// dateOf truncates t to midnight in its own location.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ExpandRecord derives the virtual occurrences of a recurring record for
// the given window. Non-recurring records and records without a usable
// anchor date produce no occurrences. Occurrences are regenerated fresh
// on every call; nothing is cached.
func ExpandRecord(rec model.Record, winStart, winEnd time.Time) []model.VirtualOccurrence {
	if !rec.Bool(model.FieldRecurring, false) {
		return nil
	}

	anchor, ok := rec.Date(model.FieldDueDate)
	if !ok {
		anchor, ok = rec.Date(model.FieldStartDate)
	}
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	var out []model.VirtualOccurrence

	for _, raw := range rec.Strings(model.FieldRecurrenceRules) {
		rule, err := ParseRule(raw)
		if err != nil {
			appLog.Warn("skipping unparseable recurrence rule", "record", rec.ID, "rule", raw)
			continue
		}
		for _, date := range Expand(rule, anchor.Time, winStart, winEnd) {
			key := date.Format("2006-01-02")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, model.VirtualOccurrence{
				ID:     model.OccurrenceID(rec.ID, date),
				BaseID: rec.ID,
				Master: rec,
				Date:   date,
			})
		}
	}

	return out
}
