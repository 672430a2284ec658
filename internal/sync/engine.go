package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	appLog "notecal/internal/log"
	"notecal/internal/model"
)

// State is the engine's lifecycle state: Idle -> Running -> (Idle | Failed).
type State int

const (
	StateIdle State = iota
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Window is the date range a pass covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// DefaultWindow is the range used when the caller supplies none:
// one month back, three months forward.
func DefaultWindow(now time.Time) Window {
	return Window{Start: now.AddDate(0, -1, 0), End: now.AddDate(0, 3, 0)}
}

// Result summarizes one completed pass.
type Result struct {
	// Pushed counts records written to the remote side.
	Pushed int
	// Pulled counts remote events applied to or created as local records.
	Pulled int
	// Conflicts counts events flagged for manual resolution.
	Conflicts int
}

// Engine orchestrates one full synchronization pass: fetch, diff, map
// and write back in both directions. At most one pass runs
// process-wide; a concurrent request fails fast rather than queuing.
type Engine struct {
	remote RemoteCalendar
	store  RecordStore
	loc    *time.Location

	mu      sync.Mutex
	running bool
	state   State
}

// NewEngine builds an engine over the given remote client and record
// store. loc is the timezone for combining clock fields with dates.
func NewEngine(remote RemoteCalendar, store RecordStore, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{remote: remote, store: store, loc: loc, state: StateIdle}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// acquire flips the single-writer guard, failing fast when a pass is
// already running.
func (e *Engine) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return newError(KindInProgress, "perform sync", nil)
	}
	e.running = true
	e.state = StateRunning
	return nil
}

// release clears the guard and records the terminal state of the pass.
func (e *Engine) release(failed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	if failed {
		e.state = StateFailed
	} else {
		e.state = StateIdle
	}
}

// PerformSync runs one bidirectional pass over the supplied record
// snapshot. A nil window selects the default range. Setup failures
// (validation, remote fetch) abort the whole pass before any write;
// per-record and per-event failures inside the passes are logged,
// counted and skipped.
func (e *Engine) PerformSync(ctx context.Context, calendarID string, records []model.Record, window *Window) (Result, error) {
	var res Result

	if err := e.acquire(); err != nil {
		return res, err
	}
	failed := true
	defer func() { e.release(failed) }()

	// Step 1: validate inputs before any state mutation.
	if calendarID == "" {
		return res, newError(KindInvalidConfig, "perform sync", errors.New("calendar id is empty"))
	}
	for _, rec := range records {
		if rec.ID == "" {
			return res, newError(KindValidation, "perform sync", errors.New("record with empty id in record set"))
		}
	}

	win := DefaultWindow(time.Now())
	if window != nil {
		win = *window
	}

	// Step 2: fetch remote master events for the window.
	events, err := e.remote.ListEvents(ctx, calendarID, win.Start, win.End)
	if err != nil {
		nerr := Normalize("list remote events", err)
		appLog.Error("sync pass aborted during fetch", nerr, "calendar", calendarID)
		return res, nerr
	}

	// Step 3: filter local records down to eligible candidates.
	candidates := make([]model.Record, 0, len(records))
	for _, rec := range records {
		if ShouldSync(rec) {
			candidates = append(candidates, rec)
		}
	}

	remoteByID := make(map[string]*calendar.Event, len(events))
	for _, ev := range events {
		remoteByID[ev.Id] = ev
	}

	// Step 4: local -> remote.
	pushed, err := e.pushLocal(ctx, calendarID, candidates, remoteByID)
	res.Pushed = pushed
	if err != nil {
		return res, err
	}

	// Step 5: remote -> local.
	pulled, conflicts, err := e.pullRemote(ctx, calendarID, events, records)
	res.Pulled = pulled
	res.Conflicts = conflicts
	if err != nil {
		return res, err
	}

	failed = false
	appLog.Info("sync pass complete",
		"calendar", calendarID, "pushed", res.Pushed, "pulled", res.Pulled, "conflicts", res.Conflicts)
	return res, nil
}

// SyncRecord pushes a single record, used by the interactive edit hook.
// The hook firing is itself the proof of modification, so a record with
// a remote id is updated rather than skipped. Non-calendar records are
// a silent no-op. The call funnels through the same single-writer guard
// as full passes.
func (e *Engine) SyncRecord(ctx context.Context, calendarID string, rec model.Record) error {
	if !ShouldSync(rec) {
		return nil
	}
	if calendarID == "" {
		return newError(KindInvalidConfig, "sync record", errors.New("calendar id is empty"))
	}

	if err := e.acquire(); err != nil {
		return err
	}
	failed := true
	defer func() { e.release(failed) }()

	var err error
	if remoteID := rec.String(model.FieldRemoteEventID); remoteID != "" {
		err = e.updateRemote(ctx, calendarID, remoteID, rec)
	} else {
		err = e.createRemote(ctx, calendarID, rec)
	}
	if err != nil {
		return Normalize("sync record "+rec.ID, err)
	}

	failed = false
	return nil
}

// DeleteRemote removes the record's remote counterpart, if any. Used by
// deletion propagation; a missing remote id is a no-op.
func (e *Engine) DeleteRemote(ctx context.Context, calendarID string, rec model.Record) error {
	remoteID := rec.String(model.FieldRemoteEventID)
	if remoteID == "" {
		return nil
	}
	if err := e.remote.DeleteEvent(ctx, calendarID, remoteID); err != nil {
		return Normalize("delete remote event", err)
	}
	return nil
}

// pushLocal writes never-synced records to the remote calendar. The
// modified-detection policy is deliberately weak: the store supplies no
// edit timestamps, so a record with a remote id whose counterpart is
// still present counts as already reconciled and full passes never
// update it; incremental edits reach the remote through SyncRecord
// instead. Individual failures are logged and skipped; authentication
// failures abort the pass since no further remote call can succeed.
func (e *Engine) pushLocal(ctx context.Context, calendarID string, records []model.Record, remoteByID map[string]*calendar.Event) (int, error) {
	pushed := 0

	for _, rec := range records {
		remoteID := rec.String(model.FieldRemoteEventID)
		if remoteID != "" {
			if _, ok := remoteByID[remoteID]; ok {
				continue
			}
			// Previously synced, but the counterpart vanished from the
			// window. The create branch below re-creates it; a remote
			// deletion therefore resurrects the event rather than being
			// mirrored locally.
			appLog.Warn("remote counterpart missing; re-creating",
				"record", rec.ID, "event", remoteID)
		}

		if err := e.createRemote(ctx, calendarID, rec); err != nil {
			if isFatalRemote(err) {
				return pushed, Normalize("create remote event", err)
			}
			appLog.Warn("skipping record after remote create failure", "record", rec.ID, "err", err)
			continue
		}
		pushed++
	}

	return pushed, nil
}

func (e *Engine) updateRemote(ctx context.Context, calendarID, eventID string, rec model.Record) error {
	body, err := ToRemoteEvent(rec, e.loc)
	if err != nil {
		return err
	}
	if _, err := e.remote.UpdateEvent(ctx, calendarID, eventID, body); err != nil {
		return err
	}
	return e.writeSyncFields(rec, eventID, calendarID)
}

func (e *Engine) createRemote(ctx context.Context, calendarID string, rec model.Record) error {
	body, err := ToRemoteEvent(rec, e.loc)
	if err != nil {
		return err
	}
	created, err := e.remote.CreateEvent(ctx, calendarID, body)
	if err != nil {
		return err
	}
	return e.writeSyncFields(rec, created.Id, calendarID)
}

// writeSyncFields stamps the record with its remote identity and the
// sync timestamp, then persists it through the store.
func (e *Engine) writeSyncFields(rec model.Record, eventID, calendarID string) error {
	rec.Set(model.FieldRemoteEventID, eventID)
	rec.Set(model.FieldRemoteCalendarID, calendarID)
	rec.Set(model.FieldLastSync, time.Now().Format(time.RFC3339))
	return e.store.Update(rec)
}

// pullRemote applies remote master events to the local record set.
func (e *Engine) pullRemote(ctx context.Context, calendarID string, events []*calendar.Event, records []model.Record) (pulled, conflicts int, err error) {
	masters := groupMasters(events)

	byRemoteID := make(map[string]model.Record, len(records))
	for _, rec := range records {
		if id := rec.String(model.FieldRemoteEventID); id != "" {
			byRemoteID[id] = rec
		}
	}

	for _, ev := range masters {
		masterID := MasterEventID(ev)

		rec, exists := byRemoteID[masterID]
		if exists {
			applied, conflicted, aerr := e.applyRemote(ev, rec, calendarID)
			if aerr != nil {
				appLog.Warn("skipping remote event after local update failure",
					"event", masterID, "record", rec.ID, "err", aerr)
				continue
			}
			if conflicted {
				conflicts++
			}
			if applied {
				pulled++
			}
			continue
		}

		created, cerr := e.createLocal(ev, calendarID)
		if cerr != nil {
			appLog.Warn("skipping remote event after local create failure",
				"event", masterID, "err", cerr)
			continue
		}
		if created {
			pulled++
		}
	}

	_ = ctx
	return pulled, conflicts, nil
}

// groupMasters collapses the fetched events to one entry per master id,
// preferring among duplicates the copy that carries recurrence rules.
func groupMasters(events []*calendar.Event) []*calendar.Event {
	byMaster := make(map[string]*calendar.Event, len(events))
	order := make([]string, 0, len(events))

	for _, ev := range events {
		if ev == nil || ev.Id == "" {
			continue
		}
		if ev.Status == "cancelled" {
			continue
		}
		id := MasterEventID(ev)
		existing, ok := byMaster[id]
		if !ok {
			byMaster[id] = ev
			order = append(order, id)
			continue
		}
		if len(existing.Recurrence) == 0 && len(ev.Recurrence) > 0 {
			byMaster[id] = ev
		}
	}

	out := make([]*calendar.Event, 0, len(order))
	for _, id := range order {
		out = append(out, byMaster[id])
	}
	return out
}

// applyRemote overlays a remote event's fields onto an existing record
// when the remote side is strictly newer than the record's last sync.
func (e *Engine) applyRemote(ev *calendar.Event, rec model.Record, calendarID string) (applied, conflicted bool, err error) {
	lastSync := time.Time{} // epoch zero when never synced
	if s := rec.String(model.FieldLastSync); s != "" {
		// ParseDateValue rather than bare RFC3339: user-authored notes
		// carry the timestamp in any of the frontmatter date layouts.
		if dv, perr := model.ParseDateValue(s, time.UTC); perr == nil {
			lastSync = dv.Time
		}
	}

	updated := time.Time{}
	if ev.Updated != "" {
		if t, perr := time.Parse(time.RFC3339, ev.Updated); perr == nil {
			updated = t
		}
	}

	switch ResolveConflict(lastSync, updated) {
	case UseLocal:
		return false, false, nil
	case Manual:
		appLog.Warn("conflict flagged for manual resolution",
			"record", rec.ID, "event", MasterEventID(ev))
		return false, true, nil
	}

	fields, err := ToRecordFields(ev, e.loc)
	if err != nil {
		return false, false, err
	}
	// Merge-with-existing happens here, not in the mapper: untouched
	// local fields survive the overlay.
	for k, v := range fields {
		rec.Set(k, v)
	}
	rec.Set(model.FieldRemoteCalendarID, calendarID)
	rec.Set(model.FieldLastSync, time.Now().Format(time.RFC3339))

	if err := e.store.Update(rec); err != nil {
		return false, false, err
	}
	return true, false, nil
}

// createLocal synthesizes a new record from a remote event, naming it
// deterministically and skipping creation when the name is taken.
func (e *Engine) createLocal(ev *calendar.Event, calendarID string) (bool, error) {
	fields, err := ToRecordFields(ev, e.loc)
	if err != nil {
		return false, err
	}
	fields[model.FieldRemoteCalendarID] = calendarID
	fields[model.FieldLastSync] = time.Now().Format(time.RFC3339)

	name := recordNameForEvent(ev, fields)
	if e.store.Exists(name) {
		appLog.Debug("record name already taken; skipping create", "name", name)
		return false, nil
	}

	if _, err := e.store.Create(name, fields); err != nil {
		return false, err
	}
	return true, nil
}

// recordNameForEvent builds the deterministic note name: sanitized
// title plus date and short id for one-off events, or "recurring" plus
// the short master id for recurring ones.
func recordNameForEvent(ev *calendar.Event, fields map[string]any) string {
	title := ev.Summary
	if title == "" {
		title = PlaceholderTitle
	}
	title = SanitizeFileName(title)

	masterID := MasterEventID(ev)
	if recurring, _ := fields[model.FieldRecurring].(bool); recurring {
		return fmt.Sprintf("%s-recurring-%s", title, shortID(masterID))
	}

	date, _ := fields[model.FieldDueDate].(string)
	if date == "" {
		date = "undated"
	}
	return fmt.Sprintf("%s-%s-%s", title, date, shortID(masterID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SanitizeFileName strips characters that are illegal in storage paths
// and collapses whitespace runs to single spaces.
func SanitizeFileName(name string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range name {
		switch {
		case strings.ContainsRune(`/\:*?"<>|#^[]`, r) || r < 0x20:
			continue
		case r == ' ' || r == '\t':
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	out := strings.Trim(b.String(), " .")
	if out == "" {
		return "untitled"
	}
	return out
}
