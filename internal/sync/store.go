package sync

import (
	"context"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"notecal/internal/model"
)

// RecordStore is the narrow surface the sync core needs from the local
// note store. The store is the single owner of record identity and
// persistence; the engine only reads records and requests mutations.
type RecordStore interface {
	// Create makes a new record under the given name and returns it.
	// It fails if the name is already taken.
	Create(name string, fields map[string]any) (model.Record, error)

	// Update persists the record's fields. It fails if the identified
	// record no longer exists.
	Update(rec model.Record) error

	// Delete removes a record; deleting a missing id is not an error.
	Delete(id string) error

	// Records returns a snapshot of all current records.
	Records() ([]model.Record, error)

	// Exists reports whether a record name is already taken.
	Exists(name string) bool
}

// RemoteCalendar is the remote CRUD/list surface the engine consumes,
// implemented by gcal.Client and by test fakes.
type RemoteCalendar interface {
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.Event, error)
	GetEvent(ctx context.Context, calendarID, eventID string) (*calendar.Event, error)
	CreateEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}
