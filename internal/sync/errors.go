package sync

import (
	"errors"
	"fmt"

	"notecal/internal/gcal"
)

// Kind identifies the class of a sync failure. The host UI renders a
// short human-readable message keyed off this value.
type Kind string

const (
	KindAuthFailed    Kind = "AUTHENTICATION_FAILED"
	KindTokenRefresh  Kind = "TOKEN_REFRESH_FAILED"
	KindQuotaExceeded Kind = "API_QUOTA_EXCEEDED"
	KindNetwork       Kind = "NETWORK_ERROR"
	KindInvalidConfig Kind = "INVALID_CONFIGURATION"
	KindInProgress    Kind = "SYNC_IN_PROGRESS"
	KindValidation    Kind = "VALIDATION_ERROR"
	KindUnknown       Kind = "UNKNOWN_ERROR"
)

// Message returns the short user-facing text for the kind.
func (k Kind) Message() string {
	switch k {
	case KindAuthFailed:
		return "authentication failed; please reconnect your calendar account"
	case KindTokenRefresh:
		return "could not refresh the access token"
	case KindQuotaExceeded:
		return "calendar API quota exceeded; try again later"
	case KindNetwork:
		return "network error reaching the calendar service"
	case KindInvalidConfig:
		return "synchronization is not configured"
	case KindInProgress:
		return "a sync is already running"
	case KindValidation:
		return "record cannot be synced as a calendar event"
	default:
		return "unexpected synchronization error"
	}
}

// Error is a normalized sync failure carrying its taxonomy kind and the
// original cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds a normalized error of the given kind.
func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the taxonomy kind from any error, defaulting to
// KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// Normalize maps an arbitrary failure into the taxonomy. Errors that
// already carry a kind pass through unchanged.
func Normalize(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	switch {
	case errors.Is(err, gcal.ErrAuthFailed):
		return newError(KindAuthFailed, op, err)
	case errors.Is(err, gcal.ErrTokenRefresh):
		return newError(KindTokenRefresh, op, err)
	case errors.Is(err, gcal.ErrQuotaExceeded):
		return newError(KindQuotaExceeded, op, err)
	case errors.Is(err, gcal.ErrNetwork):
		return newError(KindNetwork, op, err)
	default:
		return newError(KindUnknown, op, err)
	}
}

// isFatalRemote reports whether the failure means no further remote
// call can succeed this pass, so per-item isolation must stop.
func isFatalRemote(err error) bool {
	switch KindOf(Normalize("", err)) {
	case KindAuthFailed, KindTokenRefresh:
		return true
	default:
		return false
	}
}
