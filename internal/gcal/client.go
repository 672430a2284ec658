package gcal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	appLog "notecal/internal/log"
)

// Sentinel errors classifying remote failures. The sync engine maps
// these onto its user-facing error taxonomy.
var (
	// ErrAuthFailed means the call kept failing with 401 after the single
	// permitted token refresh.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrTokenRefresh means the refresh itself failed.
	ErrTokenRefresh = errors.New("token refresh failed")

	// ErrQuotaExceeded maps 403 responses; these are never retried.
	ErrQuotaExceeded = errors.New("api quota exceeded")

	// ErrNetwork covers DNS, connection and timeout failures; these are
	// never retried either.
	ErrNetwork = errors.New("network error")
)

const listPageSize = 2500

// TokenCallback is invoked with the new access token after a successful
// mid-call refresh so the caller can persist it.
type TokenCallback func(accessToken string)

// Client wraps the remote calendar CRUD/list surface with a
// refresh-and-retry policy. Every call that sees a 401 refreshes the
// access token exactly once, notifies the token callback, and retries
// the original call exactly once more.
type Client struct {
	oauth   *oauth2.Config
	onToken TokenCallback

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	svc          *calendar.Service
}

// NewClient builds a Client for the given credentials. onToken may be
// nil when the caller does not persist refreshed tokens.
func NewClient(ctx context.Context, oauthCfg *oauth2.Config, accessToken, refreshToken string, onToken TokenCallback) (*Client, error) {
	if oauthCfg == nil {
		return nil, errors.New("oauth config is nil")
	}
	c := &Client{
		oauth:        oauthCfg,
		onToken:      onToken,
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
	svc, err := newService(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	c.svc = svc
	return c, nil
}

// newService builds a calendar service around a static token source, so
// this wrapper owns refresh instead of the oauth2 transport.
func newService(ctx context.Context, accessToken string) (*calendar.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

// service returns the current calendar service.
func (c *Client) service() *calendar.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.svc
}

// refresh replaces the access token and rebuilds the service. Called at
// most once per wrapped call.
func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()

	tok, err := RefreshAccessToken(ctx, c.oauth, refreshToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}

	svc, err := newService(ctx, tok.AccessToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.svc = svc
	c.mu.Unlock()

	if c.onToken != nil {
		c.onToken(tok.AccessToken)
	}
	appLog.Info("access token refreshed")
	return nil
}

// withRetry runs call, applying the retry policy: one refresh plus one
// retry on 401, no retry on quota or network failures.
func (c *Client) withRetry(ctx context.Context, op string, call func() error) error {
	err := call()
	if err == nil {
		return nil
	}

	switch classify(err) {
	case kindUnauthorized:
		appLog.Warn("remote call unauthorized, refreshing token", "op", op)
		if rerr := c.refresh(ctx); rerr != nil {
			return rerr
		}
		if err = call(); err == nil {
			return nil
		}
		if classify(err) == kindUnauthorized {
			return fmt.Errorf("%w: %s: %w", ErrAuthFailed, op, err)
		}
		return wrapRemote(op, err)
	default:
		return wrapRemote(op, err)
	}
}

type errKind int

const (
	kindOther errKind = iota
	kindUnauthorized
	kindQuota
	kindNetwork
)

// classify buckets a raw transport error for the retry policy.
func classify(err error) errKind {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 401:
			return kindUnauthorized
		case 403:
			return kindQuota
		}
		return kindOther
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return kindNetwork
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return kindNetwork
	}
	return kindOther
}

// wrapRemote attaches the matching sentinel to a non-retryable failure.
func wrapRemote(op string, err error) error {
	switch classify(err) {
	case kindQuota:
		return fmt.Errorf("%w: %s: %w", ErrQuotaExceeded, op, err)
	case kindNetwork:
		return fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ListEvents fetches non-expanded (master) events in [timeMin, timeMax],
// ordered by modification time. Recurring events come back once as
// masters rather than as an unbounded occurrence stream.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.Event, error) {
	var out []*calendar.Event
	err := c.withRetry(ctx, "list events", func() error {
		out = out[:0]
		pageToken := ""
		for {
			call := c.service().Events.List(calendarID).
				TimeMin(timeMin.Format(time.RFC3339)).
				TimeMax(timeMax.Format(time.RFC3339)).
				SingleEvents(false).
				OrderBy("updated").
				MaxResults(listPageSize).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			resp, err := call.Do()
			if err != nil {
				return err
			}
			out = append(out, resp.Items...)
			if resp.NextPageToken == "" {
				return nil
			}
			pageToken = resp.NextPageToken
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetEvent fetches a single event by id.
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*calendar.Event, error) {
	var out *calendar.Event
	err := c.withRetry(ctx, "get event", func() error {
		ev, err := c.service().Events.Get(calendarID, eventID).Context(ctx).Do()
		if err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateEvent inserts a new event and returns the remote copy with its
// assigned id.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error) {
	var out *calendar.Event
	err := c.withRetry(ctx, "create event", func() error {
		created, err := c.service().Events.Insert(calendarID, ev).Context(ctx).Do()
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEvent replaces an existing event.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error) {
	var out *calendar.Event
	err := c.withRetry(ctx, "update event", func() error {
		updated, err := c.service().Events.Update(calendarID, eventID, ev).Context(ctx).Do()
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEvent removes an event by id.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return c.withRetry(ctx, "delete event", func() error {
		return c.service().Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
}
