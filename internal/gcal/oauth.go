package gcal

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
)

// NewOAuthConfig builds the OAuth2 config used for the auth-code
// exchange and for token refresh. The host UI is responsible for
// driving the browser consent flow; this package only consumes the
// resulting authorization code.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarEventsScope},
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
	}
}

// AuthCodeURL returns the consent URL the host should open.
func AuthCodeURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeAuthCode trades an authorization code for access and refresh
// tokens.
func ExchangeAuthCode(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange auth code: %w", err)
	}
	return tok, nil
}

// RefreshAccessToken obtains a fresh access token from a refresh token.
func RefreshAccessToken(ctx context.Context, cfg *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is empty")
	}
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	return tok, nil
}
