// Package gauth builds HTTP clients for Google REST endpoints.
//
// Google's Vision and Translation APIs accept either an API key in the
// query string or an OAuth2 bearer token. With an API key the shared client
// is returned untouched and callers append ?key=. Without one the client is
// wrapped with Application Default Credentials.
package gauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope used by both Vision and Translation.
const ScopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"

// ErrNoCredentials is returned when neither an API key nor ADC is available.
var ErrNoCredentials = errors.New("gauth: no API key and no application default credentials")

// Config selects the credential source.
type Config struct {
	// APIKey, when set, wins over every other credential source.
	APIKey string

	// UseADC enables Application Default Credentials when APIKey is empty.
	UseADC bool

	// TokenSource overrides ADC discovery (tests, workload identity, ...).
	TokenSource oauth2.TokenSource

	// Scopes requested from ADC. Defaults to cloud-platform.
	Scopes []string
}

// Client returns an HTTP client for Google APIs. base supplies the transport
// and timeout; the returned client never mutates it.
func Client(ctx context.Context, base *http.Client, cfg Config) (*http.Client, error) {
	if base == nil {
		base = http.DefaultClient
	}
	if cfg.APIKey != "" {
		return base, nil
	}

	ts := cfg.TokenSource
	if ts == nil {
		if !cfg.UseADC {
			return nil, ErrNoCredentials
		}
		scopes := cfg.Scopes
		if len(scopes) == 0 {
			scopes = []string{ScopeCloudPlatform}
		}
		var err error
		ts, err = google.DefaultTokenSource(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("gauth: default credentials: %w", err)
		}
	}

	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, ts),
			Base:   transport,
		},
	}, nil
}
