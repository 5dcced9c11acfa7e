package repository

import (
	"net/http"

	t_token "messenger_sync/pkg/token"
)

// TokenSource returns the current bearer credential
type TokenSource interface {
	Token() string
}

// StaticToken fixed credential, e.g. from config
type StaticToken string

// Token implement TokenSource
func (s StaticToken) Token() string { return string(s) }

// AuthTransport attach the bearer credential to each request.
// A 401 is reported to OnUnauthorized, session handling belongs to the caller.
type AuthTransport struct {
	Base           http.RoundTripper
	Source         TokenSource
	OnUnauthorized func()
}

// RoundTrip implement http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Source != nil && t_token.BearerToken(req.Header.Get("Authorization")) == "" {
		if tok := t.Source.Token(); tok != "" {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := base.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized && t.OnUnauthorized != nil {
		t.OnUnauthorized()
	}
	return resp, err
}
