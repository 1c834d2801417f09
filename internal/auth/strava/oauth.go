// Package strava holds the Strava flavour of the OAuth2 authorization-code
// flow: endpoint wiring and decoding of the extra token response fields.
package strava

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/pysugar/coach-connect/internal/secrets"
	"github.com/pysugar/coach-connect/internal/userstore"
)

// Endpoints locates the upstream authorization server.
type Endpoints struct {
	AuthURL  string
	TokenURL string
}

// OAuthConfig builds the oauth2 config. Strava expects the client
// credentials in the request body.
func OAuthConfig(s *secrets.OAuthSecrets, ep Endpoints, scopes []string, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   ep.AuthURL,
			TokenURL:  ep.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

var ErrNoAthlete = errors.New("token response has no athlete")

// AthleteFromToken decodes the athlete object Strava returns alongside the
// tokens of an authorization_code grant.
func AthleteFromToken(tok *oauth2.Token) (userstore.Athlete, error) {
	var athlete userstore.Athlete
	raw := tok.Extra("athlete")
	if raw == nil {
		return athlete, ErrNoAthlete
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return athlete, fmt.Errorf("encode athlete: %w", err)
	}
	if err := json.Unmarshal(data, &athlete); err != nil {
		return athlete, fmt.Errorf("decode athlete: %w", err)
	}
	if athlete.ID == 0 {
		return athlete, ErrNoAthlete
	}
	return athlete, nil
}

// ExpiresAt prefers the absolute expires_at field over expires_in.
func ExpiresAt(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_at").(type) {
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return tok.Expiry.Unix()
}

// Scope returns the granted scope when the token response carries one.
func Scope(tok *oauth2.Token) string {
	s, _ := tok.Extra("scope").(string)
	return s
}
