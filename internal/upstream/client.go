// Package upstream talks to the Strava OAuth server and REST API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/pysugar/coach-connect/internal/auth/strava"
	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/secrets"
	"github.com/pysugar/coach-connect/internal/userstore"
)

// Config holds the upstream endpoints.
type Config struct {
	AuthURL        string
	TokenURL       string
	DeauthorizeURL string
	APIBaseURL     string
	Timeout        time.Duration
}

// APIError is a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, logging.Truncate(e.Body, 256))
}

// TokenResponse is the result of a token grant. Athlete is only set by the
// authorization_code grant.
type TokenResponse struct {
	Tokens  userstore.TokenSet
	Athlete *userstore.Athlete
}

// Client is safe for concurrent use.
type Client struct {
	cfg        Config
	secrets    secrets.Provider
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func NewClient(cfg Config, sp secrets.Provider, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		secrets:    sp,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) oauthConfig(ctx context.Context) (*oauth2.Config, error) {
	s, err := c.secrets.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth secrets: %w", err)
	}
	return strava.OAuthConfig(s, strava.Endpoints{AuthURL: c.cfg.AuthURL, TokenURL: c.cfg.TokenURL}, nil, ""), nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Exchange trades an authorization code for tokens and the athlete profile.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	cfg, err := c.oauthConfig(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, c.tokenError(ctx, "exchange", err)
	}

	athlete, err := strava.AthleteFromToken(tok)
	if err != nil {
		return nil, err
	}
	resp := tokenResponse(tok)
	resp.Athlete = &athlete
	return resp, nil
}

// Refresh runs the refresh_token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	cfg, err := c.oauthConfig(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, c.tokenError(ctx, "refresh", err)
	}
	return tokenResponse(tok), nil
}

func tokenResponse(tok *oauth2.Token) *TokenResponse {
	return &TokenResponse{
		Tokens: userstore.TokenSet{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    strava.ExpiresAt(tok),
			Scope:        strava.Scope(tok),
			TokenType:    tok.TokenType,
		},
	}
}

func (c *Client) tokenError(ctx context.Context, op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		logging.FromContext(ctx).Warn().
			Str("op", op).
			Int("status", re.Response.StatusCode).
			Str("body", logging.Body(re.Body)).
			Msg("upstream token endpoint rejected request")
		return fmt.Errorf("%s: %w", op, &APIError{StatusCode: re.Response.StatusCode, Body: string(re.Body)})
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Deauthorize revokes the application's access for the token's owner.
func (c *Client) Deauthorize(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.DeauthorizeURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	_, err = c.do(req)
	return err
}

// ActivityQuery filters the activity list. Before and After are epoch
// seconds; zero means unset.
type ActivityQuery struct {
	Before  int64
	After   int64
	PerPage int
}

// ListActivities returns the athlete's activities as raw JSON objects.
func (c *Client) ListActivities(ctx context.Context, accessToken string, q ActivityQuery) ([]json.RawMessage, error) {
	params := url.Values{}
	if q.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.After > 0 {
		params.Set("after", strconv.FormatInt(q.After, 10))
	}
	if q.Before > 0 {
		params.Set("before", strconv.FormatInt(q.Before, 10))
	}

	body, err := c.get(ctx, accessToken, "/athlete/activities", params)
	if err != nil {
		return nil, err
	}
	var activities []json.RawMessage
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return activities, nil
}

// AthleteStats returns the athlete's totals as raw JSON.
func (c *Client) AthleteStats(ctx context.Context, accessToken string, athleteID int64) (json.RawMessage, error) {
	body, err := c.get(ctx, accessToken, "/athletes/"+strconv.FormatInt(athleteID, 10)+"/stats", nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("decode stats: invalid JSON")
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, params url.Values) ([]byte, error) {
	u := strings.TrimRight(c.cfg.APIBaseURL, "/") + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.FromContext(req.Context()).Warn().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Str("body", logging.Body(body)).
			Msg("upstream request failed")
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
